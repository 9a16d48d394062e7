// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorKind categorizes client errors for handling and display.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota

	// Configuration errors, detected before any network call.
	KindInvalidAddress
	KindInvalidPort

	// Transport errors.
	KindHostNotFound
	KindConnectionRefused
	KindTimeout
	KindNoNetwork
	KindTransport
	KindCanceled

	// Protocol errors.
	KindHTTPStatus
	KindDecode
	KindServer
)

var kindNames = map[ErrorKind]string{
	KindUnknown:           "unknown",
	KindInvalidAddress:    "invalid address",
	KindInvalidPort:       "invalid port",
	KindHostNotFound:      "host not found",
	KindConnectionRefused: "connection refused",
	KindTimeout:           "timed out",
	KindNoNetwork:         "no network",
	KindTransport:         "transport",
	KindCanceled:          "canceled",
	KindHTTPStatus:        "http status",
	KindDecode:            "decode",
	KindServer:            "server",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int // set for KindHTTPStatus
	Cause      error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// UserMessage returns the status text shown to the user for this error.
func (e *ClientError) UserMessage() string {
	switch e.Kind {
	case KindInvalidAddress:
		return "Error: " + e.Message + "."
	case KindInvalidPort:
		return "Error: Invalid port number."
	case KindHostNotFound:
		return "Error: Cannot find the server. Verify the address."
	case KindConnectionRefused:
		return "Error: Connection refused by server. Ensure Ollama is running and listening."
	case KindTimeout:
		return "Error: Connection timed out. Check server responsiveness and network."
	case KindNoNetwork:
		return "Error: Not connected to the network. Please check your connection."
	case KindHTTPStatus:
		return fmt.Sprintf("Error: Server returned status %d.", e.StatusCode)
	case KindDecode:
		return "Error: Could not decode " + e.Message + "."
	case KindCanceled:
		return "Cancelled."
	default:
		return "Error: " + e.Error()
	}
}

func newError(kind ErrorKind, msg string, cause error) *ClientError {
	return &ClientError{Kind: kind, Message: msg, Cause: cause}
}

// KindOf returns the ErrorKind of err, or KindUnknown if err is not a
// *ClientError.
func KindOf(err error) ErrorKind {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// IsConfigError reports whether err was raised before any network I/O.
func IsConfigError(err error) bool {
	k := KindOf(err)
	return k == KindInvalidAddress || k == KindInvalidPort
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

// IsCanceled checks if an error comes from caller cancellation.
func IsCanceled(err error) bool {
	return KindOf(err) == KindCanceled
}

// UserMessage returns the user-facing status text for any error.
func UserMessage(err error) string {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.UserMessage()
	}
	return "Error: " + err.Error()
}

// classifyTransport maps an error from http.Client.Do or a body read to
// a ClientError category.
func classifyTransport(op string, err error) *ClientError {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce
	}

	switch {
	case errors.Is(err, context.Canceled):
		return newError(KindCanceled, op+" canceled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindTimeout, op+" timed out", err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return newError(KindTimeout, op+" timed out", err)
		}
		return newError(KindHostNotFound, "cannot resolve "+dnsErr.Name, err)
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return newError(KindConnectionRefused, "connection refused", err)
	case errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETDOWN):
		return newError(KindNoNetwork, "network unreachable", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(KindTimeout, op+" timed out", err)
	}

	return newError(KindTransport, op+" failed", err)
}
