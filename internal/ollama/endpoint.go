// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// LoopbackIPv4 replaces a literal "localhost" address so the client does
// not wait on dual-stack resolution.
const LoopbackIPv4 = "127.0.0.1"

// API paths.
const (
	PathVersion = "/api/version"
	PathTags    = "/api/tags"
	PathChat    = "/api/chat"
)

// ResolveEndpoint validates a user-supplied address and port and returns
// the server base URL. The port always comes from the port argument, even
// when the address already carries one. No network I/O is performed.
func ResolveEndpoint(address, port string) (*url.URL, error) {
	address = strings.TrimSpace(address)
	port = strings.TrimSpace(port)

	if address == "" {
		return nil, newError(KindInvalidAddress, "Server address cannot be empty", nil)
	}

	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		return nil, newError(KindInvalidPort, "invalid port "+strconv.Quote(port), err)
	}

	if strings.EqualFold(address, "localhost") {
		address = LoopbackIPv4
	}

	raw := address
	lower := strings.ToLower(address)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "http://" + address
	}

	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" || strings.ContainsAny(u.Hostname(), " \t") {
		return nil, newError(KindInvalidAddress,
			"Invalid server address format. Use a hostname or IP, optionally prefixed with http:// or https://", err)
	}

	return &url.URL{
		Scheme: strings.ToLower(u.Scheme),
		Host:   net.JoinHostPort(u.Hostname(), strconv.Itoa(p)),
	}, nil
}
