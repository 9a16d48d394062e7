// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// STREAM STATE
// =============================================================================

// StreamState is the lifecycle of one chat stream.
type StreamState int32

const (
	StateIdle StreamState = iota
	StateRequesting
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

var stateNames = [...]string{"idle", "requesting", "streaming", "completed", "failed", "cancelled"}

func (s StreamState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further events can be produced.
func (s StreamState) Terminal() bool {
	return s >= StateCompleted
}

// =============================================================================
// EVENTS
// =============================================================================

// EventKind identifies the shape of a stream event.
type EventKind int

const (
	// EventDelta carries one content fragment, exactly as sent.
	EventDelta EventKind = iota
	// EventDone is the terminal success marker with optional stats.
	EventDone
	// EventError is a terminal failure.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventDelta:
		return "delta"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is one item produced by a Stream.
type Event struct {
	Kind  EventKind
	Text  string // EventDelta
	Stats string // EventDone, may be empty
	Err   error  // EventError
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Kind != EventDelta
}

// =============================================================================
// STREAM
// =============================================================================

const readChunkSize = 4096

// ErrStreamEnded is the cause attached to a body that closed before the
// done marker.
var ErrStreamEnded = errors.New("stream ended before completion")

// Stream is a lazy, finite, non-restartable sequence of chat events.
//
// Next must be called from a single goroutine. Cancel may be called from
// any goroutine at any time; once it returns, Next never yields another
// event.
type Stream struct {
	client *Client
	req    ChatRequest
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state StreamState

	// Owned by the goroutine calling Next.
	started bool
	body    io.ReadCloser
	framer  Framer
	readBuf []byte
	eof     bool

	idle      *time.Timer
	idleFired atomic.Bool
}

func newStream(ctx context.Context, c *Client, req ChatRequest) *Stream {
	sctx, cancel := context.WithCancel(ctx)
	return &Stream{
		client: c,
		req:    req,
		ctx:    sctx,
		cancel: cancel,
		state:  StateIdle,
	}
}

// Request returns the request snapshot the stream sends.
func (s *Stream) Request() ChatRequest {
	return s.req
}

// State returns the current lifecycle state.
func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cancel aborts the transport. No event is delivered after Cancel
// returns. Cancelling a finished stream is a no-op.
func (s *Stream) Cancel() {
	s.mu.Lock()
	if !s.state.Terminal() {
		s.state = StateCancelled
	}
	s.mu.Unlock()
	s.cancel()
}

// Next returns the next event. The boolean is false once the stream has
// delivered its terminal event or has been cancelled.
func (s *Stream) Next() (Event, bool) {
	if s.State().Terminal() {
		s.release()
		return Event{}, false
	}

	ev := s.produce()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCancelled {
		s.release()
		return Event{}, false
	}
	switch ev.Kind {
	case EventDelta:
		return ev, true
	case EventDone:
		s.state = StateCompleted
	case EventError:
		if IsCanceled(ev.Err) {
			// The parent context went away without Cancel being called.
			s.state = StateCancelled
			s.release()
			return Event{}, false
		}
		s.state = StateFailed
	}
	s.release()
	return ev, true
}

// release stops the watchdog and tears down the transport. The body is
// closed by the context.AfterFunc registered in start.
func (s *Stream) release() {
	if s.idle != nil {
		s.idle.Stop()
	}
	s.cancel()
}

func (s *Stream) setState(from, to StreamState) {
	s.mu.Lock()
	if s.state == from {
		s.state = to
	}
	s.mu.Unlock()
}

// produce performs I/O until one event is available. It always returns
// an event; end of input without a done marker is reported as an error.
func (s *Stream) produce() Event {
	if !s.started {
		s.started = true
		if err := s.start(); err != nil {
			return Event{Kind: EventError, Err: err}
		}
	}

	for {
		if line, ok := s.framer.Next(); ok {
			if ev, ok := decodeLine(line); ok {
				return ev
			}
			continue
		}

		if s.eof {
			if rest := s.framer.Flush(); len(rest) > 0 {
				if ev, ok := decodeLine(rest); ok {
					return ev
				}
			}
			return Event{Kind: EventError, Err: newError(KindTransport, "chat stream failed", ErrStreamEnded)}
		}

		n, err := s.body.Read(s.readBuf)
		if n > 0 {
			s.setState(StateRequesting, StateStreaming)
			s.touch()
			s.framer.Write(s.readBuf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.eof = true
				continue
			}
			return Event{Kind: EventError, Err: s.transportError("chat stream", err)}
		}
	}
}

func (s *Stream) start() error {
	s.setState(StateIdle, StateRequesting)

	if d := s.client.config.IdleTimeout; d > 0 {
		s.idle = time.AfterFunc(d, func() {
			s.idleFired.Store(true)
			s.cancel()
		})
	}

	body, err := s.client.openChat(s.ctx, s.req)
	if err != nil {
		return s.transportError("chat request", err)
	}
	s.body = body
	s.readBuf = make([]byte, readChunkSize)
	context.AfterFunc(s.ctx, func() { body.Close() })
	return nil
}

func (s *Stream) touch() {
	if s.idle != nil {
		s.idle.Reset(s.client.config.IdleTimeout)
	}
}

func (s *Stream) transportError(op string, err error) error {
	if s.idleFired.Load() {
		return newError(KindTimeout,
			fmt.Sprintf("%s idle for %s", op, s.client.config.IdleTimeout), err)
	}
	if cerr := s.ctx.Err(); cerr != nil {
		if errors.Is(cerr, context.DeadlineExceeded) {
			return newError(KindTimeout, op+" timed out", err)
		}
		return newError(KindCanceled, op+" canceled", err)
	}
	return classifyTransport(op, err)
}

// =============================================================================
// LINE DECODING
// =============================================================================

// decodeLine turns one NDJSON line into an event. Checks run in order:
// error, done, message content. Lines matching none of these, including
// invalid JSON, are skipped.
func decodeLine(line []byte) (Event, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Event{}, false
	}

	var f streamFrame
	if err := json.Unmarshal(line, &f); err != nil {
		return Event{}, false
	}

	switch {
	case f.Error != nil:
		msg := *f.Error
		if msg == "" {
			msg = "server reported an error"
		}
		return Event{Kind: EventError, Err: &ClientError{Kind: KindServer, Message: msg}}, true
	case f.Done != nil && *f.Done:
		return Event{Kind: EventDone, Stats: formatStats(f.EvalCount, f.EvalDuration)}, true
	case f.Message != nil && f.Message.Content != nil:
		return Event{Kind: EventDelta, Text: *f.Message.Content}, true
	}
	return Event{}, false
}

// formatStats renders "Tokens: N | X.X tok/s". durationNS is in
// nanoseconds. Either part is omitted when its inputs are missing.
func formatStats(count, durationNS *float64) string {
	var parts []string
	if count != nil {
		parts = append(parts, "Tokens: "+strconv.FormatFloat(*count, 'f', -1, 64))
		if durationNS != nil && *durationNS > 0 {
			tps := *count / (*durationNS / float64(time.Second))
			parts = append(parts, fmt.Sprintf("%.1f tok/s", tps))
		}
	}
	return strings.Join(parts, " | ")
}
