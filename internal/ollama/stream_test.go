// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// HELPERS
// =============================================================================

// chunkedServer writes each chunk and flushes, so the client sees the
// exact byte boundaries chosen by the test.
func chunkedServer(t *testing.T, chunks ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PathChat {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for _, c := range chunks {
			_, _ = w.Write([]byte(c))
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func drain(s *Stream) []Event {
	var events []Event
	for ev, ok := s.Next(); ok; ev, ok = s.Next() {
		events = append(events, ev)
	}
	return events
}

func streamFor(t *testing.T, srv *httptest.Server, cfg *ClientConfig) *Stream {
	t.Helper()
	client := clientFor(t, srv, cfg)
	return client.ChatStream(context.Background(), NewChatRequest("llama2:latest", nil, "hi"))
}

// =============================================================================
// STREAM TESTS
// =============================================================================

func TestStreamHelloScenario(t *testing.T) {
	body := `{"message":{"content":"Hel"}}` + "\n" +
		`{"message":{"content":"lo"}}` + "\n" +
		`{"done":true,"eval_count":10,"eval_duration":2000000000}` + "\n"
	split := strings.Index(body, "lo\"") + 1

	srv := chunkedServer(t, body[:split], body[split:])
	s := streamFor(t, srv, nil)
	assert.Equal(t, StateIdle, s.State())

	events := drain(s)
	require.Len(t, events, 3)

	var content strings.Builder
	for _, ev := range events[:2] {
		require.Equal(t, EventDelta, ev.Kind)
		content.WriteString(ev.Text)
	}
	assert.Equal(t, "Hello", content.String())

	done := events[2]
	assert.Equal(t, EventDone, done.Kind)
	assert.Contains(t, done.Stats, "Tokens: 10")
	assert.Contains(t, done.Stats, "5.0 tok/s")
	assert.Equal(t, StateCompleted, s.State())

	_, ok := s.Next()
	assert.False(t, ok, "no events after done")
}

func TestStreamDeltaOrdering(t *testing.T) {
	words := []string{"The", " quick", " brown", " fox", " jumps", " — ", "ünïcode", "\n", "end"}
	var sb strings.Builder
	for _, w := range words {
		line, _ := json.Marshal(map[string]interface{}{"message": map[string]string{"content": w}})
		sb.Write(line)
		sb.WriteByte('\n')
	}
	sb.WriteString(`{"done":true}` + "\n")
	body := sb.String()

	// Three-byte chunks split lines and multi-byte characters alike.
	chunks := make([]string, 0, len(body))
	for i := 0; i < len(body); i += 3 {
		end := i + 3
		if end > len(body) {
			end = len(body)
		}
		chunks = append(chunks, body[i:end])
	}

	events := drain(streamFor(t, chunkedServer(t, chunks...), nil))
	require.Len(t, events, len(words)+1)

	var got strings.Builder
	for _, ev := range events[:len(words)] {
		require.Equal(t, EventDelta, ev.Kind)
		got.WriteString(ev.Text)
	}
	assert.Equal(t, strings.Join(words, ""), got.String())
	assert.Equal(t, EventDone, events[len(words)].Kind)
	assert.Empty(t, events[len(words)].Stats)
}

func TestStreamServerErrorIsTerminal(t *testing.T) {
	srv := chunkedServer(t,
		`{"message":{"content":"partial"}}`+"\n",
		`{"error":"model 'x' not found"}`+"\n",
		`{"message":{"content":"ignored"}}`+"\n",
		`{"done":true}`+"\n",
	)
	s := streamFor(t, srv, nil)
	events := drain(s)
	require.Len(t, events, 2)
	assert.Equal(t, EventDelta, events[0].Kind)
	assert.Equal(t, EventError, events[1].Kind)
	assert.Equal(t, KindServer, KindOf(events[1].Err))
	assert.Equal(t, "model 'x' not found", events[1].Err.Error())
	assert.Equal(t, StateFailed, s.State())
}

func TestStreamIgnoresUnknownLines(t *testing.T) {
	srv := chunkedServer(t,
		"not json\n",
		`{"status":"loading"}`+"\n",
		"\r\n",
		`{"message":{"role":"assistant"}}`+"\n",
		`{"done":false,"message":{"content":"ok"}}`+"\n",
		`{"done":true,"eval_count":3}`+"\n",
	)
	events := drain(streamFor(t, srv, nil))
	require.Len(t, events, 2)
	assert.Equal(t, "ok", events[0].Text)
	assert.Equal(t, "Tokens: 3", events[1].Stats)
}

func TestStreamEOFBeforeDone(t *testing.T) {
	srv := chunkedServer(t, `{"message":{"content":"cut"}}`+"\n")
	s := streamFor(t, srv, nil)
	events := drain(s)
	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[1].Kind)
	assert.Equal(t, KindTransport, KindOf(events[1].Err))
	assert.ErrorIs(t, events[1].Err, ErrStreamEnded)
	assert.Equal(t, StateFailed, s.State())
}

func TestStreamUnterminatedDoneLine(t *testing.T) {
	srv := chunkedServer(t, `{"message":{"content":"x"}}`+"\n", `{"done":true}`)
	events := drain(streamFor(t, srv, nil))
	require.Len(t, events, 2)
	assert.Equal(t, EventDone, events[1].Kind)
}

func TestStreamHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"nope\" not found, try pulling it first"}`))
	}))
	defer srv.Close()

	s := streamFor(t, srv, nil)
	events := drain(s)
	require.Len(t, events, 1)

	var ce *ClientError
	require.ErrorAs(t, events[0].Err, &ce)
	assert.Equal(t, KindHTTPStatus, ce.Kind)
	assert.Equal(t, http.StatusNotFound, ce.StatusCode)
	assert.Contains(t, ce.Message, "try pulling it first")
	assert.Equal(t, StateFailed, s.State())
}

func TestStreamRequestBody(t *testing.T) {
	received := make(chan ChatRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PathChat, r.URL.Path)
		var req ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		received <- req
		_, _ = w.Write([]byte(`{"done":true}` + "\n"))
	}))
	defer srv.Close()

	history := []Message{NewUserMessage("first"), NewAssistantMessage("answer")}
	req := NewChatRequest("mistral:latest", history, "second")
	s := clientFor(t, srv, nil).ChatStream(context.Background(), req)

	// Mutating the caller's copy must not leak into the in-flight request.
	req.Messages[0].Content = "edited"
	req.Options.NumCtx = 1

	drain(s)
	got := <-received
	assert.Equal(t, "mistral:latest", got.Model)
	assert.True(t, got.Stream)
	require.NotNil(t, got.Options)
	assert.Equal(t, DefaultNumCtx, got.Options.NumCtx)
	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "answer"},
		{Role: RoleUser, Content: "second"},
	}, got.Messages)
}

func TestStreamCancelMidStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"content":"first"}}` + "\n"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
		_, _ = w.Write([]byte(`{"message":{"content":"late"}}` + "\n" + `{"done":true}` + "\n"))
	}))
	defer srv.Close()
	defer close(release)

	s := streamFor(t, srv, nil)
	ev, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, "first", ev.Text)
	assert.Equal(t, StateStreaming, s.State())

	s.Cancel()
	assert.Equal(t, StateCancelled, s.State())

	_, ok = s.Next()
	assert.False(t, ok, "no events after cancel")
	_, ok = s.Next()
	assert.False(t, ok)
}

func TestStreamCancelFromAnotherGoroutine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"content":"a"}}` + "\n"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	s := streamFor(t, srv, nil)
	_, ok := s.Next()
	require.True(t, ok)

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Cancel()
	}()

	start := time.Now()
	_, ok = s.Next()
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StateCancelled, s.State())
}

func TestStreamCancelBeforeStart(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	s := streamFor(t, srv, nil)
	s.Cancel()
	_, ok := s.Next()
	assert.False(t, ok)
	assert.Zero(t, hits.Load(), "cancelled stream must not send a request")
}

func TestStreamParentContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"content":"a"}}` + "\n"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	s := clientFor(t, srv, nil).ChatStream(ctx, NewChatRequest("m", nil, "p"))
	_, ok := s.Next()
	require.True(t, ok)

	cancel()
	_, ok = s.Next()
	assert.False(t, ok)
	assert.Equal(t, StateCancelled, s.State())
}

func TestStreamIdleTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"content":"a"}}` + "\n"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	s := streamFor(t, srv, &ClientConfig{IdleTimeout: 100 * time.Millisecond})
	events := drain(s)
	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[1].Kind)
	assert.True(t, IsTimeout(events[1].Err), "got %v", events[1].Err)
	assert.Equal(t, StateFailed, s.State())
}

// =============================================================================
// STATS FORMATTING
// =============================================================================

func TestFormatStats(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	tests := []struct {
		count, dur *float64
		want       string
	}{
		{f(10), f(2e9), "Tokens: 10 | 5.0 tok/s"},
		{f(42), nil, "Tokens: 42"},
		{f(7), f(0), "Tokens: 7"},
		{nil, f(2e9), ""},
		{nil, nil, ""},
		{f(100), f(3e9), "Tokens: 100 | 33.3 tok/s"},
	}
	for _, tt := range tests {
		name := fmt.Sprintf("%v/%v", tt.count != nil, tt.dur != nil)
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatStats(tt.count, tt.dur))
		})
	}
}

func TestDecodeLinePrecedence(t *testing.T) {
	ev, ok := decodeLine([]byte(`{"error":"boom","done":true,"message":{"content":"x"}}`))
	require.True(t, ok)
	assert.Equal(t, EventError, ev.Kind)

	ev, ok = decodeLine([]byte(`{"done":true,"message":{"content":""}}`))
	require.True(t, ok)
	assert.Equal(t, EventDone, ev.Kind)

	_, ok = decodeLine([]byte(`{"done":"yes"}`))
	assert.False(t, ok, "mistyped done field is not a frame")

	ev, ok = decodeLine([]byte(`{"error":""}`))
	require.True(t, ok)
	assert.Equal(t, "server reported an error", ev.Err.Error())
}
