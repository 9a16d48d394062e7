// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with an
// Ollama-compatible model server.
//
// The client covers three endpoints: the version probe, the model
// listing, and the streaming chat completion. Streaming responses are
// newline-delimited JSON; the package reassembles lines from arbitrarily
// chunked transport reads and decodes each line into one of three event
// shapes (delta, done, error).
//
// # Key Types
//
//   - Client: immutable per-endpoint HTTP client (probe, list, chat)
//   - ClientError: categorized failure (configuration, transport, protocol)
//   - Stream: lazy, non-restartable iterator of chat events with Cancel
//   - Framer: incremental newline reassembly buffer
//
// # Usage
//
//	client, err := ollama.NewClient("localhost", "11434")
//	if err != nil {
//	    return err // configuration error, no I/O performed
//	}
//	version, err := client.Version(ctx)
//
// Streaming:
//
//	stream := client.ChatStream(ctx, ollama.NewChatRequest(model, history, prompt))
//	defer stream.Cancel()
//	for ev, ok := stream.Next(); ok; ev, ok = stream.Next() {
//	    switch ev.Kind {
//	    case ollama.EventDelta:
//	        fmt.Print(ev.Text)
//	    case ollama.EventDone:
//	        fmt.Println(ev.Stats)
//	    case ollama.EventError:
//	        return ev.Err
//	    }
//	}
package ollama
