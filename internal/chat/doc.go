// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat drives a conversation turn from prompt to finished reply.
//
// A Controller binds the current session's MessageStore to a streaming
// Ollama client. Send appends the user message and an empty streaming
// reply, then a pump goroutine applies stream events to the reply in
// order. Every store change is written through to the session manager.
//
// Cancel and session switches stop the in-flight stream and finalize the
// reply with whatever text it already has.
package chat
