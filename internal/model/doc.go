// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and
// messages, and the MessageStore that owns one session's timeline.
//
// # Key Types
//
//   - Message: single chat message with sender, content, content type and stats
//   - Session: persisted conversation (ordered messages plus metadata)
//   - MessageStore: ordered, mutation-serialized timeline with append,
//     applyDelta and finalize, plus change subscriptions
//   - Sender: message author (user or model)
//
// # Usage
//
//	store := model.NewMessageStore(nil)
//	unsubscribe := store.Subscribe(func(c model.Change) { redraw(c.Message) })
//	defer unsubscribe()
//
//	reply := model.NewModelMessage()
//	_ = store.Append(reply)
//	store.ApplyDelta(reply.ID, "Hel")
//	store.ApplyDelta(reply.ID, "lo")
//	store.Finalize(reply.ID, "Tokens: 2", "")
package model
