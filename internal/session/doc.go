// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns the collection of chat sessions and the
// current-session pointer.
//
// Every mutation is written through to a storage.Store as a full-session
// overwrite. A failed write is reported to the caller and leaves the
// in-memory state consistent. Imports always receive a fresh ID.
//
// # Usage
//
//	mgr, err := session.Open(ctx, store, session.WithLogger(logger))
//	id, err := mgr.Create(ctx)
//	err = mgr.RecordMessages(ctx, id, timeline.Snapshot())
//	err = mgr.Rename(ctx, id, "Debugging notes")
package session
