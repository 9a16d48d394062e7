// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ownai/internal/model"
)

// backends runs fn against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, open func() Store)) {
	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sessions.db")
		fn(t, func() Store {
			s, err := OpenSQLite(path, nil)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		})
	})
	t.Run("json", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "sessions")
		fn(t, func() Store {
			s, err := NewFileStore(dir, nil)
			require.NoError(t, err)
			return s
		})
	})
}

func sampleSession(title string, texts ...string) model.Session {
	s := model.NewSession()
	s.Title = title
	for i, text := range texts {
		if i%2 == 0 {
			s.Messages = append(s.Messages, model.NewUserMessage(text))
		} else {
			m := model.NewModelMessage()
			m.Content = text
			m.IsStreaming = false
			m.Stats = "Tokens: 4"
			s.Messages = append(s.Messages, m)
		}
	}
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	backends(t, func(t *testing.T, open func() Store) {
		ctx := context.Background()
		store := open()

		a := sampleSession("", "hello", "hi there")
		time.Sleep(time.Millisecond)
		b := sampleSession("Second", "```go\nx\n```")
		require.NoError(t, store.SaveSession(ctx, a))
		require.NoError(t, store.SaveSession(ctx, b))
		require.NoError(t, store.SaveCurrent(ctx, b.ID))

		// A fresh handle sees what the first one wrote.
		snap, err := open().Load(ctx)
		require.NoError(t, err)
		require.Len(t, snap.Sessions, 2)
		assert.Equal(t, b.ID, snap.CurrentID)
		assert.Equal(t, a, snap.Sessions[0])
		assert.Equal(t, b, snap.Sessions[1])
	})
}

func TestStoreOverwriteKeepsOrder(t *testing.T) {
	backends(t, func(t *testing.T, open func() Store) {
		ctx := context.Background()
		store := open()

		a := sampleSession("", "first")
		time.Sleep(time.Millisecond)
		b := sampleSession("", "second")
		require.NoError(t, store.SaveSession(ctx, a))
		require.NoError(t, store.SaveSession(ctx, b))

		a.Messages = append(a.Messages, model.NewUserMessage("more"))
		a.Title = "renamed"
		require.NoError(t, store.SaveSession(ctx, a))

		snap, err := store.Load(ctx)
		require.NoError(t, err)
		require.Len(t, snap.Sessions, 2)
		assert.Equal(t, a.ID, snap.Sessions[0].ID)
		assert.Len(t, snap.Sessions[0].Messages, 2)
		assert.Equal(t, "renamed", snap.Sessions[0].Title)
	})
}

func TestStoreDelete(t *testing.T) {
	backends(t, func(t *testing.T, open func() Store) {
		ctx := context.Background()
		store := open()
		s := sampleSession("", "x")
		require.NoError(t, store.SaveSession(ctx, s))

		require.NoError(t, store.DeleteSession(ctx, s.ID))
		assert.ErrorIs(t, store.DeleteSession(ctx, s.ID), ErrSessionNotFound)

		snap, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, snap.Sessions)
	})
}

func TestStoreClearCurrent(t *testing.T) {
	backends(t, func(t *testing.T, open func() Store) {
		ctx := context.Background()
		store := open()
		require.NoError(t, store.SaveCurrent(ctx, "abc"))
		require.NoError(t, store.SaveCurrent(ctx, ""))

		snap, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, snap.CurrentID)
	})
}

// A crash mid-stream leaves a streaming flag on disk; it must load settled.
func TestStoreSettlesStreamingMessages(t *testing.T) {
	backends(t, func(t *testing.T, open func() Store) {
		ctx := context.Background()
		store := open()
		s := sampleSession("", "q")
		placeholder := model.NewModelMessage()
		placeholder.Content = "partial"
		s.Messages = append(s.Messages, placeholder)
		require.NoError(t, store.SaveSession(ctx, s))

		snap, err := store.Load(ctx)
		require.NoError(t, err)
		require.Len(t, snap.Sessions, 1)
		assert.False(t, snap.Sessions[0].Messages[1].IsStreaming)
		assert.Equal(t, "partial", snap.Sessions[0].Messages[1].Content)
	})
}

func TestFileStoreSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	good := sampleSession("", "ok")
	require.NoError(t, store.SaveSession(context.Background(), good))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "noid.json"), []byte(`{"messages":[]}`), 0o600))
	// Older documents without a title still load.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.json"),
		[]byte(`{"id":"old","messages":[],"created_at":"2024-01-01T00:00:00Z"}`), 0o600))

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Sessions, 2)
	assert.Equal(t, "old", snap.Sessions[0].ID)
	assert.Equal(t, good.ID, snap.Sessions[1].ID)
}

func TestFileStoreRejectsPathIDs(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	s := model.NewSession()
	s.ID = "../escape"
	assert.Error(t, store.SaveSession(context.Background(), s))
}

func TestOpenBackends(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(BackendSQLite, "", dir, nil)
	require.NoError(t, err)
	require.IsType(t, &SQLiteStore{}, s)
	assert.Equal(t, filepath.Join(dir, "sessions.db"), s.(*SQLiteStore).Path())
	s.Close()

	s, err = Open(BackendJSON, "", dir, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = Open("redis", "", dir, nil)
	assert.Error(t, err)
}
