// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ownai/internal/export"
	"github.com/jeranaias/ownai/internal/model"
	"github.com/jeranaias/ownai/internal/storage"
)

func newStore(t *testing.T) (storage.Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "sessions")
	s, err := storage.NewFileStore(dir, nil)
	require.NoError(t, err)
	return s, dir
}

func reopen(t *testing.T, dir string) *Manager {
	t.Helper()
	s, err := storage.NewFileStore(dir, nil)
	require.NoError(t, err)
	m, err := Open(context.Background(), s)
	require.NoError(t, err)
	return m
}

// flakyStore fails SaveSession while fail is set.
type flakyStore struct {
	storage.Store
	mu   sync.Mutex
	fail bool
}

func (f *flakyStore) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *flakyStore) SaveSession(ctx context.Context, s model.Session) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.Store.SaveSession(ctx, s)
}

func TestOpenCreatesFirstSession(t *testing.T) {
	store, dir := newStore(t)
	m, err := Open(context.Background(), store)
	require.NoError(t, err)

	sessions := m.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, sessions[0].ID, m.CurrentID())
	assert.Equal(t, model.DefaultTitle, sessions[0].DisplayTitle())

	// Persisted, so a restart does not create a second one.
	again := reopen(t, dir)
	require.Len(t, again.Sessions(), 1)
	assert.Equal(t, m.CurrentID(), again.CurrentID())
}

func TestOpenHealsDanglingCurrent(t *testing.T) {
	ctx := context.Background()
	store, dir := newStore(t)
	first := model.NewSession()
	require.NoError(t, store.SaveSession(ctx, first))
	require.NoError(t, store.SaveCurrent(ctx, "gone"))

	m, err := Open(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, first.ID, m.CurrentID())
	assert.Equal(t, first.ID, reopen(t, dir).CurrentID())
}

func TestCreateSwitchRecord(t *testing.T) {
	ctx := context.Background()
	store, dir := newStore(t)
	m, err := Open(ctx, store)
	require.NoError(t, err)
	a := m.CurrentID()

	b, err := m.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, b, m.CurrentID())
	assert.NotEqual(t, a, b)

	require.NoError(t, m.SwitchTo(ctx, a))
	assert.Equal(t, a, m.CurrentID())

	msgs := []model.Message{model.NewUserMessage("Hi")}
	require.NoError(t, m.RecordMessages(ctx, a, msgs))

	got, ok := m.Get(a)
	require.True(t, ok)
	assert.Equal(t, msgs, got.Messages)
	assert.Equal(t, "Hi", got.DisplayTitle())

	// Sessions come back in creation order with the same current pointer.
	again := reopen(t, dir)
	sessions := again.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, a, sessions[0].ID)
	assert.Equal(t, b, sessions[1].ID)
	assert.Equal(t, a, again.CurrentID())
	assert.Equal(t, msgs, sessions[0].Messages)
}

func TestSwitchToUnknown(t *testing.T) {
	store, _ := newStore(t)
	m, err := Open(context.Background(), store)
	require.NoError(t, err)
	before := m.CurrentID()

	err = m.SwitchTo(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, before, m.CurrentID())
}

func TestRecordMessagesUnknownIsNoop(t *testing.T) {
	store, _ := newStore(t)
	m, err := Open(context.Background(), store)
	require.NoError(t, err)

	require.NoError(t, m.RecordMessages(context.Background(), "nope", []model.Message{model.NewUserMessage("x")}))
	assert.Len(t, m.Sessions(), 1)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store, dir := newStore(t)
	m, err := Open(ctx, store)
	require.NoError(t, err)
	a := m.CurrentID()
	b, err := m.Create(ctx)
	require.NoError(t, err)

	t.Run("non-current keeps pointer", func(t *testing.T) {
		require.NoError(t, m.Delete(ctx, a))
		assert.Equal(t, b, m.CurrentID())
		require.Len(t, m.Sessions(), 1)
	})

	t.Run("current falls back to none", func(t *testing.T) {
		require.NoError(t, m.Delete(ctx, b))
		assert.Empty(t, m.CurrentID())
		assert.Empty(t, m.Sessions())
		_, ok := m.Current()
		assert.False(t, ok)
	})

	t.Run("unknown", func(t *testing.T) {
		assert.ErrorIs(t, m.Delete(ctx, "nope"), ErrSessionNotFound)
	})

	// Empty store on restart yields a fresh first session.
	assert.Len(t, reopen(t, dir).Sessions(), 1)
}

func TestDeleteCurrentMovesToFirst(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	m, err := Open(ctx, store)
	require.NoError(t, err)
	a := m.CurrentID()
	_, err = m.Create(ctx)
	require.NoError(t, err)
	c, err := m.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, c))
	assert.Equal(t, a, m.CurrentID())
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	store, dir := newStore(t)
	m, err := Open(ctx, store)
	require.NoError(t, err)
	id := m.CurrentID()
	require.NoError(t, m.RecordMessages(ctx, id, []model.Message{model.NewUserMessage("first question")}))

	require.NoError(t, m.Rename(ctx, id, "  Notes  "))
	got, _ := m.Get(id)
	assert.Equal(t, "Notes", got.DisplayTitle())
	got, _ = reopen(t, dir).Get(id)
	assert.Equal(t, "Notes", got.Title)

	require.NoError(t, m.Rename(ctx, id, "   "))
	got, _ = m.Get(id)
	assert.Empty(t, got.Title)
	assert.Equal(t, "first question", got.DisplayTitle())

	assert.ErrorIs(t, m.Rename(ctx, "nope", "x"), ErrSessionNotFound)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	m, err := Open(ctx, store)
	require.NoError(t, err)
	id := m.CurrentID()

	reply := model.NewModelMessage()
	reply.Content = "Hello"
	reply.IsStreaming = false
	reply.Stats = "Tokens: 5 | 50.0 tok/s"
	require.NoError(t, m.RecordMessages(ctx, id, []model.Message{model.NewUserMessage("Hi"), reply}))
	require.NoError(t, m.Rename(ctx, id, "Greeting"))

	sess, _ := m.Get(id)
	dest := filepath.Join(t.TempDir(), "greeting.json")
	require.NoError(t, m.ExportToFile(sess, dest))
	assert.Len(t, m.Sessions(), 1)

	newID, err := m.ImportFromFile(ctx, dest)
	require.NoError(t, err)
	assert.NotEqual(t, id, newID)
	assert.Equal(t, newID, m.CurrentID())
	require.Len(t, m.Sessions(), 2)

	imported, ok := m.Get(newID)
	require.True(t, ok)
	assert.Equal(t, sess.Messages, imported.Messages)
	assert.Equal(t, "Greeting", imported.Title)
	assert.Equal(t, sess.CreatedAt, imported.CreatedAt)
}

// Any title Rename accepts must survive export and import.
func TestExportImportLongTitle(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	m, err := Open(ctx, store)
	require.NoError(t, err)
	id := m.CurrentID()

	title := strings.Repeat("a", 201) + " " + strings.Repeat("é", 300)
	require.NoError(t, m.Rename(ctx, id, title))
	sess, _ := m.Get(id)

	for _, name := range []string{"long.json", "long.yaml"} {
		dest := filepath.Join(t.TempDir(), name)
		require.NoError(t, m.ExportToFile(sess, dest))

		newID, err := m.ImportFromFile(ctx, dest)
		require.NoError(t, err, name)
		imported, ok := m.Get(newID)
		require.True(t, ok)
		assert.Equal(t, title, imported.Title, name)
	}
}

func TestImportInvalidLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	m, err := Open(ctx, store)
	require.NoError(t, err)
	before := m.CurrentID()

	src := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"id":`), 0o600))

	_, err = m.ImportFromFile(ctx, src)
	assert.ErrorIs(t, err, export.ErrInvalidDocument)
	assert.Len(t, m.Sessions(), 1)
	assert.Equal(t, before, m.CurrentID())
}

func TestImportPersistFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	base, _ := newStore(t)
	store := &flakyStore{Store: base}
	m, err := Open(ctx, store)
	require.NoError(t, err)
	before := m.CurrentID()

	sess, _ := m.Get(before)
	src := filepath.Join(t.TempDir(), "ok.yaml")
	require.NoError(t, m.ExportToFile(sess, src))

	store.setFail(true)
	_, err = m.ImportFromFile(ctx, src)
	require.Error(t, err)
	assert.Len(t, m.Sessions(), 1)
	assert.Equal(t, before, m.CurrentID())
}

func TestPersistFailureIsReported(t *testing.T) {
	ctx := context.Background()
	base, _ := newStore(t)
	store := &flakyStore{Store: base}
	m, err := Open(ctx, store)
	require.NoError(t, err)
	id := m.CurrentID()

	store.setFail(true)
	msgs := []model.Message{model.NewUserMessage("kept in memory")}
	assert.Error(t, m.RecordMessages(ctx, id, msgs))

	got, _ := m.Get(id)
	assert.Equal(t, msgs, got.Messages)
}

func TestResolvePrefix(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	m, err := Open(ctx, store)
	require.NoError(t, err)
	id := m.CurrentID()

	got, err := m.Resolve(id[:8])
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = m.Resolve("zzzz")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	m, err := Open(ctx, store)
	require.NoError(t, err)

	var events []Event
	unsubscribe := m.Subscribe(func(ev Event) { events = append(events, ev) })

	id, err := m.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Rename(ctx, id, "x"))
	require.NoError(t, m.Delete(ctx, id))
	unsubscribe()
	_, err = m.Create(ctx)
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, EventCreated, events[0].Kind)
	assert.Equal(t, EventRenamed, events[1].Kind)
	assert.Equal(t, EventDeleted, events[2].Kind)
	assert.Equal(t, id, events[2].SessionID)
	assert.NotEqual(t, id, events[2].CurrentID)
}
