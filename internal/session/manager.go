// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jeranaias/ownai/internal/export"
	"github.com/jeranaias/ownai/internal/model"
	"github.com/jeranaias/ownai/internal/storage"
)

// ErrSessionNotFound is returned for operations on an unknown session ID.
var ErrSessionNotFound = errors.New("session not found")

// =============================================================================
// EVENTS
// =============================================================================

// EventKind identifies a session-level change.
type EventKind int

const (
	EventCreated EventKind = iota
	EventUpdated
	EventSwitched
	EventRenamed
	EventDeleted
	EventImported
)

// Event is delivered to subscribers after a change has been applied.
type Event struct {
	Kind      EventKind
	SessionID string
	// CurrentID is the current session after the change; empty for none.
	CurrentID string
}

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Manager tracks all sessions and which one is current.
type Manager struct {
	mu       sync.Mutex
	store    storage.Store
	sessions []model.Session
	current  string

	observers map[int]func(Event)
	nextObs   int

	log *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// Open loads all sessions from store. A dangling current pointer falls
// back to the first session. When the store is empty a first session is
// created so the manager always starts with something current.
func Open(ctx context.Context, store storage.Store, opts ...Option) (*Manager, error) {
	m := &Manager{
		store:     store,
		observers: make(map[int]func(Event)),
		log:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}

	snap, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	m.sessions = snap.Sessions
	m.current = snap.CurrentID

	if len(m.sessions) == 0 {
		if _, err := m.Create(ctx); err != nil {
			return nil, err
		}
		return m, nil
	}

	if m.indexOf(m.current) < 0 {
		healed := m.sessions[0].ID
		m.log.Info("current session missing, falling back", "stored", m.current, "current", healed)
		m.current = healed
		if err := m.store.SaveCurrent(ctx, healed); err != nil {
			m.log.Warn("failed to persist current session", "error", err)
		}
	}
	return m, nil
}

func (m *Manager) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

// Subscribe registers fn for every future event and returns a function
// that removes it.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

// emit must be called without m.mu held.
func (m *Manager) emit(ev Event) {
	m.mu.Lock()
	obs := make([]func(Event), 0, len(m.observers))
	for _, fn := range m.observers {
		obs = append(obs, fn)
	}
	m.mu.Unlock()
	for _, fn := range obs {
		fn(ev)
	}
}

// =============================================================================
// READ ACCESS
// =============================================================================

// Sessions returns copies of all sessions in stable creation order.
func (m *Manager) Sessions() []model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Session, len(m.sessions))
	for i, s := range m.sessions {
		out[i] = s.Clone()
	}
	return out
}

// Get returns a copy of one session.
func (m *Manager) Get(id string) (model.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(id)
	if i < 0 {
		return model.Session{}, false
	}
	return m.sessions[i].Clone(), true
}

// CurrentID returns the current session ID, or "" when there is none.
func (m *Manager) CurrentID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Current returns a copy of the current session.
func (m *Manager) Current() (model.Session, bool) {
	return m.Get(m.CurrentID())
}

// Resolve finds a session by full ID or unique ID prefix.
func (m *Manager) Resolve(ref string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexOf(ref) >= 0 {
		return ref, nil
	}
	match := ""
	for _, s := range m.sessions {
		if ref != "" && strings.HasPrefix(s.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("session prefix %q is ambiguous", ref)
			}
			match = s.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, ref)
	}
	return match, nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Create adds an empty session, makes it current and persists both.
func (m *Manager) Create(ctx context.Context) (string, error) {
	s := model.NewSession()

	m.mu.Lock()
	m.sessions = append(m.sessions, s)
	m.current = s.ID
	err := m.persist(ctx, s, true)
	m.mu.Unlock()

	m.log.Debug("session created", "id", s.ID)
	m.emit(Event{Kind: EventCreated, SessionID: s.ID, CurrentID: s.ID})
	return s.ID, err
}

// RecordMessages replaces the stored messages of a session. Unknown IDs
// are ignored, so a late write for a deleted session is harmless.
func (m *Manager) RecordMessages(ctx context.Context, id string, msgs []model.Message) error {
	m.mu.Lock()
	i := m.indexOf(id)
	if i < 0 {
		m.mu.Unlock()
		return nil
	}
	m.sessions[i].Messages = append([]model.Message{}, msgs...)
	snapshot := m.sessions[i].Clone()
	current := m.current
	err := m.persist(ctx, snapshot, false)
	m.mu.Unlock()

	m.emit(Event{Kind: EventUpdated, SessionID: id, CurrentID: current})
	return err
}

// SwitchTo makes id current.
func (m *Manager) SwitchTo(ctx context.Context, id string) error {
	m.mu.Lock()
	if m.indexOf(id) < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	m.current = id
	err := m.saveCurrent(ctx)
	m.mu.Unlock()

	m.emit(Event{Kind: EventSwitched, SessionID: id, CurrentID: id})
	return err
}

// Delete removes a session. Deleting the current session moves the
// pointer to the first remaining session, or to none.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	i := m.indexOf(id)
	if i < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	m.sessions = append(m.sessions[:i], m.sessions[i+1:]...)

	var errs []error
	if err := m.store.DeleteSession(ctx, id); err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
		errs = append(errs, fmt.Errorf("delete session %s: %w", id, err))
	}
	if m.current == id {
		m.current = ""
		if len(m.sessions) > 0 {
			m.current = m.sessions[0].ID
		}
		if err := m.saveCurrent(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	current := m.current
	m.mu.Unlock()

	m.log.Debug("session deleted", "id", id, "current", current)
	m.emit(Event{Kind: EventDeleted, SessionID: id, CurrentID: current})
	return errors.Join(errs...)
}

// Rename sets a custom title. Surrounding whitespace is trimmed and an
// empty title reverts to the derived one.
func (m *Manager) Rename(ctx context.Context, id, title string) error {
	m.mu.Lock()
	i := m.indexOf(id)
	if i < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	m.sessions[i].Title = strings.TrimSpace(title)
	snapshot := m.sessions[i].Clone()
	current := m.current
	err := m.persist(ctx, snapshot, false)
	m.mu.Unlock()

	m.emit(Event{Kind: EventRenamed, SessionID: id, CurrentID: current})
	return err
}

// ExportToFile writes one session to dest. The format follows the file
// extension (see package export). Manager state is never touched.
func (m *Manager) ExportToFile(s model.Session, dest string) error {
	if err := export.WriteFile(s, dest); err != nil {
		m.log.Warn("export failed", "session", s.ID, "path", dest, "error", err)
		return err
	}
	m.log.Info("session exported", "session", s.ID, "path", dest)
	return nil
}

// ImportFromFile reads a session document, assigns it a new ID, appends
// it and makes it current. Invalid documents and failed writes leave the
// existing sessions untouched.
func (m *Manager) ImportFromFile(ctx context.Context, src string) (string, error) {
	s, err := export.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("import %s: %w", src, err)
	}
	s.ID = model.NewID()

	m.mu.Lock()
	prevCurrent := m.current
	if err := m.store.SaveSession(ctx, s); err != nil {
		m.mu.Unlock()
		return "", fmt.Errorf("import %s: save session: %w", src, err)
	}
	m.sessions = append(m.sessions, s)
	m.current = s.ID
	if err := m.saveCurrent(ctx); err != nil {
		m.log.Warn("imported session saved but current pointer was not", "id", s.ID, "previous", prevCurrent, "error", err)
	}
	m.mu.Unlock()

	m.log.Info("session imported", "id", s.ID, "path", src, "messages", len(s.Messages))
	m.emit(Event{Kind: EventImported, SessionID: s.ID, CurrentID: s.ID})
	return s.ID, nil
}

// persist writes s and optionally the current pointer. Callers hold m.mu.
func (m *Manager) persist(ctx context.Context, s model.Session, withCurrent bool) error {
	var errs []error
	if err := m.store.SaveSession(ctx, s); err != nil {
		m.log.Warn("failed to persist session", "id", s.ID, "error", err)
		errs = append(errs, fmt.Errorf("save session %s: %w", s.ID, err))
	}
	if withCurrent {
		if err := m.saveCurrent(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// saveCurrent persists the current pointer. Callers hold m.mu.
func (m *Manager) saveCurrent(ctx context.Context) error {
	if err := m.store.SaveCurrent(ctx, m.current); err != nil {
		m.log.Warn("failed to persist current session", "id", m.current, "error", err)
		return fmt.Errorf("save current session: %w", err)
	}
	return nil
}
