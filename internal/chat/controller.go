// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/jeranaias/ownai/internal/model"
	"github.com/jeranaias/ownai/internal/ollama"
	"github.com/jeranaias/ownai/internal/session"
)

var (
	// ErrBusy is returned by Send while a reply is still streaming.
	ErrBusy = errors.New("a reply is still streaming")

	// ErrEmptyPrompt is returned by Send for a blank prompt.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrNoModel is returned by Send when no model is selected.
	ErrNoModel = errors.New("no model selected")

	// ErrNotConfigured is returned by Send before SetTarget was called.
	ErrNotConfigured = errors.New("no server configured")
)

// =============================================================================
// TURN
// =============================================================================

// Turn is one prompt and its streamed reply.
type Turn struct {
	SessionID string
	UserID    string
	ReplyID   string

	stream *ollama.Stream
	done   chan struct{}
	err    error
}

// Done is closed once the reply is finalized.
func (t *Turn) Done() <-chan struct{} { return t.done }

// State reports the stream state.
func (t *Turn) State() ollama.StreamState { return t.stream.State() }

// Err returns the terminal stream error. It is nil for completed and
// cancelled turns, and only meaningful after Done is closed.
func (t *Turn) Err() error {
	<-t.done
	return t.err
}

// Wait blocks until the turn finishes or ctx ends.
func (t *Turn) Wait(ctx context.Context) (ollama.StreamState, error) {
	select {
	case <-t.done:
		return t.stream.State(), t.err
	case <-ctx.Done():
		return t.stream.State(), ctx.Err()
	}
}

func (t *Turn) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns the message timeline of the current session.
type Controller struct {
	// ops serializes operations that replace the attached session.
	ops sync.Mutex
	mu  sync.Mutex

	sessions *session.Manager
	client   *ollama.Client
	model    string

	sessionID   string
	store       *model.MessageStore
	unsubscribe func()
	turn        *Turn

	log *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithTarget sets the client and model used for new turns.
func WithTarget(client *ollama.Client, modelName string) Option {
	return func(c *Controller) {
		c.client = client
		c.model = modelName
	}
}

// New attaches a Controller to the manager's current session, creating a
// session if there is none.
func New(ctx context.Context, sessions *session.Manager, opts ...Option) (*Controller, error) {
	c := &Controller{
		sessions: sessions,
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Sync(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// SetTarget replaces the client and model for subsequent turns. A turn
// already streaming keeps its own client.
func (c *Controller) SetTarget(client *ollama.Client, modelName string) {
	c.mu.Lock()
	c.client = client
	c.model = modelName
	c.mu.Unlock()
}

// Model returns the model used for new turns.
func (c *Controller) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// SessionID returns the attached session.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Store returns the attached session's timeline.
func (c *Controller) Store() *model.MessageStore {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

// Streaming reports whether a reply is in flight.
func (c *Controller) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turn != nil && !c.turn.finished()
}

// Send starts a turn. History sent to the server is every finished
// message before the prompt.
func (c *Controller) Send(ctx context.Context, prompt string) (*Turn, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	if c.turn != nil && !c.turn.finished() {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	if c.client == nil {
		c.mu.Unlock()
		return nil, ErrNotConfigured
	}
	if c.model == "" {
		c.mu.Unlock()
		return nil, ErrNoModel
	}

	store := c.store
	history := store.History()
	user := model.NewUserMessage(prompt)
	reply := model.NewModelMessage()

	req := ollama.NewChatRequest(c.model, history, prompt)
	// Let the client apply its configured context window.
	req.Options = nil

	turn := &Turn{
		SessionID: c.sessionID,
		UserID:    user.ID,
		ReplyID:   reply.ID,
		stream:    c.client.ChatStream(ctx, req),
		done:      make(chan struct{}),
	}
	c.turn = turn
	modelName := c.model
	c.mu.Unlock()

	// Observers run during Append, so c.mu must not be held here.
	if err := errors.Join(store.Append(user), store.Append(reply)); err != nil {
		turn.stream.Cancel()
		turn.err = err
		close(turn.done)
		return nil, err
	}

	c.log.Info("chat turn started", "session", turn.SessionID, "model", modelName, "history", len(history))
	go c.pump(turn, store)
	return turn, nil
}

// pump applies stream events to the reply until the stream ends.
func (c *Controller) pump(turn *Turn, store *model.MessageStore) {
	defer close(turn.done)

	for {
		ev, ok := turn.stream.Next()
		if !ok {
			break
		}
		switch ev.Kind {
		case ollama.EventDelta:
			store.ApplyDelta(turn.ReplyID, ev.Text)
		case ollama.EventDone:
			store.Finalize(turn.ReplyID, ev.Stats, "")
			c.log.Info("chat turn completed", "session", turn.SessionID, "stats", ev.Stats)
		case ollama.EventError:
			turn.err = ev.Err
			store.Finalize(turn.ReplyID, "", errorText(ev.Err))
			c.log.Warn("chat turn failed", "session", turn.SessionID, "error", ev.Err)
		}
	}

	if turn.stream.State() == ollama.StateCancelled {
		// Keep whatever arrived before the cancel.
		store.Finalize(turn.ReplyID, "", "")
		c.log.Info("chat turn cancelled", "session", turn.SessionID)
	}
}

// errorText is the reply body shown after "Error: ".
func errorText(err error) string {
	return strings.TrimPrefix(ollama.UserMessage(err), model.ErrorPrefix)
}

// Cancel stops the in-flight reply, if any, and waits until it has been
// finalized. It reports whether a reply was cancelled.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	turn := c.turn
	c.mu.Unlock()
	return stop(turn)
}

func stop(turn *Turn) bool {
	if turn == nil || turn.finished() {
		return false
	}
	turn.stream.Cancel()
	<-turn.done
	return true
}

// =============================================================================
// SESSION BINDING
// =============================================================================

// Sync re-attaches to the manager's current session after it changed
// elsewhere, for example after an import or a delete. A session is
// created when none is current.
func (c *Controller) Sync(ctx context.Context) error {
	c.ops.Lock()
	defer c.ops.Unlock()
	return c.syncLocked(ctx)
}

func (c *Controller) syncLocked(ctx context.Context) error {
	id := c.sessions.CurrentID()
	if id == "" {
		var err error
		if id, err = c.sessions.Create(ctx); id == "" {
			return err
		} else if err != nil {
			c.log.Warn("new session not persisted", "id", id, "error", err)
		}
	}

	c.mu.Lock()
	if id == c.sessionID && c.store != nil {
		c.mu.Unlock()
		return nil
	}
	turn := c.turn
	c.mu.Unlock()

	// Finalize into the old store before it is detached.
	stop(turn)

	sess, ok := c.sessions.Get(id)
	if !ok {
		return session.ErrSessionNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	store := model.NewMessageStore(sess.Messages)
	c.unsubscribe = store.Subscribe(c.writeThrough(id, store))
	c.store = store
	c.sessionID = id
	c.turn = nil
	c.log.Debug("attached session", "id", id, "messages", store.Len())
	return nil
}

// writeThrough persists the whole timeline of id after every change.
func (c *Controller) writeThrough(id string, store *model.MessageStore) func(model.Change) {
	return func(model.Change) {
		if err := c.sessions.RecordMessages(context.Background(), id, store.Snapshot()); err != nil {
			c.log.Warn("failed to persist messages", "session", id, "error", err)
		}
	}
}

// SwitchSession makes id current and attaches to it.
func (c *Controller) SwitchSession(ctx context.Context, id string) error {
	c.ops.Lock()
	defer c.ops.Unlock()
	if err := c.sessions.SwitchTo(ctx, id); err != nil && c.sessions.CurrentID() != id {
		return err
	}
	return c.syncLocked(ctx)
}

// NewSession creates a session, makes it current and attaches to it.
func (c *Controller) NewSession(ctx context.Context) (string, error) {
	c.ops.Lock()
	defer c.ops.Unlock()
	id, err := c.sessions.Create(ctx)
	if id == "" {
		return "", err
	}
	if err != nil {
		c.log.Warn("new session not persisted", "id", id, "error", err)
	}
	return id, c.syncLocked(ctx)
}

// Close cancels any in-flight reply and detaches from the session.
func (c *Controller) Close() {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.Cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}
