// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jeranaias/ownai/internal/ollama"
)

// ErrSuperseded is returned by an attempt that a newer attempt replaced.
var ErrSuperseded = errors.New("superseded by a newer attempt")

// Status line texts.
const (
	StatusDisconnected = "Disconnected"
	statusChecking     = "Checking %s:%s..."
	statusConnected    = "Connected to Ollama v%s."
	statusModelsLoaded = "Connected to Ollama v%s - Models loaded."
)

// =============================================================================
// TYPES
// =============================================================================

// Target is an immutable snapshot of the server settings used for one
// attempt.
type Target struct {
	Address string
	Port    string
	Model   string
}

// State is what the Monitor currently knows about the server.
type State struct {
	Status    string
	Connected bool
	Version   string
	Models    []string
	Selected  string
	Err       error
}

// clone copies the Models slice so observers cannot alias it.
func (s State) clone() State {
	if s.Models != nil {
		s.Models = append([]string(nil), s.Models...)
	}
	return s
}

// attempt is the bookkeeping for one kind of in-flight request.
type attempt struct {
	seq    uint64
	cancel context.CancelFunc
}

// begin invalidates the previous attempt and returns the new token.
func (a *attempt) begin(parent context.Context) (uint64, context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	a.seq++
	a.cancel = cancel
	return a.seq, ctx
}

// end releases the context of token if it is still the latest.
func (a *attempt) end(token uint64) {
	if a.seq == token && a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

func (a *attempt) abort() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.seq++
}

// =============================================================================
// MONITOR
// =============================================================================

// Monitor coordinates probes and model fetches against the server.
type Monitor struct {
	// serial orders whole updates including notification.
	serial sync.Mutex
	mu     sync.Mutex

	state State
	probe attempt
	fetch attempt

	observers map[int]func(State)
	nextObs   int

	clientConfig *ollama.ClientConfig
	log          *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClientConfig sets timeouts and transport for the clients the
// Monitor builds.
func WithClientConfig(cfg *ollama.ClientConfig) Option {
	return func(m *Monitor) { m.clientConfig = cfg }
}

// NewMonitor creates a Monitor in the disconnected state.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		state:     State{Status: StatusDisconnected},
		observers: make(map[int]func(State)),
		log:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns a copy of the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Subscribe registers fn for every future state change.
func (m *Monitor) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.observers, id)
			m.mu.Unlock()
		})
	}
}

// update applies fn under the data lock and notifies observers when fn
// reports a change.
func (m *Monitor) update(fn func(*State) bool) bool {
	m.serial.Lock()
	defer m.serial.Unlock()

	m.mu.Lock()
	if !fn(&m.state) {
		m.mu.Unlock()
		return false
	}
	snapshot := m.state.clone()
	obs := make([]func(State), 0, len(m.observers))
	for _, o := range m.observers {
		obs = append(obs, o)
	}
	m.mu.Unlock()

	for _, o := range obs {
		o(snapshot)
	}
	return true
}

func (m *Monitor) client(t Target) (*ollama.Client, error) {
	return ollama.NewClientWithConfig(t.Address, t.Port, m.clientConfig)
}

// =============================================================================
// PROBE
// =============================================================================

// Probe checks that the server is reachable and returns its version. A
// newer Probe or Disconnect makes this one return ErrSuperseded.
func (m *Monitor) Probe(ctx context.Context, t Target) (string, error) {
	var token uint64
	m.update(func(s *State) bool {
		token, ctx = m.probe.begin(ctx)
		s.Status = fmt.Sprintf(statusChecking, t.Address, t.Port)
		s.Err = nil
		return true
	})
	defer func() {
		m.mu.Lock()
		m.probe.end(token)
		m.mu.Unlock()
	}()

	m.log.Debug("probing server", "address", t.Address, "port", t.Port, "attempt", token)

	var version string
	c, err := m.client(t)
	if err == nil {
		version, err = c.Version(ctx)
	}

	current := m.update(func(s *State) bool {
		if m.probe.seq != token {
			return false
		}
		if err != nil {
			s.Status = ollama.UserMessage(err)
			s.Connected = false
			s.Version = ""
			s.Err = err
			return true
		}
		s.Status = fmt.Sprintf(statusConnected, version)
		s.Connected = true
		s.Version = version
		s.Err = nil
		return true
	})
	if !current {
		m.log.Debug("discarding stale probe", "attempt", token)
		return "", ErrSuperseded
	}
	if err != nil {
		m.log.Warn("probe failed", "address", t.Address, "port", t.Port, "error", err)
		return "", err
	}
	m.log.Info("server reachable", "version", version)
	return version, nil
}

// =============================================================================
// MODEL CATALOG
// =============================================================================

// FetchModels lists the server's models sorted by name and repairs the
// selection against the list. It returns the names and the repaired
// selection. A newer FetchModels or Disconnect makes this one return
// ErrSuperseded.
func (m *Monitor) FetchModels(ctx context.Context, t Target) ([]string, string, error) {
	var token uint64
	m.update(func(*State) bool {
		token, ctx = m.fetch.begin(ctx)
		return false
	})
	defer func() {
		m.mu.Lock()
		m.fetch.end(token)
		m.mu.Unlock()
	}()

	var names []string
	c, err := m.client(t)
	if err == nil {
		names, err = c.ModelNames(ctx)
	}
	selected := RepairSelection(names, t.Model)

	current := m.update(func(s *State) bool {
		if m.fetch.seq != token {
			return false
		}
		if err != nil {
			s.Status = ollama.UserMessage(err)
			s.Err = err
			return true
		}
		s.Models = names
		s.Selected = selected
		s.Err = nil
		if s.Version != "" {
			s.Status = fmt.Sprintf(statusModelsLoaded, s.Version)
		}
		return true
	})
	if !current {
		m.log.Debug("discarding stale model list", "attempt", token)
		return nil, "", ErrSuperseded
	}
	if err != nil {
		m.log.Warn("model fetch failed", "error", err)
		return nil, "", err
	}
	if selected != t.Model {
		m.log.Info("model selection repaired", "previous", t.Model, "selected", selected)
	}
	return names, selected, nil
}

// Connect probes the server and, when that succeeds, fetches its models.
func (m *Monitor) Connect(ctx context.Context, t Target) (State, error) {
	if _, err := m.Probe(ctx, t); err != nil {
		return m.State(), err
	}
	if _, _, err := m.FetchModels(ctx, t); err != nil {
		return m.State(), err
	}
	return m.State(), nil
}

// Disconnect aborts outstanding attempts and resets the state. Results of
// the aborted attempts are discarded.
func (m *Monitor) Disconnect() {
	m.update(func(s *State) bool {
		m.probe.abort()
		m.fetch.abort()
		*s = State{Status: StatusDisconnected}
		return true
	})
}

// RepairSelection keeps selected when it is one of models, else picks the
// first model, else returns "".
func RepairSelection(models []string, selected string) string {
	for _, name := range models {
		if name == selected && selected != "" {
			return selected
		}
	}
	if len(models) > 0 {
		return models[0]
	}
	return ""
}
