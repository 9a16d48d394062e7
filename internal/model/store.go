// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"sync"

	"github.com/jeranaias/ownai/internal/content"
	"github.com/jeranaias/ownai/internal/ollama"
)

// ErrDuplicateMessage is returned by Append when the ID is already present.
// It indicates a caller bug.
var ErrDuplicateMessage = errors.New("duplicate message id")

// =============================================================================
// CHANGE NOTIFICATIONS
// =============================================================================

// ChangeKind identifies which mutation produced a Change.
type ChangeKind int

const (
	ChangeAppended ChangeKind = iota
	ChangeUpdated
	ChangeFinalized
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAppended:
		return "appended"
	case ChangeUpdated:
		return "updated"
	case ChangeFinalized:
		return "finalized"
	}
	return "unknown"
}

// Change describes one applied mutation. Message is a copy taken after
// the mutation.
type Change struct {
	Kind    ChangeKind
	Index   int
	Message Message
}

// =============================================================================
// MESSAGE STORE
// =============================================================================

// MessageStore is the ordered timeline of one session.
//
// All mutations are serialized, and observers are called in mutation
// order outside the data lock. Observers may read the store but must not
// mutate it.
type MessageStore struct {
	// serial orders whole mutations including their notifications.
	serial sync.Mutex

	mu        sync.Mutex
	messages  []Message
	index     map[string]int
	observers map[int]func(Change)
	nextObs   int
}

// NewMessageStore creates a store seeded with msgs. Messages with a
// repeated ID after the first are dropped.
func NewMessageStore(msgs []Message) *MessageStore {
	s := &MessageStore{
		messages:  make([]Message, 0, len(msgs)),
		index:     make(map[string]int, len(msgs)),
		observers: make(map[int]func(Change)),
	}
	for _, m := range msgs {
		if _, dup := s.index[m.ID]; dup {
			continue
		}
		s.index[m.ID] = len(s.messages)
		s.messages = append(s.messages, m)
	}
	return s
}

// Subscribe registers fn for every future change and returns a function
// that removes it.
func (s *MessageStore) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// Append adds msg to the end of the timeline.
func (s *MessageStore) Append(msg Message) error {
	return s.mutate(func() (Change, bool, error) {
		if _, dup := s.index[msg.ID]; dup {
			return Change{}, false, ErrDuplicateMessage
		}
		s.index[msg.ID] = len(s.messages)
		s.messages = append(s.messages, msg)
		return Change{Kind: ChangeAppended, Index: len(s.messages) - 1, Message: msg}, true, nil
	})
}

// ApplyDelta appends text to a streaming message and reclassifies it. It
// is a silent no-op, returning false, when the ID is unknown or the
// message has already been finalized.
func (s *MessageStore) ApplyDelta(id, text string) bool {
	applied := false
	_ = s.mutate(func() (Change, bool, error) {
		i, ok := s.index[id]
		if !ok || !s.messages[i].IsStreaming {
			return Change{}, false, nil
		}
		m := &s.messages[i]
		m.Content += text
		m.ContentType = content.Classify(m.Content)
		applied = true
		return Change{Kind: ChangeUpdated, Index: i, Message: *m}, true, nil
	})
	return applied
}

// Finalize ends streaming for a message. A non-empty errText replaces the
// content with an error line, clears stats and resets the type to text.
// Otherwise stats is recorded when non-empty. Unknown or already final
// messages are left alone.
func (s *MessageStore) Finalize(id, stats, errText string) bool {
	applied := false
	_ = s.mutate(func() (Change, bool, error) {
		i, ok := s.index[id]
		if !ok || !s.messages[i].IsStreaming {
			return Change{}, false, nil
		}
		m := &s.messages[i]
		if errText != "" {
			m.Content = ErrorPrefix + errText
			m.Stats = ""
			m.ContentType = content.Text
		} else {
			if stats != "" {
				m.Stats = stats
			}
			m.ContentType = content.Classify(m.Content)
		}
		m.IsStreaming = false
		applied = true
		return Change{Kind: ChangeFinalized, Index: i, Message: *m}, true, nil
	})
	return applied
}

// mutate runs fn under the data lock, then notifies observers while still
// holding the serial lock so notifications keep mutation order.
func (s *MessageStore) mutate(fn func() (Change, bool, error)) error {
	s.serial.Lock()
	defer s.serial.Unlock()

	s.mu.Lock()
	change, notify, err := fn()
	var observers []func(Change)
	if notify {
		observers = make([]func(Change), 0, len(s.observers))
		for _, o := range s.observers {
			observers = append(observers, o)
		}
	}
	s.mu.Unlock()

	for _, o := range observers {
		o(change)
	}
	return err
}

// =============================================================================
// READ ACCESS
// =============================================================================

// Get returns a copy of the message with the given ID.
func (s *MessageStore) Get(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return Message{}, false
	}
	return s.messages[i], true
}

// Len returns the number of messages.
func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Snapshot returns a copy of the timeline in order.
func (s *MessageStore) Snapshot() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// History returns the finished messages as chat request history.
func (s *MessageStore) History() []ollama.Message {
	return ToOllamaMessages(s.Snapshot())
}

// Streaming returns the IDs of messages still receiving content.
func (s *MessageStore) Streaming() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, m := range s.messages {
		if m.IsStreaming {
			ids = append(ids, m.ID)
		}
	}
	return ids
}
