// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// DefaultTitle is shown for a session with no title and no messages.
const DefaultTitle = "New Chat"

// TitleWidth bounds a title derived from the first message, in terminal
// columns.
const TitleWidth = 30

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session is one persisted conversation. Messages keep insertion order
// and are never reordered.
type Session struct {
	ID        string    `json:"id" yaml:"id"`
	Messages  []Message `json:"messages" yaml:"messages"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Title     string    `json:"title,omitempty" yaml:"title,omitempty"`
}

// NewSession creates an empty session with a generated ID.
func NewSession() Session {
	return Session{
		ID:        NewID(),
		Messages:  []Message{},
		CreatedAt: now(),
	}
}

// DisplayTitle returns the custom title, else the start of the first
// message, else DefaultTitle.
func (s Session) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	if len(s.Messages) == 0 {
		return DefaultTitle
	}
	first := strings.Join(strings.Fields(s.Messages[0].Content), " ")
	if first == "" {
		return DefaultTitle
	}
	return runewidth.Truncate(first, TitleWidth, "")
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s Session) Clone() Session {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	return out
}

// Settle clears IsStreaming on every message. A session read back from
// disk or an import cannot have a live stream behind it.
func (s *Session) Settle() {
	for i := range s.Messages {
		s.Messages[i].IsStreaming = false
	}
}
