// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/ownai/internal/content"
	"github.com/jeranaias/ownai/internal/ollama"
)

// ErrorPrefix starts the content of a message finalized with an error.
const ErrorPrefix = "Error: "

// =============================================================================
// SENDER TYPE
// =============================================================================

// Sender represents the author of a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderModel Sender = "model"
)

// Valid reports whether s is a known sender.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderModel
}

// DisplayName returns a human-readable name for the sender.
func (s Sender) DisplayName() string {
	switch s {
	case SenderUser:
		return "You"
	case SenderModel:
		return "Model"
	default:
		return string(s)
	}
}

// UnmarshalJSON rejects unknown senders.
func (s *Sender) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !Sender(raw).Valid() {
		return fmt.Errorf("unknown sender %q", raw)
	}
	*s = Sender(raw)
	return nil
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a session.
//
// While IsStreaming is true Content only grows. Once it flips to false the
// message is immutable.
type Message struct {
	ID          string              `json:"id" yaml:"id"`
	Sender      Sender              `json:"sender" yaml:"sender"`
	Content     string              `json:"content" yaml:"content"`
	ContentType content.ContentType `json:"content_type" yaml:"content_type"`
	Timestamp   time.Time           `json:"timestamp" yaml:"timestamp"`
	Stats       string              `json:"stats,omitempty" yaml:"stats,omitempty"`
	IsStreaming bool                `json:"is_streaming" yaml:"is_streaming"`
}

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}

// NewUserMessage creates a finished user message.
func NewUserMessage(text string) Message {
	return Message{
		ID:          NewID(),
		Sender:      SenderUser,
		Content:     text,
		ContentType: content.Classify(text),
		Timestamp:   now(),
	}
}

// NewModelMessage creates an empty streaming placeholder for a reply.
func NewModelMessage() Message {
	return Message{
		ID:          NewID(),
		Sender:      SenderModel,
		ContentType: content.Text,
		Timestamp:   now(),
		IsStreaming: true,
	}
}

// Segments splits the content for rendering.
func (m Message) Segments() []content.Segment {
	return content.Parse(m.Content, m.ContentType)
}

// IsError reports whether the message was finalized with an error.
func (m Message) IsError() bool {
	return m.Sender == SenderModel && !m.IsStreaming && m.ContentType.Kind == content.KindText &&
		strings.HasPrefix(m.Content, ErrorPrefix)
}

// now is UTC without a monotonic reading so timestamps survive encoding
// round trips unchanged.
func now() time.Time {
	return time.Now().UTC().Round(0)
}

// ToOllamaMessages converts finished messages to the request history,
// skipping any placeholder that is still streaming.
func ToOllamaMessages(msgs []Message) []ollama.Message {
	out := make([]ollama.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.IsStreaming {
			continue
		}
		if m.Sender == SenderUser {
			out = append(out, ollama.NewUserMessage(m.Content))
		} else {
			out = append(out, ollama.NewAssistantMessage(m.Content))
		}
	}
	return out
}
