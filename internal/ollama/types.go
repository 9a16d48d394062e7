// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

// =============================================================================
// MESSAGE TYPES
// =============================================================================

// Chat roles understood by the server.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultNumCtx is the context window hint sent with every chat request.
const DefaultNumCtx = 4096

// Message represents a chat message in the request history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  *Options  `json:"options,omitempty"`
}

// Options contains model decoding options.
type Options struct {
	NumCtx int `json:"num_ctx,omitempty"`
}

// NewChatRequest builds a streaming request from the prior history with
// prompt appended as the final user turn.
func NewChatRequest(model string, history []Message, prompt string) ChatRequest {
	msgs := make([]Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, NewUserMessage(prompt))
	return ChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   true,
		Options:  &Options{NumCtx: DefaultNumCtx},
	}
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// VersionResponse is returned by GET /api/version. A missing version
// leaves Version nil.
type VersionResponse struct {
	Version *string `json:"version"`
}

// ModelInfo describes one locally available model.
type ModelInfo struct {
	Name       string `json:"name"`
	ModifiedAt string `json:"modified_at,omitempty"`
	Size       int64  `json:"size,omitempty"`
	Digest     string `json:"digest,omitempty"`
}

// ListModelsResponse is returned by GET /api/tags. A missing or null
// models key leaves Models nil.
type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ErrorResponse is the error body returned by the server.
type ErrorResponse struct {
	Error string `json:"error"`
}

// streamFrame is one line of a chat stream. Every field is optional; the
// presence of each key decides which event the line carries.
type streamFrame struct {
	Error        *string       `json:"error"`
	Done         *bool         `json:"done"`
	Message      *frameMessage `json:"message"`
	EvalCount    *float64      `json:"eval_count"`
	EvalDuration *float64      `json:"eval_duration"`
}

type frameMessage struct {
	Content *string `json:"content"`
}
