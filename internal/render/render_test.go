// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeranaias/ownai/internal/content"
	"github.com/jeranaias/ownai/internal/model"
)

func finished(text string) model.Message {
	m := model.NewModelMessage()
	m.Content = text
	m.ContentType = content.Classify(text)
	m.IsStreaming = false
	return m
}

func TestPlainMessage(t *testing.T) {
	r := New(false, 0)
	m := finished("Here:\n```go\nfmt.Println(1)\n```\nDone.")
	m.Stats = "Tokens: 5 | 50.0 tok/s"

	got := r.Message(m)
	assert.Equal(t, "Model:\nHere:\n```go\nfmt.Println(1)\n```\nDone.\n(Tokens: 5 | 50.0 tok/s)", got)
	assert.NotContains(t, got, "\x1b[")
}

func TestPlainUserLabel(t *testing.T) {
	r := New(false, 0)
	assert.Equal(t, "You:", r.Label(model.NewUserMessage("hi")))
}

func TestPlainTerminalOutput(t *testing.T) {
	r := New(false, 0)
	got := r.Body(finished("$ ls\nmain.go"))
	assert.Equal(t, "```bash\n$ ls\nmain.go\n```", got)
}

func TestPlainError(t *testing.T) {
	r := New(false, 0)
	m := finished(model.ErrorPrefix + "Connection refused")
	assert.Equal(t, "Error: Connection refused", r.Body(m))
}

func TestColorCodeBlock(t *testing.T) {
	r := New(true, 60)
	got := r.Code("go", "package main")
	assert.Contains(t, got, "go")
	assert.Contains(t, got, "package")
	for _, line := range strings.Split(got, "\n") {
		assert.LessOrEqual(t, Width(line), 60)
	}
}

func TestHighlightUnknownLanguage(t *testing.T) {
	got := highlight("just words", "no-such-language")
	assert.Contains(t, got, "just")
}

func TestStatusPlain(t *testing.T) {
	r := New(false, 0)
	assert.Equal(t, "Disconnected", r.Status("Disconnected", false))
	assert.Equal(t, "x", r.Muted("x"))
}
