// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ownai/internal/content"
	"github.com/jeranaias/ownai/internal/model"
)

func sampleSession() model.Session {
	s := model.NewSession()
	s.Title = "Python help"
	s.Messages = append(s.Messages, model.NewUserMessage("How do I list files?"))

	reply := model.NewModelMessage()
	reply.Content = "Use:\n```python\nimport os\nprint(os.listdir('.'))\n```"
	reply.ContentType = content.Classify(reply.Content)
	reply.Stats = "Tokens: 10 | 5.0 tok/s"
	reply.IsStreaming = false
	s.Messages = append(s.Messages, reply)

	s.Messages = append(s.Messages, model.NewUserMessage("$ ls -la"))
	return s
}

func TestRoundTrip(t *testing.T) {
	for _, ext := range []string{".json", ".yaml", ".yml", ".session"} {
		t.Run(ext, func(t *testing.T) {
			orig := sampleSession()
			path := filepath.Join(t.TempDir(), "chat"+ext)

			require.NoError(t, WriteFile(orig, path))
			got, err := ReadFile(path)
			require.NoError(t, err)

			assert.Equal(t, orig.Title, got.Title)
			assert.True(t, orig.CreatedAt.Equal(got.CreatedAt))
			require.Len(t, got.Messages, len(orig.Messages))
			for i := range orig.Messages {
				want, have := orig.Messages[i], got.Messages[i]
				assert.Equal(t, want.ID, have.ID)
				assert.Equal(t, want.Sender, have.Sender)
				assert.Equal(t, want.Content, have.Content)
				assert.Equal(t, want.ContentType, have.ContentType)
				assert.Equal(t, want.Stats, have.Stats)
				assert.True(t, want.Timestamp.Equal(have.Timestamp), "timestamp %d", i)
			}
		})
	}
}

func TestRoundTripEmptySession(t *testing.T) {
	orig := model.NewSession()
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, WriteFile(orig, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"messages": []`)
	assert.NotContains(t, string(data), `"title"`)

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
	assert.Equal(t, model.DefaultTitle, got.DisplayTitle())
}

func TestImportSettlesStreaming(t *testing.T) {
	s := sampleSession()
	s.Messages[1].IsStreaming = true
	data, err := JSONExporter{}.Export(s)
	require.NoError(t, err)

	got, err := JSONExporter{}.Import(data)
	require.NoError(t, err)
	assert.False(t, got.Messages[1].IsStreaming)
}

func TestImportRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		imp  Importer
		data string
	}{
		{"not json", JSONExporter{}, "{nope"},
		{"empty json", JSONExporter{}, ""},
		{"array", JSONExporter{}, `[1,2]`},
		{"trailing", JSONExporter{}, `{"created_at":"2025-01-01T00:00:00Z"} {}`},
		{"no created_at", JSONExporter{}, `{"id":"x","messages":[]}`},
		{"bad sender", JSONExporter{}, `{"created_at":"2025-01-01T00:00:00Z","messages":[{"id":"m","sender":"bot","timestamp":"2025-01-01T00:00:00Z","content_type":{"type":"text"}}]}`},
		{"bad content type", JSONExporter{}, `{"created_at":"2025-01-01T00:00:00Z","messages":[{"id":"m","sender":"user","timestamp":"2025-01-01T00:00:00Z","content_type":{"type":"video"}}]}`},
		{"missing message id", JSONExporter{}, `{"created_at":"2025-01-01T00:00:00Z","messages":[{"sender":"user","timestamp":"2025-01-01T00:00:00Z","content_type":{"type":"text"}}]}`},
		{"missing timestamp", JSONExporter{}, `{"created_at":"2025-01-01T00:00:00Z","messages":[{"id":"m","sender":"user","content_type":{"type":"text"}}]}`},
		{"duplicate ids", JSONExporter{}, `{"created_at":"2025-01-01T00:00:00Z","messages":[` +
			`{"id":"m","sender":"user","timestamp":"2025-01-01T00:00:00Z","content_type":{"type":"text"}},` +
			`{"id":"m","sender":"model","timestamp":"2025-01-01T00:00:00Z","content_type":{"type":"text"}}]}`},
		{"empty yaml", YAMLExporter{}, "   \n"},
		{"yaml junk", YAMLExporter{}, "- a\n- b\n"},
		{"yaml bad sender", YAMLExporter{}, "created_at: 2025-01-01T00:00:00Z\nmessages:\n  - id: m\n    sender: robot\n    timestamp: 2025-01-01T00:00:00Z\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.imp.Import([]byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}
}

func TestImportToleratesMissingTitle(t *testing.T) {
	got, err := JSONExporter{}.Import([]byte(`{"id":"x","created_at":"2025-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.Empty(t, got.Title)
	assert.NotNil(t, got.Messages)
}

func TestMarkdownIsExportOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.md")
	require.NoError(t, WriteFile(sampleSession(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	md := string(data)
	assert.True(t, strings.HasPrefix(md, "# Python help\n"))
	assert.Contains(t, md, "## You")
	assert.Contains(t, md, "## Model")
	assert.Contains(t, md, "```python")
	assert.Contains(t, md, "```bash\n$ ls -la\n```")
	assert.Contains(t, md, "> Tokens: 10 | 5.0 tok/s")

	_, err = ReadFile(path)
	assert.ErrorIs(t, err, ErrExportOnly)
}

func TestWriteFileFailureReported(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	err := WriteFile(sampleSession(), filepath.Join(blocker, "out.json"))
	assert.Error(t, err)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestForPath(t *testing.T) {
	assert.IsType(t, JSONExporter{}, ForPath("a.JSON"))
	assert.IsType(t, YAMLExporter{}, ForPath("a.yml"))
	assert.IsType(t, MarkdownExporter{}, ForPath("a.md"))
	assert.IsType(t, JSONExporter{}, ForPath("noext"))
	assert.Equal(t, "text/markdown", MarkdownExporter{}.MimeType())
}
