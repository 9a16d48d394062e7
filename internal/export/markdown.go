// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/ownai/internal/content"
	"github.com/jeranaias/ownai/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter writes a readable transcript. It cannot be imported.
type MarkdownExporter struct{}

// Export converts a session to Markdown.
func (MarkdownExporter) Export(s model.Session) ([]byte, error) {
	var sb strings.Builder

	sb.WriteString("# " + s.DisplayTitle() + "\n\n")
	fmt.Fprintf(&sb, "_Created %s · %d messages_\n", s.CreatedAt.Local().Format(time.RFC1123), len(s.Messages))

	for _, m := range s.Messages {
		fmt.Fprintf(&sb, "\n## %s\n\n", m.Sender.DisplayName())
		fmt.Fprintf(&sb, "_%s_\n\n", m.Timestamp.Local().Format("2006-01-02 15:04:05"))
		sb.WriteString(markdownBody(m))
		sb.WriteString("\n")
		if m.Stats != "" {
			fmt.Fprintf(&sb, "\n> %s\n", m.Stats)
		}
	}
	return []byte(sb.String()), nil
}

// markdownBody fences content whose type would not survive as prose.
func markdownBody(m model.Message) string {
	body := strings.TrimRight(m.Content, "\n")
	if strings.Contains(body, content.Fence) {
		return body + "\n"
	}
	switch m.ContentType.Kind {
	case content.KindCode:
		return content.Fence + m.ContentType.Language + "\n" + body + "\n" + content.Fence + "\n"
	case content.KindTerminal:
		return content.Fence + content.ShellLanguage + "\n" + body + "\n" + content.Fence + "\n"
	}
	return body + "\n"
}

func (MarkdownExporter) FileExtension() string { return ".md" }
func (MarkdownExporter) MimeType() string      { return "text/markdown" }
