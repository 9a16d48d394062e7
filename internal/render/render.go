// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/ownai/internal/content"
	"github.com/jeranaias/ownai/internal/model"
)

// DefaultWidth is used when the terminal width is unknown.
const DefaultWidth = 80

// =============================================================================
// RENDERER
// =============================================================================

// Renderer formats messages for one output stream.
type Renderer struct {
	color    bool
	width    int
	markdown *glamour.TermRenderer
}

// New creates a Renderer. With color false every method returns plain
// text.
func New(color bool, width int) *Renderer {
	if width <= 0 {
		width = DefaultWidth
	}
	r := &Renderer{color: color, width: width}
	if color {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			r.markdown = md
		}
	}
	return r
}

// Color reports whether output carries ANSI styling.
func (r *Renderer) Color() bool { return r.color }

// Label returns the sender heading for m.
func (r *Renderer) Label(m model.Message) string {
	name := m.Sender.DisplayName()
	if !r.color {
		return name + ":"
	}
	if m.Sender == model.SenderUser {
		return UserLabelStyle.Render(name)
	}
	return ModelLabelStyle.Render(name)
}

// Message renders a complete message with its heading and stats.
func (r *Renderer) Message(m model.Message) string {
	var sb strings.Builder
	sb.WriteString(r.Label(m))
	sb.WriteString("\n")
	sb.WriteString(r.Body(m))
	if m.Stats != "" {
		sb.WriteString("\n")
		sb.WriteString(r.Stats(m.Stats))
	}
	return sb.String()
}

// Body renders the content of m segment by segment.
func (r *Renderer) Body(m model.Message) string {
	if m.IsError() {
		return r.Error(m.Content)
	}
	segments := m.Segments()
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg.Kind {
		case content.SegmentCode:
			parts = append(parts, r.Code(seg.Language, seg.Body))
		default:
			parts = append(parts, r.Text(seg.Body))
		}
	}
	return strings.Join(parts, "\n")
}

// Text renders prose, as markdown when color is on.
func (r *Renderer) Text(body string) string {
	body = strings.TrimSpace(body)
	if r.markdown == nil {
		return body
	}
	out, err := r.markdown.Render(body)
	if err != nil {
		return body
	}
	return strings.Trim(out, "\n")
}

// Code renders a code segment. Plain mode restores the fence so the
// output can be pasted back as markdown.
func (r *Renderer) Code(language, body string) string {
	if !r.color {
		return content.Fence + language + "\n" + body + "\n" + content.Fence
	}

	var header string
	if language != "" {
		header = codeBadgeStyle.Render(language) + "\n"
	}
	maxWidth := r.width - 2
	if maxWidth < 20 {
		maxWidth = 20
	}
	return codeBlockStyle.MaxWidth(maxWidth).Render(header + highlight(body, language))
}

// Stats renders the performance line.
func (r *Renderer) Stats(stats string) string {
	if !r.color {
		return "(" + stats + ")"
	}
	return StatsStyle.Render(stats)
}

// Error renders an error line.
func (r *Renderer) Error(text string) string {
	if !r.color {
		return text
	}
	return ErrorStyle.Render(text)
}

// Status renders a connection status line.
func (r *Renderer) Status(text string, ok bool) string {
	if !r.color {
		return text
	}
	if ok {
		return SuccessStyle.Render(text)
	}
	if strings.HasPrefix(text, model.ErrorPrefix) {
		return ErrorStyle.Render(text)
	}
	return WarningStyle.Render(text)
}

// Muted renders secondary text such as hints and timestamps.
func (r *Renderer) Muted(text string) string {
	if !r.color {
		return text
	}
	return MutedStyle.Render(text)
}

// Width of s in terminal columns, ignoring ANSI sequences.
func Width(s string) int {
	return lipgloss.Width(s)
}

// =============================================================================
// SYNTAX HIGHLIGHTING
// =============================================================================

// highlight applies chroma terminal256 highlighting. The input is
// returned unchanged when highlighting fails.
func highlight(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return strings.TrimRight(buf.String(), "\n")
}
