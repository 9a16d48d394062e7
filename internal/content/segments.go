// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package content

import (
	"regexp"
	"strings"
)

// ShellLanguage tags code segments synthesized from terminal output.
const ShellLanguage = "bash"

// SegmentKind distinguishes prose from fenced code.
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentCode
)

func (k SegmentKind) String() string {
	if k == SegmentCode {
		return "code"
	}
	return "text"
}

// Segment is one renderable run of a message.
// Language is lower-cased and may be empty for unlabelled code.
type Segment struct {
	Kind     SegmentKind
	Language string
	Body     string
}

// fenceRegex matches a fence, an optional language token ending in a
// newline, then the shortest body up to the closing fence.
var fenceRegex = regexp.MustCompile("(?s)```(?:([\\w-]+)\\n)?(.*?)```")

// Parse splits text into ordered segments. Whitespace-only text between
// code blocks is dropped. When the text holds no complete fenced block the
// whole text becomes a single segment shaped by fallback, the message's
// classified content type.
//
// Parse is linear in len(text) and safe to call on every delta.
func Parse(text string, fallback ContentType) []Segment {
	matches := fenceRegex.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []Segment{fallbackSegment(text, fallback)}
	}

	segments := make([]Segment, 0, len(matches)*2+1)
	last := 0
	for _, m := range matches {
		if pre := text[last:m[0]]; strings.TrimSpace(pre) != "" {
			segments = append(segments, Segment{Kind: SegmentText, Body: pre})
		}

		var lang string
		if m[2] >= 0 {
			lang = strings.ToLower(text[m[2]:m[3]])
		}
		segments = append(segments, Segment{
			Kind:     SegmentCode,
			Language: lang,
			Body:     strings.TrimSpace(text[m[4]:m[5]]),
		})
		last = m[1]
	}

	if rest := text[last:]; strings.TrimSpace(rest) != "" {
		segments = append(segments, Segment{Kind: SegmentText, Body: rest})
	}
	return segments
}

func fallbackSegment(text string, ct ContentType) Segment {
	switch ct.Kind {
	case KindCode:
		return Segment{Kind: SegmentCode, Language: strings.ToLower(ct.Language), Body: text}
	case KindTerminal:
		return Segment{Kind: SegmentCode, Language: ShellLanguage, Body: text}
	default:
		return Segment{Kind: SegmentText, Body: text}
	}
}
