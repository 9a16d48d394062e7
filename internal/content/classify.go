// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package content

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Fence is the marker that opens and closes a code block.
const Fence = "```"

// DefaultCodeLanguage is used when a fence carries no language tag.
const DefaultCodeLanguage = "text"

// =============================================================================
// CONTENT TYPE
// =============================================================================

// Kind is the coarse classification of a message's text.
type Kind int

const (
	KindText Kind = iota
	KindCode
	KindTerminal
	KindMarkdown
)

var kindNames = [...]string{
	KindText:     "text",
	KindCode:     "code",
	KindTerminal: "terminal",
	KindMarkdown: "markdown",
}

// String returns the persisted name of the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// ParseKind converts a persisted kind name back into a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return KindText, fmt.Errorf("unknown content type %q", s)
}

// ContentType is the derived presentation tag of a message.
// Language is only meaningful for KindCode.
type ContentType struct {
	Kind     Kind
	Language string
}

// Text is the zero-value plain text content type.
var Text = ContentType{Kind: KindText}

// Code returns a code content type in the given language.
func Code(language string) ContentType {
	return ContentType{Kind: KindCode, Language: language}
}

// Terminal returns the terminal-output content type.
func Terminal() ContentType { return ContentType{Kind: KindTerminal} }

// Markdown returns the markdown content type.
func Markdown() ContentType { return ContentType{Kind: KindMarkdown} }

func (c ContentType) String() string {
	if c.Kind == KindCode {
		return "code(" + c.Language + ")"
	}
	return c.Kind.String()
}

// contentTypeDoc is the persisted shape: {"type": "code", "language": "go"}.
type contentTypeDoc struct {
	Type     string `json:"type" yaml:"type"`
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
}

func (c ContentType) doc() contentTypeDoc {
	d := contentTypeDoc{Type: c.Kind.String()}
	if c.Kind == KindCode {
		d.Language = c.Language
	}
	return d
}

func (d contentTypeDoc) contentType() (ContentType, error) {
	kind, err := ParseKind(d.Type)
	if err != nil {
		return Text, err
	}
	ct := ContentType{Kind: kind}
	if kind == KindCode {
		ct.Language = d.Language
		if ct.Language == "" {
			ct.Language = DefaultCodeLanguage
		}
	}
	return ct, nil
}

// MarshalJSON implements json.Marshaler.
func (c ContentType) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.doc())
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *ContentType) UnmarshalJSON(data []byte) error {
	var d contentTypeDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	ct, err := d.contentType()
	if err != nil {
		return err
	}
	*c = ct
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (c ContentType) MarshalYAML() (interface{}, error) {
	return c.doc(), nil
}

// UnmarshalYAML implements the yaml.v3 obsolete-style unmarshaler so the
// package does not need to import yaml directly.
func (c *ContentType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var d contentTypeDoc
	if err := unmarshal(&d); err != nil {
		return err
	}
	ct, err := d.contentType()
	if err != nil {
		return err
	}
	*c = ct
	return nil
}

// =============================================================================
// CLASSIFIER
// =============================================================================

var (
	terminalMarkers = []string{"$ ", "> ", "PS "}
	markdownMarkers = []string{"# ", "* ", "> "}

	markdownLinkRegex = regexp.MustCompile(`\[[^\]\n]*\]\([^)\n]*\)`)
)

// Classify maps raw message text to a content type. Rules are evaluated
// in order and the first match wins:
//
//  1. a line starting with a fence gives code, language taken from that line
//  2. "$ ", "> " or "PS " anywhere gives terminal
//  3. heading, bullet, blockquote or link syntax gives markdown
//  4. anything else is text
func Classify(text string) ContentType {
	if strings.Contains(text, Fence) {
		if lang, ok := fenceLanguage(text); ok {
			return Code(lang)
		}
	}

	for _, m := range terminalMarkers {
		if strings.Contains(text, m) {
			return Terminal()
		}
	}

	for _, m := range markdownMarkers {
		if strings.Contains(text, m) {
			return Markdown()
		}
	}
	if markdownLinkRegex.MatchString(text) {
		return Markdown()
	}

	return Text
}

// fenceLanguage finds the first line opening with a fence and returns the
// tag that follows it. A fence that only appears mid-line does not count.
func fenceLanguage(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		rest, ok := strings.CutPrefix(line, Fence)
		if !ok {
			continue
		}
		lang := strings.TrimSpace(rest)
		if lang == "" {
			lang = DefaultCodeLanguage
		}
		return lang, true
	}
	return "", false
}
