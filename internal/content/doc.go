// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package content classifies chat message text and splits it into
// renderable segments.
//
// Both operations are pure and cheap enough to run on every streamed
// delta, so a message's presentation metadata can follow its content
// while the model is still generating.
//
// # Key Types
//
//   - ContentType: classification tag (text, code with language, terminal, markdown)
//   - Segment: a text run or fenced code block produced by Parse
//
// # Usage
//
//	ct := content.Classify(msg)
//	for _, seg := range content.Parse(msg, ct) {
//	    if seg.Kind == content.SegmentCode {
//	        highlight(seg.Body, seg.Language)
//	    }
//	}
package content
