// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns chat messages into terminal text.
//
// Messages are split into segments by package content. Code segments are
// highlighted with chroma inside a bordered block; prose goes through
// glamour. With color disabled the output is plain text with the
// original fences restored, which is safe to pipe.
package render
