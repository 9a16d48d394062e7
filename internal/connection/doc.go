// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package connection tracks reachability of the configured Ollama server
// and the list of models it offers.
//
// A Monitor runs at most one probe and one model fetch at a time. Starting
// a new attempt cancels the previous one, and a completion whose attempt
// token is no longer the latest is discarded with ErrSuperseded, so a slow
// stale answer never overwrites a fresh one.
package connection
