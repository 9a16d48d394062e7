// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable session persistence.
//
// Two backends implement Store with the same document schema (the JSON
// encoding of model.Session):
//
//   - SQLiteStore: one row per session in a single database file (default)
//   - FileStore: one JSON file per session in a directory
//
// Writes are full-session overwrites. Reads tolerate fields added or
// omitted by other versions, such as a missing title, and skip documents
// that cannot be decoded rather than failing the whole load.
package storage
