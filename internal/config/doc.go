// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads, validates and saves ownai settings.
//
// Settings live in a TOML file, by default ~/.ownai/config.toml. The
// directory can be moved with OWNAI_HOME. Values from a .env file in the
// working directory and from the process environment override the file:
//
//	OWNAI_ADDRESS       server.address
//	OWNAI_PORT          server.port
//	OWNAI_MODEL         server.model
//	OWNAI_STORAGE       storage.backend
//	OWNAI_STORAGE_PATH  storage.path
//	OWNAI_LOG_LEVEL     logging.level
//
// Server address and port are deliberately not validated on load; a
// probe reports them. A Provider hands out immutable snapshots and a
// Watcher swaps in a new snapshot when the file changes on disk.
package config
