// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the ownai command tree.
//
// # Commands
//
//	ownai                         interactive chat (same as "ownai chat")
//	ownai chat [--session ID]     interactive chat with slash commands
//	ownai probe                   check the configured server
//	ownai models [--select NAME]  list models and pick one
//	ownai sessions ...            list, show, rename, delete, export, import
//	ownai config ...              show, path, get, set
//
// Output is colored only when stdout is a terminal and NO_COLOR is unset.
// Logs go to ~/.ownai/ownai.log unless logging.file says otherwise.
package cli
