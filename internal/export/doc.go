// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes single sessions to standalone documents and reads
// them back.
//
// JSON and YAML documents carry the full session schema and can be
// imported again. Markdown is a human-readable transcript and is
// export-only. The format is chosen from the file extension.
//
// # Usage
//
//	if err := export.WriteFile(sess, "chat.yaml"); err != nil {
//	    return err
//	}
//	imported, err := export.ReadFile("chat.yaml")
package export
