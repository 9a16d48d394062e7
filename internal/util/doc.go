// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides file helpers shared by the config, storage and
// export packages.
//
//   - WriteFileAtomic / WriteAtomic: crash-safe replace via temp file, fsync, rename
//   - ExpandHome: resolve a leading ~ in user-supplied paths
package util
