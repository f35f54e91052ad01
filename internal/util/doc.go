// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the config and UI packages.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//
// Terminal Text:
//   - TruncateWidth: Column-aware truncation with an ellipsis
//   - StringWidth, PadRight: Column measurement and padding
//   - OneLine: Whitespace collapsing for previews
//
// # Usage
//
//	err := util.AtomicWriteFile(path, data, 0600)
//	title := util.TruncateWidth(util.OneLine(msg.Text()), 40)
package util
