// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render caches the terminal rendering of message parts.
//
// Streaming rebuilds message text many times a second, so the cache keys
// entries by message id and part index and compares an xxhash fingerprint of
// the text instead of relying on string identity. Each part has at most one
// entry; the total is bounded by an LRU.
//
// # Usage
//
//	conv, err := render.NewGlamourConverter("auto", 100)
//	cache := render.NewCache(conv, render.DefaultMaxEntries)
//	out := cache.Render(msg.ID, 0, msg.Parts[0].Text)
package render
