// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/cespare/xxhash/v2"
)

// =============================================================================
// VIEWPORT OPTIMIZER
// =============================================================================

// ViewportOptimizer skips viewport updates whose content did not change.
// Handing the viewport identical content still costs a re-wrap of every
// line, and streaming frames often repeat.
type ViewportOptimizer struct {
	lastHash    uint64
	lastLen     int
	primed      bool
	updateCount uint64
	skipCount   uint64
}

// NewViewportOptimizer creates an optimizer that accepts the first update.
func NewViewportOptimizer() *ViewportOptimizer {
	return &ViewportOptimizer{}
}

// ShouldUpdate reports whether content differs from the last accepted one.
func (vo *ViewportOptimizer) ShouldUpdate(content string) bool {
	vo.updateCount++
	h := xxhash.Sum64String(content)
	if vo.primed && h == vo.lastHash && len(content) == vo.lastLen {
		vo.skipCount++
		return false
	}
	vo.primed = true
	vo.lastHash = h
	vo.lastLen = len(content)
	return true
}

// Reset forces the next update through.
func (vo *ViewportOptimizer) Reset() {
	vo.primed = false
}

// Stats returns total update attempts, skipped ones and the skip percentage.
func (vo *ViewportOptimizer) Stats() (total, skipped uint64, efficiency float64) {
	total, skipped = vo.updateCount, vo.skipCount
	if total > 0 {
		efficiency = float64(skipped) / float64(total) * 100
	}
	return total, skipped, efficiency
}
