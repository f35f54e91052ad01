// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// FRAME LIMITER
// =============================================================================

// DefaultMaxFPS caps redraws while a reply streams in.
const DefaultMaxFPS = 30

// FrameLimiter caps how often the transcript is re-rendered while deltas
// arrive. A change that lands inside the current frame schedules one tick at
// the frame boundary; further changes before that tick ride along with it.
//
// It is owned by the Bubble Tea loop and needs no locking.
type FrameLimiter struct {
	interval time.Duration
	last     time.Time
	pending  bool
	frames   uint64
	deferred uint64
}

// NewFrameLimiter creates a limiter for maxFPS frames per second. Values
// outside 1..120 fall back to DefaultMaxFPS.
func NewFrameLimiter(maxFPS int) *FrameLimiter {
	if maxFPS <= 0 || maxFPS > 120 {
		maxFPS = DefaultMaxFPS
	}
	return &FrameLimiter{interval: time.Second / time.Duration(maxFPS)}
}

// Interval returns the minimum time between frames.
func (f *FrameLimiter) Interval() time.Duration {
	return f.interval
}

// Request asks for a frame at now. It returns draw=true when the frame may
// be drawn immediately. Otherwise it may return a tick command; nil means a
// tick is already on its way.
func (f *FrameLimiter) Request(now time.Time) (draw bool, tick tea.Cmd) {
	elapsed := now.Sub(f.last)
	if elapsed >= f.interval && !f.pending {
		f.mark(now)
		return true, nil
	}
	f.deferred++
	if f.pending {
		return false, nil
	}
	f.pending = true
	wait := f.interval - elapsed
	if wait < 0 {
		wait = 0
	}
	return false, tea.Tick(wait, func(t time.Time) tea.Msg { return FrameTickMsg(t) })
}

// Tick records that the scheduled frame is being drawn.
func (f *FrameLimiter) Tick(now time.Time) {
	f.pending = false
	f.mark(now)
}

// Force records a frame drawn outside the throttle (status changes, keys).
func (f *FrameLimiter) Force(now time.Time) {
	f.mark(now)
}

// Stats returns frames drawn and requests that were deferred.
func (f *FrameLimiter) Stats() (frames, deferred uint64) {
	return f.frames, f.deferred
}

func (f *FrameLimiter) mark(now time.Time) {
	f.last = now
	f.frames++
}
