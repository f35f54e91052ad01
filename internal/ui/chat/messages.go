// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/agentchat/internal/config"
	"github.com/jeranaias/agentchat/internal/session"
)

// =============================================================================
// TEA MESSAGES
// =============================================================================

// SessionChangedMsg reports that the controller changed since the last one.
type SessionChangedMsg struct {
	// Cleared is set when a clear happened in between.
	Cleared bool
}

// FrameTickMsg redraws a throttled streaming frame.
type FrameTickMsg time.Time

// ConfigReloadedMsg carries a hot-reloaded config or the error reading it.
type ConfigReloadedMsg struct {
	Config *config.Config
	Err    error
}

// noteExpiredMsg hides the status note with the given sequence number.
type noteExpiredMsg struct{ seq int }

// =============================================================================
// CHANGE FEED
// =============================================================================

// ChangeFeed turns controller notifications into tea messages.
//
// Notify never blocks: bursts of changes collapse into one pending wake-up,
// and the model re-reads the controller when it handles it. This keeps the
// controller's goroutines independent of the event loop, which may itself be
// calling into the controller.
type ChangeFeed struct {
	wake    chan struct{}
	done    chan struct{}
	cleared atomic.Bool
	closed  atomic.Bool
}

// NewChangeFeed creates an empty feed.
func NewChangeFeed() *ChangeFeed {
	return &ChangeFeed{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Notify is a session.Notifier.
func (f *ChangeFeed) Notify(ch session.Change) {
	if ch.Kind == session.ChangeCleared {
		f.cleared.Store(true)
	}
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Wait returns a command that resolves on the next change.
func (f *ChangeFeed) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-f.wake:
			return SessionChangedMsg{Cleared: f.cleared.Swap(false)}
		case <-f.done:
			return nil
		}
	}
}

// Close releases a pending Wait.
func (f *ChangeFeed) Close() {
	if f.closed.CompareAndSwap(false, true) {
		close(f.done)
	}
}
