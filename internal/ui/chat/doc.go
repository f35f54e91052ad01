// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the terminal chat view for agentchat.

The view is a thin shell around a session.Controller: it reads snapshots,
renders agent text through the controller's markdown cache and forwards the
user's send, stop and clear. It never edits the transcript.

# Key Components

## Model (model.go)

The Bubble Tea model: composer (bubbles/textarea), transcript viewport,
spinner and key help. Enter sends, Esc stops a reply, Ctrl+L clears the
history, Ctrl+D shows each message as JSON and Ctrl+T flips the theme.

## View Rendering (view.go)

Agent messages sit on the left, user messages on the right. A role header
is shown only where the speaker changes; messages that arrived by email get
a badge and an amber rule. Each text part carries its HH:MM time.

## Change Feed and Frame Limiter (messages.go, streaming.go)

Controller notifications arrive on a ChangeFeed that never blocks the
controller. While a reply streams, redraws are capped at the configured
frame rate; the final frame is drawn immediately.

# Usage

	feed := chat.NewChangeFeed()
	ctrl := session.New(agent, "default",
		session.WithNotifier(feed.Notify),
		session.WithRenderCache(cache))
	p := tea.NewProgram(chat.New(chat.Options{
		Controller: ctrl,
		Feed:       feed,
		Config:     cfg,
	}), tea.WithAltScreen())
	_, err := p.Run()
*/
package chat
