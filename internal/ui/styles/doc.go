// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the agentchat TUI.

# Color System (colors.go)

All colors are Lip Gloss AdaptiveColor values. Purple marks the agent, blue
the user and amber messages that arrived by email. Rose is reserved for
errors. Status indicators pair every status with an ASCII shape.

# Theme System (theme.go)

A Theme is built for an explicit background:

	theme := styles.NewTheme("dark")
	theme = theme.Toggled() // light

NewTheme tells lipgloss which side of each AdaptiveColor to use, so only one
theme should be live at a time.
*/
package styles
