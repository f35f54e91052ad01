// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/session"
	"github.com/jeranaias/agentchat/internal/ui/styles"
	"github.com/jeranaias/agentchat/internal/util"
)

// View renders the complete chat interface.
func (m Model) View() string {
	if !m.ready {
		return "\n  Connecting..."
	}

	body := m.viewport.View()
	if m.showHelp {
		body = m.renderHelpOverlay()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderStatusBar(),
		m.theme.InputContainer.Width(m.width).Render(m.input.View()),
	)
}

// =============================================================================
// HEADER AND STATUS BAR
// =============================================================================

func (m Model) renderHeader() string {
	brand := m.theme.HeaderBrand.Render("agentchat")
	info := fmt.Sprintf("session %s", m.ctrl.SessionID())
	if m.label != "" {
		info += " · " + m.label
	}
	line := brand + "  " + m.theme.HeaderInfo.Render(util.TruncateWidth(info, m.width-12))
	return m.theme.Header.Width(m.width).Render(line)
}

func (m Model) renderStatusBar() string {
	status := m.ctrl.Status()

	var left string
	switch status {
	case session.StatusSending:
		left = m.theme.StatusBusy.Render(styles.StatusIndicators.Sending+" sending ") + m.spinner.View()
	case session.StatusStreaming:
		left = m.theme.StatusBusy.Render(styles.StatusIndicators.Streaming+" streaming ") + m.spinner.View()
	case session.StatusError:
		reason := "failed"
		if err := m.ctrl.LastError(); err != nil {
			reason = err.Error()
		}
		left = m.theme.StatusError.Render(styles.StatusIndicators.Error + " " + util.OneLine(reason))
	default:
		left = m.theme.StatusIdle.Render(styles.StatusIndicators.Idle + " ready")
	}

	if m.ctrl.PushState() == session.PushReconnecting {
		left += "  " + m.theme.StatusError.Render(styles.StatusIndicators.Offline+" push offline")
	}
	if m.note != "" {
		left += "  " + m.theme.StatusNote.Render(m.note)
	}

	var right string
	if status.Busy() {
		right = m.help.ShortHelpView([]key.Binding{m.keys.Stop, m.keys.Quit})
	} else {
		right = m.help.View(m.keys)
	}
	if cache := m.ctrl.RenderCache(); cache != nil && m.theme.GetLayoutMode() == styles.LayoutWide {
		s := cache.Stats()
		right = m.theme.StatusNote.Render(fmt.Sprintf("cache %d/%s ", s.Entries, formatRate(s.HitRate))) + right
	}

	inner := m.width - 2
	gap := inner - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		right = ""
		gap = inner - lipgloss.Width(left)
		if gap < 0 {
			gap = 0
		}
	}
	return m.theme.StatusBar.Width(m.width).MaxWidth(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderHelpOverlay() string {
	h := m.help
	h.ShowAll = true
	box := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(styles.Purple).
		Padding(1, 2).
		Render(m.theme.HeaderBrand.Render("Keys") + "\n\n" + h.View(m.keys))
	return lipgloss.Place(m.viewport.Width, m.viewport.Height, lipgloss.Center, lipgloss.Center, box)
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// renderTranscript renders every message of the controller's snapshot.
func (m *Model) renderTranscript() string {
	msgs := m.ctrl.Snapshot()
	if len(msgs) == 0 {
		return m.renderEmptyState()
	}

	streaming := m.ctrl.Streaming()
	blocks := make([]string, 0, len(msgs))
	for i, msg := range msgs {
		blocks = append(blocks, m.renderMessage(msg, showRoleHeader(msgs, i), msg.ID == streaming))
	}
	return strings.Join(blocks, "\n\n")
}

func (m *Model) renderMessage(msg model.Message, header, streaming bool) string {
	width := bubbleWidth(m.width)
	isUser := msg.Role == model.RoleUser
	isEmail := msg.Metadata.Source == model.SourceEmail

	var lines []string
	if m.showDebug {
		lines = append(lines, m.theme.DebugJSON.Width(width).Render(debugJSON(msg)))
	}
	if header {
		lines = append(lines, m.renderRoleHeader(msg, isUser, isEmail))
	}

	for i, part := range msg.Parts {
		if !part.IsText() {
			continue
		}
		body := m.renderPart(msg, i, part.Text, isUser, isEmail, width)
		if streaming && i == len(msg.Parts)-1 {
			body += m.theme.Cursor.Render(" ▍")
		}
		lines = append(lines, body)
		if m.cfg.UI.ShowTimestamps {
			lines = append(lines, m.theme.Timestamp.Render(formatClock(msg.Metadata.CreatedAt)))
		}
	}
	if streaming && len(msg.Parts) == 0 {
		lines = append(lines, m.theme.Cursor.Render("▍"))
	}

	block := lipgloss.JoinVertical(alignment(isUser), lines...)
	if isUser {
		return lipgloss.PlaceHorizontal(m.width, lipgloss.Right, block)
	}
	return block
}

func (m *Model) renderRoleHeader(msg model.Message, isUser, isEmail bool) string {
	name := msg.Role.DisplayName()
	if isUser {
		return m.theme.UserRole.Render(name)
	}
	out := m.theme.AssistantRole.Render(name)
	if isEmail {
		out += " " + m.theme.EmailBadge.Render("via email")
	}
	return out
}

// renderPart renders one text part. Agent text goes through the markdown
// cache keyed by (message, part); user text is shown as typed.
func (m *Model) renderPart(msg model.Message, part int, text string, isUser, isEmail bool, width int) string {
	if isUser {
		style := m.theme.UserBody
		if lipgloss.Width(text)+2 > width {
			style = style.Width(width)
		}
		return style.Render(text)
	}
	rendered := m.ctrl.Render(msg.ID, part, text)
	if isEmail {
		return m.theme.EmailBody.Render(rendered)
	}
	return m.theme.AssistantBody.Render(rendered)
}

func (m *Model) renderEmptyState() string {
	text := "No messages yet.\nAsk the agent anything, or wait for it to reach out."
	return lipgloss.Place(m.viewport.Width, m.viewport.Height, lipgloss.Center, lipgloss.Center,
		m.theme.EmptyState.Render(text))
}

func alignment(isUser bool) lipgloss.Position {
	if isUser {
		return lipgloss.Right
	}
	return lipgloss.Left
}
