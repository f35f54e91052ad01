// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeranaias/agentchat/internal/model"
)

// =============================================================================
// FORMATTING UTILITIES
// =============================================================================

// formatClock renders a message time as HH:MM in local time.
// A zero time is shown as now.
func formatClock(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Local().Format("15:04")
}

// showRoleHeader reports whether message i starts a new run of speakers.
func showRoleHeader(msgs []model.Message, i int) bool {
	return i == 0 || msgs[i-1].Role != msgs[i].Role
}

// debugJSON renders a message the way the agent sees it.
func debugJSON(msg model.Message) string {
	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return fmt.Sprintf("<unencodable message %s: %v>", msg.ID, err)
	}
	return string(data)
}

// bubbleWidth returns the width of a message column in a view this wide.
func bubbleWidth(total int) int {
	w := total * 85 / 100
	if w < 20 {
		w = total
	}
	return w
}

// formatRate renders a ratio as a whole percentage.
func formatRate(r float64) string {
	return fmt.Sprintf("%.0f%%", r*100)
}
