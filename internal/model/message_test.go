// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
	"testing"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewUserMessage(t *testing.T) {
	msg := NewUserMessage("Hello")

	if msg.Role != RoleUser {
		t.Errorf("Role = %q, want 'user'", msg.Role)
	}
	if msg.Text() != "Hello" {
		t.Errorf("Text() = %q, want 'Hello'", msg.Text())
	}
	if msg.Metadata.Source != SourceChat {
		t.Errorf("Source = %q, want 'chat'", msg.Metadata.Source)
	}
	if !strings.HasPrefix(msg.ID, "msg_") {
		t.Errorf("ID should start with 'msg_', got %q", msg.ID)
	}
	if msg.Metadata.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestNewAssistantMessage(t *testing.T) {
	msg := NewAssistantMessage(SourceEmail)

	if msg.Role != RoleAssistant {
		t.Errorf("Role = %q, want 'assistant'", msg.Role)
	}
	if len(msg.Parts) != 0 {
		t.Errorf("Parts = %d, want 0", len(msg.Parts))
	}
	if !msg.IsEmpty() {
		t.Error("new assistant message should be empty")
	}
	if msg.Metadata.Source != SourceEmail {
		t.Errorf("Source = %q, want 'email'", msg.Metadata.Source)
	}
}

func TestMessage_IDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestMessage_TextSkipsOpaqueParts(t *testing.T) {
	msg := Message{Parts: []Part{
		TextPart("a"),
		{Type: "attachment", Raw: json.RawMessage(`{"type":"attachment"}`)},
		TextPart("b"),
	}}
	if got := msg.Text(); got != "ab" {
		t.Errorf("Text() = %q, want 'ab'", got)
	}
}

func TestMessage_Preview(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		want   string
	}{
		{"short", "hi", 10, "hi"},
		{"truncated", "hello world", 8, "hello..."},
		{"unicode", "郵件協調器測試", 5, "郵件..."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg := NewUserMessage(tc.text)
			if got := msg.Preview(tc.maxLen); got != tc.want {
				t.Errorf("Preview(%d) = %q, want %q", tc.maxLen, got, tc.want)
			}
		})
	}
}

func TestRole_DisplayName(t *testing.T) {
	if RoleUser.DisplayName() != "You" {
		t.Errorf("RoleUser.DisplayName() = %q", RoleUser.DisplayName())
	}
	if RoleAssistant.DisplayName() != "Agent" {
		t.Errorf("RoleAssistant.DisplayName() = %q", RoleAssistant.DisplayName())
	}
}

// =============================================================================
// PART JSON TESTS
// =============================================================================

func TestPart_OpaqueVariantPassesThrough(t *testing.T) {
	in := `{"id":"m1","role":"assistant","parts":[{"type":"text","text":"hi"},{"type":"tool-call","name":"lookup","args":{"q":1}}],"metadata":{"createdAt":"2025-01-02T03:04:05Z","source":"email"}}`

	var msg Message
	if err := json.Unmarshal([]byte(in), &msg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(msg.Parts) != 2 {
		t.Fatalf("Parts = %d, want 2", len(msg.Parts))
	}
	if !msg.Parts[0].IsText() || msg.Parts[0].Text != "hi" {
		t.Errorf("part 0 = %+v", msg.Parts[0])
	}
	if msg.Parts[1].IsText() {
		t.Error("part 1 should stay opaque")
	}
	if msg.Metadata.Source != SourceEmail {
		t.Errorf("Source = %q", msg.Metadata.Source)
	}

	out, err := json.Marshal(msg.Parts[1])
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(out) != `{"type":"tool-call","name":"lookup","args":{"q":1}}` {
		t.Errorf("opaque part re-encoded as %s", out)
	}
}

func TestMessage_CloneIsDeep(t *testing.T) {
	msg := Message{ID: "m", Parts: []Part{
		TextPart("a"),
		{Type: "file", Raw: json.RawMessage(`{"type":"file"}`)},
	}}
	clone := msg.Clone()
	clone.Parts[0].Text = "changed"
	clone.Parts[1].Raw[0] = '['

	if msg.Parts[0].Text != "a" {
		t.Error("Clone shares parts with the original")
	}
	if msg.Parts[1].Raw[0] != '{' {
		t.Error("Clone shares raw bytes with the original")
	}
}

func TestSource_Valid(t *testing.T) {
	for _, s := range []Source{SourceUnset, SourceChat, SourceEmail} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if Source("sms").Valid() {
		t.Error("unknown source should be invalid")
	}
}
