// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Agent"
	default:
		return string(r)
	}
}

// =============================================================================
// SOURCE TYPE
// =============================================================================

// Source records where a message originated.
type Source string

const (
	SourceUnset Source = ""
	SourceChat  Source = "chat"
	SourceEmail Source = "email"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceUnset, SourceChat, SourceEmail:
		return true
	}
	return false
}

// =============================================================================
// PART TYPE
// =============================================================================

// PartType tags the variant held by a Part.
type PartType string

// PartText is the only variant interpreted by the transcript.
const PartText PartType = "text"

// Part is one ordered piece of a message.
// Non-text variants keep their original JSON in Raw and are passed through untouched.
type Part struct {
	Type PartType
	Text string
	Raw  json.RawMessage
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// IsText reports whether the part is the text variant.
func (p Part) IsText() bool {
	return p.Type == PartText
}

// MarshalJSON encodes text parts as {"type":"text","text":...} and replays Raw otherwise.
func (p Part) MarshalJSON() ([]byte, error) {
	if p.IsText() {
		return json.Marshal(struct {
			Type PartType `json:"type"`
			Text string   `json:"text"`
		}{p.Type, p.Text})
	}
	if len(p.Raw) > 0 {
		return p.Raw, nil
	}
	return json.Marshal(struct {
		Type PartType `json:"type"`
	}{p.Type})
}

// UnmarshalJSON decodes a part, keeping unknown variants as raw JSON.
func (p *Part) UnmarshalJSON(data []byte) error {
	var head struct {
		Type PartType `json:"type"`
		Text string   `json:"text"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	p.Type = head.Type
	if head.Type == PartText {
		p.Text = head.Text
		p.Raw = nil
		return nil
	}
	p.Text = ""
	p.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Metadata carries the per-message details shown next to the content.
type Metadata struct {
	CreatedAt time.Time `json:"createdAt"`
	Source    Source    `json:"source,omitempty"`
}

// Message represents a single message in a transcript.
type Message struct {
	ID       string   `json:"id"`
	Role     Role     `json:"role"`
	Parts    []Part   `json:"parts"`
	Metadata Metadata `json:"metadata"`
}

// NewMessage creates a message with a generated ID and a single text part.
// An empty text produces a message with no parts.
func NewMessage(role Role, text string) Message {
	msg := Message{
		ID:   NewID(),
		Role: role,
		Metadata: Metadata{
			CreatedAt: time.Now(),
		},
	}
	if text != "" {
		msg.Parts = []Part{TextPart(text)}
	}
	return msg
}

// NewUserMessage creates a user message typed into the chat.
func NewUserMessage(text string) Message {
	msg := NewMessage(RoleUser, text)
	msg.Metadata.Source = SourceChat
	return msg
}

// NewAssistantMessage creates an empty assistant message ready to receive deltas.
func NewAssistantMessage(source Source) Message {
	msg := NewMessage(RoleAssistant, "")
	msg.Metadata.Source = source
	return msg
}

// NewID returns a fresh message identifier.
func NewID() string {
	return "msg_" + uuid.NewString()
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// Text returns the concatenated text of all text parts.
func (m Message) Text() string {
	if len(m.Parts) == 1 {
		return m.Parts[0].Text
	}
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.IsText() {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// IsEmpty returns true if the message has no text content.
func (m Message) IsEmpty() bool {
	for _, p := range m.Parts {
		if p.IsText() && p.Text != "" {
			return false
		}
	}
	return true
}

// Preview returns a truncated preview of the message text.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	content := m.Text()
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// Clone returns a deep copy that shares no slices with m.
func (m Message) Clone() Message {
	clone := m
	if m.Parts != nil {
		clone.Parts = make([]Part, len(m.Parts))
		for i, p := range m.Parts {
			if p.Raw != nil {
				p.Raw = append(json.RawMessage(nil), p.Raw...)
			}
			clone.Parts[i] = p
		}
	}
	return clone
}
