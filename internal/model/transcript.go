// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"strings"
)

// MaxParts bounds the part index a delta may address.
const MaxParts = 64

// =============================================================================
// TRANSCRIPT TYPE
// =============================================================================

// Transcript holds the ordered messages of one session.
//
// Messages keep insertion order and are unique by ID. At most one message is
// open for streaming and it is always the last one. Transcript is not safe for
// concurrent use; the session controller serializes every call.
type Transcript struct {
	messages []*Message
	index    map[string]int
	open     *streamTarget
}

// streamTarget tracks the message currently receiving deltas.
// PERFORMANCE: one strings.Builder per part avoids quadratic appends while streaming.
type streamTarget struct {
	msg      *Message
	builders []*strings.Builder
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{
		messages: make([]*Message, 0),
		index:    make(map[string]int),
	}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Append adds msg to the end of the transcript.
// An open stream target must stay last, so appending while one is open fails.
func (t *Transcript) Append(msg Message) error {
	if _, ok := t.index[msg.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, msg.ID)
	}
	if t.open != nil {
		return fmt.Errorf("%w: cannot append behind %s", ErrAlreadyStreaming, t.open.msg.ID)
	}
	t.push(msg.Clone())
	return nil
}

// OpenStreamTarget appends msg as an assistant message and marks it open for deltas.
// The role is always set to assistant.
func (t *Transcript) OpenStreamTarget(msg Message) error {
	if t.open != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyStreaming, t.open.msg.ID)
	}
	if _, ok := t.index[msg.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, msg.ID)
	}

	msg = msg.Clone()
	msg.Role = RoleAssistant
	stored := t.push(msg)

	target := &streamTarget{msg: stored}
	for _, p := range stored.Parts {
		b := &strings.Builder{}
		b.WriteString(p.Text)
		target.builders = append(target.builders, b)
	}
	t.open = target
	return nil
}

// MergeDelta appends fragment to parts[partIndex] of the open stream target,
// creating empty text parts up to partIndex when needed.
func (t *Transcript) MergeDelta(partIndex int, fragment string) error {
	if t.open == nil {
		return ErrNoOpenTarget
	}
	if partIndex < 0 || partIndex >= MaxParts {
		return fmt.Errorf("%w: %d", ErrInvalidPart, partIndex)
	}

	target := t.open
	for len(target.msg.Parts) <= partIndex {
		target.msg.Parts = append(target.msg.Parts, TextPart(""))
		target.builders = append(target.builders, &strings.Builder{})
	}

	part := &target.msg.Parts[partIndex]
	if !part.IsText() {
		return fmt.Errorf("%w: part %d is %q, not text", ErrInvalidPart, partIndex, part.Type)
	}

	b := target.builders[partIndex]
	b.WriteString(fragment)
	part.Text = b.String()
	return nil
}

// CloseStreamTarget clears the open marker. The message stays as history.
// Safe to call when nothing is open.
func (t *Transcript) CloseStreamTarget() {
	t.open = nil
}

// Clear removes every message and any open marker.
func (t *Transcript) Clear() {
	t.messages = make([]*Message, 0)
	t.index = make(map[string]int)
	t.open = nil
}

func (t *Transcript) push(msg Message) *Message {
	stored := &msg
	t.index[msg.ID] = len(t.messages)
	t.messages = append(t.messages, stored)
	return stored
}

// =============================================================================
// READS
// =============================================================================

// Snapshot returns a deep copy of the messages in order.
// Callers own the returned slice; changing it never affects the transcript.
func (t *Transcript) Snapshot() []Message {
	out := make([]Message, len(t.messages))
	for i, msg := range t.messages {
		out[i] = msg.Clone()
	}
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// Last returns a copy of the most recent message.
func (t *Transcript) Last() (Message, bool) {
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1].Clone(), true
}

// Get returns a copy of the message with the given ID.
func (t *Transcript) Get(id string) (Message, bool) {
	i, ok := t.index[id]
	if !ok {
		return Message{}, false
	}
	return t.messages[i].Clone(), true
}

// OpenTarget returns the ID of the open stream target, or "" when none is open.
func (t *Transcript) OpenTarget() string {
	if t.open == nil {
		return ""
	}
	return t.open.msg.ID
}

// IsStreaming reports whether a stream target is open.
func (t *Transcript) IsStreaming() bool {
	return t.open != nil
}
