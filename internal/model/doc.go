// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for transcripts and messages.
//
// This package defines the core domain types of a chat session: the messages
// exchanged with the remote agent and the ordered transcript that holds them.
//
// # Key Types
//
//   - Message: id, role, ordered parts and metadata (createdAt, source)
//   - Part: tagged variant; only text parts are merged and rendered
//   - Transcript: ordered, id-unique message store with a single open stream target
//   - Role, Source: message sender and origin enumerations
//
// # Usage
//
// Build a transcript and stream into the assistant reply:
//
//	t := model.NewTranscript()
//	_ = t.Append(model.NewUserMessage("Summarize today's mail"))
//	_ = t.OpenStreamTarget(model.NewAssistantMessage(model.SourceChat))
//	_ = t.MergeDelta(0, "Three ")
//	_ = t.MergeDelta(0, "new messages.")
//	t.CloseStreamTarget()
package model
