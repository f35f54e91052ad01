// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream models the events of a remote exchange and folds them into
// the transcript.
//
// An exchange is an EventStream: a lazy, finite sequence of delta, done and
// error events. Pump reads a stream on its own goroutine; Merger applies the
// events to the open stream target of a transcript.
//
// # Key Types
//
//   - Event: delta(part, text), done, or error(reason)
//   - EventStream: Next/Close abstraction implemented by every transport
//   - Merger: applies events in arrival order and records the Outcome
//   - Stats: delta count, bytes, time to first delta, duration
//
// # Usage
//
//	t := model.NewTranscript()
//	_ = t.OpenStreamTarget(model.NewAssistantMessage(model.SourceChat))
//	m := stream.NewMerger(t)
//	res, err := stream.Consume(ctx, es, m)
package stream
