// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session synchronizes one chat session with a remote agent.
//
// The Controller owns the transcript and drives the status machine:
//
//	idle|error --Send--> sending --first event--> streaming --done--> idle
//	                        |                         |
//	                        +--failure--> error <--error
//
// Stop returns to idle from sending or streaming and keeps partial text.
// ClearHistory implies Stop, empties the transcript and the render cache, and
// notifies the agent in the background.
//
// # Key Types
//
//   - Controller: send/stop/clear entry points and read accessors
//   - Transport: the remote agent (see internal/transport/...)
//   - Status: idle, sending, streaming, error
//   - Change, Notifier: mutation hints for the presentation layer
//
// # Usage
//
//	c := session.New(agent, "default", session.WithRenderCache(cache))
//	defer c.Close()
//	if err := c.Send("What's in my inbox?"); err != nil {
//	    // ErrValidation or ErrSessionBusy
//	}
package session
