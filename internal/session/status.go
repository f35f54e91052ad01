// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"

	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/stream"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the state of the session's exchange machine.
type Status int

const (
	StatusIdle Status = iota
	StatusSending
	StatusStreaming
	StatusError
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSending:
		return "sending"
	case StatusStreaming:
		return "streaming"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Busy reports whether an exchange is in flight.
func (s Status) Busy() bool {
	return s == StatusSending || s == StatusStreaming
}

// PushState is the state of the push channel.
type PushState int

const (
	// PushOff means Connect was never called or never succeeded.
	PushOff PushState = iota
	PushConnected
	// PushReconnecting means an established channel dropped and is being redialed.
	PushReconnecting
)

func (p PushState) String() string {
	switch p {
	case PushOff:
		return "off"
	case PushConnected:
		return "connected"
	case PushReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrValidation rejects a send whose text is empty or whitespace.
	ErrValidation = errors.New("session: message text is empty")

	// ErrSessionBusy rejects a send while another exchange is in flight.
	ErrSessionBusy = errors.New("session: an exchange is already in flight")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session: controller closed")
)

// StreamError carries the reason an agent gave for failing an exchange.
type StreamError struct {
	Reason string
}

func (e *StreamError) Error() string {
	return "agent error: " + e.Reason
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Transport reaches the remote agent. Aborting an exchange is done by
// cancelling the context passed to SendMessage and closing the stream.
type Transport interface {
	Connect(ctx context.Context, sessionID string) (stream.EventStream, error)
	SendMessage(ctx context.Context, sessionID string, msg model.Message) (stream.EventStream, error)
	NotifyClear(ctx context.Context, sessionID string) error
}

// ChangeKind says what a Change is about.
type ChangeKind int

const (
	// ChangeStatus reports a status transition.
	ChangeStatus ChangeKind = iota
	// ChangeTranscript reports new or updated message content.
	ChangeTranscript
	// ChangeCleared reports that the history was reset.
	ChangeCleared
	// ChangePush reports the push channel going down or coming back.
	ChangePush
)

// Change describes one mutation. It is a hint to re-read the controller.
type Change struct {
	Kind      ChangeKind
	Status    Status
	MessageID string
	Push      PushState
}

// Notifier receives changes. It is called outside the controller lock and may
// call back into the controller.
type Notifier func(Change)
