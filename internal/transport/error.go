// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport holds the error type shared by the agent transports.
package transport

import (
	"fmt"

	"github.com/pkg/errors"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorKind categorizes transport errors for handling.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConnection
	KindStatus
	KindProtocol
	KindClosed
)

// String returns a short name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindStatus:
		return "status"
	case KindProtocol:
		return "protocol"
	case KindClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Error represents a failure talking to the remote agent.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind, so the sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Cause == nil
}

// Sentinel errors for errors.Is checks.
var (
	ErrConnection = &Error{Kind: KindConnection}
	ErrStatus     = &Error{Kind: KindStatus}
	ErrProtocol   = &Error{Kind: KindProtocol}
	ErrClosed     = &Error{Kind: KindClosed}
)

// Connection wraps a dial or request failure.
func Connection(cause error, msg string) *Error {
	return &Error{Kind: KindConnection, Message: msg, Cause: errors.WithStack(cause)}
}

// Status reports an unexpected HTTP status.
func Status(code int, msg string) *Error {
	return &Error{Kind: KindStatus, Message: msg, StatusCode: code}
}

// Protocol reports a malformed frame or stream.
func Protocol(cause error, msg string) *Error {
	if cause == nil {
		return &Error{Kind: KindProtocol, Message: msg}
	}
	return &Error{Kind: KindProtocol, Message: msg, Cause: errors.WithStack(cause)}
}
