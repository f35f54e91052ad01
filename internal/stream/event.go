// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jeranaias/agentchat/internal/model"
)

// =============================================================================
// EVENT TYPES
// =============================================================================

// EventKind identifies the variant of an Event.
type EventKind int

const (
	// EventDelta carries a text fragment for one part of the reply.
	EventDelta EventKind = iota
	// EventDone ends the exchange successfully.
	EventDone
	// EventError ends the exchange with a reason.
	EventError
)

// String returns the wire name of the kind.
func (k EventKind) String() string {
	switch k {
	case EventDelta:
		return "delta"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one item of a remote exchange.
type Event struct {
	Kind   EventKind
	Part   int
	Text   string
	Reason string

	// Source tags the reply when the agent reports where it came from.
	// Only meaningful on the first event of an exchange.
	Source model.Source
}

// Delta builds a delta event.
func Delta(part int, text string) Event {
	return Event{Kind: EventDelta, Part: part, Text: text}
}

// Done builds the successful terminal event.
func Done() Event {
	return Event{Kind: EventDone}
}

// Failure builds the error terminal event.
func Failure(reason string) Event {
	return Event{Kind: EventError, Reason: reason}
}

// IsTerminal reports whether the event ends the exchange.
func (e Event) IsTerminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}

// =============================================================================
// EVENT STREAM
// =============================================================================

// ErrClosed is returned by Next after Close has been called.
var ErrClosed = errors.New("stream: closed")

// EventStream is a lazy, finite sequence of events for one exchange.
//
// Next blocks until an event is available. It returns io.EOF when the source
// ended without a terminal event, ErrClosed after Close, and ctx.Err() when ctx
// is cancelled. Close aborts the underlying exchange and may be called more
// than once.
type EventStream interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

// ChanStream adapts a channel of events to EventStream.
// A closed channel reads as io.EOF.
type ChanStream struct {
	ch      <-chan Event
	closed  chan struct{}
	once    sync.Once
	onClose func()
}

// NewChanStream wraps ch. onClose, when non-nil, runs once on the first Close.
func NewChanStream(ch <-chan Event, onClose func()) *ChanStream {
	return &ChanStream{
		ch:      ch,
		closed:  make(chan struct{}),
		onClose: onClose,
	}
}

// Next implements EventStream.
func (s *ChanStream) Next(ctx context.Context) (Event, error) {
	// Close wins over buffered events.
	select {
	case <-s.closed:
		return Event{}, ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}

	select {
	case <-s.closed:
		return Event{}, ErrClosed
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case ev, ok := <-s.ch:
		if !ok {
			return Event{}, io.EOF
		}
		return ev, nil
	}
}

// Close implements EventStream.
func (s *ChanStream) Close() error {
	s.once.Do(func() {
		close(s.closed)
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

// sliceStream replays a fixed list of events.
type sliceStream struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

// FromSlice returns a stream that yields events in order, then io.EOF.
func FromSlice(events ...Event) EventStream {
	return &sliceStream{events: append([]Event(nil), events...)}
}

func (s *sliceStream) Next(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Event{}, ErrClosed
	}
	if len(s.events) == 0 {
		return Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *sliceStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
