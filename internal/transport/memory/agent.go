// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package memory provides an in-process agent.
//
// By default the agent echoes each message back as a markdown reply, streamed
// in small deltas paced by a rate limiter, which is what --demo runs against.
// In manual mode every exchange is handed to the caller, so tests decide
// exactly which events arrive and when.
package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/stream"
)

// Replier builds the full reply text for a message.
type Replier func(msg model.Message) string

// EchoReply quotes the message back with a little markdown.
func EchoReply(msg model.Message) string {
	text := strings.TrimSpace(msg.Text())
	return fmt.Sprintf("**You said:**\n\n> %s\n\n_%d characters received._", text, len([]rune(text)))
}

// Option configures an Agent.
type Option func(*Agent)

// WithReplier replaces the echo reply.
func WithReplier(r Replier) Option {
	return func(a *Agent) { a.replier = r }
}

// WithPace sets the delta rate and the number of runes per delta.
// A non-positive rate disables pacing.
func WithPace(deltasPerSecond float64, runesPerDelta int) Option {
	return func(a *Agent) {
		if deltasPerSecond > 0 {
			a.limiter = rate.NewLimiter(rate.Limit(deltasPerSecond), 1)
		} else {
			a.limiter = nil
		}
		if runesPerDelta > 0 {
			a.chunk = runesPerDelta
		}
	}
}

// WithManualExchanges hands every exchange to Exchanges instead of replying.
func WithManualExchanges() Option {
	return func(a *Agent) { a.manual = true }
}

// WithSendError makes SendMessage fail with err.
func WithSendError(err error) Option {
	return func(a *Agent) { a.sendErr = err }
}

// WithClearError makes NotifyClear fail with err.
func WithClearError(err error) Option {
	return func(a *Agent) { a.clearErr = err }
}

// =============================================================================
// AGENT
// =============================================================================

// Agent is an in-process transport. It is safe for concurrent use.
type Agent struct {
	replier  Replier
	limiter  *rate.Limiter
	chunk    int
	manual   bool
	sendErr  error
	clearErr error

	exchanges chan *Exchange
	push      chan stream.Event

	mu           sync.Mutex
	sent         []model.Message
	clears       []string
	connects     int
	failConnects int
	conn         *pushStream
}

// NewAgent creates an echo agent paced at 40 deltas per second, 4 runes each.
func NewAgent(opts ...Option) *Agent {
	a := &Agent{
		replier:   EchoReply,
		limiter:   rate.NewLimiter(rate.Limit(40), 1),
		chunk:     4,
		exchanges: make(chan *Exchange, 16),
		push:      make(chan stream.Event, 64),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Connect returns the push channel. Events queued with Push arrive on it.
func (a *Agent) Connect(ctx context.Context, sessionID string) (stream.EventStream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.connects++
	if a.failConnects > 0 {
		a.failConnects--
		return nil, errConnectRefused
	}
	a.conn = newPushStream(a.push)
	return a.conn, nil
}

// DropPush ends the current push connection; the client reads io.EOF.
// Queued events stay queued for the next connection.
func (a *Agent) DropPush() {
	a.mu.Lock()
	conn := a.conn
	a.conn = nil
	a.mu.Unlock()
	if conn != nil {
		conn.drop()
	}
}

// FailConnects makes the next n Connect calls fail.
func (a *Agent) FailConnects(n int) {
	a.mu.Lock()
	a.failConnects = n
	a.mu.Unlock()
}

// Connects returns how many times Connect was called.
func (a *Agent) Connects() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connects
}

// Push queues agent-initiated events on the push channel.
func (a *Agent) Push(events ...stream.Event) {
	for _, ev := range events {
		a.push <- ev
	}
}

// SendMessage records msg and starts a reply.
func (a *Agent) SendMessage(ctx context.Context, sessionID string, msg model.Message) (stream.EventStream, error) {
	a.mu.Lock()
	a.sent = append(a.sent, msg.Clone())
	a.mu.Unlock()

	if a.sendErr != nil {
		return nil, a.sendErr
	}

	ex := newExchange(msg)
	if a.manual {
		a.exchanges <- ex
		return ex.stream, nil
	}

	go a.reply(ctx, ex)
	return ex.stream, nil
}

// NotifyClear records the reset.
func (a *Agent) NotifyClear(ctx context.Context, sessionID string) error {
	a.mu.Lock()
	a.clears = append(a.clears, sessionID)
	a.mu.Unlock()
	return a.clearErr
}

// Exchanges yields exchanges in manual mode.
func (a *Agent) Exchanges() <-chan *Exchange {
	return a.exchanges
}

// NextExchange waits for the next manual exchange.
func (a *Agent) NextExchange(timeout time.Duration) (*Exchange, error) {
	select {
	case ex := <-a.exchanges:
		return ex, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("no exchange within %s", timeout)
	}
}

// Sent returns copies of every message received.
func (a *Agent) Sent() []model.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.Message, len(a.sent))
	for i, m := range a.sent {
		out[i] = m.Clone()
	}
	return out
}

// Clears returns the session ids of every clear notification.
func (a *Agent) Clears() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.clears...)
}

func (a *Agent) reply(ctx context.Context, ex *Exchange) {
	defer ex.End()

	runes := []rune(a.replier(ex.Message))
	for len(runes) > 0 {
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return
			}
		}
		n := a.chunk
		if n > len(runes) {
			n = len(runes)
		}
		if !ex.Delta(0, string(runes[:n])) {
			return
		}
		runes = runes[n:]
	}
	ex.Done()
}

// =============================================================================
// PUSH CONNECTION
// =============================================================================

var errConnectRefused = errors.New("memory: push connection refused")

// pushStream is one connection to the shared push queue.
type pushStream struct {
	*stream.ChanStream
	dropped  chan struct{}
	dropOnce sync.Once
}

func newPushStream(queue <-chan stream.Event) *pushStream {
	s := &pushStream{dropped: make(chan struct{})}
	s.ChanStream = stream.NewChanStream(queue, nil)
	return s
}

// Next reads io.EOF once the connection is dropped.
func (s *pushStream) Next(ctx context.Context) (stream.Event, error) {
	select {
	case <-s.dropped:
		return stream.Event{}, io.EOF
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.dropped:
			cancel()
		case <-ctx.Done():
		}
	}()

	ev, err := s.ChanStream.Next(ctx)
	if err != nil {
		select {
		case <-s.dropped:
			return stream.Event{}, io.EOF
		default:
		}
	}
	return ev, err
}

func (s *pushStream) drop() {
	s.dropOnce.Do(func() { close(s.dropped) })
}

// =============================================================================
// EXCHANGE
// =============================================================================

// Exchange is the agent side of one reply.
type Exchange struct {
	Message model.Message

	ch      chan stream.Event
	stream  *stream.ChanStream
	aborted chan struct{}
	endOnce sync.Once
}

func newExchange(msg model.Message) *Exchange {
	ex := &Exchange{
		Message: msg.Clone(),
		ch:      make(chan stream.Event),
		aborted: make(chan struct{}),
	}
	ex.stream = stream.NewChanStream(ex.ch, func() { close(ex.aborted) })
	return ex
}

// Emit delivers ev to the client. It returns false once the client aborted.
func (ex *Exchange) Emit(ev stream.Event) bool {
	select {
	case ex.ch <- ev:
		return true
	case <-ex.aborted:
		return false
	}
}

// Delta emits a delta event.
func (ex *Exchange) Delta(part int, text string) bool {
	return ex.Emit(stream.Delta(part, text))
}

// Done emits the done event.
func (ex *Exchange) Done() bool {
	return ex.Emit(stream.Done())
}

// Fail emits an error event.
func (ex *Exchange) Fail(reason string) bool {
	return ex.Emit(stream.Failure(reason))
}

// End closes the exchange without a terminal event; the client reads io.EOF.
func (ex *Exchange) End() {
	ex.endOnce.Do(func() { close(ex.ch) })
}

// Aborted is closed when the client closes its stream.
func (ex *Exchange) Aborted() <-chan struct{} {
	return ex.aborted
}
