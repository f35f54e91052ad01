// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/render"
	"github.com/jeranaias/agentchat/internal/stream"
	"github.com/jeranaias/agentchat/internal/transport"
)

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns one session: its transcript, its status and the exchange in
// flight. It is the only writer of the transcript.
//
// Every mutation runs under one mutex, so send, stop, clear and event delivery
// are applied one at a time. Events of an exchange that was stopped or cleared
// are discarded.
type Controller struct {
	mu sync.Mutex

	transport  Transport
	sessionID  string
	transcript *model.Transcript
	cache      *render.Cache

	log           zerolog.Logger
	notify        Notifier
	notifyTimeout time.Duration

	status    Status
	lastErr   error
	lastStats stream.Stats
	seq       uint64
	ex        *exchange

	push           *pushedReply
	pending        []model.Message
	pushState      PushState
	pushRetryDelay time.Duration

	changes []Change

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// exchange is one local send and its reply.
type exchange struct {
	seq    uint64
	cancel context.CancelFunc
	merger *stream.Merger
	reply  string
}

// New creates a controller for sessionID.
func New(t Transport, sessionID string, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		transport:      t,
		sessionID:      sessionID,
		transcript:     model.NewTranscript(),
		log:            log.Logger,
		notifyTimeout:  DefaultNotifyTimeout,
		pushRetryDelay: pushRetryBaseDelay,
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "session").Str("session", sessionID).Logger()
	return c
}

// unlock releases the mutex and then publishes the changes recorded while it
// was held.
func (c *Controller) unlock() {
	changes := c.changes
	c.changes = nil
	c.mu.Unlock()

	if c.notify == nil {
		return
	}
	for _, ch := range changes {
		c.notify(ch)
	}
}

func (c *Controller) setStatus(s Status) {
	if c.status == s {
		return
	}
	c.log.Debug().Stringer("from", c.status).Stringer("to", s).Msg("status")
	c.status = s
	c.changes = append(c.changes, Change{Kind: ChangeStatus, Status: s})
}

func (c *Controller) touched(id string) {
	c.changes = append(c.changes, Change{Kind: ChangeTranscript, Status: c.status, MessageID: id})
}

// must turns a transcript contract violation into a panic. Part indexes come
// from the agent and are checked in deliver; any other error here is a bug.
func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("session: transcript contract violated: %v", err))
	}
}

// =============================================================================
// ACTIONS
// =============================================================================

// Send appends a user message and starts an exchange. The text is stored as
// typed; only the emptiness check ignores surrounding whitespace.
//
// It returns ErrValidation for blank text and ErrSessionBusy while another
// exchange is in flight; neither changes any state. Transport failures are
// reported through Status and LastError, never here.
func (c *Controller) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrValidation
	}

	c.mu.Lock()
	defer c.unlock()

	if c.closed {
		return ErrClosed
	}
	if c.status.Busy() {
		return ErrSessionBusy
	}

	msg := model.NewUserMessage(text)
	must(c.transcript.Append(msg))
	c.touched(msg.ID)

	c.lastErr = nil
	c.seq++
	ctx, cancel := context.WithCancel(c.ctx)
	ex := &exchange{seq: c.seq, cancel: cancel}
	c.ex = ex
	c.setStatus(StatusSending)

	c.wg.Add(1)
	go c.run(ctx, ex, msg)
	return nil
}

// Stop aborts the exchange in flight, keeping whatever text already arrived.
// It does nothing when no exchange is in flight.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	ex := c.ex
	if ex == nil {
		return
	}
	c.ex = nil
	ex.cancel()

	if ex.merger != nil {
		ex.merger.Cancel()
		res := ex.merger.Result()
		c.lastStats = res.Stats
		c.touched(ex.reply)
		c.log.Info().Uint64("exchange", ex.seq).Int("deltas", res.Stats.Deltas).Msg("exchange stopped")
	} else {
		c.log.Info().Uint64("exchange", ex.seq).Msg("exchange stopped before reply")
	}

	c.setStatus(StatusIdle)
	c.flushPending()
}

// ClearHistory stops any exchange, empties the transcript and render cache,
// and tells the agent in the background. Notification failures are logged.
func (c *Controller) ClearHistory() {
	c.mu.Lock()
	defer c.unlock()

	c.stopLocked()
	c.transcript.Clear()
	if c.cache != nil {
		c.cache.Clear()
	}
	c.pending = nil
	if c.push != nil {
		c.push.discard = true
	}
	c.lastErr = nil
	c.lastStats = stream.Stats{}
	c.setStatus(StatusIdle)
	c.changes = append(c.changes, Change{Kind: ChangeCleared, Status: c.status})

	if c.closed {
		return
	}
	c.wg.Add(1)
	go c.notifyClear()
}

func (c *Controller) notifyClear() {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(c.ctx, c.notifyTimeout)
	defer cancel()

	if err := c.transport.NotifyClear(ctx, c.sessionID); err != nil {
		c.log.Warn().Err(err).Msg("clear notification failed")
		return
	}
	c.log.Debug().Msg("clear notification sent")
}

// Close stops any exchange and the push channel and waits for background work.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.unlock()
		return nil
	}
	c.closed = true
	c.stopLocked()
	c.cancel()
	c.unlock()

	c.wg.Wait()
	return nil
}

// =============================================================================
// EXCHANGE LOOP
// =============================================================================

// run performs one exchange. It is the only consumer of the exchange stream.
func (c *Controller) run(ctx context.Context, ex *exchange, msg model.Message) {
	defer c.wg.Done()
	defer ex.cancel()

	es, err := c.transport.SendMessage(ctx, c.sessionID, msg)
	if err != nil {
		c.mu.Lock()
		if c.ex == ex {
			c.failLocked(ex, err)
		}
		c.unlock()
		return
	}

	err = stream.Pump(ctx, es, func(ev stream.Event) bool {
		return c.deliver(ex, ev)
	})
	if err != nil && ctx.Err() == nil && !errors.Is(err, stream.ErrClosed) {
		c.log.Debug().Err(err).Uint64("exchange", ex.seq).Msg("stream ended with error")
	}
}

// deliver applies one event of ex. It reports whether more events are wanted.
func (c *Controller) deliver(ex *exchange, ev stream.Event) bool {
	c.mu.Lock()
	defer c.unlock()

	if c.ex != ex {
		// Stopped or cleared: discard.
		return false
	}

	if ex.merger == nil {
		switch ev.Kind {
		case stream.EventError:
			c.failLocked(ex, &StreamError{Reason: ev.Reason})
			return false
		case stream.EventDone:
			c.log.Info().Uint64("exchange", ex.seq).Msg("exchange finished without reply")
			c.endLocked(StatusIdle)
			return false
		}

		source := ev.Source
		if source == model.SourceUnset {
			source = model.SourceChat
		}
		reply := model.NewAssistantMessage(source)
		must(c.transcript.OpenStreamTarget(reply))
		ex.merger = stream.NewMerger(c.transcript)
		ex.reply = reply.ID
		c.setStatus(StatusStreaming)
	}

	finished, err := ex.merger.Apply(ev)
	if errors.Is(err, model.ErrInvalidPart) {
		ex.merger.Cancel()
		c.lastStats = ex.merger.Result().Stats
		c.touched(ex.reply)
		c.failLocked(ex, transport.Protocol(err, "merge delta"))
		return false
	}
	must(err)
	c.touched(ex.reply)
	if !finished {
		return true
	}

	res := ex.merger.Result()
	c.lastStats = res.Stats
	switch res.Outcome {
	case stream.OutcomeError:
		c.lastErr = &StreamError{Reason: res.Reason}
		c.log.Warn().Str("reason", res.Reason).Uint64("exchange", ex.seq).Msg("exchange failed")
		c.endLocked(StatusError)
	default:
		c.log.Info().
			Uint64("exchange", ex.seq).
			Int("deltas", res.Stats.Deltas).
			Int("bytes", res.Stats.Bytes).
			Dur("ttfd", res.Stats.TTFD).
			Dur("duration", res.Stats.Duration).
			Msg("exchange done")
		c.endLocked(StatusIdle)
	}
	return false
}

func (c *Controller) failLocked(ex *exchange, err error) {
	c.lastErr = err
	c.log.Warn().Err(err).Uint64("exchange", ex.seq).Msg("exchange failed")
	c.endLocked(StatusError)
}

func (c *Controller) endLocked(s Status) {
	c.ex = nil
	c.setStatus(s)
	c.flushPending()
}

// =============================================================================
// READS
// =============================================================================

// Status returns the current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastError returns the failure behind StatusError, or nil.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// LastStats returns the statistics of the most recent finished exchange.
func (c *Controller) LastStats() stream.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastStats
}

// Snapshot returns a copy of the transcript.
func (c *Controller) Snapshot() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.Snapshot()
}

// Streaming returns the id of the message receiving deltas, or "".
func (c *Controller) Streaming() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.OpenTarget()
}

// SessionID returns the session identifier.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Render returns the cached rendering of one part. Without a cache the text
// is returned unchanged.
func (c *Controller) Render(messageID string, part int, text string) string {
	if c.cache == nil {
		return text
	}
	return c.cache.Render(messageID, part, text)
}

// RenderCache returns the cache, which may be nil.
func (c *Controller) RenderCache() *render.Cache {
	return c.cache
}
