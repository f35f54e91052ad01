// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"io"
	"time"

	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/stream"
)

// =============================================================================
// PUSH CHANNEL
// =============================================================================

// pushedReply accumulates one agent-initiated message off the transcript.
type pushedReply struct {
	scratch *model.Transcript
	merger  *stream.Merger
	discard bool
}

// Push channel reconnect delays.
const (
	pushRetryBaseDelay = 500 * time.Millisecond
	pushRetryMaxDelay  = 30 * time.Second
)

// Connect opens the session's push channel. Replies the agent starts on its
// own (mail digests, reminders) are collected and appended once complete.
// While a local exchange is in flight they wait until it ends, so the reply
// being streamed stays last.
//
// Only the first dial is reported here. When an established channel drops it
// is redialed with exponential backoff until the controller is closed, and
// PushState reports PushReconnecting meanwhile. Calling Connect again while
// the channel is managed does nothing.
func (c *Controller) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.unlock()
		return ErrClosed
	}
	if c.pushState != PushOff {
		c.unlock()
		return nil
	}
	c.mu.Unlock()

	es, err := c.transport.Connect(c.ctx, c.sessionID)
	if err != nil {
		c.log.Warn().Err(err).Msg("push channel unavailable")
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.unlock()
		es.Close()
		return ErrClosed
	}
	if c.pushState != PushOff {
		c.unlock()
		es.Close()
		return nil
	}
	c.wg.Add(1)
	c.setPushState(PushConnected)
	c.unlock()

	go c.pushLoop(es)
	c.log.Info().Msg("push channel connected")
	return nil
}

// PushState returns the state of the push channel.
func (c *Controller) PushState() PushState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pushState
}

func (c *Controller) setPushState(p PushState) {
	if c.pushState == p {
		return
	}
	c.log.Debug().Stringer("from", c.pushState).Stringer("to", p).Msg("push state")
	c.pushState = p
	c.changes = append(c.changes, Change{Kind: ChangePush, Status: c.status, Push: p})
}

// pushLoop reads the push channel and redials it whenever it drops.
func (c *Controller) pushLoop(es stream.EventStream) {
	defer c.wg.Done()

	for es != nil {
		c.readPush(es)
		es.Close()

		c.mu.Lock()
		c.abandonPushLocked()
		if !c.closed {
			c.setPushState(PushReconnecting)
		}
		c.unlock()

		es = c.redialPush()
	}

	c.mu.Lock()
	c.setPushState(PushOff)
	c.unlock()
}

// readPush delivers events until the stream ends.
func (c *Controller) readPush(es stream.EventStream) {
	for {
		ev, err := es.Next(c.ctx)
		if err != nil {
			switch {
			case c.ctx.Err() != nil, errors.Is(err, stream.ErrClosed):
			case errors.Is(err, io.EOF):
				c.log.Info().Msg("push channel ended")
			default:
				c.log.Warn().Err(err).Msg("push channel failed")
			}
			return
		}
		c.deliverPush(ev)
	}
}

// redialPush reconnects with exponential backoff. It returns nil once the
// controller is closed.
func (c *Controller) redialPush() stream.EventStream {
	delay := c.pushRetryDelay
	for attempt := 1; ; attempt++ {
		select {
		case <-c.ctx.Done():
			return nil
		case <-time.After(delay):
		}

		es, err := c.transport.Connect(c.ctx, c.sessionID)
		if err == nil {
			c.mu.Lock()
			if c.closed {
				c.unlock()
				es.Close()
				return nil
			}
			c.setPushState(PushConnected)
			c.unlock()
			c.log.Info().Int("attempt", attempt).Msg("push channel reconnected")
			return es
		}
		if c.ctx.Err() != nil {
			return nil
		}

		delay *= 2
		if delay > pushRetryMaxDelay {
			delay = pushRetryMaxDelay
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("push channel reconnect failed")
	}
}

func (c *Controller) deliverPush(ev stream.Event) {
	c.mu.Lock()
	defer c.unlock()

	if c.push == nil {
		if ev.IsTerminal() {
			return
		}
		source := ev.Source
		if source == model.SourceUnset {
			source = model.SourceChat
		}
		scratch := model.NewTranscript()
		must(scratch.OpenStreamTarget(model.NewAssistantMessage(source)))
		c.push = &pushedReply{scratch: scratch, merger: stream.NewMerger(scratch)}
	}

	finished, err := c.push.merger.Apply(ev)
	if err != nil {
		// Bad frames from the agent only cost the pushed message.
		c.log.Warn().Err(err).Msg("dropping pushed message")
		c.push = nil
		return
	}
	if !finished {
		return
	}

	p := c.push
	c.push = nil
	if res := p.merger.Result(); res.Outcome == stream.OutcomeError {
		c.log.Warn().Str("reason", res.Reason).Msg("pushed message failed")
	}
	if p.discard {
		return
	}
	if msg, ok := p.scratch.Last(); ok && !msg.IsEmpty() {
		c.appendPushed(msg)
	}
}

// abandonPushLocked keeps the partial text of a pushed message whose channel died.
func (c *Controller) abandonPushLocked() {
	p := c.push
	if p == nil {
		return
	}
	c.push = nil
	p.merger.Cancel()
	if p.discard || c.closed {
		return
	}
	if msg, ok := p.scratch.Last(); ok && !msg.IsEmpty() {
		c.appendPushed(msg)
	}
}

func (c *Controller) appendPushed(msg model.Message) {
	if c.ex != nil {
		c.pending = append(c.pending, msg)
		return
	}
	must(c.transcript.Append(msg))
	c.touched(msg.ID)
}

// flushPending appends pushed messages held back by the exchange that just ended.
func (c *Controller) flushPending() {
	pending := c.pending
	c.pending = nil
	for _, msg := range pending {
		must(c.transcript.Append(msg))
		c.touched(msg.ID)
	}
}
