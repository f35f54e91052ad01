// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/render"
	"github.com/jeranaias/agentchat/internal/stream"
	"github.com/jeranaias/agentchat/internal/transport"
	"github.com/jeranaias/agentchat/internal/transport/memory"
)

const waitFor = 2 * time.Second

func newManual(t *testing.T, opts ...Option) (*Controller, *memory.Agent) {
	t.Helper()
	agent := memory.NewAgent(memory.WithManualExchanges())
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	c := New(agent, "test", opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c, agent
}

func nextExchange(t *testing.T, agent *memory.Agent) *memory.Exchange {
	t.Helper()
	ex, err := agent.NextExchange(waitFor)
	require.NoError(t, err)
	return ex
}

func waitStatus(t *testing.T, c *Controller, want Status) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Status() == want }, waitFor, 5*time.Millisecond,
		"status never became %s (is %s)", want, c.Status())
}

func lastText(c *Controller) string {
	snap := c.Snapshot()
	if len(snap) == 0 {
		return ""
	}
	return snap[len(snap)-1].Text()
}

// =============================================================================
// SEND TESTS
// =============================================================================

func TestSend_RejectsEmptyText(t *testing.T) {
	c, agent := newManual(t)

	for _, text := range []string{"", "   ", "\n\t"} {
		err := c.Send(text)
		require.ErrorIs(t, err, ErrValidation)
	}

	assert.Empty(t, c.Snapshot())
	assert.Equal(t, StatusIdle, c.Status())
	assert.Empty(t, agent.Sent())
}

func TestSend_FullExchange(t *testing.T) {
	c, agent := newManual(t)

	require.NoError(t, c.Send("  hello agent  "))
	assert.Equal(t, StatusSending, c.Status())

	snap := c.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, model.RoleUser, snap[0].Role)
	assert.Equal(t, "  hello agent  ", snap[0].Text(), "text is stored as typed")

	ex := nextExchange(t, agent)
	assert.Equal(t, snap[0].ID, ex.Message.ID)

	require.True(t, ex.Delta(0, "Hi"))
	waitStatus(t, c, StatusStreaming)
	require.True(t, ex.Delta(0, " there"))
	require.True(t, ex.Done())
	waitStatus(t, c, StatusIdle)

	snap = c.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, model.RoleAssistant, snap[1].Role)
	assert.Equal(t, "Hi there", snap[1].Text())
	assert.Equal(t, model.SourceChat, snap[1].Metadata.Source)
	assert.Equal(t, "", c.Streaming())
	assert.Equal(t, 2, c.LastStats().Deltas)
}

func TestSend_BusyWhileInFlight(t *testing.T) {
	c, agent := newManual(t)

	require.NoError(t, c.Send("first"))
	before := c.Snapshot()
	require.ErrorIs(t, c.Send("second"), ErrSessionBusy)
	assert.Equal(t, before, c.Snapshot())

	ex := nextExchange(t, agent)
	ex.Delta(0, "streaming")
	waitStatus(t, c, StatusStreaming)

	before = c.Snapshot()
	require.ErrorIs(t, c.Send("third"), ErrSessionBusy)
	assert.Equal(t, before, c.Snapshot())
	assert.Len(t, agent.Sent(), 1)
}

func TestSend_AgentErrorKeepsPartialText(t *testing.T) {
	c, agent := newManual(t)

	require.NoError(t, c.Send("question"))
	ex := nextExchange(t, agent)
	ex.Delta(0, "The answer is")
	ex.Fail("context length exceeded")
	waitStatus(t, c, StatusError)

	var serr *StreamError
	require.ErrorAs(t, c.LastError(), &serr)
	assert.Equal(t, "context length exceeded", serr.Reason)
	assert.Equal(t, "The answer is", lastText(c))
	assert.Equal(t, "", c.Streaming())
}

func TestSend_InvalidPartIndexFailsExchange(t *testing.T) {
	for _, part := range []int{-1, model.MaxParts} {
		t.Run(fmt.Sprintf("part=%d", part), func(t *testing.T) {
			c, agent := newManual(t)

			require.NoError(t, c.Send("q"))
			ex := nextExchange(t, agent)
			require.True(t, ex.Delta(0, "ok"))
			waitStatus(t, c, StatusStreaming)

			ex.Delta(part, "bad")
			waitStatus(t, c, StatusError)

			var terr *transport.Error
			require.ErrorAs(t, c.LastError(), &terr)
			assert.Equal(t, transport.KindProtocol, terr.Kind)
			assert.ErrorIs(t, c.LastError(), model.ErrInvalidPart)
			assert.Equal(t, "ok", lastText(c))
			assert.Equal(t, "", c.Streaming())
			assert.Equal(t, 1, c.LastStats().Deltas)

			require.NoError(t, c.Send("again"), "session stays usable")
		})
	}
}

func TestSend_PreservesIndentedCode(t *testing.T) {
	c, agent := newManual(t)

	code := "    func main() {}\n"
	require.NoError(t, c.Send(code))
	ex := nextExchange(t, agent)
	assert.Equal(t, code, ex.Message.Text())
	assert.Equal(t, code, c.Snapshot()[0].Text())
}

func TestSend_ErrorBeforeReply(t *testing.T) {
	c, agent := newManual(t)

	require.NoError(t, c.Send("question"))
	ex := nextExchange(t, agent)
	ex.Fail("rate limited")
	waitStatus(t, c, StatusError)

	assert.Len(t, c.Snapshot(), 1, "no assistant message without content")
	assert.EqualError(t, c.LastError(), "agent error: rate limited")
}

func TestSend_ConnectionFailure(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	agent := memory.NewAgent(memory.WithSendError(boom))
	c := New(agent, "test", WithLogger(zerolog.Nop()))
	defer c.Close()

	require.NoError(t, c.Send("hello"))
	waitStatus(t, c, StatusError)
	require.ErrorIs(t, c.LastError(), boom)
	assert.Len(t, c.Snapshot(), 1)
}

func TestSend_RetryAfterError(t *testing.T) {
	c, agent := newManual(t)

	require.NoError(t, c.Send("one"))
	nextExchange(t, agent).Fail("nope")
	waitStatus(t, c, StatusError)

	require.NoError(t, c.Send("two"))
	assert.Equal(t, StatusSending, c.Status())
	assert.Nil(t, c.LastError())

	ex := nextExchange(t, agent)
	ex.Delta(0, "ok")
	ex.Done()
	waitStatus(t, c, StatusIdle)
	assert.Len(t, c.Snapshot(), 3)
}

func TestSend_TruncatedStreamCountsAsDone(t *testing.T) {
	c, agent := newManual(t)

	require.NoError(t, c.Send("q"))
	ex := nextExchange(t, agent)
	ex.Delta(0, "cut")
	ex.End()
	waitStatus(t, c, StatusIdle)
	assert.Equal(t, "cut", lastText(c))
}

func TestSend_OrderingAcrossChunking(t *testing.T) {
	chunkings := [][]string{
		{"Hello, world!"},
		{"Hello", ", ", "world", "!"},
		{"H", "e", "l", "l", "o", ",", " ", "w", "o", "r", "l", "d", "!"},
	}
	for _, chunks := range chunkings {
		c, agent := newManual(t)
		require.NoError(t, c.Send("go"))
		ex := nextExchange(t, agent)
		for _, chunk := range chunks {
			require.True(t, ex.Delta(0, chunk))
		}
		ex.Done()
		waitStatus(t, c, StatusIdle)
		assert.Equal(t, "Hello, world!", lastText(c))
	}
}

func TestSend_EmailSourcedReply(t *testing.T) {
	c, agent := newManual(t)
	require.NoError(t, c.Send("summarize my mail"))

	ex := nextExchange(t, agent)
	ev := stream.Delta(0, "You have 2 unread emails.")
	ev.Source = model.SourceEmail
	ex.Emit(ev)
	ex.Done()
	waitStatus(t, c, StatusIdle)

	snap := c.Snapshot()
	assert.Equal(t, model.SourceEmail, snap[1].Metadata.Source)
}

// =============================================================================
// STOP TESTS
// =============================================================================

func TestStop_PreservesPartialContent(t *testing.T) {
	c, agent := newManual(t)

	require.NoError(t, c.Send("tell me a story"))
	ex := nextExchange(t, agent)
	ex.Delta(0, "Hello, ")
	require.Eventually(t, func() bool { return lastText(c) == "Hello, " }, waitFor, 5*time.Millisecond)

	c.Stop()

	assert.Equal(t, StatusIdle, c.Status())
	assert.Equal(t, "Hello, ", lastText(c))
	assert.Equal(t, "", c.Streaming())
	assert.Nil(t, c.LastError())

	select {
	case <-ex.Aborted():
	case <-time.After(waitFor):
		t.Fatal("exchange stream was not closed")
	}
	assert.False(t, ex.Delta(0, "more"), "events after stop are refused")
	assert.Equal(t, "Hello, ", lastText(c))
}

func TestStop_WhileSending(t *testing.T) {
	c, agent := newManual(t)

	require.NoError(t, c.Send("q"))
	ex := nextExchange(t, agent)
	c.Stop()

	assert.Equal(t, StatusIdle, c.Status())
	assert.Len(t, c.Snapshot(), 1)

	// A late first event must not open a reply.
	ex.Delta(0, "late")
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, c.Snapshot(), 1)
	assert.Equal(t, StatusIdle, c.Status())
}

func TestStop_NoOpWhenIdle(t *testing.T) {
	c, _ := newManual(t)
	c.Stop()
	c.Stop()
	assert.Equal(t, StatusIdle, c.Status())
}

func TestStop_NoOpInError(t *testing.T) {
	c, agent := newManual(t)
	require.NoError(t, c.Send("q"))
	nextExchange(t, agent).Fail("bad")
	waitStatus(t, c, StatusError)

	c.Stop()
	assert.Equal(t, StatusError, c.Status())
}

func TestStop_ThenSendAgain(t *testing.T) {
	c, agent := newManual(t)

	require.NoError(t, c.Send("first"))
	first := nextExchange(t, agent)
	first.Delta(0, "partial")
	waitStatus(t, c, StatusStreaming)
	c.Stop()

	require.NoError(t, c.Send("second"))
	second := nextExchange(t, agent)
	second.Delta(0, "fresh")
	second.Done()
	waitStatus(t, c, StatusIdle)

	snap := c.Snapshot()
	require.Len(t, snap, 4)
	assert.Equal(t, "partial", snap[1].Text())
	assert.Equal(t, "fresh", snap[3].Text())
}

// =============================================================================
// CLEAR TESTS
// =============================================================================

func TestClearHistory_MidStreamIsAtomic(t *testing.T) {
	cache := render.NewCache(render.Plain, 16)
	c, agent := newManual(t, WithRenderCache(cache))

	require.NoError(t, c.Send("q"))
	ex := nextExchange(t, agent)
	ex.Delta(0, "Hello")
	waitStatus(t, c, StatusStreaming)
	snap := c.Snapshot()
	c.Render(snap[1].ID, 0, snap[1].Parts[0].Text)
	require.Equal(t, 1, cache.Len())

	c.ClearHistory()

	assert.Empty(t, c.Snapshot())
	assert.Equal(t, StatusIdle, c.Status())
	assert.Equal(t, 0, cache.Len())

	ex.Delta(0, " world")
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.Snapshot(), "events of the aborted stream are discarded")

	require.Eventually(t, func() bool { return len(agent.Clears()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"test"}, agent.Clears())
}

func TestClearHistory_ResetsError(t *testing.T) {
	c, agent := newManual(t)
	require.NoError(t, c.Send("q"))
	nextExchange(t, agent).Fail("bad")
	waitStatus(t, c, StatusError)

	c.ClearHistory()
	assert.Equal(t, StatusIdle, c.Status())
	assert.Nil(t, c.LastError())
}

func TestClearHistory_NotifyFailureIsNotSurfaced(t *testing.T) {
	agent := memory.NewAgent(memory.WithManualExchanges(), memory.WithClearError(errors.New("agent down")))
	c := New(agent, "test", WithLogger(zerolog.Nop()))
	defer c.Close()

	require.NoError(t, c.Send("q"))
	c.ClearHistory()

	require.Eventually(t, func() bool { return len(agent.Clears()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, StatusIdle, c.Status())
	assert.Nil(t, c.LastError())
}

// =============================================================================
// PUSH TESTS
// =============================================================================

func TestConnect_PushedMessageAppendedWhenComplete(t *testing.T) {
	c, agent := newManual(t)
	require.NoError(t, c.Connect())

	first := stream.Delta(0, "New mail: ")
	first.Source = model.SourceEmail
	agent.Push(first)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.Snapshot(), "pushed text stays off the transcript until done")

	agent.Push(stream.Delta(0, "invoice due"), stream.Done())
	require.Eventually(t, func() bool { return len(c.Snapshot()) == 1 }, waitFor, 5*time.Millisecond)

	msg := c.Snapshot()[0]
	assert.Equal(t, model.RoleAssistant, msg.Role)
	assert.Equal(t, model.SourceEmail, msg.Metadata.Source)
	assert.Equal(t, "New mail: invoice due", msg.Text())
	assert.Equal(t, StatusIdle, c.Status())
}

func TestConnect_PushedMessageQueuesBehindExchange(t *testing.T) {
	c, agent := newManual(t)
	require.NoError(t, c.Connect())

	require.NoError(t, c.Send("q"))
	ex := nextExchange(t, agent)
	ex.Delta(0, "reply")
	waitStatus(t, c, StatusStreaming)

	agent.Push(stream.Delta(0, "digest"), stream.Done())
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, c.Snapshot(), 2, "open target stays last")

	ex.Done()
	waitStatus(t, c, StatusIdle)
	require.Eventually(t, func() bool { return len(c.Snapshot()) == 3 }, waitFor, 5*time.Millisecond)

	snap := c.Snapshot()
	assert.Equal(t, "reply", snap[1].Text())
	assert.Equal(t, "digest", snap[2].Text())
}

func TestConnect_ClearDropsPushedMessageInProgress(t *testing.T) {
	c, agent := newManual(t)
	require.NoError(t, c.Connect())

	agent.Push(stream.Delta(0, "half a digest"))
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.push != nil
	}, waitFor, 5*time.Millisecond)
	c.ClearHistory()
	agent.Push(stream.Delta(0, " and the rest"), stream.Done())

	agent.Push(stream.Delta(0, "next"), stream.Done())
	require.Eventually(t, func() bool { return len(c.Snapshot()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, "next", c.Snapshot()[0].Text())
}

func TestConnect_AfterCloseFails(t *testing.T) {
	c, _ := newManual(t)
	require.NoError(t, c.Close())
	require.ErrorIs(t, c.Connect(), ErrClosed)
	assert.Equal(t, PushOff, c.PushState())
}

// gatedAgent holds Connect until released.
type gatedAgent struct {
	*memory.Agent
	entered chan struct{}
	release chan struct{}
	stream  stream.EventStream
}

func (g *gatedAgent) Connect(ctx context.Context, sessionID string) (stream.EventStream, error) {
	close(g.entered)
	<-g.release
	es, err := g.Agent.Connect(ctx, sessionID)
	g.stream = es
	return es, err
}

func TestConnect_CloseDuringDialDoesNotLeak(t *testing.T) {
	g := &gatedAgent{
		Agent:   memory.NewAgent(memory.WithManualExchanges()),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := New(g, "test", WithLogger(zerolog.Nop()))

	errc := make(chan error, 1)
	go func() { errc <- c.Connect() }()
	<-g.entered
	require.NoError(t, c.Close())
	close(g.release)

	select {
	case err := <-errc:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(waitFor):
		t.Fatal("Connect did not return")
	}
	assert.Equal(t, PushOff, c.PushState())

	_, err := g.stream.Next(context.Background())
	assert.ErrorIs(t, err, stream.ErrClosed, "late stream is closed")
}

func TestConnect_ReconnectsAfterDrop(t *testing.T) {
	var (
		mu     sync.Mutex
		states []PushState
	)
	record := func(ch Change) {
		if ch.Kind == ChangePush {
			mu.Lock()
			states = append(states, ch.Push)
			mu.Unlock()
		}
	}
	c, agent := newManual(t, WithNotifier(record), WithPushRetryDelay(time.Millisecond))
	require.NoError(t, c.Connect())
	require.NoError(t, c.Connect(), "second call is a no-op")
	assert.Equal(t, PushConnected, c.PushState())
	assert.Equal(t, 1, agent.Connects())

	agent.Push(stream.Delta(0, "half a digest"))
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.push != nil
	}, waitFor, 5*time.Millisecond)

	agent.FailConnects(2)
	agent.DropPush()

	require.Eventually(t, func() bool { return c.PushState() == PushConnected && agent.Connects() == 4 },
		waitFor, 5*time.Millisecond)
	require.Len(t, c.Snapshot(), 1)
	assert.Equal(t, "half a digest", c.Snapshot()[0].Text(), "partial pushed text is kept")

	agent.Push(stream.Delta(0, "after reconnect"), stream.Done())
	require.Eventually(t, func() bool { return len(c.Snapshot()) == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, "after reconnect", lastText(c))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []PushState{PushConnected, PushReconnecting, PushConnected}, states)
}

func TestConnect_CloseStopsReconnecting(t *testing.T) {
	c, agent := newManual(t, WithPushRetryDelay(time.Millisecond))
	require.NoError(t, c.Connect())

	agent.FailConnects(1 << 20)
	agent.DropPush()
	require.Eventually(t, func() bool { return agent.Connects() > 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, PushReconnecting, c.PushState())

	done := make(chan struct{})
	go func() {
		_ = c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Close blocked on the reconnect loop")
	}
	assert.Equal(t, PushOff, c.PushState())
}

// =============================================================================
// NOTIFIER AND LIFECYCLE TESTS
// =============================================================================

func TestNotifier_ReceivesStatusChanges(t *testing.T) {
	var (
		mu       sync.Mutex
		statuses []Status
	)
	notifier := func(ch Change) {
		if ch.Kind == ChangeStatus {
			mu.Lock()
			statuses = append(statuses, ch.Status)
			mu.Unlock()
		}
	}

	var c *Controller
	reentrant := func(ch Change) {
		notifier(ch)
		_ = c.Snapshot() // must not deadlock
	}
	c, agent := newManual(t, WithNotifier(reentrant))

	require.NoError(t, c.Send("q"))
	ex := nextExchange(t, agent)
	ex.Delta(0, "a")
	ex.Done()
	waitStatus(t, c, StatusIdle)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(statuses) == 3
	}, waitFor, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusSending, StatusStreaming, StatusIdle}, statuses)
}

func TestClose_StopsExchangeAndRejectsSend(t *testing.T) {
	c, agent := newManual(t)
	require.NoError(t, c.Send("q"))
	ex := nextExchange(t, agent)
	ex.Delta(0, "partial")
	waitStatus(t, c, StatusStreaming)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.Equal(t, StatusIdle, c.Status())
	assert.Equal(t, "partial", lastText(c))
	require.ErrorIs(t, c.Send("again"), ErrClosed)
}

func TestController_EchoAgent(t *testing.T) {
	agent := memory.NewAgent(memory.WithPace(0, 5))
	c := New(agent, "demo", WithLogger(zerolog.Nop()))
	defer c.Close()

	require.NoError(t, c.Send("ping"))
	waitStatus(t, c, StatusIdle)

	snap := c.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, memory.EchoReply(snap[0]), snap[1].Text())
}

func TestRender_WithoutCacheReturnsText(t *testing.T) {
	c, _ := newManual(t)
	assert.Equal(t, "**x**", c.Render("m", 0, "**x**"))
	assert.Nil(t, c.RenderCache())
	assert.Equal(t, "test", c.SessionID())
}
