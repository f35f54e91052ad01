// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package wsagent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/stream"
	"github.com/jeranaias/agentchat/internal/transport"
	"github.com/jeranaias/agentchat/internal/transport/wire"
)

// fakeAgent serves the websocket endpoints with scripted replies.
type fakeAgent struct {
	upgrader websocket.Upgrader
	received chan wire.Frame
	reply    []stream.Event
	hold     bool
}

func newFakeAgent(reply ...stream.Event) *fakeAgent {
	return &fakeAgent{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		received: make(chan wire.Frame, 8),
		reply:    reply,
	}
}

func (a *fakeAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if strings.HasSuffix(r.URL.Path, "/exchange") {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := wire.DecodeOutbound(data)
		if err != nil {
			return
		}
		a.received <- f
		if f.Type == wire.TypeClear {
			return
		}
	}

	for _, ev := range a.reply {
		data, _ := wire.EncodeEvent(ev)
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	if a.hold {
		// Wait for the client to hang up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	nop := zerolog.Nop()
	c, err := New(Config{BaseURL: srv.URL, Logger: &nop})
	require.NoError(t, err)
	return c
}

func collect(t *testing.T, es stream.EventStream) []stream.Event {
	t.Helper()
	var out []stream.Event
	_ = stream.Pump(context.Background(), es, func(ev stream.Event) bool {
		out = append(out, ev)
		return true
	})
	return out
}

// =============================================================================
// TESTS
// =============================================================================

func TestNew_MapsSchemes(t *testing.T) {
	c, err := New(Config{BaseURL: "https://agent.example.com/api"})
	require.NoError(t, err)
	assert.Equal(t, "wss://agent.example.com/api/sessions/s%201/ws", c.endpoint("s 1", "ws"))

	_, err = New(Config{BaseURL: "ftp://x"})
	require.Error(t, err)
}

func TestSendMessage_StreamsReply(t *testing.T) {
	agent := newFakeAgent(stream.Delta(0, "Hello, "), stream.Delta(0, "world"), stream.Done())
	srv := httptest.NewServer(agent)
	defer srv.Close()

	msg := model.NewUserMessage("hi")
	es, err := newTestClient(t, srv).SendMessage(context.Background(), "s1", msg)
	require.NoError(t, err)

	events := collect(t, es)
	require.Len(t, events, 3)
	assert.Equal(t, "Hello, world", events[0].Text+events[1].Text)
	assert.Equal(t, stream.EventDone, events[2].Kind)

	select {
	case f := <-agent.received:
		assert.Equal(t, wire.TypeMessage, f.Type)
		assert.Equal(t, msg.ID, f.Message.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("agent never received the message")
	}
}

func TestSendMessage_NormalCloseIsEOF(t *testing.T) {
	srv := httptest.NewServer(newFakeAgent(stream.Delta(0, "cut off")))
	defer srv.Close()

	es, err := newTestClient(t, srv).SendMessage(context.Background(), "s1", model.NewUserMessage("hi"))
	require.NoError(t, err)

	events := collect(t, es)
	require.Len(t, events, 2)
	assert.Equal(t, stream.EventDone, events[1].Kind)
}

func TestSendMessage_CancelClosesConnection(t *testing.T) {
	agent := newFakeAgent(stream.Delta(0, "Hello, "))
	agent.hold = true
	srv := httptest.NewServer(agent)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	es, err := newTestClient(t, srv).SendMessage(ctx, "s1", model.NewUserMessage("hi"))
	require.NoError(t, err)

	ev, err := es.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hello, ", ev.Text)

	cancel()
	_, err = es.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
	_ = es.Close()
}

func TestConnect_PushFrames(t *testing.T) {
	ev := stream.Delta(0, "New email from Ana")
	ev.Source = model.SourceEmail
	srv := httptest.NewServer(newFakeAgent(ev, stream.Done()))
	defer srv.Close()

	es, err := newTestClient(t, srv).Connect(context.Background(), "s1")
	require.NoError(t, err)

	events := collect(t, es)
	require.Len(t, events, 2)
	assert.Equal(t, model.SourceEmail, events[0].Source)
}

func TestNotifyClear_WritesClearFrame(t *testing.T) {
	agent := newFakeAgent()
	srv := httptest.NewServer(agent)
	defer srv.Close()

	require.NoError(t, newTestClient(t, srv).NotifyClear(context.Background(), "s1"))

	select {
	case f := <-agent.received:
		assert.Equal(t, wire.TypeClear, f.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("agent never received the clear frame")
	}
}

func TestDial_UpgradeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Connect(context.Background(), "s1")
	require.ErrorIs(t, err, transport.ErrStatus)
}
