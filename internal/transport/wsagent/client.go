// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package wsagent talks to a remote agent over websockets.
//
// The session push channel is one long-lived connection on
// {base}/sessions/{id}/ws. Each exchange dials {base}/sessions/{id}/exchange,
// writes one message frame and reads event frames until a terminal frame.
// Closing the exchange connection aborts the reply.
package wsagent

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/stream"
	"github.com/jeranaias/agentchat/internal/transport"
	"github.com/jeranaias/agentchat/internal/transport/wire"
)

// Config holds configuration options for the websocket client.
type Config struct {
	// BaseURL is the agent root; http(s) schemes are mapped to ws(s).
	BaseURL string

	// HandshakeTimeout bounds the websocket upgrade (default: 10s)
	HandshakeTimeout time.Duration

	// WriteTimeout bounds a single frame write (default: 5s)
	WriteTimeout time.Duration

	Logger *zerolog.Logger
}

// Client dials the agent's websocket endpoints.
type Client struct {
	base   *url.URL
	dialer *websocket.Dialer
	wto    time.Duration
	log    zerolog.Logger
}

// New creates a websocket client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = "ws://127.0.0.1:8787"
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 5 * time.Second
	}

	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid agent url %q: %w", config.BaseURL, err)
	}
	switch base.Scheme {
	case "ws", "wss":
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	default:
		return nil, fmt.Errorf("invalid agent url %q: unsupported scheme", config.BaseURL)
	}

	logger := log.Logger
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &Client{
		base: base,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
		},
		wto: config.WriteTimeout,
		log: logger.With().Str("component", "wsagent").Logger(),
	}, nil
}

func (c *Client) endpoint(sessionID, name string) string {
	u := *c.base
	u.Path = c.base.Path + "/sessions/" + sessionID + "/" + name
	u.RawPath = c.base.EscapedPath() + "/sessions/" + url.PathEscape(sessionID) + "/" + name
	return u.String()
}

func (c *Client) dial(ctx context.Context, sessionID, name string) (*websocket.Conn, error) {
	target := c.endpoint(sessionID, name)
	conn, resp, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, transport.Status(resp.StatusCode, "websocket upgrade "+name)
		}
		return nil, transport.Connection(err, "dial "+name)
	}
	return conn, nil
}

// =============================================================================
// TRANSPORT METHODS
// =============================================================================

// Connect opens the push channel for sessionID.
func (c *Client) Connect(ctx context.Context, sessionID string) (stream.EventStream, error) {
	conn, err := c.dial(ctx, sessionID, "ws")
	if err != nil {
		return nil, err
	}
	c.log.Debug().Str("session", sessionID).Msg("push channel connected")
	return c.newStream(ctx, conn, wire.ModePush), nil
}

// SendMessage opens an exchange connection and writes msg on it.
func (c *Client) SendMessage(ctx context.Context, sessionID string, msg model.Message) (stream.EventStream, error) {
	data, err := wire.EncodeMessage(msg)
	if err != nil {
		return nil, transport.Protocol(err, "encode message")
	}

	conn, err := c.dial(ctx, sessionID, "exchange")
	if err != nil {
		return nil, err
	}
	if err := c.write(conn, data); err != nil {
		_ = conn.Close()
		return nil, transport.Connection(err, "write message")
	}
	return c.newStream(ctx, conn, wire.ModeExchange), nil
}

// NotifyClear writes a clear frame on a short-lived exchange connection.
func (c *Client) NotifyClear(ctx context.Context, sessionID string) error {
	conn, err := c.dial(ctx, sessionID, "exchange")
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := c.write(conn, wire.EncodeClear()); err != nil {
		return transport.Connection(err, "write clear")
	}
	c.closeGracefully(conn)
	return nil
}

func (c *Client) write(conn *websocket.Conn, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(c.wto))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) closeGracefully(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// newStream wraps conn; cancelling ctx closes the connection.
func (c *Client) newStream(ctx context.Context, conn *websocket.Conn, mode wire.Mode) stream.EventStream {
	var once sync.Once
	closeConn := func() error {
		var err error
		once.Do(func() {
			c.closeGracefully(conn)
			err = conn.Close()
		})
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = closeConn() })

	read := func() ([]byte, error) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		return data, nil
	}

	return wire.NewFrameStream(read, func() error {
		stop()
		return closeConn()
	}, mode, c.log)
}
