// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package httpagent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/stream"
	"github.com/jeranaias/agentchat/internal/transport"
	"github.com/jeranaias/agentchat/internal/transport/wire"
)

// ContentTypeNDJSON is the media type of streamed responses.
const ContentTypeNDJSON = "application/x-ndjson"

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// Config holds configuration options for the HTTP agent client.
type Config struct {
	// BaseURL is the agent API root (default: http://127.0.0.1:8787)
	BaseURL string

	// Timeout for non-streaming requests (default: 10s)
	Timeout time.Duration

	// StreamTimeout bounds the wait for response headers of a stream (default: 15s)
	StreamTimeout time.Duration

	// MaxRetries for the clear notification (default: 3)
	MaxRetries int

	// RetryDelay is the minimum wait between retries (default: 500ms)
	RetryDelay time.Duration

	// Logger receives component logs (default: global zerolog logger)
	Logger *zerolog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       "http://127.0.0.1:8787",
		Timeout:       10 * time.Second,
		StreamTimeout: 15 * time.Second,
		MaxRetries:    3,
		RetryDelay:    500 * time.Millisecond,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to an agent over HTTP with NDJSON streamed responses.
//
// The Client is safe for concurrent use.
//
// Example:
//
//	client, _ := httpagent.New(nil)
//	es, err := client.SendMessage(ctx, "default", model.NewUserMessage("hi"))
type Client struct {
	config     *Config
	base       *url.URL
	httpClient *http.Client
	retry      *retryablehttp.Client
	log        zerolog.Logger
}

// New creates a client. A nil config uses DefaultConfig.
func New(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.StreamTimeout == 0 {
		config.StreamTimeout = defaults.StreamTimeout
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = defaults.RetryDelay
	}

	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid agent url %q: %w", config.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid agent url %q: scheme must be http or https", config.BaseURL)
	}

	logger := log.Logger
	if config.Logger != nil {
		logger = *config.Logger
	}
	logger = logger.With().Str("component", "httpagent").Logger()

	transportCfg := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: config.StreamTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   4,
	}

	retry := retryablehttp.NewClient()
	retry.HTTPClient = &http.Client{Transport: transportCfg, Timeout: config.Timeout}
	retry.RetryMax = config.MaxRetries
	retry.RetryWaitMin = config.RetryDelay
	retry.RetryWaitMax = 4 * config.RetryDelay
	retry.Logger = leveledLogger{logger}

	return &Client{
		config: config,
		base:   base,
		// Streams live as long as the exchange; only the header wait is bounded.
		httpClient: &http.Client{Transport: transportCfg},
		retry:      retry,
		log:        logger,
	}, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return *c.config
}

func (c *Client) sessionURL(sessionID string, elem ...string) string {
	u := *c.base
	raw := append([]string{u.Path, "sessions", sessionID}, elem...)
	escaped := append([]string{u.EscapedPath(), "sessions", url.PathEscape(sessionID)}, elem...)
	u.Path = strings.Join(raw, "/")
	u.RawPath = strings.Join(escaped, "/")
	return u.String()
}

// =============================================================================
// TRANSPORT METHODS
// =============================================================================

// Connect opens the long-lived push channel for sessionID.
func (c *Client) Connect(ctx context.Context, sessionID string) (stream.EventStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sessionURL(sessionID, "events"), nil)
	if err != nil {
		return nil, transport.Connection(err, "build events request")
	}
	req.Header.Set("Accept", ContentTypeNDJSON)
	return c.openStream(req, "events", wire.ModePush)
}

// SendMessage posts msg and returns the streamed reply.
// Cancelling ctx aborts the exchange.
func (c *Client) SendMessage(ctx context.Context, sessionID string, msg model.Message) (stream.EventStream, error) {
	body, err := wire.EncodeMessage(msg)
	if err != nil {
		return nil, transport.Protocol(err, "encode message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sessionURL(sessionID, "messages"), bytes.NewReader(body))
	if err != nil {
		return nil, transport.Connection(err, "build message request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", ContentTypeNDJSON)
	return c.openStream(req, "messages", wire.ModeExchange)
}

// NotifyClear tells the agent the session history was reset.
// Transient failures are retried.
func (c *Client) NotifyClear(ctx context.Context, sessionID string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodDelete, c.sessionURL(sessionID, "history"), nil)
	if err != nil {
		return transport.Connection(err, "build clear request")
	}

	resp, err := c.retry.Do(req)
	if err != nil {
		return transport.Connection(err, "notify clear")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return transport.Status(resp.StatusCode, "notify clear")
	}
	return nil
}

func (c *Client) openStream(req *http.Request, what string, mode wire.Mode) (stream.EventStream, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transport.Connection(err, "open "+what+" stream")
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg := readErrorBody(resp.Body)
		if msg == "" {
			msg = "open " + what + " stream"
		}
		return nil, transport.Status(resp.StatusCode, msg)
	}

	c.log.Debug().Str("stream", what).Str("url", req.URL.Redacted()).Msg("stream opened")
	return wire.NewLineStream(resp.Body, mode, c.log), nil
}

// readErrorBody extracts a short message from an error response.
func readErrorBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(data))
}

// =============================================================================
// RETRY LOGGING
// =============================================================================

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log zerolog.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.event(l.log.Error(), msg, kv) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.event(l.log.Warn(), msg, kv) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.event(l.log.Debug(), msg, kv) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.event(l.log.Trace(), msg, kv) }

func (l leveledLogger) event(e *zerolog.Event, msg string, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}
