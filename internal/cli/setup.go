// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jeranaias/agentchat/internal/config"
	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/render"
	"github.com/jeranaias/agentchat/internal/session"
	"github.com/jeranaias/agentchat/internal/stream"
	"github.com/jeranaias/agentchat/internal/transport/httpagent"
	"github.com/jeranaias/agentchat/internal/transport/memory"
	"github.com/jeranaias/agentchat/internal/transport/wsagent"
)

// globalOptions holds the persistent flags of the root command.
type globalOptions struct {
	configPath string
	url        string
	transport  string
	sessionID  string
	demo       bool
	logLevel   string
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// resolvePath returns the file named by --config, or the default location.
func (o *globalOptions) resolvePath() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	return config.Resolve()
}

// loadConfig reads the configuration and applies flag overrides. A missing
// file means defaults. It returns the path that was (or would be) read.
func (o *globalOptions) loadConfig() (*config.Config, string, error) {
	path, err := o.resolvePath()
	if err != nil {
		return nil, "", configError("load", err)
	}

	var cfg *config.Config
	if _, statErr := os.Stat(path); statErr == nil {
		cfg, err = config.LoadFromPath(path)
		if err != nil {
			return nil, path, configError("load", err)
		}
	} else if errors.Is(statErr, os.ErrNotExist) {
		cfg = config.Default()
		cfg.ApplyEnvOverrides()
	} else {
		return nil, path, configError("load", statErr)
	}

	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, path, configError("validate", err)
	}
	return cfg, path, nil
}

// apply copies set flags over cfg.
func (o *globalOptions) apply(cfg *config.Config) {
	if o.url != "" {
		cfg.Agent.URL = o.url
	}
	if o.transport != "" {
		cfg.Agent.Transport = strings.ToLower(o.transport)
	}
	if o.demo {
		cfg.Agent.Transport = config.TransportDemo
	}
	if o.sessionID != "" {
		cfg.Agent.SessionID = o.sessionID
	}
	if o.logLevel != "" {
		cfg.Log.Level = strings.ToLower(o.logLevel)
	}
}

// =============================================================================
// TRANSPORT
// =============================================================================

// buildTransport creates the agent transport named by the config. The label
// is shown in the TUI header.
func buildTransport(cfg *config.Config, logger zerolog.Logger) (session.Transport, string, error) {
	switch cfg.Agent.Transport {
	case config.TransportDemo:
		return newDemoAgent(cfg.Agent.Push), "demo agent", nil

	case config.TransportWebSocket:
		client, err := wsagent.New(wsagent.Config{
			BaseURL:          cfg.Agent.URL,
			HandshakeTimeout: cfg.Agent.Timeout(),
			Logger:           &logger,
		})
		if err != nil {
			return nil, "", err
		}
		return client, "ws " + hostOf(cfg.Agent.URL), nil

	case config.TransportHTTP, "":
		client, err := httpagent.New(&httpagent.Config{
			BaseURL:       cfg.Agent.URL,
			Timeout:       cfg.Agent.Timeout(),
			StreamTimeout: cfg.Agent.StreamTimeout(),
			MaxRetries:    cfg.Agent.MaxRetries,
			Logger:        &logger,
		})
		if err != nil {
			return nil, "", err
		}
		return client, "http " + hostOf(cfg.Agent.URL), nil
	}
	return nil, "", NewUsageError("unknown transport %q (want http, ws or demo)", cfg.Agent.Transport)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}

// =============================================================================
// RENDERING
// =============================================================================

// newConverter builds the glamour converter. It matches chat.ConverterFactory.
func newConverter(style string, wordWrap int) (render.Converter, error) {
	conv, err := render.NewGlamourConverter(style, wordWrap)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// converterOrPlain falls back to plain text when glamour cannot be set up.
func converterOrPlain(style string, wordWrap int, logger zerolog.Logger) render.Converter {
	conv, err := newConverter(style, wordWrap)
	if err != nil {
		logger.Warn().Err(err).Str("style", style).Msg("markdown renderer unavailable, using plain text")
		return render.Plain
	}
	return conv
}

// =============================================================================
// DEMO AGENT
// =============================================================================

const demoWelcome = "Welcome to the **agentchat** demo.\n\n" +
	"Replies here come from an in-process agent. Try `Esc` while one streams, " +
	"or `Ctrl+L` to start over."

// newDemoAgent creates an in-process agent. With push on, it greets the user
// with a message that arrives on the push channel as if by email.
func newDemoAgent(push bool) *memory.Agent {
	agent := memory.NewAgent(
		memory.WithReplier(demoReply),
		memory.WithPace(60, 3),
	)
	if push {
		first := stream.Delta(0, demoWelcome)
		first.Source = model.SourceEmail
		agent.Push(first, stream.Done())
	}
	return agent
}

// demoReply answers with a little markdown about the message.
func demoReply(msg model.Message) string {
	text := strings.TrimSpace(msg.Text())
	words := len(strings.Fields(text))
	return fmt.Sprintf("You wrote %d word(s):\n\n> %s\n\nThis is the *demo* agent; point `--url` at a real one.",
		words, text)
}
