// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/agentchat/internal/config"
	"github.com/jeranaias/agentchat/internal/logging"
	"github.com/jeranaias/agentchat/internal/render"
	"github.com/jeranaias/agentchat/internal/session"
	"github.com/jeranaias/agentchat/internal/ui/chat"
)

// runChat opens the TUI and blocks until it exits.
func runChat(cmd *cobra.Command, o *globalOptions) error {
	cfg, path, err := o.loadConfig()
	if err != nil {
		return err
	}

	// The TUI owns the terminal, so logs go to a file.
	logFile := cfg.Log.File
	if logFile == "" {
		if logFile, err = config.DefaultLogFile(); err != nil {
			return configError("log file", err)
		}
	}
	logger, closer, err := logging.Setup(logging.Options{
		Level:      cfg.Log.Level,
		File:       logFile,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return configError("logging", err)
	}
	defer closer.Close()

	transport, label, err := buildTransport(cfg, logger)
	if err != nil {
		return err
	}

	cache := render.NewCache(converterOrPlain(cfg.GlamourStyle(), cfg.Render.WordWrap, logger), cfg.Render.CacheSize)
	feed := chat.NewChangeFeed()
	ctrl := session.New(transport, cfg.Agent.SessionID,
		session.WithLogger(logger),
		session.WithNotifier(feed.Notify),
		session.WithRenderCache(cache),
		session.WithNotifyTimeout(cfg.Agent.Timeout()),
	)
	defer ctrl.Close()

	if cfg.Agent.Push {
		if err := ctrl.Connect(); err != nil {
			logger.Warn().Err(err).Msg("push channel unavailable, continuing without it")
		}
	}

	cliLog := logging.Component("cli")
	cliLog.Info().
		Str("transport", label).
		Str("session", cfg.Agent.SessionID).
		Str("config", path).
		Msg("starting chat")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	m := chat.New(chat.Options{
		Controller:     ctrl,
		Feed:           feed,
		Config:         cfg,
		TransportLabel: label,
		NewConverter:   newConverter,
		Logger:         &logger,
	})
	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer cancel()
		defer feed.Close()
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})

	if _, statErr := os.Stat(path); statErr == nil {
		eg.Go(func() error {
			err := config.Watch(gctx, path, config.DefaultWatchDebounce, func(next *config.Config, err error) {
				if next != nil {
					o.apply(next)
					if verr := next.Validate(); verr != nil {
						next, err = nil, verr
					}
				}
				p.Send(chat.ConfigReloadedMsg{Config: next, Err: err})
			})
			if err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("config hot reload disabled")
			}
			return nil
		})
	}

	return eg.Wait()
}
