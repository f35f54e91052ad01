// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for agentchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, validation and hot reload.
//
// # Key Types
//
//   - Config: Main configuration structure
//   - AgentConfig: Agent URL, transport and session
//   - RenderConfig: Markdown cache size, wrap width and style
//   - UIConfig: Theme, debug view and frame rate
//   - LogConfig: Level and rotation of the log file
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Command line flags (applied by the caller)
//   - Environment variables (AGENTCHAT_*)
//   - ~/.agentchat/config.toml
//   - ~/.agentchat/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	go config.Watch(ctx, path, 0, func(next *config.Config, err error) {
//	    // apply next.UI.Theme
//	})
package config
