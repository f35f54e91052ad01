// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the agentchat command line.
//
// The root command opens the chat TUI. Subcommands send a single message
// without the TUI and inspect or edit the configuration file.
//
// # Key Types
//
//   - CommandError: A failed command with the action and reason
//   - UsageError: Bad arguments or flags; maps to ExitUsageError
//
// # Usage
//
//	os.Exit(cli.Execute(os.Args[1:]))
//
// # Commands Overview
//
//   - agentchat: Interactive chat TUI (default)
//   - agentchat ask "question": Stream one reply to stdout
//   - agentchat config [show|get|set|keys|path]: Configuration
//   - agentchat version: Build information
//
// Global flags (--url, --transport, --session, --demo, --log-level) override
// the configuration file and the AGENTCHAT_* environment variables.
package cli
