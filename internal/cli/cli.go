// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/jeranaias/agentchat/internal/ui/styles"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	o := &globalOptions{}

	root := &cobra.Command{
		Use:   "agentchat",
		Short: "Chat with your agent from the terminal",
		Long: `agentchat is a terminal client for a conversational agent.

Messages you send and replies the agent streams back, including ones it
starts on its own, share a single transcript. Replies render as markdown.`,
		Example: `  agentchat                         Start the chat TUI
  agentchat --demo                  Try it with the built-in agent
  agentchat ask "what's new?"       One reply on stdout
  agentchat config set ui.theme light`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, o)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&o.configPath, "config", "", "config file (default ~/.agentchat/config.toml)")
	flags.StringVar(&o.url, "url", "", "agent URL")
	flags.StringVar(&o.transport, "transport", "", "agent transport: http, ws or demo")
	flags.StringVar(&o.sessionID, "session", "", "session id")
	flags.BoolVar(&o.demo, "demo", false, "use the built-in demo agent")
	flags.StringVar(&o.logLevel, "log-level", "", "log level: trace, debug, info, warn, error or disabled")

	root.AddCommand(
		newAskCommand(o),
		newConfigCommand(o),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "agentchat %s (commit %s, built %s, %s/%s, %s)\n",
				Version, GitCommit, BuildDate, runtime.GOOS, runtime.GOARCH, runtime.Version())
		},
	}
}

// Execute runs the command line and returns the exit code.
func Execute(args []string) int {
	lipgloss.SetColorProfile(ColorProfile(os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, styles.RenderError(err.Error()))
	}
	return ExitCode(err)
}
