// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/jeranaias/agentchat/internal/config"
	"github.com/jeranaias/agentchat/internal/util"
)

func newConfigCommand(o *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or edit the configuration",
		Long: `Show or edit the agentchat configuration.

Keys use dot notation, e.g. agent.url or ui.theme. "show" prints the
effective configuration after environment and flag overrides; "set" edits
only the file.`,
	}
	cmd.AddCommand(
		newConfigShowCommand(o),
		newConfigGetCommand(o),
		newConfigSetCommand(o),
		newConfigKeysCommand(o),
		newConfigPathCommand(o),
	)
	return cmd
}

func newConfigShowCommand(o *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := o.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				fmt.Fprintln(out, cfg.String())
				return nil
			}
			fmt.Fprintln(out, DimStyle.Render("# "+path))
			return toml.NewEncoder(out).Encode(cfg)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newConfigGetCommand(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := o.loadConfig()
			if err != nil {
				return err
			}
			v, err := cfg.Get(args[0])
			if err != nil {
				return NewUsageError("unknown key %q (see \"agentchat config keys\")", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", v)
			return nil
		},
	}
}

func newConfigSetCommand(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one value in the configuration file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := o.resolvePath()
			if err != nil {
				return configError("set", err)
			}
			cfg, err := readFile(path)
			if err != nil {
				return configError("set", err)
			}
			key, value := args[0], args[1]
			if err := cfg.Set(key, value); err != nil {
				return NewUsageError("cannot set %s: %v", key, err)
			}
			if err := cfg.Validate(); err != nil {
				return configError("set", err)
			}
			if err := config.Save(cfg, path); err != nil {
				return configError("save", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s\n",
				SuccessStyle.Render("saved"), KeyStyle.Render(key), value)
			return nil
		},
	}
}

func newConfigKeysCommand(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List configuration keys with their effective values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := o.loadConfig()
			if err != nil {
				return err
			}
			keys := config.Keys()
			width := 0
			for _, k := range keys {
				if w := util.StringWidth(k); w > width {
					width = w
				}
			}
			out := cmd.OutOrStdout()
			for _, k := range keys {
				v, _ := cfg.Get(k)
				fmt.Fprintf(out, "%s  %v\n", KeyStyle.Render(util.PadRight(k, width)), v)
			}
			return nil
		},
	}
}

func newConfigPathCommand(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := o.resolvePath()
			if err != nil {
				return configError("path", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

// readFile loads the file alone, without environment overrides, so that
// saving it back does not capture them.
func readFile(path string) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		return cfg, config.LoadJSON(cfg, path)
	}
	return cfg, config.LoadTOML(cfg, path)
}
