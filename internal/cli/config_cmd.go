// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/jeranaias/llmspell/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and edit configuration",
		Long: `Show and edit the llmspell configuration file.

Keys use dot notation, for example settings.debounce_time_ms or
server.port. Run "llmspell config keys" for the full list.`,
	}
	cmd.AddCommand(
		newConfigShowCommand(a),
		newConfigGetCommand(a),
		newConfigSetCommand(a),
		newConfigPathCommand(a),
		newConfigKeysCommand(a),
	)
	return cmd
}

func newConfigShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return OutputJSON(out, a.opts.jsonOut, "config show", func() (interface{}, error) {
				if !a.opts.jsonOut {
					if err := toml.NewEncoder(out).Encode(a.cfg); err != nil {
						return nil, err
					}
				}
				return a.cfg, nil
			})
		},
	}
}

func newConfigGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "get <key>",
		Short:   "Print one configuration value",
		Example: "  llmspell config get settings.model",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return OutputJSON(out, a.opts.jsonOut, "config get", func() (interface{}, error) {
				v, err := a.cfg.Get(args[0])
				if err != nil {
					return nil, &UsageError{Msg: err.Error()}
				}
				if !a.opts.jsonOut {
					fmt.Fprintln(out, v)
				}
				return map[string]interface{}{"key": args[0], "value": v}, nil
			})
		},
	}
}

func newConfigSetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one configuration value",
		Long: `Change one value in the config file. The file is validated before it is
written; a running daemon picks up settings changes on its own.`,
		Example: "  llmspell config set settings.model llama3\n  llmspell config set settings.enabled false",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			store, err := a.settingsStore()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			return OutputJSON(out, a.opts.jsonOut, "config set", func() (interface{}, error) {
				cfg, err := store.Update(func(c *config.Config) error {
					if err := c.Set(key, value); err != nil {
						return &UsageError{Msg: err.Error()}
					}
					return nil
				})
				if err != nil {
					return nil, err
				}
				stored, _ := cfg.Get(key)
				if !a.opts.jsonOut {
					fmt.Fprintf(out, "%s %s = %v\n", RenderStatus("ok"), key, stored)
					fmt.Fprintln(out, DimStyle.Render("saved to "+store.Path()))
				}
				return map[string]interface{}{"key": key, "value": stored, "path": store.Path()}, nil
			})
		},
	}
}

func newConfigPathCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.settingsStore()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return OutputJSON(out, a.opts.jsonOut, "config path", func() (interface{}, error) {
				if !a.opts.jsonOut {
					fmt.Fprintln(out, store.Path())
				}
				return map[string]string{"path": store.Path()}, nil
			})
		},
	}
}

func newConfigKeysCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List every configuration key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return OutputJSON(out, a.opts.jsonOut, "config keys", func() (interface{}, error) {
				keys := config.GetAllKeys()
				sort.Strings(keys)
				if !a.opts.jsonOut {
					printKeys(out, a.cfg, keys)
				}
				return keys, nil
			})
		},
	}
}

func printKeys(w io.Writer, cfg *config.Config, keys []string) {
	for _, k := range keys {
		v, err := cfg.Get(k)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%-32s %v\n", k, v)
	}
}
