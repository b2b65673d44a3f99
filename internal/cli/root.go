// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/llmspell/internal/config"
	"github.com/jeranaias/llmspell/internal/logging"
	"github.com/jeranaias/llmspell/internal/server"
)

// Build information, set via ldflags.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	verbose    bool
	jsonOut    bool
}

// app holds what the root command prepared before a subcommand runs.
type app struct {
	opts   globalOptions
	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCommand builds the llmspell command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "llmspell",
		Short: "Local LLM spell checker",
		Long: `llmspell checks spelling as you type with a local Ollama model.

The daemon (llmspell serve) runs the relay between the model service, the
page host and its HTTP API. The other commands are one-shot tools for
checking words, processing text and managing settings.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetVersionTemplate(versionLine() + "\n")

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.configPath, "config", "", "config file (default ~/.llmspell/config.toml)")
	flags.BoolVarP(&a.opts.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVar(&a.opts.jsonOut, "json", false, "print machine-readable JSON")

	root.AddCommand(
		newServeCommand(a),
		newCheckCommand(a),
		newProcessCommand(a),
		newStatusCommand(a),
		newConfigCommand(a),
		newDemoCommand(a),
		newTryCommand(a),
		newPageCommand(a),
		newVersionCommand(a),
	)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, RenderConditional(ErrorStyle, "Error:"), err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// init loads configuration and builds the logger.
func (a *app) init() error {
	server.Version = Version

	cfg, err := loadConfig(a.opts.configPath)
	if err != nil {
		return NewCommandError("config", "load", "could not load configuration", err)
	}
	a.cfg = cfg

	logger, err := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		JSON:    cfg.Logging.JSON,
		Verbose: a.opts.verbose,
	})
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

// loadConfig reads path, or the default location when path is empty. A
// missing file at an explicit path yields the defaults so `config set` can
// create it.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := config.Default()
		cfg.ApplyEnvOverrides()
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.LoadFromPath(path)
}

// settingsStore returns the store for the active config file.
func (a *app) settingsStore() (*config.SettingsStore, error) {
	if a.opts.configPath != "" {
		return config.NewSettingsStore(a.opts.configPath), nil
	}
	return config.DefaultSettingsStore()
}

func versionLine() string {
	return fmt.Sprintf("llmspell %s (commit %s, built %s)", Version, GitCommit, BuildDate)
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return OutputJSON(out, a.opts.jsonOut, "version", func() (interface{}, error) {
				if !a.opts.jsonOut {
					fmt.Fprintln(out, versionLine())
				}
				return map[string]string{
					"version":    Version,
					"git_commit": GitCommit,
					"build_date": BuildDate,
				}, nil
			})
		},
	}
}
