// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/llmspell/internal/bus"
	"github.com/jeranaias/llmspell/internal/config"
	"github.com/jeranaias/llmspell/internal/page"
	"github.com/jeranaias/llmspell/internal/relay"
	"github.com/jeranaias/llmspell/internal/server"
	"github.com/jeranaias/llmspell/internal/status"
	"github.com/jeranaias/llmspell/internal/suggest"
	"github.com/jeranaias/llmspell/internal/trigger"
)

func newServeCommand(a *app) *cobra.Command {
	var withBrowser bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the llmspell daemon",
		Long: `Run the daemon: the background agent that owns the model service, the
HTTP API and, with --browser, a Chrome tab checked as you type.

Settings changed through the API or by editing the config file are applied
without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd.Context(), withBrowser)
		},
	}
	cmd.Flags().BoolVar(&withBrowser, "browser", false, "drive a Chrome tab as the page host")
	return cmd
}

func (a *app) runServe(ctx context.Context, withBrowser bool) error {
	cfg, logger := a.cfg, a.logger
	st := newStack(cfg, logger)

	b, err := bus.Open(bus.Config{URL: cfg.Bus.NATSURL, Name: "llmspell-daemon", Timeout: bus.DefaultConfig().Timeout})
	if err != nil {
		return NewCommandError("serve", "open bus", "could not open the relay bus", err)
	}
	defer b.Close()

	client := relay.NewClient(b, relay.DefaultTimeout)

	background := relay.NewBackgroundAgent(st.client, st.corrector, client, logger.Named("background"))
	bgSub, err := relay.Serve(ctx, b, relay.SubjectBackground, background, logger)
	if err != nil {
		return err
	}
	defer bgSub.Unsubscribe()

	var pipeline *trigger.Pipeline
	if withBrowser {
		doc, err := page.OpenRod(ctx, page.RodConfig{
			ControlURL: cfg.Browser.ControlURL,
			Headless:   cfg.Browser.Headless,
			URL:        cfg.Browser.URL,
		}, logger.Named("page"))
		if err != nil {
			return NewCommandError("serve", "open browser", "could not attach to Chrome", err)
		}
		defer doc.Close()

		popups := suggest.NewManager(doc,
			suggest.WithLogger(logger.Named("suggest")),
			suggest.WithRecorder(st.metrics),
		)
		popups.Start(ctx)
		defer popups.Close()

		pipeline = trigger.New(doc, st.gate, st.corrector, popups, trigger.Config{
			Delay:    cfg.Settings.Debounce(),
			Logger:   logger.Named("trigger"),
			Recorder: st.metrics,
		})
		pipeline.SetEnabled(cfg.Settings.Enabled)
		if err := pipeline.Start(ctx); err != nil {
			return err
		}
		defer pipeline.Stop()

		pageSub, err := relay.Serve(ctx, b, relay.SubjectPage, relay.NewPageAgent(doc, logger.Named("page")), logger)
		if err != nil {
			return err
		}
		defer pageSub.Unsubscribe()
	}

	apply := func(s config.Settings) {
		st.client.SetModel(s.Model)
		if pipeline != nil {
			pipeline.SetEnabled(s.Enabled)
			pipeline.SetDelay(s.Debounce())
		}
		logger.Info("SETTINGS_APPLIED",
			zap.Bool("enabled", s.Enabled),
			zap.String("model", s.Model),
			zap.Int("debounce_ms", s.DebounceTimeMs),
		)
	}

	store, err := a.settingsStore()
	if err != nil {
		return err
	}
	watcher, err := config.NewWatcher(store.Path(), func(c *config.Config) { apply(c.Settings) }, logger.Named("config"))
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	defer watcher.Close()

	monitor := status.NewMonitor(st.client, cfg.Status.PollInterval(),
		status.WithLogger(logger.Named("status")),
		status.OnChange(st.metrics.SetOllamaUp),
	)

	srv := server.NewServer(cfg.Server, client).
		WithLogger(logger.Named("http")).
		WithBus(b).
		WithCache(st.cache).
		WithSettings(store, apply).
		WithMonitor(monitor).
		WithMetrics(st.metrics)

	logger.Info("DAEMON_START",
		zap.String("version", Version),
		zap.String("ollama", cfg.Ollama.URL),
		zap.String("model", cfg.Settings.Model),
		zap.Bool("browser", withBrowser),
		zap.Bool("nats", cfg.Bus.NATSURL != ""),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		monitor.Run(gctx)
		return nil
	})
	g.Go(func() error {
		watcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})

	err = g.Wait()
	logger.Info("DAEMON_STOP", zap.Error(err))
	return err
}
