// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/llmspell/internal/config"
	"github.com/jeranaias/llmspell/internal/relay"
	"github.com/jeranaias/llmspell/internal/server"
)

// daemonProbeTimeout bounds the /health request to a running daemon.
const daemonProbeTimeout = 2 * time.Second

// StatusReport describes the model service and the daemon.
type StatusReport struct {
	Indicator      string                 `json:"indicator"`
	OllamaURL      string                 `json:"ollama_url"`
	OllamaRunning  bool                   `json:"ollama_running"`
	OllamaError    string                 `json:"ollama_error,omitempty"`
	Model          string                 `json:"model"`
	ModelInstalled bool                   `json:"model_installed"`
	Models         []string               `json:"models"`
	DaemonAddr     string                 `json:"daemon_addr"`
	Daemon         *server.HealthResponse `json:"daemon"`
	CheckedAt      time.Time              `json:"checked_at"`
}

func newStatusCommand(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show model service and daemon status",
		Long: `Probe the Ollama service, list its models and query a running daemon.
With --watch the report refreshes until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			show := func() error {
				return OutputJSON(out, a.opts.jsonOut, "status", func() (interface{}, error) {
					report := collectStatus(ctx, a.cfg, newStack(a.cfg, a.logger))
					if !a.opts.jsonOut {
						printStatus(out, report)
					}
					return report, nil
				})
			}

			if err := show(); err != nil || !watch {
				return err
			}

			ticker := time.NewTicker(a.cfg.Status.WatchInterval())
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if !a.opts.jsonOut {
						fmt.Fprintln(out)
					}
					if err := show(); err != nil {
						return err
					}
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "refresh until interrupted")
	return cmd
}

func collectStatus(ctx context.Context, cfg *config.Config, st *stack) StatusReport {
	report := StatusReport{
		Indicator:  relay.StatusTextOffline,
		OllamaURL:  st.client.BaseURL(),
		Model:      st.client.Model(),
		Models:     []string{},
		DaemonAddr: cfg.Server.Addr(),
		CheckedAt:  time.Now().UTC(),
	}

	if err := st.client.CheckRunning(ctx); err != nil {
		report.OllamaError = err.Error()
	} else {
		report.OllamaRunning = true
		report.Indicator = relay.StatusTextOnline
		if models, err := st.client.ListModels(ctx); err == nil {
			for _, m := range models {
				report.Models = append(report.Models, m.Name)
			}
		}
		report.ModelInstalled, _ = st.client.ModelExists(ctx, report.Model)
	}

	report.Daemon = probeDaemon(ctx, cfg.Server.Addr())
	return report
}

// probeDaemon returns the daemon's health, or nil when none answers.
func probeDaemon(ctx context.Context, addr string) *server.HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, daemonProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/health", nil)
	if err != nil {
		return nil
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var health server.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil
	}
	return &health
}

func printStatus(w io.Writer, r StatusReport) {
	fmt.Fprintln(w, TitleStyle.Render("llmspell status"))

	ollamaState := RenderStatus("ok") + " " + r.Indicator
	if !r.OllamaRunning {
		ollamaState = RenderStatus("fail") + " " + r.Indicator
	}
	fmt.Fprintln(w, RenderLabel("Ollama:")+ollamaState)
	fmt.Fprintln(w, RenderLabel("URL:")+ValueStyle.Render(r.OllamaURL))
	if r.OllamaError != "" {
		fmt.Fprintln(w, RenderLabel("Error:")+DimStyle.Render(r.OllamaError))
	}

	model := ValueStyle.Render(r.Model)
	switch {
	case !r.OllamaRunning:
	case r.ModelInstalled:
		model += " " + RenderStatus("ok")
	default:
		model += " " + RenderStatus("warn") + DimStyle.Render(" not installed, run: ollama pull "+r.Model)
	}
	fmt.Fprintln(w, RenderLabel("Model:")+model)
	if len(r.Models) > 0 {
		fmt.Fprintln(w, RenderLabel("Installed:")+DimStyle.Render(fmt.Sprint(r.Models)))
	}

	fmt.Fprintln(w, RenderSeparator())
	if r.Daemon == nil {
		fmt.Fprintln(w, RenderLabel("Daemon:")+RenderStatus("fail")+DimStyle.Render(" not running at "+r.DaemonAddr))
		return
	}
	state := RenderStatus("ok")
	if r.Daemon.Status != "ok" {
		state = RenderStatus("warn")
	}
	fmt.Fprintln(w, RenderLabel("Daemon:")+state+" "+ValueStyle.Render(r.DaemonAddr))
	fmt.Fprintln(w, RenderLabel("Version:")+ValueStyle.Render(r.Daemon.Version))
	fmt.Fprintln(w, RenderLabel("Uptime:")+ValueStyle.Render((time.Duration(r.Daemon.UptimeSeconds)*time.Second).String()))
	fmt.Fprintln(w, RenderLabel("Cache entries:")+ValueStyle.Render(fmt.Sprint(r.Daemon.CacheEntries)))
	fmt.Fprintln(w, RenderLabel("Pages:")+ValueStyle.Render(fmt.Sprint(r.Daemon.PagesConnected)))
}
