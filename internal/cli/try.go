// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeranaias/llmspell/internal/page"
	"github.com/jeranaias/llmspell/internal/suggest"
	"github.com/jeranaias/llmspell/internal/trigger"
	"github.com/jeranaias/llmspell/internal/ui/field"
)

const tryFieldID = "try"

func newTryCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "try",
		Short: "Type into an interactive field checked as you type",
		Long: `Open an interactive text field in the terminal. Pause after a word and
suggestions appear below the field: tab applies, esc ignores.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !IsStdoutTTY() {
				return &UsageError{Msg: "try needs an interactive terminal; use demo instead"}
			}
			ctx := cmd.Context()
			st := newStack(a.cfg, a.logger)

			doc := page.NewMemoryDocument()
			doc.AddField(tryFieldID, page.KindInput, page.Rect{Left: 2, Top: 2, Right: 62, Bottom: 3})
			if err := doc.Focus(tryFieldID); err != nil {
				return err
			}

			renderer := field.NewRenderer()
			popups := suggest.NewManager(doc,
				suggest.WithRenderer(renderer),
				suggest.WithLogger(a.logger.Named("suggest")),
				suggest.WithRecorder(st.metrics),
			)
			popups.Start(ctx)
			defer popups.Close()

			pipeline := trigger.New(doc, st.gate, st.corrector, popups, trigger.Config{
				Delay:    a.cfg.Settings.Debounce(),
				Logger:   a.logger.Named("trigger"),
				Recorder: st.metrics,
			})
			pipeline.SetEnabled(a.cfg.Settings.Enabled)
			if err := pipeline.Start(ctx); err != nil {
				return err
			}
			defer pipeline.Stop()

			m := field.New(ctx, field.Config{
				Doc:       doc,
				FieldID:   tryFieldID,
				Popups:    popups,
				Checking:  pipeline,
				Renderer:  renderer,
				ModelName: st.client.Model(),
			})
			_, err := tea.NewProgram(m, tea.WithContext(ctx), tea.WithOutput(cmd.OutOrStdout())).Run()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		},
	}
}
