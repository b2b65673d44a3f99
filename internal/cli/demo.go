// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/llmspell/internal/page"
	"github.com/jeranaias/llmspell/internal/suggest"
	"github.com/jeranaias/llmspell/internal/trigger"
)

const demoFieldID = "demo"

// DemoSuggestion is one popup raised while typing.
type DemoSuggestion struct {
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
	Applied   bool   `json:"applied"`
}

// DemoResult is the field before and after a demo run.
type DemoResult struct {
	Typed       string           `json:"typed"`
	Final       string           `json:"final"`
	Suggestions []DemoSuggestion `json:"suggestions"`
}

func newDemoCommand(a *app) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "demo <text...>",
		Short: "Type text into a simulated field and show suggestions",
		Long: `Run the as-you-type pipeline against an in-memory text field. The text is
typed one character at a time with a pause after every word, so each word
gets its own check. Suggestions are printed as they appear; with --apply
they are accepted, otherwise ignored.`,
		Example: "  llmspell demo I saw teh dog\n  llmspell demo --apply helllo wrold",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return OutputJSON(out, a.opts.jsonOut, "demo", func() (interface{}, error) {
				popupOut := out
				if a.opts.jsonOut {
					popupOut = io.Discard
				}
				res, err := a.runDemo(cmd.Context(), popupOut, strings.Join(args, " "), apply)
				if err != nil {
					return nil, err
				}
				if !a.opts.jsonOut {
					fmt.Fprintln(out, RenderSeparator())
					fmt.Fprintln(out, RenderLabel("Typed:")+ValueStyle.Render(res.Typed))
					fmt.Fprintln(out, RenderLabel("Field:")+SuccessStyle.Render(res.Final))
				}
				return res, nil
			})
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "accept every suggestion")
	return cmd
}

func (a *app) runDemo(ctx context.Context, w io.Writer, text string, apply bool) (*DemoResult, error) {
	st := newStack(a.cfg, a.logger)

	doc := page.NewMemoryDocument()
	field := doc.AddField(demoFieldID, page.KindInput, page.Rect{Left: 40, Top: 120, Right: 440, Bottom: 148})
	if err := doc.Focus(demoFieldID); err != nil {
		return nil, err
	}

	popups := suggest.NewManager(doc,
		suggest.WithRenderer(suggest.NewTerminalRenderer(w)),
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
	if err := pipeline.Start(ctx); err != nil {
		return nil, err
	}
	defer pipeline.Stop()

	res := &DemoResult{Typed: text, Suggestions: []DemoSuggestion{}}
	for i, word := range strings.Fields(text) {
		if i > 0 {
			word = " " + word
		}
		if err := doc.TypeText(demoFieldID, word); err != nil {
			return nil, err
		}
		// The user pauses here.
		pipeline.Flush(demoFieldID)

		popup, ok := popups.Current()
		if !ok {
			continue
		}
		res.Suggestions = append(res.Suggestions, DemoSuggestion{
			Original:  popup.Original,
			Corrected: popup.Corrected,
			Applied:   apply,
		})
		if apply {
			if err := popups.Apply(ctx); err != nil {
				return nil, err
			}
		} else if err := popups.Ignore(ctx); err != nil {
			return nil, err
		}
	}

	final, err := field.Value(ctx)
	if err != nil {
		return nil, err
	}
	res.Final = final
	return res, nil
}
