// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/llmspell/internal/heuristic"
	"github.com/jeranaias/llmspell/internal/ollama"
	"github.com/jeranaias/llmspell/internal/trigger"
)

// =============================================================================
// CHECK
// =============================================================================

// CheckResult is the outcome of checking one word.
type CheckResult struct {
	Word      string `json:"word"`
	Verdict   string `json:"verdict"`
	Corrected string `json:"corrected"`
	Changed   bool   `json:"changed"`
}

func newCheckCommand(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "check <word>",
		Short: "Check the spelling of one word",
		Long: `Check one word the way the as-you-type pipeline does: the heuristic
gate first, then the model. Words the gate rejects are not sent unless
--force is given.`,
		Example: "  llmspell check helllo\n  llmspell check --force cat",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return OutputJSON(out, a.opts.jsonOut, "check", func() (interface{}, error) {
				st := newStack(a.cfg, a.logger)
				word := args[0]

				verdict := heuristic.Classify(word, a.cfg.Heuristic.MinLength, a.cfg.Heuristic.MaxLength)
				res := CheckResult{Word: word, Verdict: verdict.String(), Corrected: word}
				if verdict == heuristic.VerdictAccepted || force {
					res.Corrected = st.corrector.CorrectWord(cmd.Context(), word)
					res.Changed = !trigger.SameWord(word, res.Corrected)
				}

				if !a.opts.jsonOut {
					printCheck(out, res)
				}
				return res, nil
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "ask the model even if the gate rejects the word")
	return cmd
}

func printCheck(w io.Writer, res CheckResult) {
	fmt.Fprintln(w, RenderLabel("Word:")+ValueStyle.Render(res.Word))
	fmt.Fprintln(w, RenderLabel("Gate:")+DimStyle.Render(res.Verdict))
	if res.Changed {
		fmt.Fprintln(w, RenderLabel("Suggestion:")+SuccessStyle.Render(res.Corrected))
		return
	}
	fmt.Fprintln(w, RenderLabel("Suggestion:")+DimStyle.Render("none"))
}

// =============================================================================
// PROCESS
// =============================================================================

// ProcessResult is the outcome of a whole-text task.
type ProcessResult struct {
	Task   string `json:"task"`
	Input  string `json:"input"`
	Result string `json:"result"`
}

func newProcessCommand(a *app) *cobra.Command {
	var task string

	cmd := &cobra.Command{
		Use:   "process [text...]",
		Short: "Run a whole-text task (correct, rephrase or improve-prompt)",
		Long: `Send text to the model with one of the task templates and print the
cleaned result. With no arguments the text is read from stdin.`,
		Example: "  llmspell process --task correct \"me and him goes\"\n  cat draft.txt | llmspell process --task rephrase",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := ollama.ParseTask(task)
			if err != nil {
				return &UsageError{Msg: err.Error()}
			}

			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = strings.TrimRight(string(data), "\r\n")
			}
			if strings.TrimSpace(text) == "" {
				return &UsageError{Msg: "no text to process"}
			}

			out := cmd.OutOrStdout()
			return OutputJSON(out, a.opts.jsonOut, "process", func() (interface{}, error) {
				st := newStack(a.cfg, a.logger)
				result, err := st.corrector.ProcessText(cmd.Context(), kind, text)
				if err != nil {
					return nil, NewCommandError("process", string(kind), "model request failed", err)
				}
				if !a.opts.jsonOut {
					fmt.Fprintln(out, result)
				}
				return ProcessResult{Task: string(kind), Input: text, Result: result}, nil
			})
		},
	}
	cmd.Flags().StringVarP(&task, "task", "t", string(ollama.TaskCorrect), "task: correct, rephrase or improve-prompt")
	return cmd
}
