// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/llmspell/internal/bus"
	"github.com/jeranaias/llmspell/internal/page"
	"github.com/jeranaias/llmspell/internal/relay"
)

// errNoFocus is reported when the page has no focused editable field.
var errNoFocus = errors.New("no focused text field")

func newPageCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "page",
		Short: "Read or write the focused field of a Chrome tab",
		Long: `Attach to Chrome (browser.control_url, or a new browser when empty) and
act on the focused text field through the page agent.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Print the selection, or the whole value when nothing is selected",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withPage(cmd, "page get", func(ctx context.Context, c *relay.Client) (interface{}, error) {
					reply, err := c.GetText(ctx)
					if err != nil {
						return nil, err
					}
					if reply.Error != "" {
						return nil, errors.New(reply.Error)
					}
					if reply.Text == nil {
						return nil, errNoFocus
					}
					if !a.opts.jsonOut {
						fmt.Fprintln(cmd.OutOrStdout(), *reply.Text)
					}
					return reply, nil
				})
			},
		},
		&cobra.Command{
			Use:   "set <text...>",
			Short: "Replace the whole value of the focused field",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				text := strings.Join(args, " ")
				return a.withPage(cmd, "page set", func(ctx context.Context, c *relay.Client) (interface{}, error) {
					return pageWrite(c.SetText(ctx, text))
				})
			},
		},
		&cobra.Command{
			Use:   "replace <text...>",
			Short: "Replace the selection of the focused field",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				text := strings.Join(args, " ")
				return a.withPage(cmd, "page replace", func(ctx context.Context, c *relay.Client) (interface{}, error) {
					return pageWrite(c.ReplaceSelection(ctx, text))
				})
			},
		},
	)
	return cmd
}

func pageWrite(reply relay.SuccessReply, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	if !reply.Success {
		if reply.Error != "" {
			return nil, errors.New(reply.Error)
		}
		return nil, errNoFocus
	}
	return reply, nil
}

// withPage attaches to Chrome, serves a page agent on a private bus and
// runs fn with a relay client for it.
func (a *app) withPage(cmd *cobra.Command, name string, fn func(ctx context.Context, c *relay.Client) (interface{}, error)) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	return OutputJSON(out, a.opts.jsonOut, name, func() (interface{}, error) {
		doc, err := page.OpenRod(ctx, page.RodConfig{
			ControlURL: a.cfg.Browser.ControlURL,
			Headless:   a.cfg.Browser.Headless,
			URL:        a.cfg.Browser.URL,
		}, a.logger.Named("page"))
		if err != nil {
			return nil, NewCommandError(name, "attach", "could not attach to Chrome", err)
		}
		defer doc.Close()

		b := bus.NewMemoryBus()
		defer b.Close()

		sub, err := relay.Serve(ctx, b, relay.SubjectPage, relay.NewPageAgent(doc, a.logger.Named("page")), a.logger)
		if err != nil {
			return nil, err
		}
		defer sub.Unsubscribe()

		return fn(ctx, relay.NewClient(b, relay.DefaultTimeout))
	})
}
