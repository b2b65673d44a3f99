// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/llmspell/internal/ollama"
	"github.com/jeranaias/llmspell/internal/page"
)

// =============================================================================
// BACKGROUND
// =============================================================================

// StatusProbe reports whether the model service is reachable.
type StatusProbe interface {
	IsRunning(ctx context.Context) bool
}

// TextService performs model work.
type TextService interface {
	ProcessText(ctx context.Context, kind ollama.TaskKind, text string) (string, error)
	CorrectWord(ctx context.Context, word string) string
}

// BackgroundAgent is the only agent that talks to the model service. Page
// and popup contexts reach the model through it.
type BackgroundAgent struct {
	probe   StatusProbe
	service TextService
	pages   *Client
	logger  *zap.Logger
}

// NewBackgroundAgent creates a background agent. pages is used by
// correctSelection to write the result back and may be nil when no page
// agent is connected.
func NewBackgroundAgent(probe StatusProbe, service TextService, pages *Client, logger *zap.Logger) *BackgroundAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackgroundAgent{probe: probe, service: service, pages: pages, logger: logger}
}

// Handle implements Handler.
func (a *BackgroundAgent) Handle(ctx context.Context, req Request) any {
	switch req.Action {
	case ActionCheckStatus:
		return a.CheckStatus(ctx)
	case ActionProcessText:
		return a.ProcessText(ctx, req.Task, req.Text)
	case ActionCorrectWord:
		return WordReply{Corrected: a.service.CorrectWord(ctx, req.Word)}
	case ActionCorrectSelection:
		return a.CorrectSelection(ctx, req.Text)
	default:
		return FailureReply(req.Action, fmt.Sprintf("%v: %q", ErrUnknownAction, req.Action))
	}
}

// CheckStatus probes the model service. It never fails; an unreachable
// service is the offline status.
func (a *BackgroundAgent) CheckStatus(ctx context.Context) StatusReply {
	if a.probe.IsRunning(ctx) {
		return StatusReply{Status: StatusOnline}
	}
	return StatusReply{Status: StatusOffline}
}

// ProcessText runs a text task and reports the outcome as a reply.
func (a *BackgroundAgent) ProcessText(ctx context.Context, task, text string) ProcessReply {
	kind, err := ollama.ParseTask(task)
	if err != nil {
		return ProcessReply{Error: err.Error()}
	}
	out, err := a.service.ProcessText(ctx, kind, text)
	if err != nil {
		a.logger.Warn("PROCESS_TEXT_FAILED", zap.String("task", string(kind)), zap.Error(err))
		return ProcessReply{Error: err.Error()}
	}
	return ProcessReply{Success: true, ProcessedText: out}
}

// CorrectSelection corrects text and asks the page to replace its
// selection with the result.
func (a *BackgroundAgent) CorrectSelection(ctx context.Context, text string) ProcessReply {
	reply := a.ProcessText(ctx, string(ollama.TaskCorrect), text)
	if !reply.Success {
		return reply
	}
	if a.pages == nil {
		return ProcessReply{Error: "no page connected"}
	}

	res, err := a.pages.ReplaceSelection(ctx, reply.ProcessedText)
	if err != nil {
		a.logger.Warn("REPLACE_SELECTION_FAILED", zap.Error(err))
		return ProcessReply{ProcessedText: reply.ProcessedText, Error: err.Error()}
	}
	if !res.Success {
		return ProcessReply{ProcessedText: reply.ProcessedText, Error: res.Error}
	}
	return reply
}

// =============================================================================
// PAGE
// =============================================================================

// PageAgent reads and writes the focused field of a document.
type PageAgent struct {
	doc    page.Document
	logger *zap.Logger
}

// NewPageAgent creates a page agent over doc.
func NewPageAgent(doc page.Document, logger *zap.Logger) *PageAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageAgent{doc: doc, logger: logger}
}

// Handle implements Handler.
func (a *PageAgent) Handle(ctx context.Context, req Request) any {
	switch req.Action {
	case ActionGetText:
		return a.GetText(ctx)
	case ActionSetText:
		return a.SetText(ctx, req.Text)
	case ActionReplaceSelection:
		return a.ReplaceSelection(ctx, req.Text)
	default:
		return FailureReply(req.Action, fmt.Sprintf("%v: %q", ErrUnknownAction, req.Action))
	}
}

// GetText returns the focused field's selected text when the selection is
// non-empty and its whole value otherwise. Text is nil when nothing is
// focused.
func (a *PageAgent) GetText(ctx context.Context) TextReply {
	field, err := a.doc.Focused(ctx)
	if err != nil {
		if !errors.Is(err, page.ErrNoFocusedField) {
			a.logger.Warn("GET_TEXT_FAILED", zap.Error(err))
		}
		return TextReply{}
	}

	value, err := field.Value(ctx)
	if err != nil {
		return TextReply{Error: err.Error()}
	}
	sel, err := a.doc.Selection(ctx, field.ID())
	if err != nil {
		return TextReply{Error: err.Error()}
	}

	text := selectedText(value, sel)
	return TextReply{Text: &text}
}

// selectedText returns the selected characters of value, or all of value
// when the selection is empty.
func selectedText(value string, sel page.Selection) string {
	if sel.Empty() {
		return value
	}
	runes := []rune(value)
	start, end := sel.Start, sel.End
	if start > end {
		start, end = end, start
	}
	start = max(0, min(start, len(runes)))
	end = max(0, min(end, len(runes)))
	if start == end {
		return value
	}
	return string(runes[start:end])
}

// SetText replaces the focused field's value.
func (a *PageAgent) SetText(ctx context.Context, text string) SuccessReply {
	return a.write(ctx, func(id string) error { return a.doc.SetText(ctx, id, text) })
}

// ReplaceSelection replaces the focused field's selection.
func (a *PageAgent) ReplaceSelection(ctx context.Context, text string) SuccessReply {
	return a.write(ctx, func(id string) error { return a.doc.ReplaceSelection(ctx, id, text) })
}

func (a *PageAgent) write(ctx context.Context, fn func(id string) error) SuccessReply {
	field, err := a.doc.Focused(ctx)
	if err != nil {
		return SuccessReply{Error: err.Error()}
	}
	if err := fn(field.ID()); err != nil {
		a.logger.Warn("PAGE_WRITE_FAILED", zap.String("field", field.ID()), zap.Error(err))
		return SuccessReply{Error: err.Error()}
	}
	return SuccessReply{Success: true}
}

// =============================================================================
// POPUP
// =============================================================================

// Popup status texts.
const (
	StatusTextOnline  = "Ollama is running"
	StatusTextOffline = "Ollama not running"
)

// ErrBusy is returned when a task is started while another is running.
var ErrBusy = errors.New("a task is already running")

// PopupAgent is the control surface: a status indicator and one action
// per text task. A task reads the page text, processes it in the
// background and writes the result back. There is no retry.
type PopupAgent struct {
	client *Client

	mu      sync.Mutex
	busy    bool
	status  string
	lastErr string
}

// NewPopupAgent creates a popup agent.
func NewPopupAgent(c *Client) *PopupAgent {
	return &PopupAgent{client: c}
}

// RefreshStatus probes the background and returns the indicator text.
func (p *PopupAgent) RefreshStatus(ctx context.Context) string {
	text := StatusTextOffline
	if p.client.CheckStatus(ctx).Online() {
		text = StatusTextOnline
	}
	p.mu.Lock()
	p.status = text
	p.mu.Unlock()
	return text
}

// Status returns the last indicator text.
func (p *PopupAgent) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Busy reports whether the task controls are disabled.
func (p *PopupAgent) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

// LastError returns the inline error of the last task, or "".
func (p *PopupAgent) LastError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Run performs one task on the focused field and returns the text written
// back. Controls are re-enabled when it returns, whatever the outcome.
func (p *PopupAgent) Run(ctx context.Context, task string) (string, error) {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return "", ErrBusy
	}
	p.busy = true
	p.lastErr = ""
	p.mu.Unlock()

	out, err := p.run(ctx, task)

	p.mu.Lock()
	p.busy = false
	if err != nil {
		p.lastErr = err.Error()
	}
	p.mu.Unlock()
	return out, err
}

func (p *PopupAgent) run(ctx context.Context, task string) (string, error) {
	got, err := p.client.GetText(ctx)
	if err != nil {
		return "", err
	}
	if got.Error != "" {
		return "", errors.New(got.Error)
	}
	if got.Text == nil {
		return "", page.ErrNoFocusedField
	}
	if *got.Text == "" {
		return "", ErrNoText
	}

	processed, err := p.client.ProcessText(ctx, task, *got.Text)
	if err != nil {
		return "", err
	}
	if !processed.Success {
		return "", errors.New(processed.Error)
	}

	set, err := p.client.SetText(ctx, processed.ProcessedText)
	if err != nil {
		return "", err
	}
	if !set.Success {
		return "", errors.New(set.Error)
	}
	return processed.ProcessedText, nil
}
