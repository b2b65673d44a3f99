// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jeranaias/llmspell/internal/cache"
	"github.com/jeranaias/llmspell/internal/util"
)

// =============================================================================
// TASKS
// =============================================================================

// TaskKind selects the full-text instruction template.
type TaskKind string

const (
	TaskCorrect       TaskKind = "correct"
	TaskRephrase      TaskKind = "rephrase"
	TaskImprovePrompt TaskKind = "improve-prompt"
)

// ErrUnknownTask is returned for a task kind with no template.
var ErrUnknownTask = errors.New("unknown task kind")

// Tasks lists every supported task kind in display order.
var Tasks = []TaskKind{TaskCorrect, TaskRephrase, TaskImprovePrompt}

// ParseTask converts a wire or CLI name to a TaskKind.
func ParseTask(s string) (TaskKind, error) {
	switch TaskKind(strings.ToLower(strings.TrimSpace(s))) {
	case TaskCorrect:
		return TaskCorrect, nil
	case TaskRephrase:
		return TaskRephrase, nil
	case TaskImprovePrompt, "improve", "improve_prompt", "improveprompt":
		return TaskImprovePrompt, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTask, s)
}

const wordPrompt = "Fix spelling only. Return ONLY the corrected word, nothing else.\nInput: %s\nCorrected:"

var taskPrompts = map[TaskKind]string{
	TaskCorrect: "Correct the spelling and grammar of the following text. " +
		"Keep the original meaning and tone. Return ONLY the corrected text, nothing else.\n\n" +
		"Text: %s\n\nCorrected text:",
	TaskRephrase: "Rephrase the following text so it reads clearly and professionally. " +
		"Keep the original meaning. Return ONLY the rephrased text, nothing else.\n\n" +
		"Text: %s\n\nRephrased text:",
	TaskImprovePrompt: "Improve the following prompt for an AI assistant. Make it clear, specific " +
		"and well structured. Return ONLY the improved prompt, nothing else.\n\n" +
		"Prompt: %s\n\nImproved prompt:",
}

// WordOptions keep single-word replies short and literal.
var WordOptions = Options{Temperature: 0.1, NumPredict: 20, TopK: 10, TopP: 0.3}

// TextOptions allow a full paragraph back with a little more freedom.
var TextOptions = Options{Temperature: 0.3, NumPredict: 512, TopK: 40, TopP: 0.9}

// BuildPrompt returns the full-text prompt for kind.
func BuildPrompt(kind TaskKind, text string) (string, error) {
	tmpl, ok := taskPrompts[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTask, string(kind))
	}
	return fmt.Sprintf(tmpl, text), nil
}

// BuildWordPrompt returns the single-word spelling prompt.
func BuildWordPrompt(word string) string {
	return fmt.Sprintf(wordPrompt, word)
}

// =============================================================================
// CORRECTOR
// =============================================================================

// Generator is the part of Client the corrector needs.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Recorder observes corrector activity. telemetry.Metrics implements it.
type Recorder interface {
	CacheLookup(hit bool)
	ModelCall(task string, d time.Duration, err error)
}

// Corrector turns model completions into corrections. The word path reads
// and fills the correction cache and never fails; the full-text path
// returns every client error to its caller.
type Corrector struct {
	gen      Generator
	cache    *cache.Cache
	logger   *zap.Logger
	recorder Recorder
	group    singleflight.Group
}

// CorrectorOption configures a Corrector.
type CorrectorOption func(*Corrector)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) CorrectorOption {
	return func(c *Corrector) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) CorrectorOption {
	return func(c *Corrector) { c.recorder = r }
}

// NewCorrector creates a corrector. A nil cache gets a private one with the
// default bound.
func NewCorrector(gen Generator, c *cache.Cache, opts ...CorrectorOption) *Corrector {
	if c == nil {
		c = cache.New(cache.DefaultMaxEntries)
	}
	cr := &Corrector{
		gen:    gen,
		cache:  c,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cr)
	}
	return cr
}

// Cache returns the correction cache the word path uses.
func (c *Corrector) Cache() *cache.Cache {
	return c.cache
}

// CorrectWord returns the model's spelling of word. Cached corrections are
// returned without a network call. On any failure the original word comes
// back unchanged and nothing is cached.
func (c *Corrector) CorrectWord(ctx context.Context, word string) string {
	if fixed, ok := c.cache.Lookup(word); ok {
		c.observeCache(true)
		c.logger.Debug("CACHE_HIT", zap.String("word", word), zap.String("corrected", fixed))
		return fixed
	}
	c.observeCache(false)

	// Identical in-flight lookups share one request.
	v, err, shared := c.group.Do(word, func() (interface{}, error) {
		return c.requestWord(ctx, word)
	})
	if err != nil {
		c.logger.Warn("SPELL_CHECK_ERROR",
			zap.String("word", word),
			zap.Bool("shared", shared),
			zap.Error(err),
		)
		return word
	}
	return v.(string)
}

func (c *Corrector) requestWord(ctx context.Context, word string) (string, error) {
	opts := WordOptions
	start := time.Now()
	resp, err := c.gen.Generate(ctx, GenerateRequest{
		Prompt:  BuildWordPrompt(word),
		Options: &opts,
	})
	c.observeCall("word", time.Since(start), err)
	if err != nil {
		return "", err
	}

	corrected := FirstToken(resp.Text())
	if corrected == "" {
		return "", &ClientError{Type: ErrTypeInvalidResponse, Message: "empty correction in reply"}
	}

	c.cache.Store(word, corrected)
	c.logger.Debug("WORD_CORRECTED",
		zap.String("word", word),
		zap.String("corrected", corrected),
		zap.Duration("took", time.Since(start)),
	)
	return corrected, nil
}

// ProcessText runs one full-text task and returns the cleaned reply.
func (c *Corrector) ProcessText(ctx context.Context, kind TaskKind, text string) (string, error) {
	prompt, err := BuildPrompt(kind, text)
	if err != nil {
		return "", err
	}

	opts := TextOptions
	start := time.Now()
	resp, err := c.gen.Generate(ctx, GenerateRequest{
		Prompt:  prompt,
		Options: &opts,
	})
	c.observeCall(string(kind), time.Since(start), err)
	if err != nil {
		c.logger.Warn("PROCESS_TEXT_ERROR", zap.String("task", string(kind)), zap.Error(err))
		return "", err
	}

	out := CleanResponse(resp.Text())
	c.logger.Info("PROCESS_TEXT_COMPLETE",
		zap.String("task", string(kind)),
		zap.Int("in_len", len(text)),
		zap.Int("out_len", len(out)),
		zap.String("preview", util.TruncateRunes(out, 40)),
		zap.Duration("took", time.Since(start)),
	)
	return out, nil
}

func (c *Corrector) observeCache(hit bool) {
	if c.recorder != nil {
		c.recorder.CacheLookup(hit)
	}
}

func (c *Corrector) observeCall(task string, d time.Duration, err error) {
	if c.recorder != nil {
		c.recorder.ModelCall(task, d, err)
	}
}

// FirstToken returns the first whitespace-delimited token of s after
// trimming, or "" if there is none.
func FirstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
