// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/llmspell/internal/cache"
)

// fakeGenerator answers every request with reply and counts calls.
type fakeGenerator struct {
	mu      sync.Mutex
	calls   int32
	reply   string
	err     error
	last    GenerateRequest
	release chan struct{}
}

func (f *fakeGenerator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	r := f.reply
	return &GenerateResponse{Response: &r}, nil
}

func (f *fakeGenerator) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

type countingRecorder struct {
	hits, misses, calls, failures int
}

func (r *countingRecorder) CacheLookup(hit bool) {
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func (r *countingRecorder) ModelCall(task string, d time.Duration, err error) {
	r.calls++
	if err != nil {
		r.failures++
	}
}

// =============================================================================
// TASK TESTS
// =============================================================================

func TestParseTask(t *testing.T) {
	tests := []struct {
		in   string
		want TaskKind
	}{
		{"correct", TaskCorrect},
		{"Rephrase", TaskRephrase},
		{"improve-prompt", TaskImprovePrompt},
		{"improve", TaskImprovePrompt},
	}
	for _, tc := range tests {
		got, err := ParseTask(tc.in)
		if err != nil {
			t.Errorf("ParseTask(%q) error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseTask(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	_, err := ParseTask("summarize")
	assert.True(t, errors.Is(err, ErrUnknownTask))
}

func TestBuildPrompt(t *testing.T) {
	for _, kind := range Tasks {
		p, err := BuildPrompt(kind, "teh text")
		require.NoError(t, err, kind)
		assert.Contains(t, p, "teh text")
		assert.Contains(t, p, "Return ONLY")
	}

	_, err := BuildPrompt("summarize", "x")
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestBuildWordPrompt(t *testing.T) {
	want := "Fix spelling only. Return ONLY the corrected word, nothing else.\nInput: wrold\nCorrected:"
	assert.Equal(t, want, BuildWordPrompt("wrold"))
}

func TestFirstToken(t *testing.T) {
	assert.Equal(t, "hello", FirstToken("  hello world\n"))
	assert.Equal(t, "hello", FirstToken("hello\n\n(corrected)"))
	assert.Equal(t, "", FirstToken("   \n\t"))
}

// =============================================================================
// CORRECT WORD TESTS
// =============================================================================

func TestCorrectWord_UsesWordOptionsAndFirstToken(t *testing.T) {
	gen := &fakeGenerator{reply: " hello\nThe word was misspelled."}
	c := NewCorrector(gen, nil)

	got := c.CorrectWord(context.Background(), "helllo")
	assert.Equal(t, "hello", got)

	require.NotNil(t, gen.last.Options)
	assert.Equal(t, WordOptions, *gen.last.Options)
	assert.Equal(t, BuildWordPrompt("helllo"), gen.last.Prompt)
}

func TestCorrectWord_CachedLookupSkipsNetwork(t *testing.T) {
	gen := &fakeGenerator{reply: "hello"}
	rec := &countingRecorder{}
	c := NewCorrector(gen, cache.New(10), WithRecorder(rec))

	first := c.CorrectWord(context.Background(), "helllo")
	second := c.CorrectWord(context.Background(), "helllo")

	assert.Equal(t, first, second)
	assert.Equal(t, 1, gen.Calls(), "second lookup must be served from cache")
	assert.Equal(t, 1, rec.hits)
	assert.Equal(t, 1, rec.misses)
	assert.Equal(t, 1, rec.calls)
}

func TestCorrectWord_DegradesOnNetworkFailure(t *testing.T) {
	c := NewCorrector(deadClient(t), nil)

	got := c.CorrectWord(context.Background(), "wrold")
	assert.Equal(t, "wrold", got)
	assert.Equal(t, 0, c.Cache().Len(), "failures are not cached")
}

func TestCorrectWord_DegradesOnBadStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := NewCorrector(client, nil)

	assert.Equal(t, "wrold", c.CorrectWord(context.Background(), "wrold"))
}

func TestCorrectWord_DegradesOnEmptyReply(t *testing.T) {
	gen := &fakeGenerator{reply: "   "}
	c := NewCorrector(gen, nil)

	assert.Equal(t, "wrold", c.CorrectWord(context.Background(), "wrold"))
	assert.Equal(t, 0, c.Cache().Len())
}

func TestCorrectWord_ConcurrentCallsShareRequest(t *testing.T) {
	gen := &fakeGenerator{reply: "hello", release: make(chan struct{})}
	c := NewCorrector(gen, nil)

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.CorrectWord(context.Background(), "helllo")
		}(i)
	}

	// Let the first request reach the generator before releasing it.
	require.Eventually(t, func() bool { return gen.Calls() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gen.release)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "hello", r)
	}
	assert.LessOrEqual(t, gen.Calls(), 5)
	assert.Equal(t, 1, c.Cache().Len())
}

// =============================================================================
// PROCESS TEXT TESTS
// =============================================================================

func TestProcessText_CleansReply(t *testing.T) {
	gen := &fakeGenerator{reply: `Corrected text: "Hello world"`}
	c := NewCorrector(gen, nil)

	got, err := c.ProcessText(context.Background(), TaskCorrect, "helo wrold")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", got)

	require.NotNil(t, gen.last.Options)
	assert.Equal(t, TextOptions, *gen.last.Options)
	assert.True(t, strings.Contains(gen.last.Prompt, "helo wrold"))
}

func TestProcessText_PropagatesFailure(t *testing.T) {
	c := NewCorrector(deadClient(t), nil)

	got, err := c.ProcessText(context.Background(), TaskCorrect, "txt")
	require.Error(t, err)
	assert.Empty(t, got, "failure must not substitute the original text")
	assert.True(t, IsNotRunning(err))
}

func TestProcessText_UnknownTask(t *testing.T) {
	gen := &fakeGenerator{reply: "x"}
	c := NewCorrector(gen, nil)

	_, err := c.ProcessText(context.Background(), "summarize", "txt")
	assert.ErrorIs(t, err, ErrUnknownTask)
	assert.Equal(t, 0, gen.Calls())
}

func TestProcessText_DoesNotTouchWordCache(t *testing.T) {
	gen := &fakeGenerator{reply: "Fine."}
	c := NewCorrector(gen, nil)

	_, err := c.ProcessText(context.Background(), TaskRephrase, "fine")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Cache().Len())
}
