// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeranaias/llmspell/internal/bus"
	"github.com/jeranaias/llmspell/internal/page"
)

// DefaultTimeout bounds a relay round trip. Text tasks wait on the model,
// so it sits above the model client's own timeout.
const DefaultTimeout = 45 * time.Second

// Handler answers one relay request. The returned value is encoded as
// JSON and sent as the only reply.
type Handler interface {
	Handle(ctx context.Context, req Request) any
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) any

func (f HandlerFunc) Handle(ctx context.Context, req Request) any {
	return f(ctx, req)
}

// Serve subscribes h to subject. Every request gets exactly one reply: a
// request that cannot be decoded, or whose handler panics, gets the error
// variant of its reply type.
//
// Each request runs on its own goroutine, so a quick checkStatus is never
// queued behind a text task waiting on the model. Unsubscribe waits for
// requests still in flight.
func Serve(ctx context.Context, b bus.MessageBus, subject string, h Handler, logger *zap.Logger) (bus.Subscription, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &served{}
	sub, err := b.Subscribe(ctx, subject, func(msg *bus.Message) []byte {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			reply := dispatch(ctx, h, msg.Data, logger)
			if msg.ReplyTo == "" {
				return
			}
			if err := b.Publish(ctx, msg.ReplyTo, reply); err != nil {
				logger.Warn("RELAY_REPLY_FAILED", zap.String("subject", msg.Subject), zap.Error(err))
			}
		}()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Subscription = sub
	return s, nil
}

// served is the subscription returned by Serve.
type served struct {
	bus.Subscription
	wg sync.WaitGroup
}

// Unsubscribe stops new requests and waits for running ones to reply.
func (s *served) Unsubscribe() error {
	err := s.Subscription.Unsubscribe()
	s.wg.Wait()
	return err
}

func dispatch(ctx context.Context, h Handler, data []byte, logger *zap.Logger) (out []byte) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		logger.Warn("RELAY_DECODE_FAILED", zap.Error(err))
		return encode(FailureReply("", fmt.Sprintf("invalid request: %v", err)), logger)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("RELAY_HANDLER_PANIC",
				zap.String("action", string(req.Action)),
				zap.String("id", req.ID),
				zap.Any("panic", r),
			)
			out = encode(FailureReply(req.Action, fmt.Sprintf("internal error: %v", r)), logger)
		}
	}()

	start := time.Now()
	reply := h.Handle(ctx, req)
	logger.Debug("RELAY_REQUEST_COMPLETE",
		zap.String("action", string(req.Action)),
		zap.String("id", req.ID),
		zap.Duration("duration", time.Since(start)),
	)
	return encode(reply, logger)
}

func encode(v any, logger *zap.Logger) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("RELAY_ENCODE_FAILED", zap.Error(err))
		data, _ = json.Marshal(ProcessReply{Error: "encode reply: " + err.Error()})
	}
	return data
}

// =============================================================================
// CLIENT
// =============================================================================

// Client sends typed requests over the bus. Transport failures come back
// as errors; handler failures come back inside the reply.
type Client struct {
	bus     bus.MessageBus
	timeout time.Duration
}

// NewClient creates a client. A non-positive timeout uses DefaultTimeout.
func NewClient(b bus.MessageBus, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{bus: b, timeout: timeout}
}

func (c *Client) call(ctx context.Context, subject string, req Request, out any) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s: %w", req.Action, err)
	}
	reply, err := c.bus.Request(ctx, subject, data, c.timeout)
	if err != nil {
		return fmt.Errorf("%s: %w", req.Action, err)
	}
	if err := json.Unmarshal(reply, out); err != nil {
		return fmt.Errorf("decode %s reply: %w", req.Action, err)
	}
	return nil
}

// CheckStatus asks the background whether the model service is up. A
// transport failure reads as offline.
func (c *Client) CheckStatus(ctx context.Context) StatusReply {
	var r StatusReply
	if err := c.call(ctx, SubjectBackground, Request{Action: ActionCheckStatus}, &r); err != nil {
		return StatusReply{Status: StatusOffline}
	}
	return r
}

// ProcessText runs a text task in the background.
func (c *Client) ProcessText(ctx context.Context, task, text string) (ProcessReply, error) {
	var r ProcessReply
	err := c.call(ctx, SubjectBackground, Request{Action: ActionProcessText, Task: task, Text: text}, &r)
	return r, err
}

// CorrectWord asks the background to correct one word.
func (c *Client) CorrectWord(ctx context.Context, word string) (WordReply, error) {
	var r WordReply
	err := c.call(ctx, SubjectBackground, Request{Action: ActionCorrectWord, Word: word}, &r)
	return r, err
}

// CorrectSelection corrects text and writes the result over the page's
// selection.
func (c *Client) CorrectSelection(ctx context.Context, text string) (ProcessReply, error) {
	var r ProcessReply
	err := c.call(ctx, SubjectBackground, Request{Action: ActionCorrectSelection, Text: text}, &r)
	return r, err
}

// GetText reads the focused field's selection or value from the page.
// With no page agent listening the reply is the nothing-focused variant.
func (c *Client) GetText(ctx context.Context) (TextReply, error) {
	var r TextReply
	err := c.call(ctx, SubjectPage, Request{Action: ActionGetText}, &r)
	if errors.Is(err, bus.ErrNoResponders) {
		return TextReply{}, nil
	}
	return r, err
}

// SetText replaces the focused field's value on the page.
func (c *Client) SetText(ctx context.Context, text string) (SuccessReply, error) {
	return c.write(ctx, Request{Action: ActionSetText, Text: text})
}

// ReplaceSelection replaces the focused field's selection on the page.
func (c *Client) ReplaceSelection(ctx context.Context, text string) (SuccessReply, error) {
	return c.write(ctx, Request{Action: ActionReplaceSelection, Text: text})
}

// write sends a page mutation. With no page agent listening it fails the
// same way as a page with nothing focused.
func (c *Client) write(ctx context.Context, req Request) (SuccessReply, error) {
	var r SuccessReply
	err := c.call(ctx, SubjectPage, req, &r)
	if errors.Is(err, bus.ErrNoResponders) {
		return SuccessReply{Error: page.ErrNoFocusedField.Error()}, nil
	}
	return r, err
}
