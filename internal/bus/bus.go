// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bus

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when a request times out waiting for a reply.
	ErrTimeout = errors.New("request timeout")

	// ErrNoResponders is returned when nothing is subscribed to a request subject.
	ErrNoResponders = errors.New("no responders available")

	// ErrClosed is returned when operating on a closed bus.
	ErrClosed = errors.New("bus closed")
)

// MessageBus carries relay traffic between agents. Implementations must be
// safe for concurrent use.
type MessageBus interface {
	// Publish sends data to every subscriber of subject without waiting.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers handler for subject. Messages for one subscription
	// are handled in order on a single goroutine. "*" matches one token and
	// ">" matches the rest of the subject.
	Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error)

	// Request sends data and waits for the first reply. A non-positive
	// timeout waits until ctx is done.
	Request(ctx context.Context, subject string, data []byte, timeout time.Duration) ([]byte, error)

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// MessageHandler processes one message. For a request, the returned bytes
// are the reply; nil sends nothing.
type MessageHandler func(msg *Message) []byte

// Message is an incoming message.
type Message struct {
	Subject string
	Data    []byte
	ReplyTo string
}

// Subscription is an active subscription.
type Subscription interface {
	Unsubscribe() error
	Subject() string
}

// Config configures a NATS-backed bus.
type Config struct {
	// URL of the NATS server. Empty selects the in-memory bus.
	URL string

	// Name identifies the client to the server.
	Name string

	// Timeout bounds connecting.
	Timeout time.Duration
}

// DefaultConfig returns the in-memory configuration.
func DefaultConfig() Config {
	return Config{
		Name:    "llmspell",
		Timeout: 5 * time.Second,
	}
}

// Open returns a NATS bus when cfg.URL is set and an in-memory bus otherwise.
func Open(cfg Config) (MessageBus, error) {
	if cfg.URL == "" {
		return NewMemoryBus(), nil
	}
	return NewNATSBus(cfg)
}
