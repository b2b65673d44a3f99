// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/jeranaias/llmspell/internal/bus"
	"github.com/jeranaias/llmspell/internal/relay"
)

const (
	wsPingInterval = 20 * time.Second
	wsPingTimeout  = 5 * time.Second

	// maxFrameSize bounds a single page reply. Field values can be long.
	maxFrameSize = MaxRequestBodySize
)

// PageBridge lets a page agent living elsewhere (a content script, a
// browser host on another process) serve relay page requests. Each
// WebSocket connection subscribes to the page subject; requests are
// written to the socket as JSON and the agent answers with a reply that
// echoes the request id.
type PageBridge struct {
	bus     bus.MessageBus
	cors    *CORSConfig
	timeout time.Duration
	logger  *zap.Logger

	connected atomic.Int64
}

// NewPageBridge creates a bridge over b. Upgrades are accepted from
// extension origins, origins listed in cors, the server's own host and
// clients that send no Origin at all.
func NewPageBridge(b bus.MessageBus, cors *CORSConfig, timeout time.Duration, logger *zap.Logger) *PageBridge {
	if timeout <= 0 {
		timeout = relay.DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cors == nil {
		cors = DefaultCORSConfig(nil)
	}
	return &PageBridge{bus: b, cors: cors, timeout: timeout, logger: logger}
}

// Connected returns the number of page agents currently attached.
func (b *PageBridge) Connected() int64 {
	return b.connected.Load()
}

// ServeHTTP upgrades the request and serves the connection until either
// side closes it.
func (b *PageBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !b.originAllowed(r) {
		b.logger.Warn("PAGE_AGENT_ORIGIN_REJECTED", zap.String("origin", r.Header.Get("Origin")))
		writeError(w, http.StatusForbidden, "origin not allowed")
		return
	}

	// The origin was checked above; websocket's own check only knows host
	// patterns, which cannot express extension schemes.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		b.logger.Warn("PAGE_AGENT_UPGRADE_FAILED", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxFrameSize)

	err = b.serve(r.Context(), conn)
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		if err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Debug("PAGE_AGENT_READ_ENDED", zap.Error(err))
		}
		conn.Close(websocket.StatusInternalError, "bridge closed")
	}
}

func (b *PageBridge) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return b.cors.isOriginAllowed(origin)
}

func (b *PageBridge) serve(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := &remotePage{
		conn:    conn,
		timeout: b.timeout,
		pending: make(map[string]chan []byte),
	}

	sub, err := b.bus.Subscribe(ctx, relay.SubjectPage, func(msg *bus.Message) []byte {
		return p.forward(ctx, msg.Data)
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	b.connected.Add(1)
	defer b.connected.Add(-1)
	b.logger.Info("PAGE_AGENT_CONNECTED", zap.Int64("connected", b.connected.Load()))
	defer b.logger.Info("PAGE_AGENT_DISCONNECTED")

	go ping(ctx, conn)
	return p.readLoop(ctx)
}

func ping(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, wsPingTimeout)
			_ = conn.Ping(pingCtx)
			cancel()
		}
	}
}

// remotePage correlates requests written to one socket with the replies
// read from it.
type remotePage struct {
	conn    *websocket.Conn
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan []byte
}

// forward sends one relay request to the remote agent and waits for its
// reply. A missing reply becomes the action's error variant so the
// requester is never left waiting past the bridge timeout.
func (p *remotePage) forward(ctx context.Context, data []byte) []byte {
	var req relay.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return mustJSON(relay.FailureReply("", "invalid request: "+err.Error()))
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
		data, _ = json.Marshal(req)
	}

	ch := make(chan []byte, 1)
	p.mu.Lock()
	p.pending[req.ID] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, req.ID)
		p.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return mustJSON(relay.FailureReply(req.Action, "page agent unreachable: "+err.Error()))
	}

	select {
	case reply := <-ch:
		return reply
	case <-ctx.Done():
		return mustJSON(relay.FailureReply(req.Action, "page agent did not answer"))
	}
}

// readLoop routes replies to their waiting requests until the socket
// fails. Frames without a known id are dropped.
func (p *remotePage) readLoop(ctx context.Context) error {
	for {
		_, data, err := p.conn.Read(ctx)
		if err != nil {
			return err
		}

		var envelope struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(data, &envelope) != nil || envelope.ID == "" {
			continue
		}

		p.mu.Lock()
		ch, ok := p.pending[envelope.ID]
		p.mu.Unlock()
		if !ok {
			continue
		}
		select {
		case ch <- data:
		default:
		}
	}
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"error":"encode reply"}`)
	}
	return data
}
