// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the daemon's local HTTP surface.
//
// Every model and page operation is forwarded over the relay, so the
// handlers only translate HTTP to relay requests and relay replies back to
// JSON. Task failures keep the relay's result variants and answer 200;
// only transport failures change the status code.
//
// # Endpoints
//
//   - GET  /health                     - Daemon and model service health
//   - GET  /stats                      - Request counters
//   - GET  /v1/status                  - checkStatus
//   - POST /v1/process                 - processText {task, text}
//   - POST /v1/correct-word            - correctWord {word}
//   - POST /v1/correct-selection       - Context menu correction
//   - GET  /v1/page/text               - getText
//   - PUT  /v1/page/text               - setText {text}
//   - POST /v1/page/replace-selection  - replaceSelection {text}
//   - GET  /v1/page/ws                 - WebSocket for remote page agents
//   - GET  /v1/settings                - Stored settings
//   - PUT  /v1/settings                - Partial settings update
//   - GET  /cache/stats                - Correction cache statistics
//   - POST /cache/clear                - Clear the correction cache
//   - GET  /metrics                    - Prometheus metrics
//
// # Middleware
//
//   - Panic recovery with a logged stack
//   - Security headers (nosniff, DENY framing, no-store)
//   - CORS for browser extension origins plus configured origins
//   - Request logging and HTTP metrics labelled by route pattern
//   - Per-IP token bucket rate limiting
//
// # Key Types
//
//   - Server: router, middleware and lifecycle
//   - PageBridge: relays page requests to agents connected over WebSocket
//   - RateLimiter: per-IP limiter with idle pruning
//
// # Usage
//
//	srv := server.NewServer(cfg.Server, relay.NewClient(b, 0)).
//		WithLogger(logger).
//		WithBus(b).
//		WithCache(c).
//		WithMetrics(metrics)
//	if err := srv.Run(ctx); err != nil {
//		return err
//	}
package server
