// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package offline

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNonLocalhost is returned for a remote host when only loopback is
	// allowed.
	ErrNonLocalhost = errors.New("only localhost/127.0.0.1 connections are allowed")

	// ErrInvalidURLScheme is returned when a URL scheme is not http or https.
	ErrInvalidURLScheme = errors.New("only http and https schemes are allowed")

	// ErrInvalidURL is returned for URLs that do not parse or have no host.
	ErrInvalidURL = errors.New("invalid URL")
)

// =============================================================================
// HOST CHECKS
// =============================================================================

// IsLocalhost reports whether host names the local machine. It accepts
// "localhost", the whole 127.0.0.0/8 range and every IPv6 loopback form,
// with or without a port or brackets.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))

	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// =============================================================================
// URL VALIDATION
// =============================================================================

// ValidateModelURL checks the model service URL. The scheme must be http
// or https. Unless allowRemote is set, the host must be loopback so typed
// text never leaves the machine.
func ValidateModelURL(rawURL string, allowRemote bool) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrInvalidURLScheme
	}
	if parsed.Hostname() == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if !allowRemote && !IsLocalhost(parsed.Hostname()) {
		return fmt.Errorf("%w: %s", ErrNonLocalhost, parsed.Hostname())
	}
	return nil
}

// ValidateBindHost checks the address the HTTP surface listens on. The
// surface relays page text, so it binds loopback unless allowRemote is set.
func ValidateBindHost(host string, allowRemote bool) error {
	if host == "" {
		return fmt.Errorf("%w: empty bind host", ErrInvalidURL)
	}
	if !allowRemote && !IsLocalhost(host) {
		return fmt.Errorf("%w: %s", ErrNonLocalhost, host)
	}
	return nil
}
