// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import "errors"

// Action names a relay request kind. The names match the wire protocol.
type Action string

const (
	ActionCheckStatus      Action = "checkStatus"
	ActionProcessText      Action = "processText"
	ActionCorrectWord      Action = "correctWord"
	ActionCorrectSelection Action = "correctSelection"
	ActionGetText          Action = "getText"
	ActionSetText          Action = "setText"
	ActionReplaceSelection Action = "replaceSelection"
)

// Bus subjects the agents listen on.
const (
	SubjectBackground = "llmspell.relay.background"
	SubjectPage       = "llmspell.relay.page"
)

// Status values carried by StatusReply.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

var (
	// ErrUnknownAction is reported for requests no agent understands.
	ErrUnknownAction = errors.New("unknown action")

	// ErrNoText is reported by the popup when the focused field is empty.
	ErrNoText = errors.New("no text found")
)

// Request is the single request envelope. Fields that an action does not
// use stay empty.
type Request struct {
	ID     string `json:"id,omitempty"`
	Action Action `json:"action"`
	Task   string `json:"task,omitempty"`
	Text   string `json:"text,omitempty"`
	Word   string `json:"word,omitempty"`
}

// StatusReply answers checkStatus.
type StatusReply struct {
	Status string `json:"status"`
}

// Online reports whether the model service answered.
func (r StatusReply) Online() bool {
	return r.Status == StatusOnline
}

// ProcessReply answers processText and correctSelection.
type ProcessReply struct {
	Success       bool   `json:"success"`
	ProcessedText string `json:"processedText,omitempty"`
	Error         string `json:"error,omitempty"`
}

// WordReply answers correctWord.
type WordReply struct {
	Corrected string `json:"corrected"`
	Error     string `json:"error,omitempty"`
}

// TextReply answers getText. Text is nil when no field is focused.
type TextReply struct {
	Text  *string `json:"text"`
	Error string  `json:"error,omitempty"`
}

// SuccessReply answers setText and replaceSelection.
type SuccessReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// FailureReply builds the error variant of an action's reply. It is used
// when a request cannot be decoded, its handler panics, or a bridged
// agent does not answer.
func FailureReply(action Action, msg string) any {
	switch action {
	case ActionCheckStatus:
		return StatusReply{Status: StatusOffline}
	case ActionCorrectWord:
		return WordReply{Error: msg}
	case ActionGetText:
		return TextReply{Error: msg}
	case ActionSetText, ActionReplaceSelection:
		return SuccessReply{Error: msg}
	default:
		return ProcessReply{Error: msg}
	}
}
