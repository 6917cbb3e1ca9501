// Package rpc defines the JSON-RPC 2.0 params and results exchanged over the
// WebSocket.
package rpc

import (
	"errors"

	"github.com/chatpanel/server/coordinator"
	"github.com/chatpanel/server/history"
	"github.com/chatpanel/server/quickaction"
	"github.com/chatpanel/server/session"
)

// Client → Server

type AuthParams struct {
	Token string `json:"token"`
}

type AuthResult struct {
	Version string `json:"version"`
}

type SendParams struct {
	Text string `json:"text"`
}

type KeywordSearchParams struct {
	Keyword string `json:"keyword"`
}

type QuickActionParams struct {
	Action string `json:"action"`
}

type SessionLoadParams struct {
	SessionID string `json:"session_id"`
}

type UnsubscribeParams struct {
	ID string `json:"id"`
}

// Server → Client

type SendStatus string

const (
	SendStatusOK     SendStatus = "ok"
	SendStatusFailed SendStatus = "failed"
	SendStatusStale  SendStatus = "stale"
)

type SendResult struct {
	Seq       uint64     `json:"seq"`
	Status    SendStatus `json:"status"`
	SessionID string     `json:"session_id,omitempty"`
	Reply     string     `json:"reply,omitempty"`
	// Kind is the call site of a failed assistant request.
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error,omitempty"`
}

// Fixed failure texts. The underlying errors are logged by the coordinator
// and never sent to clients.
const (
	SendErrorAssistant = "The assistant could not be reached."
	SendErrorNotSaved  = "The conversation could not be saved to history."
)

func NewSendResult(r coordinator.Result) SendResult {
	out := SendResult{
		Seq:       r.Seq,
		Status:    SendStatusOK,
		SessionID: r.SessionID,
		Reply:     r.Reply,
	}
	switch {
	case r.Err == nil:
	case errors.Is(r.Err, coordinator.ErrStaleResponse):
		out.Status = SendStatusStale
	default:
		out.Status = SendStatusFailed
		var reqErr *coordinator.RequestError
		if errors.As(r.Err, &reqErr) {
			out.Kind = string(reqErr.Kind)
			out.Error = SendErrorAssistant
		} else {
			out.Error = SendErrorNotSaved
		}
	}
	return out
}

type QuickActionResult struct {
	Action  quickaction.Action `json:"action"`
	Prefill string             `json:"prefill,omitempty"`
	Sent    bool               `json:"sent"`
	Result  *SendResult        `json:"result,omitempty"`
}

func NewQuickActionResult(o quickaction.Outcome) QuickActionResult {
	out := QuickActionResult{Action: o.Action, Prefill: o.Prefill, Sent: o.Sent}
	if o.Result != nil {
		res := NewSendResult(*o.Result)
		out.Result = &res
	}
	return out
}

type SessionListResult struct {
	Sessions []history.Summary `json:"sessions"`
}

type SessionListSubscribeResult struct {
	ID       string            `json:"id"`
	Sessions []history.Summary `json:"sessions"`
}

type StateSubscribeResult struct {
	ID    string        `json:"id"`
	State session.State `json:"state"`
}
