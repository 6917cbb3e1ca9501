package session

import (
	"github.com/chatpanel/server/message"
	"github.com/chatpanel/server/workspace"
)

// State is a snapshot of the open conversation. Version increases with every
// applied event so subscribers can drop out-of-order snapshots.
type State struct {
	Version         uint64             `json:"version"`
	Messages        []message.Message  `json:"messages"`
	IsSending       bool               `json:"is_sending"`
	ActiveSessionID string             `json:"active_session_id,omitempty"`
	Workspace       *workspace.Context `json:"workspace,omitempty"`
}

// Event is a state transition applied through Store.Dispatch.
type Event interface {
	apply(s *Store)
	name() string
}

// Initialized replaces the log with a single greeting for Workspace.
// The active session reference is left untouched.
type Initialized struct {
	Workspace *workspace.Context
}

// Reset is Initialized plus clearing the active session reference.
type Reset struct {
	Workspace *workspace.Context
}

// Appended adds Message to the end of the log.
type Appended struct {
	Message message.Message
}

// Replaced swaps in a historical log and makes SessionID the active session.
type Replaced struct {
	SessionID string
	Messages  []message.Message
}

// ActiveSessionSet records the session id assigned by the history index.
type ActiveSessionSet struct {
	SessionID string
}

// RequestStarted and RequestFinished bracket one assistant round trip.
type RequestStarted struct{}

type RequestFinished struct{}

func (e Initialized) name() string      { return "initialized" }
func (e Reset) name() string            { return "reset" }
func (e Appended) name() string         { return "appended" }
func (e Replaced) name() string         { return "replaced" }
func (e ActiveSessionSet) name() string { return "active_session_set" }
func (e RequestStarted) name() string   { return "request_started" }
func (e RequestFinished) name() string  { return "request_finished" }
