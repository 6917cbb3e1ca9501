// Package quickaction turns named shortcuts into outgoing requests or
// prefilled message text, depending on the current workspace.
package quickaction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chatpanel/server/coordinator"
	"github.com/chatpanel/server/notify"
	"github.com/chatpanel/server/workspace"
)

type Action string

const (
	ActionSummarize Action = "summarize"
	ActionMatch     Action = "match"
)

const (
	matchResumePrefill = "find job matches for this resume"
	matchJDPrefill     = "find candidate matches for this job"
)

type Reason string

const (
	ReasonNoFileSelected     Reason = "no file selected"
	ReasonWrongWorkspaceType Reason = "wrong workspace type"
	ReasonUnsupportedAction  Reason = "unsupported action"
)

var reasonNotices = map[Reason]notify.Notification{
	ReasonNoFileSelected: {
		Title:       "No file selected",
		Description: "Select a resume file to summarize.",
		Severity:    notify.SeverityDestructive,
	},
	ReasonWrongWorkspaceType: {
		Title:       "Summary unavailable",
		Description: "Summaries are only available for resumes.",
		Severity:    notify.SeverityDestructive,
	},
	ReasonUnsupportedAction: {
		Title:       "Unknown action",
		Description: "This quick action is not supported.",
		Severity:    notify.SeverityDestructive,
	},
}

// ValidationError is returned when an action cannot run in the current
// workspace. No request has been sent.
type ValidationError struct {
	Action Action
	Reason Reason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("quick action %q: %s", e.Action, e.Reason)
}

// Outcome is either a prefill (the caller still has to send it) or the result
// of a request that was sent. Both are empty when the action does nothing.
type Outcome struct {
	Action  Action              `json:"action"`
	Prefill string              `json:"prefill,omitempty"`
	Sent    bool                `json:"sent"`
	Result  *coordinator.Result `json:"result,omitempty"`
}

// Summarizer is implemented by *coordinator.Coordinator.
type Summarizer interface {
	SendSummaryRequest(ctx context.Context, filePath string) (coordinator.Result, error)
}

type Dispatcher struct {
	summarizer Summarizer
	notifier   notify.Notifier
}

func NewDispatcher(summarizer Summarizer, notifier notify.Notifier) *Dispatcher {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Dispatcher{summarizer: summarizer, notifier: notifier}
}

func (d *Dispatcher) Dispatch(ctx context.Context, action Action, ws *workspace.Context) (Outcome, error) {
	switch action {
	case ActionSummarize:
		return d.summarize(ctx, ws)
	case ActionMatch:
		return Outcome{Action: action, Prefill: matchPrefill(ws)}, nil
	default:
		return Outcome{Action: action}, d.reject(action, ReasonUnsupportedAction)
	}
}

func (d *Dispatcher) summarize(ctx context.Context, ws *workspace.Context) (Outcome, error) {
	if ws == nil || ws.Type != workspace.TypeResume {
		return Outcome{Action: ActionSummarize}, d.reject(ActionSummarize, ReasonWrongWorkspaceType)
	}
	if strings.TrimSpace(ws.FilePath) == "" {
		return Outcome{Action: ActionSummarize}, d.reject(ActionSummarize, ReasonNoFileSelected)
	}

	res, err := d.summarizer.SendSummaryRequest(ctx, ws.FilePath)
	if err != nil {
		return Outcome{Action: ActionSummarize}, err
	}
	return Outcome{Action: ActionSummarize, Sent: true, Result: &res}, nil
}

func matchPrefill(ws *workspace.Context) string {
	if ws == nil {
		return ""
	}
	switch ws.Type {
	case workspace.TypeResume:
		return matchResumePrefill
	case workspace.TypeJD:
		return matchJDPrefill
	default:
		return ""
	}
}

func (d *Dispatcher) reject(action Action, reason Reason) error {
	slog.Info("quick action rejected", "action", string(action), "reason", string(reason))
	d.notifier.Notify(reasonNotices[reason])
	return &ValidationError{Action: action, Reason: reason}
}
