// Package coordinator drives assistant round trips for the open conversation.
//
// A send appends the user message right away, calls the assistant, and then
// either appends the reply and commits the conversation to the history index,
// or appends an apology and notifies the user. Every request carries a
// sequence number; a completion older than one already applied is dropped.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chatpanel/server/assistant"
	"github.com/chatpanel/server/history"
	"github.com/chatpanel/server/logger"
	"github.com/chatpanel/server/message"
	"github.com/chatpanel/server/notify"
	"github.com/chatpanel/server/session"
)

const logTextLimit = 50

// Kind identifies the call site of a request. It selects the apology text.
type Kind string

const (
	KindMessage       Kind = "message"
	KindKeywordSearch Kind = "keyword_search"
	KindSummary       Kind = "summary"
)

const (
	keywordSearchTemplate = "Find matches for the keyword: %s"
	summaryTemplate       = "Summarize the document at: %s"
)

var apologies = map[Kind]string{
	KindMessage:       "Sorry, I couldn't reach the assistant right now. Please try again in a moment.",
	KindKeywordSearch: "Sorry, I couldn't search for matches for that keyword. Please try again.",
	KindSummary:       "Sorry, I couldn't summarize that document. Please try again.",
}

var failureNotices = map[Kind]notify.Notification{
	KindMessage: {
		Title:       "Message failed",
		Description: "The assistant did not respond. Your message was kept in the conversation.",
		Severity:    notify.SeverityDestructive,
	},
	KindKeywordSearch: {
		Title:       "Keyword search failed",
		Description: "The assistant could not run the keyword search.",
		Severity:    notify.SeverityDestructive,
	},
	KindSummary: {
		Title:       "Summary failed",
		Description: "The assistant could not summarize the document.",
		Severity:    notify.SeverityDestructive,
	},
}

// Apology returns the text appended when a request of kind fails.
func Apology(kind Kind) string {
	if text, ok := apologies[kind]; ok {
		return text
	}
	return apologies[KindMessage]
}

// Result describes how a request ended. Err is nil on success, a
// *RequestError when the assistant call failed, ErrStaleResponse, or the
// history commit error.
type Result struct {
	Seq       uint64 `json:"seq"`
	SessionID string `json:"session_id,omitempty"`
	Reply     string `json:"reply,omitempty"`
	Err       error  `json:"-"`
}

func (r Result) OK() bool { return r.Err == nil }

type Option func(*Coordinator)

// WithTimeout bounds each assistant call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

func WithNotifier(n notify.Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

type Coordinator struct {
	store    *session.Store
	index    history.Store
	factory  *message.Factory
	client   assistant.Client
	notifier notify.Notifier
	timeout  time.Duration

	seq atomic.Uint64

	// applyMu serializes request issue, completions and conversation swaps;
	// applied is the highest sequence that can no longer reach the store.
	applyMu sync.Mutex
	applied uint64
}

func New(store *session.Store, index history.Store, factory *message.Factory, client assistant.Client, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		index:    index,
		factory:  factory,
		client:   client,
		notifier: notify.Discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var emptyNotices = map[Kind]notify.Notification{
	KindMessage: {
		Title:       "Empty message",
		Description: "Type a message before sending.",
		Severity:    notify.SeverityDefault,
	},
	KindKeywordSearch: {
		Title:       "No keyword",
		Description: "Enter a keyword to search for matches.",
		Severity:    notify.SeverityDefault,
	},
}

// Send submits text as a user message. Empty text notifies the user and is
// rejected with ErrEmptyMessage before anything changes. Failures of the
// assistant call are reported in Result.Err, never as the returned error.
func (c *Coordinator) Send(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, c.rejectEmpty(KindMessage)
	}
	return c.exchange(ctx, KindMessage, text), nil
}

func (c *Coordinator) SendKeywordSearch(ctx context.Context, keyword string) (Result, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return Result{}, c.rejectEmpty(KindKeywordSearch)
	}
	return c.exchange(ctx, KindKeywordSearch, fmt.Sprintf(keywordSearchTemplate, keyword)), nil
}

// SendSummaryRequest asks for a summary of filePath. A missing path notifies
// the user and returns ErrMissingFilePath without sending anything.
func (c *Coordinator) SendSummaryRequest(ctx context.Context, filePath string) (Result, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		c.notifier.Notify(notify.Notification{
			Title:       "No file selected",
			Description: "Select a resume file before asking for a summary.",
			Severity:    notify.SeverityDestructive,
		})
		return Result{}, ErrMissingFilePath
	}
	return c.exchange(ctx, KindSummary, fmt.Sprintf(summaryTemplate, filePath)), nil
}

func (c *Coordinator) rejectEmpty(kind Kind) error {
	c.notifier.Notify(emptyNotices[kind])
	return ErrEmptyMessage
}

// Replace marks every request issued so far as stale and runs swap, which
// replaces the open conversation, in the same critical section. A request
// is either issued before the swap, and dropped, or after it, and belongs
// to the new conversation.
func (c *Coordinator) Replace(swap func()) {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	if latest := c.seq.Load(); latest > c.applied {
		c.applied = latest
	}
	swap()
}

// begin takes a sequence number and appends the user message atomically
// with respect to Replace.
func (c *Coordinator) begin(text string) uint64 {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	seq := c.seq.Add(1)
	c.store.Append(c.factory.Create(text, true))
	c.store.Dispatch(session.RequestStarted{})
	return seq
}

func (c *Coordinator) exchange(ctx context.Context, kind Kind, text string) Result {
	seq := c.begin(text)
	defer c.store.Dispatch(session.RequestFinished{})
	log := slog.With("seq", seq, "kind", string(kind))

	log.Info("sending to assistant", "text", logger.Truncate(text, logTextLimit))

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, callErr := c.client.SendMessage(callCtx, text)

	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	if seq <= c.applied {
		log.Info("discarding stale response", "applied", c.applied, "failed", callErr != nil)
		return Result{Seq: seq, Err: ErrStaleResponse}
	}
	c.applied = seq

	if callErr != nil {
		return c.applyFailure(log, seq, kind, callErr)
	}
	return c.applyReply(ctx, log, seq, resp)
}

func (c *Coordinator) applyFailure(log *slog.Logger, seq uint64, kind Kind, err error) Result {
	log.Error("assistant request failed", "error", err)

	c.store.Append(c.factory.Create(Apology(kind), false))
	c.notifier.Notify(failureNotices[kind])

	return Result{
		Seq:       seq,
		SessionID: c.store.ActiveSessionID(),
		Err:       &RequestError{Kind: kind, Err: err},
	}
}

func (c *Coordinator) applyReply(ctx context.Context, log *slog.Logger, seq uint64, resp assistant.Response) Result {
	reply, ok := assistant.ExtractReply(resp)
	if !ok {
		log.Warn("assistant response has no usable reply",
			"shape", resp.Shape.String(),
			"raw", logger.Truncate(string(resp.Raw), 200))
		reply = assistant.NoResponseText
	}

	state := c.store.Append(c.factory.Create(reply, false))

	// The exchange is already visible, so it is committed even if the
	// caller has gone away.
	sessionID, err := c.index.Commit(context.WithoutCancel(ctx), state.ActiveSessionID, state.Messages)
	if err != nil {
		log.Error("failed to commit session", "sessionId", state.ActiveSessionID, "error", err)
		return Result{Seq: seq, SessionID: state.ActiveSessionID, Reply: reply, Err: err}
	}

	if sessionID != state.ActiveSessionID {
		c.store.Dispatch(session.ActiveSessionSet{SessionID: sessionID})
	}

	log.Info("exchange committed", "sessionId", sessionID, "messages", len(state.Messages))
	return Result{Seq: seq, SessionID: sessionID, Reply: reply}
}
