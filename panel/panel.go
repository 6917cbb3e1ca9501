// Package panel is the facade the transport layer talks to. It owns no state
// of its own: the open conversation lives in the session store and committed
// conversations in the history index.
package panel

import (
	"context"
	"log/slog"

	"github.com/chatpanel/server/coordinator"
	"github.com/chatpanel/server/history"
	"github.com/chatpanel/server/quickaction"
	"github.com/chatpanel/server/session"
	"github.com/chatpanel/server/workspace"
)

type Panel struct {
	store       *session.Store
	index       history.Store
	coordinator *coordinator.Coordinator
	dispatcher  *quickaction.Dispatcher
	workspaces  workspace.Provider
}

// New wires the panel and registers it as the workspace change listener.
func New(store *session.Store, index history.Store, coord *coordinator.Coordinator, dispatcher *quickaction.Dispatcher, workspaces workspace.Provider) *Panel {
	p := &Panel{
		store:       store,
		index:       index,
		coordinator: coord,
		dispatcher:  dispatcher,
		workspaces:  workspaces,
	}
	workspaces.SetOnChangeListener(p)
	return p
}

func (p *Panel) State() session.State {
	return p.store.State()
}

// Subscribe forwards to the session store.
func (p *Panel) Subscribe(fn session.Listener) func() {
	return p.store.Subscribe(fn)
}

func (p *Panel) Workspace() *workspace.Context {
	return p.workspaces.Current()
}

func (p *Panel) Sessions() []history.Summary {
	return p.index.List()
}

func (p *Panel) Send(ctx context.Context, text string) (coordinator.Result, error) {
	return p.coordinator.Send(ctx, text)
}

func (p *Panel) KeywordSearch(ctx context.Context, keyword string) (coordinator.Result, error) {
	return p.coordinator.SendKeywordSearch(ctx, keyword)
}

// QuickAction runs action against the workspace the conversation was
// initialized with.
func (p *Panel) QuickAction(ctx context.Context, action quickaction.Action) (quickaction.Outcome, error) {
	return p.dispatcher.Dispatch(ctx, action, p.store.Workspace())
}

// NewChat starts a fresh conversation. Replies still in flight are dropped.
func (p *Panel) NewChat() session.State {
	var state session.State
	p.coordinator.Replace(func() {
		state = p.store.Reset(p.workspaces.Current())
	})
	slog.Info("new chat started")
	return state
}

// LoadSession replaces the open conversation with a committed one. Further
// exchanges update that record.
func (p *Panel) LoadSession(ctx context.Context, sessionID string) (session.State, error) {
	msgs, err := p.index.Load(ctx, sessionID)
	if err != nil {
		return session.State{}, err
	}

	var state session.State
	p.coordinator.Replace(func() {
		state = p.store.ReplaceAll(sessionID, msgs)
	})
	slog.Info("session loaded", "sessionId", sessionID, "messages", len(msgs))
	return state, nil
}

// OnWorkspaceChange implements workspace.OnChangeListener.
func (p *Panel) OnWorkspaceChange(ws *workspace.Context) {
	p.coordinator.Replace(func() {
		p.store.Reset(ws)
	})

	name := ""
	if ws != nil {
		name = ws.Name
	}
	slog.Info("workspace changed, conversation reset", "workspace", name)
}
