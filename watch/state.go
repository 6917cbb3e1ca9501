package watch

import (
	"log/slog"
	"sync"

	"github.com/chatpanel/server/session"
)

// StateSource is implemented by *session.Store and *panel.Panel.
type StateSource interface {
	State() session.State
	Subscribe(fn session.Listener) func()
}

// StateWatcher pushes "chat.state.changed" after every session event.
// Snapshots are coalesced: subscribers always get the latest state, but
// intermediate ones may be skipped while a delivery is in progress.
type StateWatcher struct {
	*BaseWatcher
	source      StateSource
	unsubscribe func()

	pendingMu sync.Mutex
	pending   *session.State
	wake      chan struct{}
}

func NewStateWatcher(source StateSource) *StateWatcher {
	return &StateWatcher{
		BaseWatcher: NewBaseWatcher("st"),
		source:      source,
		wake:        make(chan struct{}, 1),
	}
}

func (w *StateWatcher) Start() error {
	w.unsubscribe = w.source.Subscribe(w.onState)
	go w.eventLoop()
	slog.Info("StateWatcher started")
	return nil
}

func (w *StateWatcher) Stop() {
	if w.unsubscribe != nil {
		w.unsubscribe()
	}
	w.Cancel()
	slog.Info("StateWatcher stopped")
}

func (w *StateWatcher) onState(state session.State) {
	if w.Context().Err() != nil {
		return
	}

	w.pendingMu.Lock()
	if w.pending == nil || state.Version > w.pending.Version {
		w.pending = &state
	}
	w.pendingMu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *StateWatcher) eventLoop() {
	for {
		select {
		case <-w.Context().Done():
			return
		case <-w.wake:
			w.pendingMu.Lock()
			state := w.pending
			w.pending = nil
			w.pendingMu.Unlock()

			if state != nil {
				w.notifyState(*state)
			}
		}
	}
}

func (w *StateWatcher) notifyState(state session.State) {
	if !w.HasSubscriptions() {
		return
	}

	n := w.NotifyAll("chat.state.changed", func(sub *Subscription) any {
		return stateChangedParams{ID: sub.ID, State: state}
	})
	slog.Debug("notified chat state change", "version", state.Version, "subscribers", n)
}

// Subscribe registers conn and returns the subscription id with the current
// state.
func (w *StateWatcher) Subscribe(conn Notifier, connID string) (string, session.State) {
	id := w.GenerateID()
	w.AddSubscription(&Subscription{ID: id, ConnID: connID, Conn: conn})

	slog.Debug("chat state subscription added", "watchId", id, "connId", connID)
	return id, w.source.State()
}

type stateChangedParams struct {
	ID    string        `json:"id"`
	State session.State `json:"state"`
}
