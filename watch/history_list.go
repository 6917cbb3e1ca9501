package watch

import (
	"log/slog"

	"github.com/chatpanel/server/history"
)

const historyEventBuffer = 64

// HistoryListWatcher pushes "session.list.changed" when a conversation is
// committed to the history index. The index calls back under its lock, so
// events are queued and delivered from a separate goroutine.
type HistoryListWatcher struct {
	*BaseWatcher
	index   history.Store
	eventCh chan history.ChangeEvent
}

func NewHistoryListWatcher(index history.Store) *HistoryListWatcher {
	w := &HistoryListWatcher{
		BaseWatcher: NewBaseWatcher("hl"),
		index:       index,
		eventCh:     make(chan history.ChangeEvent, historyEventBuffer),
	}
	index.SetOnChangeListener(w)
	return w
}

func (w *HistoryListWatcher) Start() error {
	go w.eventLoop()
	slog.Info("HistoryListWatcher started")
	return nil
}

func (w *HistoryListWatcher) Stop() {
	w.Cancel()
	slog.Info("HistoryListWatcher stopped")
}

func (w *HistoryListWatcher) eventLoop() {
	for {
		select {
		case <-w.Context().Done():
			return
		case event := <-w.eventCh:
			w.notifyChange(event)
		}
	}
}

func (w *HistoryListWatcher) notifyChange(event history.ChangeEvent) {
	if !w.HasSubscriptions() {
		return
	}

	w.NotifyAll("session.list.changed", func(sub *Subscription) any {
		return historyListChangedParams{
			ID:        sub.ID,
			Operation: string(event.Op),
			Session:   event.Session,
		}
	})

	slog.Debug("notified session list change", "operation", event.Op, "sessionId", event.Session.ID)
}

// Subscribe registers conn and returns the subscription id with the current
// list, newest first.
func (w *HistoryListWatcher) Subscribe(conn Notifier, connID string) (string, []history.Summary) {
	id := w.GenerateID()
	// Subscribe before listing so no commit falls between the two.
	w.AddSubscription(&Subscription{ID: id, ConnID: connID, Conn: conn})

	sessions := w.index.List()
	slog.Debug("session list subscription added", "watchId", id, "connId", connID)
	return id, sessions
}

type historyListChangedParams struct {
	ID        string          `json:"id"`
	Operation string          `json:"operation"`
	Session   history.Summary `json:"session"`
}

// OnHistoryChange implements history.OnChangeListener. It never blocks; when
// the buffer is full the event is dropped.
func (w *HistoryListWatcher) OnHistoryChange(event history.ChangeEvent) {
	if w.Context().Err() != nil {
		return
	}

	select {
	case w.eventCh <- event:
	default:
		slog.Warn("session list change event dropped (buffer full)", "operation", event.Op)
	}
}
