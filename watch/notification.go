package watch

import (
	"log/slog"

	"github.com/chatpanel/server/notify"
)

const notificationBuffer = 32

// NotificationWatcher delivers notify.Notification values to every
// registered connection as "notify" notifications. It implements
// notify.Notifier, so the coordinator can use it directly.
type NotificationWatcher struct {
	*BaseWatcher
	queue chan notify.Notification
}

func NewNotificationWatcher() *NotificationWatcher {
	return &NotificationWatcher{
		BaseWatcher: NewBaseWatcher("nt"),
		queue:       make(chan notify.Notification, notificationBuffer),
	}
}

func (w *NotificationWatcher) Start() error {
	go w.eventLoop()
	slog.Info("NotificationWatcher started")
	return nil
}

func (w *NotificationWatcher) Stop() {
	w.Cancel()
	slog.Info("NotificationWatcher stopped")
}

func (w *NotificationWatcher) eventLoop() {
	for {
		select {
		case <-w.Context().Done():
			return
		case n := <-w.queue:
			w.NotifyAll("notify", func(*Subscription) any { return n })
		}
	}
}

// Register adds conn as a recipient. Connections are registered once
// authenticated and removed by CleanupConnection.
func (w *NotificationWatcher) Register(conn Notifier, connID string) string {
	id := w.GenerateID()
	w.AddSubscription(&Subscription{ID: id, ConnID: connID, Conn: conn})
	return id
}

// Notify implements notify.Notifier. It never blocks.
func (w *NotificationWatcher) Notify(n notify.Notification) {
	if w.Context().Err() != nil || !w.HasSubscriptions() {
		return
	}

	select {
	case w.queue <- n:
	default:
		slog.Warn("notification dropped (buffer full)", "title", n.Title)
	}
}

var _ notify.Notifier = (*NotificationWatcher)(nil)
