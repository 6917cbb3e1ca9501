package watch

// Watcher is the lifecycle shared by all watchers. Subscribe differs per
// watcher and is not part of it.
type Watcher interface {
	Start() error
	Stop()
	CleanupConnection(connID string)
}

var (
	_ Watcher = (*HistoryListWatcher)(nil)
	_ Watcher = (*StateWatcher)(nil)
	_ Watcher = (*NotificationWatcher)(nil)
)
