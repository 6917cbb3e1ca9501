// Package notify surfaces out-of-band messages (toasts) to the user.
// Delivery is fire-and-forget: callers never learn whether anyone saw it.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

type Severity string

const (
	SeverityDefault     Severity = "default"
	SeverityDestructive Severity = "destructive"
)

type Notification struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity,omitempty"`
}

// Notifier must not block the caller for long.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// SlogNotifier writes notifications to the default logger. Destructive ones
// are logged at warn level.
type SlogNotifier struct{}

func (SlogNotifier) Notify(n Notification) {
	level := slog.LevelInfo
	if n.Severity == SeverityDestructive {
		level = slog.LevelWarn
	}
	slog.Default().Log(context.Background(), level, "notification",
		"title", n.Title,
		"description", n.Description,
		"severity", string(n.Severity))
}

// Multi fans a notification out to every registered notifier.
type Multi struct {
	mu        sync.RWMutex
	notifiers []Notifier
}

func NewMulti(notifiers ...Notifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		m.Add(n)
	}
	return m
}

func (m *Multi) Add(n Notifier) {
	if n == nil {
		return
	}
	m.mu.Lock()
	m.notifiers = append(m.notifiers, n)
	m.mu.Unlock()
}

func (m *Multi) Notify(n Notification) {
	m.mu.RLock()
	notifiers := make([]Notifier, len(m.notifiers))
	copy(notifiers, m.notifiers)
	m.mu.RUnlock()

	for _, target := range notifiers {
		target.Notify(n)
	}
}

// Discard drops every notification.
var Discard Notifier = NotifierFunc(func(Notification) {})
