package watch

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/chatpanel/server/logger"
)

const notifyTimeout = 5 * time.Second

// Notifier is the part of *jsonrpc2.Conn used to push notifications.
type Notifier interface {
	Notify(ctx context.Context, method string, params any, opts ...jsonrpc2.CallOption) error
}

type Subscription struct {
	ID     string
	ConnID string
	Conn   Notifier
}

// BaseWatcher tracks subscriptions per connection and fans notifications out
// to them. Concrete watchers embed it.
type BaseWatcher struct {
	idPrefix string

	subMu         sync.RWMutex
	subscriptions map[string]*Subscription
	byConn        map[string]map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

func NewBaseWatcher(idPrefix string) *BaseWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &BaseWatcher{
		idPrefix:      idPrefix,
		subscriptions: make(map[string]*Subscription),
		byConn:        make(map[string]map[string]struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// GenerateID returns "<prefix>_<10 base32 chars>".
func (b *BaseWatcher) GenerateID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return b.idPrefix + "_" + strings.ToLower(base32.StdEncoding.EncodeToString(buf)[:10])
}

func (b *BaseWatcher) AddSubscription(sub *Subscription) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	b.subscriptions[sub.ID] = sub
	ids, ok := b.byConn[sub.ConnID]
	if !ok {
		ids = make(map[string]struct{})
		b.byConn[sub.ConnID] = ids
	}
	ids[sub.ID] = struct{}{}
}

// RemoveSubscription returns the removed subscription, or nil if id is unknown.
func (b *BaseWatcher) RemoveSubscription(id string) *Subscription {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	sub, ok := b.subscriptions[id]
	if !ok {
		return nil
	}
	delete(b.subscriptions, id)

	if ids := b.byConn[sub.ConnID]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(b.byConn, sub.ConnID)
		}
	}
	return sub
}

// Unsubscribe removes a subscription by id.
func (b *BaseWatcher) Unsubscribe(id string) {
	if b.RemoveSubscription(id) != nil {
		slog.Debug("subscription removed", "watchId", id)
	}
}

func (b *BaseWatcher) CleanupConnection(connID string) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	ids, ok := b.byConn[connID]
	if !ok {
		return
	}
	for id := range ids {
		delete(b.subscriptions, id)
	}
	delete(b.byConn, connID)

	slog.Debug("cleaned up connection subscriptions",
		"connId", connID,
		"count", len(ids))
}

func (b *BaseWatcher) snapshot() []*Subscription {
	b.subMu.RLock()
	defer b.subMu.RUnlock()

	subs := make([]*Subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	return subs
}

// NotifyAll sends method to every subscriber and returns how many were tried.
// makeParams is called once per subscription so params can carry its id.
// A panic while notifying one subscriber is logged and does not stop the rest.
func (b *BaseWatcher) NotifyAll(method string, makeParams func(sub *Subscription) any) int {
	subs := b.snapshot()
	for _, sub := range subs {
		b.notifyOne(sub, method, makeParams)
	}
	return len(subs)
}

func (b *BaseWatcher) notifyOne(sub *Subscription, method string, makeParams func(sub *Subscription) any) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, "notify subscriber panicked", "watchId", sub.ID, "connId", sub.ConnID, "method", method)
		}
	}()

	ctx, cancel := context.WithTimeout(b.ctx, notifyTimeout)
	defer cancel()
	if err := sub.Conn.Notify(ctx, method, makeParams(sub)); err != nil {
		slog.Debug("failed to notify subscriber",
			"watchId", sub.ID,
			"connId", sub.ConnID,
			"method", method,
			"error", err)
	}
}

func (b *BaseWatcher) Context() context.Context { return b.ctx }
func (b *BaseWatcher) Cancel()                  { b.cancel() }

func (b *BaseWatcher) HasSubscriptions() bool {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	return len(b.subscriptions) > 0
}

func (b *BaseWatcher) SubscriptionCount() int {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	return len(b.subscriptions)
}
