// Package history indexes committed conversations by session id so they can
// be listed and reopened. Storage is in memory only.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chatpanel/server/message"
)

const (
	TitleMaxLen   = 30
	PreviewMaxLen = 50
	ellipsis      = "..."
	defaultTitle  = "New Chat"
)

type Store interface {
	// Commit creates a record when activeID is empty, otherwise replaces the
	// log of the existing record. It returns the session id.
	Commit(ctx context.Context, activeID string, msgs []message.Message) (string, error)
	Load(ctx context.Context, sessionID string) ([]message.Message, error)
	Get(sessionID string) (Record, bool)
	// List returns summaries newest-first.
	List() []Summary
	Len() int

	SetOnChangeListener(listener OnChangeListener)
}

// MemoryStore is an insertion-ordered index, newest record first.
type MemoryStore struct {
	ids message.IDGenerator
	now func() time.Time

	mu       sync.RWMutex
	records  []*Record
	byID     map[string]*Record
	listener OnChangeListener
}

func NewMemoryStore(ids message.IDGenerator) *MemoryStore {
	return &MemoryStore{
		ids:  ids,
		now:  time.Now,
		byID: make(map[string]*Record),
	}
}

func (s *MemoryStore) SetOnChangeListener(listener OnChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = listener
}

func (s *MemoryStore) notifyChange(event ChangeEvent) {
	if s.listener != nil {
		s.listener.OnHistoryChange(event)
	}
}

func (s *MemoryStore) Commit(ctx context.Context, activeID string, msgs []message.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "", ErrEmptyLog
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if activeID == "" {
		first, _ := message.FirstUser(msgs)
		rec := &Record{
			ID:        s.ids.NewID(),
			Title:     deriveLabel(first.Text, TitleMaxLen),
			Preview:   deriveLabel(first.Text, PreviewMaxLen),
			Timestamp: now,
			Messages:  message.Clone(msgs),
		}

		s.records = append([]*Record{rec}, s.records...)
		s.byID[rec.ID] = rec

		slog.Debug("history session created", "sessionId", rec.ID, "messages", len(msgs))
		s.notifyChange(ChangeEvent{Op: OperationCreate, Session: rec.summary()})
		return rec.ID, nil
	}

	rec, ok := s.byID[activeID]
	if !ok {
		slog.Error("commit against unknown session", "sessionId", activeID)
		return "", fmt.Errorf("%w: no session %q", ErrIndexInconsistent, activeID)
	}

	rec.Messages = message.Clone(msgs)
	rec.Timestamp = now

	s.notifyChange(ChangeEvent{Op: OperationUpdate, Session: rec.summary()})
	return rec.ID, nil
}

func (s *MemoryStore) Load(ctx context.Context, sessionID string) ([]message.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return message.Clone(rec.Messages), nil
}

func (s *MemoryStore) Get(sessionID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[sessionID]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

func (s *MemoryStore) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Summary, len(s.records))
	for i, rec := range s.records {
		result[i] = rec.summary()
	}
	return result
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// deriveLabel keeps the first limit runes of text, marking truncation.
func deriveLabel(text string, limit int) string {
	if text == "" {
		return defaultTitle
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + ellipsis
}
