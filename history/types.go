package history

import (
	"time"

	"github.com/chatpanel/server/message"
)

// Record is a committed conversation: metadata plus its full message log.
type Record struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Preview   string            `json:"preview"`
	Timestamp time.Time         `json:"timestamp"`
	Messages  []message.Message `json:"messages"`
}

// Summary is a Record without its log, used for enumeration.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Preview      string    `json:"preview"`
	Timestamp    time.Time `json:"timestamp"`
	MessageCount int       `json:"message_count"`
}

func (r *Record) summary() Summary {
	return Summary{
		ID:           r.ID,
		Title:        r.Title,
		Preview:      r.Preview,
		Timestamp:    r.Timestamp,
		MessageCount: len(r.Messages),
	}
}

func (r *Record) clone() Record {
	c := *r
	c.Messages = message.Clone(r.Messages)
	return c
}

type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
)

type ChangeEvent struct {
	Op      Operation
	Session Summary
}

// OnChangeListener is called with the index lock held and must not block.
type OnChangeListener interface {
	OnHistoryChange(event ChangeEvent)
}
