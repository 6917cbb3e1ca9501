// Package message builds the immutable records that make up a conversation.
package message

import (
	"time"
)

// Message is a single entry in a conversation. Values are never mutated
// after Create returns them; copy semantics keep stored logs independent.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	IsUser    bool      `json:"is_user"`
	Timestamp time.Time `json:"timestamp"`
}

// Factory creates messages with generated identity and timestamp.
type Factory struct {
	ids IDGenerator
	now func() time.Time
}

type FactoryOption func(*Factory)

// WithClock overrides the wall-clock source.
func WithClock(now func() time.Time) FactoryOption {
	return func(f *Factory) { f.now = now }
}

func NewFactory(ids IDGenerator, opts ...FactoryOption) *Factory {
	f := &Factory{
		ids: ids,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns a new message. It is pure apart from the id and timestamp.
func (f *Factory) Create(text string, isUser bool) Message {
	return Message{
		ID:        f.ids.NewID(),
		Text:      text,
		IsUser:    isUser,
		Timestamp: f.now(),
	}
}

// Clone returns a copy of msgs that shares no backing array with the input.
func Clone(msgs []Message) []Message {
	if msgs == nil {
		return []Message{}
	}
	copied := make([]Message, len(msgs))
	copy(copied, msgs)
	return copied
}

// FirstUser returns the first message authored by the user.
func FirstUser(msgs []Message) (Message, bool) {
	for _, m := range msgs {
		if m.IsUser {
			return m, true
		}
	}
	return Message{}, false
}
