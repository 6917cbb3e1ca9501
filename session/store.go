// Package session holds the ordered message log of the conversation that is
// currently open, together with its advisory sending flag.
package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/chatpanel/server/message"
	"github.com/chatpanel/server/workspace"
)

const genericGreeting = "Hello! I'm your assistant. Select a resume or job description for tailored help, or just ask me anything."

// Greeting returns the synthesized first message text for ws.
func Greeting(ws *workspace.Context) string {
	if ws == nil || ws.Name == "" {
		return genericGreeting
	}
	return fmt.Sprintf("Hello! I'm ready to help with %q. Ask me anything about it, or use a quick action to get started.", ws.Name)
}

// Listener receives the state snapshot produced by each dispatched event.
type Listener func(State)

// Store is the single owner of the open conversation. All mutations go
// through Dispatch; it is safe for concurrent use.
type Store struct {
	factory *message.Factory

	mu        sync.RWMutex
	version   uint64
	messages  []message.Message
	inFlight  int
	activeID  string
	workspace *workspace.Context

	subMu     sync.RWMutex
	subs      map[int]Listener
	nextSubID int
}

// New creates a store already initialized with the greeting for ws.
func New(factory *message.Factory, ws *workspace.Context) *Store {
	s := &Store{
		factory: factory,
		subs:    make(map[int]Listener),
	}
	Initialized{Workspace: ws}.apply(s)
	return s
}

// Dispatch applies ev and notifies subscribers with the resulting snapshot.
func (s *Store) Dispatch(ev Event) State {
	s.mu.Lock()
	ev.apply(s)
	s.version++
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	slog.Debug("session event", "event", ev.name(), "version", snapshot.Version, "messages", len(snapshot.Messages))
	s.notify(snapshot)
	return snapshot
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(state State) {
	s.subMu.RLock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.subs[id])
	}
	s.subMu.RUnlock()

	for _, fn := range listeners {
		fn(state)
	}
}

func (s *Store) snapshotLocked() State {
	var ws *workspace.Context
	if s.workspace != nil {
		c := *s.workspace
		ws = &c
	}
	return State{
		Version:         s.version,
		Messages:        message.Clone(s.messages),
		IsSending:       s.inFlight > 0,
		ActiveSessionID: s.activeID,
		Workspace:       ws,
	}
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Messages returns a copy of the log.
func (s *Store) Messages() []message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return message.Clone(s.messages)
}

func (s *Store) IsSending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlight > 0
}

func (s *Store) ActiveSessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

func (s *Store) Workspace() *workspace.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.workspace == nil {
		return nil
	}
	c := *s.workspace
	return &c
}

func (s *Store) Initialize(ws *workspace.Context) State {
	return s.Dispatch(Initialized{Workspace: ws})
}

func (s *Store) Reset(ws *workspace.Context) State {
	return s.Dispatch(Reset{Workspace: ws})
}

func (s *Store) Append(msg message.Message) State {
	return s.Dispatch(Appended{Message: msg})
}

func (s *Store) ReplaceAll(sessionID string, msgs []message.Message) State {
	return s.Dispatch(Replaced{SessionID: sessionID, Messages: msgs})
}

func (e Initialized) apply(s *Store) {
	if e.Workspace != nil {
		c := *e.Workspace
		s.workspace = &c
	} else {
		s.workspace = nil
	}
	s.messages = []message.Message{s.factory.Create(Greeting(e.Workspace), false)}
}

func (e Reset) apply(s *Store) {
	Initialized(e).apply(s)
	s.activeID = ""
}

func (e Appended) apply(s *Store) {
	s.messages = append(s.messages, e.Message)
}

func (e Replaced) apply(s *Store) {
	s.messages = message.Clone(e.Messages)
	s.activeID = e.SessionID
}

func (e ActiveSessionSet) apply(s *Store) {
	s.activeID = e.SessionID
}

func (e RequestStarted) apply(s *Store) {
	s.inFlight++
}

func (e RequestFinished) apply(s *Store) {
	if s.inFlight > 0 {
		s.inFlight--
	}
}
