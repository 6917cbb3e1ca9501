// Package workspace describes the subject a conversation is scoped to and
// the providers that report which workspace is currently selected.
package workspace

import "sync"

// Type classifies a workspace.
type Type string

const (
	TypeResume Type = "resume"
	TypeJD     Type = "jd"
	TypeOther  Type = "other"
)

// ParseType maps a raw string to a Type. Unknown values are TypeOther.
func ParseType(s string) Type {
	switch Type(s) {
	case TypeResume, TypeJD:
		return Type(s)
	default:
		return TypeOther
	}
}

// Context is consumed read-only by the conversation components.
type Context struct {
	Name     string `json:"name" toml:"name"`
	Type     Type   `json:"type" toml:"type"`
	FilePath string `json:"file_path,omitempty" toml:"file_path"`
}

// OnChangeListener is notified when the selected workspace changes.
// A nil workspace means none is selected.
type OnChangeListener interface {
	OnWorkspaceChange(ws *Context)
}

// ListenerFunc adapts a function to OnChangeListener.
type ListenerFunc func(ws *Context)

func (f ListenerFunc) OnWorkspaceChange(ws *Context) { f(ws) }

type Provider interface {
	// Current returns a copy of the selected workspace, or nil.
	Current() *Context
	SetOnChangeListener(listener OnChangeListener)
}

// StaticProvider holds a workspace set programmatically.
type StaticProvider struct {
	mu       sync.RWMutex
	current  *Context
	listener OnChangeListener
}

func NewStaticProvider(ws *Context) *StaticProvider {
	return &StaticProvider{current: clone(ws)}
}

func (p *StaticProvider) Current() *Context {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return clone(p.current)
}

func (p *StaticProvider) SetOnChangeListener(listener OnChangeListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = listener
}

// Set replaces the workspace and notifies the listener.
func (p *StaticProvider) Set(ws *Context) {
	p.mu.Lock()
	p.current = clone(ws)
	listener := p.listener
	p.mu.Unlock()

	if listener != nil {
		listener.OnWorkspaceChange(clone(ws))
	}
}

func clone(ws *Context) *Context {
	if ws == nil {
		return nil
	}
	c := *ws
	return &c
}
