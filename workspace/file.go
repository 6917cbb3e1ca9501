package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/chatpanel/server/logger"
)

const debounceInterval = 100 * time.Millisecond

type fileSchema struct {
	Name     string `toml:"name"`
	Type     string `toml:"type"`
	FilePath string `toml:"file_path"`
}

// FileProvider reads the selected workspace from a TOML file and reloads it
// when the file changes on disk.
//
//	name = "Jane Doe - Backend Engineer"
//	type = "resume"
//	file_path = "/data/resumes/jane.pdf"
type FileProvider struct {
	path    string
	watcher *fsnotify.Watcher

	mu       sync.RWMutex
	current  *Context
	listener OnChangeListener

	timerMu sync.Mutex
	timer   *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

func NewFileProvider(path string) (*FileProvider, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace file: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &FileProvider{path: abs, ctx: ctx, cancel: cancel}

	ws, err := readFile(abs)
	if err != nil {
		cancel()
		return nil, err
	}
	p.current = ws
	return p, nil
}

// readFile returns nil without error when the file does not exist.
func readFile(path string) (*Context, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read workspace file: %w", err)
	}

	var schema fileSchema
	if err := toml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse workspace file: %w", err)
	}
	if schema.Name == "" {
		return nil, nil
	}

	return &Context{
		Name:     schema.Name,
		Type:     ParseType(schema.Type),
		FilePath: schema.FilePath,
	}, nil
}

func (p *FileProvider) Current() *Context {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return clone(p.current)
}

func (p *FileProvider) SetOnChangeListener(listener OnChangeListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = listener
}

// Start watches the directory containing the file, so that editors which
// replace the file by rename are still observed.
func (p *FileProvider) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return err
	}
	p.watcher = watcher

	go p.eventLoop()
	slog.Info("workspace watcher started", "path", p.path)
	return nil
}

func (p *FileProvider) Stop() {
	p.cancel()
	if p.watcher != nil {
		p.watcher.Close()
	}

	p.timerMu.Lock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timerMu.Unlock()

	slog.Info("workspace watcher stopped")
}

func (p *FileProvider) eventLoop() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			p.scheduleReload()
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("workspace watcher error", "error", err)
		}
	}
}

func (p *FileProvider) scheduleReload() {
	p.timerMu.Lock()
	defer p.timerMu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(debounceInterval, p.reload)
}

func (p *FileProvider) reload() {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, "workspace reload panicked", "path", p.path)
		}
	}()

	if p.ctx.Err() != nil {
		return
	}

	ws, err := readFile(p.path)
	if err != nil {
		slog.Warn("failed to reload workspace file", "path", p.path, "error", err)
		return
	}

	p.mu.Lock()
	if equal(p.current, ws) {
		p.mu.Unlock()
		return
	}
	p.current = ws
	listener := p.listener
	p.mu.Unlock()

	slog.Info("workspace changed", "path", p.path, "present", ws != nil)
	if listener != nil {
		listener.OnWorkspaceChange(clone(ws))
	}
}

func equal(a, b *Context) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
