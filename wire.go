package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/chatpanel/server/assistant"
	"github.com/chatpanel/server/config"
	"github.com/chatpanel/server/coordinator"
	"github.com/chatpanel/server/history"
	"github.com/chatpanel/server/message"
	"github.com/chatpanel/server/notify"
	"github.com/chatpanel/server/panel"
	"github.com/chatpanel/server/quickaction"
	"github.com/chatpanel/server/session"
	"github.com/chatpanel/server/watch"
	"github.com/chatpanel/server/workspace"
	"github.com/chatpanel/server/ws"
)

type app struct {
	panel     *panel.Panel
	index     history.Store
	wsHandler *ws.RPCHandler

	watchers  []watch.Watcher
	workspace *workspace.FileProvider
}

func wireApp(cfg config.Config) (*app, error) {
	ids := message.NewIDGenerator(cfg.Identity)
	factory := message.NewFactory(ids)

	var provider workspace.Provider
	var fileProvider *workspace.FileProvider
	if cfg.WorkspaceFile != "" {
		fp, err := workspace.NewFileProvider(cfg.WorkspaceFile)
		if err != nil {
			return nil, fmt.Errorf("wire workspace provider: %w", err)
		}
		provider, fileProvider = fp, fp
	} else {
		provider = workspace.NewStaticProvider(nil)
	}

	client, err := newAssistantClient(cfg.Assistant)
	if err != nil {
		return nil, fmt.Errorf("wire assistant client: %w", err)
	}

	store := session.New(factory, provider.Current())
	index := history.NewMemoryStore(ids)

	notifications := watch.NewNotificationWatcher()
	notifier := notify.NewMulti(notify.SlogNotifier{}, notifications)

	coord := coordinator.New(store, index, factory, client,
		coordinator.WithTimeout(cfg.Assistant.Timeout),
		coordinator.WithNotifier(notifier))
	dispatcher := quickaction.NewDispatcher(coord, notifier)
	p := panel.New(store, index, coord, dispatcher, provider)

	watchers := ws.Watchers{
		HistoryList:   watch.NewHistoryListWatcher(index),
		State:         watch.NewStateWatcher(p),
		Notifications: notifications,
	}

	return &app{
		panel:     p,
		index:     index,
		wsHandler: ws.NewRPCHandler(cfg.AuthToken, version, cfg.DevMode, p, watchers),
		watchers:  []watch.Watcher{watchers.HistoryList, watchers.State, watchers.Notifications},
		workspace: fileProvider,
	}, nil
}

func newAssistantClient(cfg config.AssistantConfig) (assistant.Client, error) {
	if cfg.Mock {
		slog.Warn("using mock assistant")
		return assistant.NewMockClient(), nil
	}
	return assistant.NewHTTPClient(assistant.HTTPConfig{
		BaseURL: cfg.BaseURL,
		Path:    cfg.Path,
		Token:   cfg.Token,
	}, &http.Client{})
}

func (a *app) start() error {
	for _, w := range a.watchers {
		if err := w.Start(); err != nil {
			return err
		}
	}
	if a.workspace != nil {
		if err := a.workspace.Start(); err != nil {
			return fmt.Errorf("start workspace watcher: %w", err)
		}
	}
	return nil
}

func (a *app) stop() {
	if a.workspace != nil {
		a.workspace.Stop()
	}
	for _, w := range a.watchers {
		w.Stop()
	}
}
