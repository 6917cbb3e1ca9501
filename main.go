package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chatpanel/server/api"
	"github.com/chatpanel/server/config"
	"github.com/chatpanel/server/history"
	"github.com/chatpanel/server/logger"
	"github.com/chatpanel/server/middleware"
	"github.com/chatpanel/server/startup"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func newHandler(token string, index history.Store, wsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /api/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"pong"}`))
	})

	api.NewHistoryHandler(index).Register(mux)

	mux.Handle("GET /ws", wsHandler)

	return middleware.Auth(token)(mux)
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string
	var showVersion bool

	cmd := &cobra.Command{
		Use:           "chatpanel",
		Short:         "Conversational assistant panel server",
		Long:          "chatpanel serves an assistant conversation scoped to a resume or job description over JSON-RPC on a WebSocket.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintf(cmd.OutOrStdout(), "chatpanel %s\n", version)
				return nil
			}

			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "config file (default ./chatpanel.toml or ~/.config/chatpanel/chatpanel.toml)")
	flags.Int("port", 8080, "server port")
	flags.String("auth-token", "", "authentication token (required)")
	flags.Bool("dev", false, "enable development mode")
	flags.BoolVar(&showVersion, "version", false, "print version and exit")

	bindings := map[string]string{
		config.KeyPort:      "port",
		config.KeyAuthToken: "auth-token",
		config.KeyDevMode:   "dev",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}

	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	logger.Init(logger.Config{DevMode: cfg.DevMode, Level: cfg.LogLevel})

	a, err := wireApp(cfg)
	if err != nil {
		return err
	}
	if err := a.start(); err != nil {
		a.stop()
		return err
	}

	port := strconv.Itoa(cfg.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: newHandler(cfg.AuthToken, a.index, a.wsHandler),
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()

		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		a.stop()
	}()

	workspaceName := ""
	if ws := a.panel.Workspace(); ws != nil {
		workspaceName = ws.Name
	}
	assistantURL := ""
	if !cfg.Assistant.Mock {
		assistantURL = cfg.Assistant.BaseURL + cfg.Assistant.Path
	}
	startup.PrintBanner(startup.BannerOptions{
		Version:   version,
		LocalURL:  "http://localhost:" + port,
		Assistant: assistantURL,
		Workspace: workspaceName,
		DevMode:   cfg.DevMode,
	})
	startup.PrintFooter()

	slog.Info("server starting",
		"port", port,
		"devMode", cfg.DevMode,
		"identity", string(cfg.Identity),
		"assistantTimeout", cfg.Assistant.Timeout)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		<-shutdownDone
		return fmt.Errorf("server error: %w", err)
	}
	<-shutdownDone
	slog.Info("server stopped")
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("chatpanel failed", "error", err)
		os.Exit(1)
	}
}
