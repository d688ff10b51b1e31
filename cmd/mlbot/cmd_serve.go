package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/mlbot/internal/dispatch"
	"github.com/user/mlbot/internal/notify"
	"github.com/user/mlbot/internal/state"
	"github.com/user/mlbot/internal/telemetry"
	"github.com/user/mlbot/internal/types"
	"github.com/user/mlbot/internal/webhook"
	"github.com/user/mlbot/pkg/mercadolibre"
)

const shutdownTimeout = 15 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logCloser := setupLogging(cfg)
	defer logCloser.Close()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics, shutdownMetrics, err := telemetry.SetupMetrics(ctx, telemetry.MetricsConfig{
		Enabled:  cfg.Metrics.Enabled,
		File:     cfg.MetricsFile(),
		Interval: cfg.MetricsInterval(),
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("set up metrics: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			slog.Warn("failed to flush metrics", "error", err)
		}
	}()

	manager, store, err := openAuth(cfg, metrics)
	if err != nil {
		return err
	}
	defer store.Close()

	messenger, err := newMessenger(cfg, metrics)
	if err != nil {
		return err
	}
	market := mercadolibre.New(mercadolibre.Config{
		BaseURL: cfg.MercadoLibre.APIBaseURL,
		Timeout: cfg.RequestTimeout(),
	})

	operator := types.ChatID(cfg.Telegram.ChatID)
	if operator == 0 {
		slog.Warn("telegram.chat_id not set: notifications will be dropped and any chat may issue commands")
	}

	router := notify.NewRouter(manager, market, messenger, notify.Config{
		OperatorChat:   operator,
		MaxConcurrent:  int64(cfg.MaxConcurrent),
		RequestTimeout: cfg.RequestTimeout(),
		Metrics:        metrics,
	})
	router.Start(ctx)
	defer router.Stop()

	dispatcher := dispatch.New(state.NewMemorySessionStore(), manager, market, messenger, dispatch.Config{
		OperatorChat:    operator,
		ProductPageSize: cfg.Commands.ProductPageSize,
		RecentLimit:     cfg.Commands.RecentLimit,
		RequestTimeout:  cfg.RequestTimeout(),
		AuthURL:         manager.AuthCodeURL(),
		Metrics:         metrics,
	})

	srv := webhook.NewServer(manager, router, dispatcher, messenger, webhook.Config{
		OperatorChat:  operator,
		WebhookSecret: cfg.Telegram.WebhookSecret,
		ChatTimeout:   2 * cfg.RequestTimeout(),
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("webhook server started", "listen", cfg.HTTP.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	slog.Info("mlbot started",
		"version", version,
		"bot", messenger.Username(),
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"operator_chat", operator,
		"metrics", cfg.Metrics.Enabled,
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	select {
	case err := <-serverErr:
		return fmt.Errorf("webhook server: %w", err)
	case sig := <-sigChan:
		shutdown(httpServer, router)
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			restart(pidPath, cfg.DataDir)
			// restart only returns when exec failed
			return fmt.Errorf("restart failed")
		}
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}

// shutdown stops accepting requests, lets in-flight ones finish and drains
// queued notifications.
func shutdown(httpServer *http.Server, router *notify.Router) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Warn("http shutdown incomplete", "error", err)
	}
	if !router.WaitIdle(shutdownTimeout) {
		slog.Warn("notification queue not drained before shutdown")
	}
}

// restart re-executes the binary in place with the same arguments.
func restart(pidPath, dataDir string) {
	execPath, err := os.Executable()
	if err != nil {
		slog.Error("failed to get executable path", "error", err)
		return
	}
	os.Remove(pidPath)
	if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
		slog.Error("failed to re-exec", "error", err)
		if _, writeErr := writePIDFile(dataDir); writeErr != nil {
			slog.Error("failed to re-write PID file", "error", writeErr)
		}
	}
}
