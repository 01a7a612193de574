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

	flag "github.com/spf13/pflag"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/NavarchProject/spotorch/pkg/config"
)

func main() {
	v, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	var cfg *config.Config
	if path := v.GetString(ConfigPath); path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			logger.Error("failed to load config", slog.String("error", err.Error()))
			os.Exit(1)
		}
	} else {
		logger.Warn("no config file given, using development config")
		cfg = config.Default()
	}
	if addr := v.GetString(Address); addr != "" {
		cfg.Server.Address = addr
	}

	logger.Info("starting spot orchestrator control plane",
		slog.String("addr", cfg.Server.Address),
		slog.String("prefix", cfg.Orchestrator.Prefix),
		slog.String("provider", cfg.Provider.Type),
		slog.String("resource_type", cfg.Orchestrator.ResourceType),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	creds := secrets{
		AuthToken: v.GetString(AuthToken),
		WorkerKey: v.GetString(WorkerKey),
	}
	if creds.AuthToken == "" {
		creds.AuthToken = config.SecretFromEnv(cfg.Auth.TokenEnv)
	}
	if creds.WorkerKey == "" {
		creds.WorkerKey = config.SecretFromEnv(cfg.Auth.WorkerKeyEnv)
	}

	s, err := buildStack(ctx, cfg, creds, logger)
	if err != nil {
		logger.Error("failed to build control plane", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := s.controller.Restore(ctx); err != nil {
		logger.Error("failed to restore provisioning state", slog.String("error", err.Error()))
		os.Exit(1)
	}
	s.sweeper.Start(ctx)

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           h2c.NewHandler(s.handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", slog.String("error", err.Error()))
			serverErrChan <- err
		}
	}()

	logger.Info("control plane ready", slog.String("addr", cfg.Server.Address), slog.Int("regions", len(s.engine.Regions())))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serverErrChan:
		logger.Error("server error triggered shutdown", slog.String("error", err.Error()))
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	s.sweeper.Stop()
	// Stops the in-process ticker only; the durable switch is untouched and
	// Restore re-activates it on the next start.
	if s.schedule != nil {
		_ = s.schedule.Deactivate(shutdownCtx)
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
	}
	s.controller.Wait()
	if err := s.database.Close(); err != nil {
		logger.Error("error closing database", slog.String("error", err.Error()))
	}

	logger.Info("control plane stopped")
}
