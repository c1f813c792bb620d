package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ghusers/internal/api"
	"ghusers/internal/app"
	"ghusers/internal/config"
	"ghusers/internal/logging"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", config.ConfigPath(), "path to the JSON config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger.Logger, nil)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer a.Close()

	// Only the log level is live; everything else needs a restart.
	go func() {
		err := config.Watch(ctx, *configPath, logger.Logger, func(next *config.Config) {
			if err := logger.SetLevel(next.LogLevel); err != nil {
				logger.Warn("ignoring log level", zap.String("level", next.LogLevel), zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("config watch disabled", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(a.Users, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("starting server",
		zap.String("address", addr),
		zap.String("backend", cfg.Store.Backend),
		zap.String("base_ref", cfg.Store.BaseRef),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}
