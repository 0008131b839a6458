// Package main is the entry point for the logward server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/logward-dev/logward/internal/api"
	"github.com/logward-dev/logward/internal/config"
	"github.com/logward-dev/logward/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	engineType, err := storage.ParseEngineType(cfg.Engine)
	if err != nil {
		logger.Error("failed to parse engine type", "error", err)
		os.Exit(1)
	}

	storageCfg := storage.DefaultConfig()
	storageCfg.Host = cfg.Storage.Host
	storageCfg.Port = cfg.Storage.Port
	storageCfg.Database = cfg.Storage.Database
	storageCfg.Username = cfg.Storage.Username
	storageCfg.Password = cfg.Storage.Password
	storageCfg.SkipSchemaInit = cfg.Storage.SkipSchemaInit
	if cfg.Storage.Table != "" {
		storageCfg.Table = cfg.Storage.Table
	}
	if storageCfg.Port == 0 {
		storageCfg.Port = defaultPort(engineType)
	}

	reservoir, err := storage.NewReservoir(engineType, storageCfg, storage.Options{Logger: logger})
	if err != nil {
		logger.Error("failed to create storage", "engine", cfg.Engine, "error", err)
		os.Exit(1)
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := reservoir.Initialize(initCtx); err != nil {
		cancel()
		logger.Error("failed to initialize storage", "engine", cfg.Engine, "error", err)
		os.Exit(1)
	}
	cancel()

	apiServer := api.NewServer(cfg.Server.Addr, reservoir)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("starting API server", "addr", cfg.Server.Addr, "engine", cfg.Engine)
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		logger.Error("server failed", "error", err)
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down API server", "error", err)
	}
	if err := reservoir.Close(shutdownCtx); err != nil {
		logger.Error("error closing storage", "error", err)
	}

	logger.Info("shutdown complete")
}

func defaultPort(engineType storage.EngineType) int {
	switch engineType {
	case storage.EngineClickHouse:
		return 9000
	default:
		return 5432
	}
}
