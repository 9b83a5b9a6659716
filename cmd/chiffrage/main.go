// Chiffrage - tariff-driven calculation engine for vehicle expertise reports.
// Copyright (c) 2026 expertise-auto
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/expertise-auto/chiffrage/internal/api"
	"github.com/expertise-auto/chiffrage/internal/bus"
	"github.com/expertise-auto/chiffrage/internal/cache"
	"github.com/expertise-auto/chiffrage/internal/domain"
	"github.com/expertise-auto/chiffrage/internal/fees"
	"github.com/expertise-auto/chiffrage/internal/report"
	"github.com/expertise-auto/chiffrage/internal/repository"
	"github.com/expertise-auto/chiffrage/internal/stats"
	"github.com/expertise-auto/chiffrage/internal/tariff"
	"github.com/expertise-auto/chiffrage/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("CHIFFRAGE_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting chiffrage",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("CHIFFRAGE_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize the tariff resolver with the fallback schedule.
	// Rules live in the database only; resolution always reads the live
	// table so tariff corrections take effect without a restart.
	resolver, err := tariff.NewResolver(repo, cfg.Defaults)
	if err != nil {
		slog.Error("failed to initialize tariff resolver", "error", err)
		os.Exit(1)
	}
	slog.Info("tariff resolver initialized",
		"default_hourly_rate", cfg.Defaults.HourlyRate,
		"default_travel_rate_per_km", cfg.Defaults.TravelRatePerKm,
	)

	// Initialize Fee Calculator
	feeCalc := fees.NewCalculator(resolver)

	// Initialize Report Service
	reports := report.NewService(repo, resolver, feeCalc, busImpl)
	slog.Info("report service initialized")

	// Initialize Statistics Service
	statsSvc := stats.NewService(repo, cacheImpl, 30*24*time.Hour)
	slog.Info("statistics service initialized")

	// Initialize async Worker
	asyncWorker := worker.NewWorker(busImpl, reports, statsSvc)
	if err := asyncWorker.Start(); err != nil {
		slog.Error("failed to start async worker", "error", err)
		os.Exit(1)
	}
	slog.Info("async worker started")

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, resolver, reports, statsSvc, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("chiffrage is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop async worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("chiffrage shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("                 CHIFFRAGE")
	fmt.Println("     Vehicle Expertise Calculation Engine")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /v1/reports                        - Create an expertise report")
	fmt.Println("    GET    /v1/reports/{id}                   - Get a report with its line items")
	fmt.Println("    POST   /v1/reports/{id}/recalculate       - Recompute the report total")
	fmt.Println("    GET    /v1/reports/{id}/breakdown         - Price the full estimate")
	fmt.Println("    PUT    /v1/reports/{id}/status            - Advance the report workflow")
	fmt.Println("    PUT    /v1/reports/{id}/supplies/{sid}    - Update a supply line")
	fmt.Println("    GET    /v1/tariffs                        - List tariff rules")
	fmt.Println("    POST   /v1/tariffs                        - Create a tariff rule")
	fmt.Println("    PUT    /v1/tariffs/{id}                   - Update a tariff rule")
	fmt.Println("    DELETE /v1/tariffs/{id}                   - Deactivate a tariff rule")
	fmt.Println("    GET    /v1/stats                          - Activity overview")
	fmt.Println("    GET    /health                            - Health check")
	fmt.Println()
}
