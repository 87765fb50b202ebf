// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

// Package main is the entry point for the Dashfeed server.
//
// Dashfeed is the real-time metrics distribution core behind a business
// dashboard: it derives KPI snapshots (lead response compliance,
// conversion rates, marketing ROI, premium market rankings, revenue
// growth) from an operational PostgreSQL database it does not own, and
// distributes them over pull (REST) and push (WebSocket) channels.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 with layered sources (defaults, file, env)
//  2. Store accessor: retrying PostgreSQL reader with circuit-broken probe
//  3. Aggregator: per-topic KPI computations
//  4. Tiered cache: class-based TTLs with prefix invalidation
//  5. Broadcast hub: per-subscriber last-value-wins fan-out
//  6. Change notifier: dirty tracking and recompute scheduling
//  7. HTTP server: snapshots, stream, admin, health, metrics
//
// Long-running components run under a suture supervisor tree with two
// layers, so a crashing recompute loop restarts without dropping HTTP
// listeners.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 (highest priority wins):
//   - Environment variables (SERVER_PORT, DATABASE_DSN, ...)
//   - Config file (config.yaml)
//   - Built-in defaults
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server stops
// accepting connections and drains in-flight requests, stream clients
// receive close frames, and the recompute loop finishes in-flight work.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dashfeed/dashfeed/internal/aggregate"
	"github.com/dashfeed/dashfeed/internal/api"
	"github.com/dashfeed/dashfeed/internal/broadcast"
	"github.com/dashfeed/dashfeed/internal/cache"
	"github.com/dashfeed/dashfeed/internal/config"
	"github.com/dashfeed/dashfeed/internal/logging"
	"github.com/dashfeed/dashfeed/internal/notifier"
	"github.com/dashfeed/dashfeed/internal/store"
	"github.com/dashfeed/dashfeed/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	logging.Info().
		Str("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).
		Int("max_concurrent_recomputes", cfg.Notifier.MaxConcurrentRecomputes).
		Msg("Starting Dashfeed")

	st, err := store.New(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize store accessor")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	agg := aggregate.New(st)

	tiered := cache.New(cfg.Cache)
	defer tiered.Stop()

	hub := broadcast.NewHub()
	notif := notifier.New(agg, tiered, hub, cfg.Notifier)

	handler := api.NewHandler(notif, hub, tiered, st, cfg)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog supervision events.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	// The hub must be supervised alongside the notifier: snapshots
	// published while the hub loop is down are dropped, not queued.
	tree.AddPipelineService(supervisor.NewRunnerService("broadcast-hub", hub))
	tree.AddPipelineService(supervisor.NewRunnerService("change-notifier", notif))
	tree.AddAPIService(supervisor.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Dashfeed stopped gracefully")
}
