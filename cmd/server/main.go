// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

// Command server runs the PumpMatch recommendation service: the HTTP API,
// the durable recommendation cache, the single-lane inference queue and the
// analytics pipeline, all under one supervision tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/clinicore/pumpmatch/internal/analytics"
	"github.com/clinicore/pumpmatch/internal/api"
	"github.com/clinicore/pumpmatch/internal/config"
	"github.com/clinicore/pumpmatch/internal/inference"
	"github.com/clinicore/pumpmatch/internal/logging"
	"github.com/clinicore/pumpmatch/internal/recommend"
	"github.com/clinicore/pumpmatch/internal/recommend/catalog"
	"github.com/clinicore/pumpmatch/internal/recommend/storage"
	"github.com/clinicore/pumpmatch/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pumpmatch: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Component("main")

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	logger.Info().
		Int("devices", len(cat.Devices)).
		Int("personas", len(cat.Personas)).
		Msg("catalog loaded")

	store, err := storage.Open(storage.Options{
		Path:      cfg.Store.Path,
		ScanLimit: cfg.Store.ScanLimit,
		Logger:    logging.Component("store"),
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	var provider inference.Provider
	if cfg.Inference.APIKey != "" {
		provider = inference.NewOpenAIProvider(cfg.Inference.BaseURL, cfg.Inference.APIKey, cfg.Inference.Model)
	} else {
		logger.Warn().Msg("no inference api key configured, free-text requests will use the fallback")
		provider = inference.DisabledProvider{}
	}

	queue := inference.NewQueue(inference.Config{
		MinInterval:             cfg.Inference.MinInterval,
		CallTimeout:             cfg.Inference.CallTimeout,
		RequestTimeout:          cfg.Inference.RequestTimeout,
		QueueSize:               cfg.Inference.QueueSize,
		BreakerFailureThreshold: cfg.Inference.BreakerFailureThreshold,
		BreakerOpenTimeout:      cfg.Inference.BreakerOpenTimeout,
	}, provider, logging.Component("inference"))

	bus := analytics.NewBus(logging.Component("analytics"))
	defer bus.Close()
	usage := analytics.NewUsageLog(1024)

	orch := recommend.NewOrchestrator(
		cat,
		recommend.NewPersonaEngine(cat),
		recommend.NewFeatureEngine(cat),
		queue,
		cfg.Catalog.FallbackSeed,
		logging.Component("orchestrator"),
	)
	svc := recommend.NewService(store, orch, bus, recommend.ServiceConfig{
		StrongHitThreshold: cfg.Cache.StrongHitThreshold,
		ScanThreshold:      cfg.Cache.ScanThreshold,
	}, logging.Component("service"))

	handler := api.NewHandler(svc, cat, usage, store, logging.Component("api"))
	httpServer := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      api.NewRouter(handler, cfg.Server),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	tree := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)
	tree.AddPipelineService(queue)
	tree.AddPipelineService(analytics.NewConsumer(bus, usage, logging.Component("analytics")))
	tree.AddPipelineService(supervisor.NewStorePruner(
		store, cfg.Store.MaxEntries, cfg.Store.PruneInterval, logging.Component("pruner")))
	tree.AddAPIService(supervisor.NewHTTPService(httpServer, treeCfg.ShutdownTimeout, logging.Component("http")))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("listen", cfg.Server.Listen).Msg("pumpmatch starting")
	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}
	logger.Info().Msg("pumpmatch stopped")
	return nil
}
