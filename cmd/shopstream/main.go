// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/aleutianai/shopstream/agent"
	"github.com/aleutianai/shopstream/backoff"
	"github.com/aleutianai/shopstream/catalog"
	"github.com/aleutianai/shopstream/contextwindow"
	"github.com/aleutianai/shopstream/datatypes"
	"github.com/aleutianai/shopstream/eventbus"
	"github.com/aleutianai/shopstream/observability"
	"github.com/aleutianai/shopstream/routes"
	"github.com/aleutianai/shopstream/session"
	"github.com/aleutianai/shopstream/store"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "localhost:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("shopstream")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// openStore picks the catalog backend from STORE_BACKEND: "badger" for the
// embedded persistent store, anything else for in-memory.
func openStore() (store.CatalogStore, error) {
	if strings.EqualFold(os.Getenv("STORE_BACKEND"), "badger") {
		cfg := store.DefaultBadgerConfig()
		cfg.Path = os.Getenv("BADGER_PATH")
		if cfg.Path == "" {
			cfg.Path = "/var/lib/shopstream/catalog"
		}
		cfg.Logger = slog.Default()
		return store.OpenBadger(cfg)
	}
	return store.NewMemory(), nil
}

// seedCatalog loads the product catalog from CATALOG_SEED, falling back to
// the embedded seed. Seeding is idempotent: products are upserts by id.
func seedCatalog(ctx context.Context, st store.CatalogStore) error {
	var (
		products []datatypes.Product
		err      error
	)
	if path := os.Getenv("CATALOG_SEED"); path != "" {
		products, err = store.LoadSeedFile(path)
		if err != nil {
			return err
		}
		slog.Info("catalog seed loaded", "path", path, "products", len(products))
	} else {
		products, err = store.DefaultSeed()
		if err != nil {
			return err
		}
		slog.Info("using embedded catalog seed", "products", len(products))
	}
	return store.Seed(ctx, st, products)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore()
	if err != nil {
		log.Fatalf("failed to open catalog store: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("store close failed", "error", err)
		}
	}()
	if err := seedCatalog(ctx, st); err != nil {
		log.Fatalf("failed to seed catalog: %v", err)
	}

	cat := catalog.NewService(st)
	tracker := contextwindow.New(contextwindow.DefaultConfig())
	bus := eventbus.New(eventbus.DefaultConfig())
	executor := agent.NewExecutor(cat, tracker)
	narrator := agent.NewNarrator(os.Getenv("AI_PROVIDER"), os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_MODEL"))
	orch := agent.NewOrchestrator(bus, agent.NewIntentPlanner(), executor, narrator)
	registry := session.NewRegistry(ctx, bus, tracker, cat, orch, session.DefaultTTL)

	observability.InitMetrics()
	observability.RegisterCacheStats(cat.Cache().Stats)
	observability.RegisterSessionGauge(registry.Len)

	var allowedOrigins []string
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		allowedOrigins = strings.Split(v, ",")
	}

	router := gin.Default()
	routes.SetupRoutes(router, routes.Deps{
		Registry:       registry,
		Bus:            bus,
		Tracker:        tracker,
		Catalog:        cat,
		Executor:       executor,
		Orch:           orch,
		Retry:          backoff.Default(),
		AllowedOrigins: allowedOrigins,
	})

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting shopstream server", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return registry.Run(gctx, 5*time.Minute)
	})
	g.Go(func() error {
		return contextwindow.NewSweeper(tracker, 10*time.Minute).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
	slog.Info("shutdown complete")
}
