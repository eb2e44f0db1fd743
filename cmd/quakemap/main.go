package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/couchcryptid/quakemap/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/quakemap/internal/adapter/kafka"
	"github.com/couchcryptid/quakemap/internal/adapter/usgs"
	"github.com/couchcryptid/quakemap/internal/config"
	"github.com/couchcryptid/quakemap/internal/observability"
	"github.com/couchcryptid/quakemap/internal/render"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	bases, err := render.LoadBaseLayers(cfg.BasemapsFile)
	if err != nil {
		logger.Error("failed to load base layers", "error", err)
		os.Exit(1)
	}

	client := usgs.NewClient(cfg.FeedBaseURL, cfg.PlatesURL, cfg.FeedTimeout, metrics, logger)
	source := usgs.NewCachedSource(client, cfg.FeedCacheSize, cfg.FeedCacheTTL, clock, metrics)
	renderer := render.NewRenderer(source, bases, logger, metrics)

	// Marker publishing is feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS.
	var (
		publisher render.Publisher
		writer    *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("marker publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("marker publishing disabled")
	}

	ctrl := render.NewController(renderer, publisher, logger, metrics, render.Options{
		DefaultWindow:   cfg.DefaultWindow,
		RenderTimeout:   cfg.RenderTimeout,
		RefreshInterval: cfg.RefreshInterval,
		Clock:           clock,
	})

	srv, err := httpadapter.NewServer(httpadapter.Options{
		Addr:         cfg.HTTPAddr,
		CORSOrigins:  cfg.CORSOrigins,
		WriteTimeout: cfg.RenderTimeout + 10*time.Second,
	}, ctrl, renderer, logger)
	if err != nil {
		logger.Error("failed to create http server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Mount the default window and keep it fresh.
	go func() {
		if err := ctrl.Run(ctx); err != nil {
			logger.Error("controller error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	ctrl.Wait()
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
