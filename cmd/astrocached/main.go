// astrocached runs the multi-tier cache engine with its operational HTTP
// API. The engine itself is a library; this daemon exists for deployments
// that want the metrics/analytics/invalidation surface exposed out of
// process.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/siderealhq/astrocache/internal/api"
	"github.com/siderealhq/astrocache/internal/config"
	"github.com/siderealhq/astrocache/pkg/cache"
	"github.com/siderealhq/astrocache/pkg/observability"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	bootLogger := observability.NewStandardLogger("astrocached")

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger.Error("failed to load configuration", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	logger := observability.NewStandardLoggerWithLevel("astrocached", observability.ParseLogLevel(cfg.Logging.Level))
	metrics := observability.NewPrometheusMetrics("astrocache")

	engine, err := cache.New(cfg.Cache, logger, metrics)
	if err != nil {
		logger.Error("failed to construct cache engine", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	server := api.NewServer(engine, logger, metrics)
	httpServer := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("ops API listening", map[string]interface{}{"addr": cfg.Server.ListenAddress})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down", nil)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
	// Close drains any queued write-behind writes before dropping the L2
	// connection.
	if err := engine.Close(ctx); err != nil {
		logger.Warn("engine shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
}
