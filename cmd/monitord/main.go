// Package main is the entry point for the modelwatch monitoring daemon.
//
// The daemon wires the monitoring core together for deployments that
// run it as a sidecar next to the forecasting service: configuration is
// loaded, the SQLite store is opened, the monitoring facade is
// constructed, and a Prometheus /metrics listener is served. The
// forecasting service itself embeds the facade as a library; this
// binary exists for the observability surface and for periodic
// re-evaluation of every indexed metric.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/modelwatch/modelwatch/internal/alerting"
	"github.com/modelwatch/modelwatch/internal/config"
	"github.com/modelwatch/modelwatch/internal/db"
	"github.com/modelwatch/modelwatch/internal/logging"
	"github.com/modelwatch/modelwatch/internal/monitor"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	evalInterval := flag.Duration("eval-interval", 5*time.Minute, "interval between full metric re-evaluations")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := config.NewManager(*configPath)
	if err := manager.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := manager.Validate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := manager.Get(ctx)

	log, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	storage, err := db.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}
	defer storage.Close()

	facade := monitor.New(*cfg, storage, log, alerting.LogSink{Log: log.Named("alerts")})
	defer facade.Close()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if err := storage.Ping(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
		metricsServer = &http.Server{
			Addr:              cfg.Metrics.ListenAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("metrics listener started", zap.String("addr", cfg.Metrics.ListenAddress))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics listener failed", zap.Error(err))
			}
		}()
	}

	// Periodic sweep: re-evaluate every indexed metric so drift and
	// trend results stay fresh even when ingestion is driven entirely
	// by the embedding service.
	go func() {
		ticker := time.NewTicker(*evalInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				names, err := facade.MetricNames(ctx)
				if err != nil {
					log.Error("list metrics for sweep", zap.Error(err))
					continue
				}
				if err := facade.Evaluate(ctx, names, "manual"); err != nil {
					log.Error("periodic evaluation", zap.Error(err))
				}
			}
		}
	}()

	// React to config file changes without restarting.
	go func() {
		for updated := range manager.Watch(ctx) {
			log.Info("configuration reloaded",
				zap.Int("anomaly_window", updated.Anomaly.WindowSize),
				zap.Float64("drift_alpha", updated.Drift.Alpha))
		}
	}()

	log.Info("modelwatch started", zap.String("database", cfg.Database.Path))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("shutdown signal received")

	cancel()
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics listener shutdown", zap.Error(err))
		}
	}
	log.Info("shutdown complete")
}
