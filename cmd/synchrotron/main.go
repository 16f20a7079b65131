package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"synchrotron/internal/admin"
	"synchrotron/internal/config"
	"synchrotron/internal/logging"
	"synchrotron/internal/metrics"
	"synchrotron/internal/proxy"
)

var (
	version   = "0.1.0"
	buildTime = "development"
	gitCommit = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "synchrotron",
		Short:   "Layer-7 Redis sharding proxy",
		Version: fmt.Sprintf("%s (built: %s, commit: %s)", version, buildTime, gitCommit),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("SYNCHROTRON_CONFIG")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"version":    version,
		"build_time": buildTime,
		"commit":     gitCommit,
	}).Info("starting synchrotron")

	reg := prometheus.NewRegistry()
	metricsReg := metrics.NewRegistry(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proxyServer := proxy.NewServer(cfg, logger, metricsReg)
	if err := proxyServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start proxy listeners: %w", err)
	}
	logger.Info("proxy listeners started")

	shutdownFn := func(ctx context.Context, graceful bool) error {
		cancel()
		return nil
	}
	adminService := admin.NewService(proxyServer, shutdownFn, logger)
	adminServer := admin.NewServer(cfg.AdminAddr, adminService, logger)
	if err := adminServer.Start(); err != nil {
		return fmt.Errorf("failed to start admin server: %w", err)
	}

	statsMux := http.NewServeMux()
	statsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		healthy, _ := adminService.HealthCheck(r.Context())
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("UNAVAILABLE"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	statsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	statsMux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		stats, _ := adminService.GetStats(r.Context())
		body, err := json.Marshal(struct {
			Version       string            `json:"version"`
			UptimeSeconds float64           `json:"uptime_seconds"`
			Pools         []admin.PoolStats `json:"pools"`
		}{version, adminService.Uptime().Seconds(), stats})
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	})

	statsServer := &http.Server{
		Addr:    cfg.StatsAddr,
		Handler: statsMux,
	}
	go func() {
		logger.WithField("addr", cfg.StatsAddr).Info("starting stats server")
		if err := statsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("stats server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received, draining")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := statsServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("stats server shutdown error")
	}

	adminServer.Stop(5 * time.Second)
	proxyServer.Stop(shutdownCtx, cfg.DrainTimeout())
	adminService.Shutdown(shutdownCtx, true)

	logger.Info("shutdown complete")
	return nil
}
