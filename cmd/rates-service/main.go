package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/LavaJover/shvark-rates-service/internal/app/background"
	"github.com/LavaJover/shvark-rates-service/internal/app/setup"
	"github.com/LavaJover/shvark-rates-service/internal/domain"
	"github.com/LavaJover/shvark-rates-service/internal/usecase"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("failed to load .env")
	}
	// Reading config and building the dependency graph
	deps, err := setup.InitializeDependencies()
	if err != nil {
		log.Fatalf("failed to init dependencies: %v", err)
	}
	cfg := deps.Config

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Фоновые циклы: прелоадер и чистка кеша
	preloader := deps.Preloader
	if cfg.PreloadConfig.Disabled {
		preloader = nil
	}
	tasks := background.NewBackgroundTasks(deps.Cache, deps.Metrics, preloader, cfg.CacheConfig.SweepInterval)
	tasks.StartAll(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		reqCtx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		report := deps.RatesUsecase.HealthCheck(reqCtx)
		w.Header().Set("Content-Type", "application/json")
		if report.Status == domain.HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(report); err != nil {
			slog.Error("failed to encode health report", "error", err.Error())
		}
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		stats := struct {
			Performance usecase.PerformanceStats `json:"performance"`
			Preload     []usecase.PreloadStatus  `json:"preload"`
		}{
			Performance: deps.RatesUsecase.PerformanceStats(),
			Preload:     deps.Preloader.Status(),
		}
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			slog.Error("failed to encode performance stats", "error", err.Error())
		}
	})

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.HTTPServer.Host, cfg.HTTPServer.Port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP shutdown error: %v\n", err)
		}
	}()

	log.Printf("rates service started on %s:%s\n", cfg.HTTPServer.Host, cfg.HTTPServer.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("failed to serve: %v\n", err)
	}

	if preloader != nil {
		preloader.Stop()
	}
	if deps.RatePublisher != nil {
		if err := deps.RatePublisher.Close(); err != nil {
			log.Printf("kafka publisher close error: %v\n", err)
		}
	}
	log.Println("rates service stopped")
}
