// Command importer is the ingestion service's entry point: it loads
// configuration, wires every dependency through internal/di, starts the cron scheduler,
// and serves a small chi status/health HTTP surface until an OS signal asks it to stop.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jbelanger/exitbook/internal/config"
	"github.com/jbelanger/exitbook/internal/di"
	"github.com/jbelanger/exitbook/pkg/logger"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.Pretty})
	logger.SetGlobalLogger(log)
	log.Info().Str("data_dir", cfg.DataDir).Msg("starting importer")

	container, err := di.Build(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build dependency container")
	}
	defer func() {
		for _, closeErr := range container.Close() {
			log.Error().Err(closeErr).Msg("error during shutdown")
		}
	}()

	if err := di.RegisterJobs(container); err != nil {
		log.Fatal().Err(err).Msg("failed to register scheduled jobs")
	}
	if err := di.RegisterReliabilityJobs(container); err != nil {
		log.Fatal().Err(err).Msg("failed to register reliability jobs")
	}
	container.Scheduler.Start()
	defer container.Scheduler.Stop()

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           newRouter(container),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("status server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("status server failed")
		}
	}()

	waitForShutdown(log)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down status server")
	}

	log.Info().Msg("importer stopped")
}

func newRouter(container *di.Container) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{http.MethodGet}}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok"}
		if err := container.LedgerDB.QuickCheck(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "error": err.Error()}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})

	r.Get("/providers/health", func(w http.ResponseWriter, req *http.Request) {
		domains := container.Adapters.Names()
		out := make(map[string]any, len(domains))
		for _, d := range domains {
			out[d] = container.Stats.GetHealthMapForProviders(d, nil)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})

	return r
}

func waitForShutdown(log zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
}
