package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmagar/taboot"
	"github.com/jmagar/taboot/cache"
	"github.com/jmagar/taboot/ingest"
	"github.com/jmagar/taboot/worker"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg, err := taboot.LoadConfig(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	corsOrigins := os.Getenv("TABOOT_CORS_ORIGINS")
	apiKey := os.Getenv("TABOOT_API_KEY")

	pipe, err := taboot.New(cfg)
	if err != nil {
		slog.Error("creating pipeline", "error", err)
		os.Exit(1)
	}
	defer pipe.Close()

	// Provision the bootstrap API key. Empty disables auth (development).
	if apiKey != "" {
		err := pipe.APIKeys().Put(cache.APIKeyRecord{
			KeyHash:   cache.HashAPIKey(apiKey),
			Name:      "bootstrap",
			IsActive:  true,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			slog.Error("provisioning api key", "error", err)
			os.Exit(1)
		}
	}

	ingestOpts := []ingest.ServiceOption{ingest.WithQueue(pipe.Cache())}
	svc := ingest.NewService(pipe.Writer(), pipe.Docs(), ingestOpts...)

	dlq := worker.NewDLQ(pipe.Cache(), cfg.Worker.MaxRetries, cfg.Worker.BaseDelay)
	wrk := worker.New(pipe.Cache(), pipe.Docs(), pipe, dlq,
		worker.WithPollTimeout(cfg.Worker.PollTimeout))

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		wrk.Run(workerCtx)
		close(workerDone)
	}()

	var sweeper *worker.Sweeper
	if cfg.Worker.SweepInterval != "" {
		sweeper, err = worker.NewSweeper(pipe.Cache(), pipe.Docs(), cfg.Worker.SweepInterval)
		if err != nil {
			slog.Error("creating sweeper", "error", err)
			os.Exit(1)
		}
		sweeper.Start()
	}

	h := newHandler(pipe, svc, wrk)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /extract/pending", h.handleExtractPending)
	mux.HandleFunc("GET /extract/status", h.handleStatus)
	mux.HandleFunc("POST /ingest/compose", h.handleIngestCompose)
	mux.HandleFunc("GET /health", h.handleHealth)

	// Middleware chain: recovery -> cors -> auth -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	if apiKey != "" {
		handler = authMiddleware(pipe.APIKeys(), handler)
	}
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // batch extraction responses can be long
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down...")

	if sweeper != nil {
		sweeper.Stop()
	}
	wrk.Stop()
	stopWorker()
	<-workerDone

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
