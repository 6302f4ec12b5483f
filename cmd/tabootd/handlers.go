package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jmagar/taboot"
	"github.com/jmagar/taboot/cache"
	"github.com/jmagar/taboot/ingest"
	"github.com/jmagar/taboot/reader"
	"github.com/jmagar/taboot/worker"
)

type handler struct {
	pipe   *taboot.Pipeline
	ingest *ingest.Service
	worker *worker.Worker
}

func newHandler(p *taboot.Pipeline, svc *ingest.Service, w *worker.Worker) *handler {
	return &handler{pipe: p, ingest: svc, worker: w}
}

// POST /extract/pending?limit=N
// Runs one extraction batch over PENDING documents.
func (h *handler) handleExtractPending(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	res, err := h.pipe.ProcessPending(ctx, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "extraction batch failed")
		slog.Error("extract pending error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// GET /extract/status
func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	services := h.pipe.Health(r.Context())
	status := "ok"
	for name, state := range services {
		if name == "graph" && state == "unconfigured" {
			continue
		}
		if name == "llm" {
			continue
		}
		if state != "ok" {
			status = "degraded"
		}
	}

	depths := map[string]int{}
	for _, q := range []string{cache.QueueExtraction, cache.QueueDLQ} {
		depth, err := h.pipe.Cache().QueueDepth(q)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "queue inspection failed")
			slog.Error("queue depth error", "queue", q, "error", err)
			return
		}
		depths[q] = depth
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"services": services,
		"queues":   depths,
		"metrics":  h.worker.Metrics().Snapshot(),
	})
}

// POST /ingest/compose
// Accepts a compose file body and runs the ingest use case on it.
func (h *handler) handleIngestCompose(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20)) // 10MB max
	if err != nil || len(body) == 0 {
		writeError(w, http.StatusBadRequest, "compose file body required")
		return
	}

	// The compose reader works on paths; stage the body in a temp file.
	tmp, err := os.CreateTemp("", "compose-*.yml")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stage compose file")
		slog.Error("creating temp file", "error", err)
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		writeError(w, http.StatusInternalServerError, "failed to stage compose file")
		slog.Error("writing temp file", "error", err)
		return
	}
	tmp.Close()

	res, err := h.ingest.Run(ctx, reader.NewComposeReader(tmpPath, taboot.Version))
	if err != nil {
		switch {
		case isClientError(err):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "ingestion failed")
		}
		slog.Error("compose ingest error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"filename": filepath.Base(tmpPath),
		"result":   res,
	})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": taboot.Version,
	})
}

func isClientError(err error) bool {
	for _, sentinel := range []error{
		reader.ErrMalformedYAML,
		reader.ErrInvalidPort,
		reader.ErrFileMissing,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
