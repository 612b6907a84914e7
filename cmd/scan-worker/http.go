package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/orbitguard/orbitguard/config"
	"github.com/orbitguard/orbitguard/internal/ingest/cadfeed"
	"github.com/orbitguard/orbitguard/internal/services/ingest"
	"github.com/orbitguard/orbitguard/internal/services/scanner"
)

type workerHTTPOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	worker   *scanner.Worker
	ingester *ingest.Service
	cfg      *config.Config
}

func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.worker == nil {
			_, _ = w.Write([]byte(`{"error":"worker not wired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(opts.worker.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.cfg == nil {
			_, _ = w.Write([]byte(`{"error":"config not wired"}`))
			return
		}
		// Avoid dumping secrets; show only operational worker settings.
		out := map[string]any{
			"pollIntervalSeconds":     opts.cfg.OrbitGuard.WorkerPollIntervalSeconds,
			"maxJobsPerRun":           opts.cfg.OrbitGuard.WorkerMaxJobsPerRun,
			"feedMode":                opts.cfg.OrbitGuard.FeedMode,
			"feedDistMaxAu":           opts.cfg.OrbitGuard.FeedDistMaxAU,
			"feedFetchesPerHour":      opts.cfg.OrbitGuard.FeedFetchesPerHour,
			"feedSyncIntervalSeconds": opts.cfg.OrbitGuard.FeedSyncIntervalSeconds,
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.worker == nil {
			_, _ = w.Write([]byte(`{"error":"worker not wired"}`))
			return
		}
		opts.worker.Trigger()
		_, _ = w.Write([]byte(`{"triggered":true}`))
	})

	r.Post("/sync", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.ingester == nil {
			_, _ = w.Write([]byte(`{"error":"ingester not wired"}`))
			return
		}
		var distMaxAU string
		if opts.cfg != nil {
			distMaxAU = opts.cfg.OrbitGuard.FeedDistMaxAU
		}
		res, err := opts.ingester.Sync(r.Context(), cadfeed.Query{DistMaxAU: distMaxAU})
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(res)
	})

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}
