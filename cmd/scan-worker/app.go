package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/orbitguard/orbitguard/config"
	"github.com/orbitguard/orbitguard/internal/broker/kafka"
	"github.com/orbitguard/orbitguard/internal/cache/rediscache"
	"github.com/orbitguard/orbitguard/internal/ingest/cadfeed"
	"github.com/orbitguard/orbitguard/internal/ingest/cadfeed/cadhttp"
	"github.com/orbitguard/orbitguard/internal/ingest/cadfeed/fake"
	"github.com/orbitguard/orbitguard/internal/services/ingest"
	"github.com/orbitguard/orbitguard/internal/services/scanner"
	"github.com/orbitguard/orbitguard/internal/storage/pgscan"
)

// storage is what the worker needs from postgres: the scan side
// (claim/complete/fail plus risk and alert writes) and the ingest side
// (approach events and object upserts). pgscan.Storage satisfies both.
type storage interface {
	scanner.Repository
	ingest.Repository
}

type workerFactories struct {
	newStorage     func(cfg *config.Config) (repo storage, closeFn func(), err error)
	newProducer    func(cfg *config.Config) scanner.Producer
	newRateLimiter func(cfg *config.Config) ingest.RateLimiter
	newFeedClient  func(cfg *config.Config) cadfeed.Client
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (storage, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgscan.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) scanner.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) ingest.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newFeedClient: func(cfg *config.Config) cadfeed.Client {
			// The real feed is opt-in; local runs default to the fake.
			if cfg.OrbitGuard.FeedMode == "jpl" {
				return cadhttp.New(cfg.OrbitGuard.FeedBaseURL)
			}
			return fake.New()
		},
	}
}

func RunScanWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	topic := cfg.Kafka.AlertRaisedTopicName
	if topic == "" {
		topic = "alert.raised"
	}

	pollInterval := time.Duration(cfg.OrbitGuard.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	maxJobsPerRun := cfg.OrbitGuard.WorkerMaxJobsPerRun
	if maxJobsPerRun <= 0 {
		maxJobsPerRun = 50
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)
	feed := f.newFeedClient(cfg)

	w := scanner.New(repo, producer, topic).
		WithSettings(pollInterval, maxJobsPerRun)

	ing := ingest.New(repo, feed, rl, int64(cfg.OrbitGuard.FeedFetchesPerHour))

	if cfg.OrbitGuard.WorkerHTTPAddr != "" {
		go func() {
			err := runWorkerHTTPServer(ctx, workerHTTPOpts{
				httpAddr: cfg.OrbitGuard.WorkerHTTPAddr,
				worker:   w,
				ingester: ing,
				cfg:      cfg,
			})
			if err != nil && err != context.Canceled {
				slog.Error("worker http server", "error", err.Error())
			}
		}()
	}

	if interval := time.Duration(cfg.OrbitGuard.FeedSyncIntervalSeconds) * time.Second; interval > 0 {
		go runFeedSyncLoop(ctx, ing, cfg.OrbitGuard.FeedDistMaxAU, interval)
	}

	return w.Run(ctx)
}

func runFeedSyncLoop(ctx context.Context, ing *ingest.Service, distMaxAU string, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		if _, err := ing.Sync(ctx, cadfeed.Query{DistMaxAU: distMaxAU}); err != nil {
			slog.Error("feed sync", "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
