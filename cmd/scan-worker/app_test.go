package main

import (
	"context"
	"testing"

	"github.com/orbitguard/orbitguard/config"
	"github.com/orbitguard/orbitguard/internal/ingest/cadfeed"
	"github.com/orbitguard/orbitguard/internal/ingest/cadfeed/cadhttp"
	"github.com/orbitguard/orbitguard/internal/ingest/cadfeed/fake"
	"github.com/orbitguard/orbitguard/internal/models"
	"github.com/orbitguard/orbitguard/internal/services/ingest"
	"github.com/orbitguard/orbitguard/internal/services/scanner"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct{}

func (s *fakeStorage) ClaimNextJob(ctx context.Context) (*models.ScanJob, error) { return nil, nil }
func (s *fakeStorage) ListObjects(ctx context.Context) ([]*models.TrackedObject, error) {
	return nil, nil
}
func (s *fakeStorage) InsertRiskEvent(ctx context.Context, ev *models.RiskEvent) error { return nil }
func (s *fakeStorage) UpsertAlert(ctx context.Context, objectID string, tcaTS int64, minDistanceKM, score, thresholdKM float64) (bool, error) {
	return false, nil
}
func (s *fakeStorage) CompleteJob(ctx context.Context, id uint64) error { return nil }
func (s *fakeStorage) FailJob(ctx context.Context, id uint64, errText string) (models.JobStatus, error) {
	return models.JobStatusFailed, nil
}
func (s *fakeStorage) InsertApproachEvents(ctx context.Context, items []models.ApproachEventInput) (int, error) {
	return 0, nil
}
func (s *fakeStorage) UpsertObjects(ctx context.Context, items []models.TrackedObjectInput) (int, error) {
	return 0, nil
}

type noopProducer struct{}

func (p noopProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	return nil
}

func TestDefaultWorkerFactories_SelectFeedClient(t *testing.T) {
	f := defaultWorkerFactories()

	cfgJPL := &config.Config{
		OrbitGuard: config.OrbitGuardConfig{FeedMode: "jpl", FeedBaseURL: "http://localhost:9000"},
	}
	c1 := f.newFeedClient(cfgJPL)
	_, ok := c1.(*cadhttp.Client)
	require.True(t, ok)

	cfgFallback := &config.Config{
		OrbitGuard: config.OrbitGuardConfig{FeedMode: "unknown"},
	}
	c2 := f.newFeedClient(cfgFallback)
	_, ok = c2.(*fake.FakeClient)
	require.True(t, ok)

	c3 := f.newFeedClient(&config.Config{})
	_, ok = c3.(*fake.FakeClient)
	require.True(t, ok)
}

func TestDefaultWorkerFactories_ProducerAndRateLimiter_NonNil(t *testing.T) {
	f := defaultWorkerFactories()
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Host: "localhost", Port: 9092},
		Redis: config.RedisConfig{Host: "localhost", Port: 6379},
	}
	require.NotNil(t, f.newProducer(cfg))
	require.NotNil(t, f.newRateLimiter(cfg))
}

func TestRunScanWorker_ContextCanceled(t *testing.T) {
	calledClose := false

	f := workerFactories{
		newStorage: func(cfg *config.Config) (storage, func(), error) {
			return &fakeStorage{}, func() { calledClose = true }, nil
		},
		newProducer: func(cfg *config.Config) scanner.Producer {
			return noopProducer{}
		},
		newRateLimiter: func(cfg *config.Config) ingest.RateLimiter {
			return nil
		},
		newFeedClient: func(cfg *config.Config) cadfeed.Client {
			return fake.New()
		},
	}

	cfg := &config.Config{
		Kafka:      config.KafkaConfig{AlertRaisedTopicName: "alert.raised"},
		OrbitGuard: config.OrbitGuardConfig{WorkerPollIntervalSeconds: 1},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunScanWorker(ctx, cfg, f)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, calledClose)
}
