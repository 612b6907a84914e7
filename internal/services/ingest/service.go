package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/orbitguard/orbitguard/internal/ingest/cadfeed"
	"github.com/orbitguard/orbitguard/internal/models"
	"github.com/pkg/errors"
)

const feedSource = "jpl_cad"

type Repository interface {
	InsertApproachEvents(ctx context.Context, items []models.ApproachEventInput) (int, error)
	UpsertObjects(ctx context.Context, items []models.TrackedObjectInput) (int, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Service struct {
	repo Repository
	feed cadfeed.Client
	rl   RateLimiter

	fetchesPerHour int64
}

func New(repo Repository, feed cadfeed.Client, rl RateLimiter, fetchesPerHour int64) *Service {
	if fetchesPerHour <= 0 {
		fetchesPerHour = 30
	}
	return &Service{repo: repo, feed: feed, rl: rl, fetchesPerHour: fetchesPerHour}
}

// Result reports what one feed sync wrote.
type Result struct {
	Fetched        int `json:"fetched"`
	EventsInserted int `json:"eventsInserted"`
	ObjectsWritten int `json:"objectsWritten"`
}

// Sync pulls the close-approach feed and persists it: one approach
// event per record (deduplicated in storage) plus an upserted state
// vector per object, so the scan engine can evaluate the objects
// without talking to the feed.
func (s *Service) Sync(ctx context.Context, q cadfeed.Query) (Result, error) {
	if s.rl != nil && s.fetchesPerHour > 0 {
		hourKey := fmt.Sprintf("rl:cadfeed:%s", time.Now().UTC().Format("2006010215"))
		allowed, n, err := s.rl.Allow(ctx, hourKey, s.fetchesPerHour, 70*time.Minute)
		if err != nil {
			return Result{}, errors.Wrap(err, "rate limit")
		}
		if !allowed {
			slog.Warn("feed fetch budget exceeded", "count", n)
			return Result{}, errors.New("feed fetch budget exceeded")
		}
	}

	recs, err := s.feed.FetchCloseApproaches(ctx, q)
	if err != nil {
		return Result{}, errors.Wrap(err, "fetch close approaches")
	}
	if len(recs) == 0 {
		return Result{}, nil
	}

	events := make([]models.ApproachEventInput, 0, len(recs))
	objects := make([]models.TrackedObjectInput, 0, len(recs))
	seen := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		events = append(events, models.ApproachEventInput{
			ObjectID:       rec.ObjectID,
			Name:           rec.Name,
			ApproachTS:     rec.ApproachTS,
			MissDistanceKM: rec.MissDistanceKM,
			VRelKMS:        rec.VRelKMS,
			Source:         feedSource,
		})

		// The feed reports one record per approach; keep the first
		// (earliest, feed is date-sorted) state vector per object.
		if _, ok := seen[rec.ObjectID]; ok {
			continue
		}
		seen[rec.ObjectID] = struct{}{}
		objects = append(objects, recordToObject(rec))
	}

	res := Result{Fetched: len(recs)}
	res.EventsInserted, err = s.repo.InsertApproachEvents(ctx, events)
	if err != nil {
		return Result{}, errors.Wrap(err, "insert approach events")
	}
	res.ObjectsWritten, err = s.repo.UpsertObjects(ctx, objects)
	if err != nil {
		return Result{}, errors.Wrap(err, "upsert objects")
	}

	slog.Info("feed sync",
		"fetched", res.Fetched, "events_inserted", res.EventsInserted, "objects_written", res.ObjectsWritten)
	return res, nil
}

// recordToObject synthesizes a state vector from a feed record. The
// feed gives scalar miss distance and relative speed at the approach
// time; placing the object at (miss, 0, 0) with velocity (0, v_rel, 0)
// at that epoch makes the straight-line model reproduce the feed's
// closest approach exactly.
func recordToObject(rec cadfeed.Record) models.TrackedObjectInput {
	return models.TrackedObjectInput{
		ObjectID: rec.ObjectID,
		Name:     rec.Name,
		EpochTS:  rec.ApproachTS,
		XKM:      rec.MissDistanceKM,
		VYKMS:    rec.VRelKMS,
	}
}
