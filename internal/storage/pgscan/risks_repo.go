package pgscan

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/orbitguard/orbitguard/internal/models"
	"github.com/pkg/errors"
)

// InsertRiskEvent appends one immutable scan result. Each insert is its
// own unit of work: results committed for earlier objects in a job
// survive a later failure of the same job run.
func (s *Storage) InsertRiskEvent(ctx context.Context, ev *models.RiskEvent) error {
	err := s.db.QueryRow(ctx, `
INSERT INTO risk_events (
  job_id, object_id, min_distance_km, tca_ts, risk_score, explanation, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id, created_at
`, ev.JobID, ev.ObjectID, ev.MinDistanceKM, ev.TCATS, ev.RiskScore, ev.Explanation, time.Now().UTC()).
		Scan(&ev.ID, &ev.CreatedAt)
	return errors.Wrap(err, "insert risk event")
}

func (s *Storage) GetRiskEvent(ctx context.Context, id uint64) (*models.RiskEvent, error) {
	var ev models.RiskEvent
	err := s.db.QueryRow(ctx, `
SELECT id, job_id, object_id, min_distance_km, tca_ts, risk_score, explanation, created_at
FROM risk_events
WHERE id = $1
`, id).Scan(&ev.ID, &ev.JobID, &ev.ObjectID, &ev.MinDistanceKM, &ev.TCATS, &ev.RiskScore, &ev.Explanation, &ev.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select risk event")
	}
	return &ev, nil
}

// ListRiskEvents returns results ordered riskiest first. jobID of 0
// means all jobs.
func (s *Storage) ListRiskEvents(ctx context.Context, jobID uint64, limit, offset int) ([]*models.RiskEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, job_id, object_id, min_distance_km, tca_ts, risk_score, explanation, created_at
FROM risk_events
WHERE ($1 = 0 OR job_id = $1)
ORDER BY risk_score DESC, id ASC
LIMIT $2 OFFSET $3
`, jobID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select risk events")
	}
	defer rows.Close()

	var out []*models.RiskEvent
	for rows.Next() {
		var ev models.RiskEvent
		if err := rows.Scan(&ev.ID, &ev.JobID, &ev.ObjectID, &ev.MinDistanceKM, &ev.TCATS, &ev.RiskScore, &ev.Explanation, &ev.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan risk event")
		}
		out = append(out, &ev)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

type JobSummary struct {
	JobID          uint64           `json:"job_id"`
	Status         models.JobStatus `json:"status"`
	WindowStartTS  int64            `json:"window_start_ts"`
	WindowEndTS    int64            `json:"window_end_ts"`
	ThresholdKM    float64          `json:"threshold_km"`
	EventsInWindow int64            `json:"events_in_window"`
	RisksFound     int64            `json:"risks_found"`
	AlertsLinked   int64            `json:"alerts_linked"`
}

// JobSummary aggregates what a scan saw and produced: ingested feed
// records inside the window, risk events written by the job, and alerts
// whose (object, tca) matches one of those risk events.
func (s *Storage) JobSummary(ctx context.Context, jobID uint64) (*JobSummary, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	sum := &JobSummary{
		JobID:         job.ID,
		Status:        job.Status,
		WindowStartTS: job.StartTS,
		WindowEndTS:   job.EndTS,
		ThresholdKM:   job.ThresholdKM,
	}

	sum.EventsInWindow, err = s.CountEventsInWindow(ctx, job.StartTS, job.EndTS)
	if err != nil {
		return nil, err
	}

	if err := s.db.QueryRow(ctx, `
SELECT count(*) FROM risk_events WHERE job_id = $1
`, jobID).Scan(&sum.RisksFound); err != nil {
		return nil, errors.Wrap(err, "count risk events")
	}

	if err := s.db.QueryRow(ctx, `
SELECT count(DISTINCT a.id)
FROM alerts a
JOIN risk_events r ON r.object_id = a.object_id AND r.tca_ts = a.tca_ts
WHERE r.job_id = $1
`, jobID).Scan(&sum.AlertsLinked); err != nil {
		return nil, errors.Wrap(err, "count linked alerts")
	}

	return sum, nil
}
