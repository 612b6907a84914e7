package pgscan

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/orbitguard/orbitguard/internal/models"
	"github.com/pkg/errors"
)

// HourBucket rounds a timestamp down to the start of its containing hour.
func HourBucket(ts int64) int64 {
	return ts - (ts % 3600)
}

// DedupeKey derives the alert identity: one alert per object, hour
// bucket of the approach time, and integer threshold.
func DedupeKey(objectID string, tcaTS int64, thresholdKM float64) string {
	return fmt.Sprintf("%s:%d:%d", objectID, HourBucket(tcaTS), int64(thresholdKM))
}

// UpsertAlert inserts a new OPEN alert unless one with the same dedupe
// key already exists; the conflict is an expected no-op, not an error.
// Returns whether a row was actually created.
func (s *Storage) UpsertAlert(ctx context.Context, objectID string, tcaTS int64, minDistanceKM, score, thresholdKM float64) (bool, error) {
	now := time.Now().UTC()

	tag, err := s.db.Exec(ctx, `
INSERT INTO alerts (
  object_id, tca_ts, min_distance_km, risk_score, status, dedupe_key, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
ON CONFLICT (dedupe_key) DO NOTHING
`, objectID, tcaTS, minDistanceKM, score, models.AlertStatusOpen, DedupeKey(objectID, tcaTS, thresholdKM), now)
	if err != nil {
		return false, errors.Wrap(err, "insert alert")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Storage) GetAlert(ctx context.Context, id uint64) (*models.Alert, error) {
	a, err := s.scanAlertRow(s.db.QueryRow(ctx, `
SELECT id, object_id, tca_ts, min_distance_km, risk_score, status, dedupe_key, created_at, updated_at
FROM alerts
WHERE id = $1
`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select alert")
	}
	return a, nil
}

// AckAlert moves OPEN -> ACKED; a no-op when the alert is not OPEN.
// Unknown ids are reported as ErrNotFound.
func (s *Storage) AckAlert(ctx context.Context, id uint64) error {
	tag, err := s.db.Exec(ctx, `
UPDATE alerts
SET status = $2, updated_at = now()
WHERE id = $1 AND status = $3
`, id, models.AlertStatusAcked, models.AlertStatusOpen)
	if err != nil {
		return errors.Wrap(err, "ack alert")
	}
	if tag.RowsAffected() == 0 {
		return s.alertExists(ctx, id)
	}
	return nil
}

// ResolveAlert moves any non-RESOLVED alert to RESOLVED; idempotent.
func (s *Storage) ResolveAlert(ctx context.Context, id uint64) error {
	tag, err := s.db.Exec(ctx, `
UPDATE alerts
SET status = $2, updated_at = now()
WHERE id = $1 AND status <> $2
`, id, models.AlertStatusResolved)
	if err != nil {
		return errors.Wrap(err, "resolve alert")
	}
	if tag.RowsAffected() == 0 {
		return s.alertExists(ctx, id)
	}
	return nil
}

// alertExists distinguishes "state no-op" (nil) from "unknown id".
func (s *Storage) alertExists(ctx context.Context, id uint64) error {
	var one int
	err := s.db.QueryRow(ctx, `SELECT 1 FROM alerts WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return errors.Wrap(err, "select alert")
}

func (s *Storage) ListAlerts(ctx context.Context, status models.AlertStatus, limit, offset int) ([]*models.Alert, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, object_id, tca_ts, min_distance_km, risk_score, status, dedupe_key, created_at, updated_at
FROM alerts
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`, string(status), limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select alerts")
	}
	defer rows.Close()

	var out []*models.Alert
	for rows.Next() {
		a, err := s.scanAlertRow(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan alert")
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) scanAlertRow(row pgx.Row) (*models.Alert, error) {
	var a models.Alert
	if err := row.Scan(
		&a.ID, &a.ObjectID, &a.TCATS, &a.MinDistanceKM, &a.RiskScore,
		&a.Status, &a.DedupeKey, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}
