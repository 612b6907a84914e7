package pgscan

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/orbitguard/orbitguard/internal/models"
	"github.com/pkg/errors"
)

// UpsertObjects inserts or refreshes tracked object state vectors.
// Objects are keyed by their external object_id; re-ingesting replaces
// the state vector with the newer epoch.
func (s *Storage) UpsertObjects(ctx context.Context, items []models.TrackedObjectInput) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, it := range items {
		_, err := tx.Exec(ctx, `
INSERT INTO tracked_objects (
  object_id, name, epoch_ts, x_km, y_km, z_km, vx_km_s, vy_km_s, vz_km_s, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (object_id)
DO UPDATE SET
  name = EXCLUDED.name,
  epoch_ts = EXCLUDED.epoch_ts,
  x_km = EXCLUDED.x_km,
  y_km = EXCLUDED.y_km,
  z_km = EXCLUDED.z_km,
  vx_km_s = EXCLUDED.vx_km_s,
  vy_km_s = EXCLUDED.vy_km_s,
  vz_km_s = EXCLUDED.vz_km_s
`, it.ObjectID, it.Name, it.EpochTS, it.XKM, it.YKM, it.ZKM, it.VXKMS, it.VYKMS, it.VZKMS, now)
		if err != nil {
			return 0, errors.Wrap(err, "upsert object")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit tx")
	}
	return len(items), nil
}

// ListObjects returns every tracked object. The scan engine evaluates
// all of them per job; the object set is small relative to jobs.
func (s *Storage) ListObjects(ctx context.Context) ([]*models.TrackedObject, error) {
	rows, err := s.db.Query(ctx, `
SELECT
  id, object_id, name, epoch_ts,
  x_km, y_km, z_km,
  vx_km_s, vy_km_s, vz_km_s,
  created_at
FROM tracked_objects
ORDER BY id ASC
`)
	if err != nil {
		return nil, errors.Wrap(err, "select objects")
	}
	defer rows.Close()

	var out []*models.TrackedObject
	for rows.Next() {
		var o models.TrackedObject
		if err := rows.Scan(
			&o.ID, &o.ObjectID, &o.Name, &o.EpochTS,
			&o.XKM, &o.YKM, &o.ZKM,
			&o.VXKMS, &o.VYKMS, &o.VZKMS,
			&o.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan object")
		}
		out = append(out, &o)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// InsertApproachEvents stores ingested feed records, silently skipping
// ones already present (same object, time and source).
func (s *Storage) InsertApproachEvents(ctx context.Context, items []models.ApproachEventInput) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted := 0
	for _, it := range items {
		tag, err := tx.Exec(ctx, `
INSERT INTO approach_events (
  object_id, name, approach_ts, miss_distance_km, v_rel_km_s, source, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (object_id, approach_ts, source) DO NOTHING
`, it.ObjectID, it.Name, it.ApproachTS, it.MissDistanceKM, it.VRelKMS, it.Source, now)
		if err != nil {
			return 0, errors.Wrap(err, "insert approach event")
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit tx")
	}
	return inserted, nil
}

func (s *Storage) CountEventsInWindow(ctx context.Context, startTS, endTS int64) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `
SELECT count(*) FROM approach_events
WHERE approach_ts >= $1 AND approach_ts <= $2
`, startTS, endTS).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count approach events")
	}
	return n, nil
}
