package pgscan

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS tracked_objects (
  id BIGSERIAL PRIMARY KEY,
  object_id TEXT NOT NULL UNIQUE,
  name TEXT NULL,
  epoch_ts BIGINT NOT NULL,
  x_km DOUBLE PRECISION NOT NULL,
  y_km DOUBLE PRECISION NOT NULL,
  z_km DOUBLE PRECISION NOT NULL,
  vx_km_s DOUBLE PRECISION NOT NULL,
  vy_km_s DOUBLE PRECISION NOT NULL,
  vz_km_s DOUBLE PRECISION NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS scan_jobs (
  id BIGSERIAL PRIMARY KEY,
  start_ts BIGINT NOT NULL,
  end_ts BIGINT NOT NULL,
  threshold_km DOUBLE PRECISION NOT NULL,
  status TEXT NOT NULL,
  attempts INT NOT NULL DEFAULT 0,
  max_attempts INT NOT NULL DEFAULT 3,
  error TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_jobs_status_created_at ON scan_jobs(status, created_at)`,
		`
CREATE TABLE IF NOT EXISTS risk_events (
  id BIGSERIAL PRIMARY KEY,
  job_id BIGINT NOT NULL REFERENCES scan_jobs(id) ON DELETE CASCADE,
  object_id TEXT NOT NULL,
  min_distance_km DOUBLE PRECISION NOT NULL,
  tca_ts BIGINT NOT NULL,
  risk_score DOUBLE PRECISION NOT NULL,
  explanation TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_events_job_id ON risk_events(job_id)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_events_object_tca ON risk_events(object_id, tca_ts)`,
		`
CREATE TABLE IF NOT EXISTS alerts (
  id BIGSERIAL PRIMARY KEY,
  object_id TEXT NOT NULL,
  tca_ts BIGINT NOT NULL,
  min_distance_km DOUBLE PRECISION NOT NULL,
  risk_score DOUBLE PRECISION NOT NULL,
  status TEXT NOT NULL,
  dedupe_key TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		// The dedupe key is the alert's identity: at most one row per key, ever.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_alerts_dedupe_key ON alerts(dedupe_key)`,
		`
CREATE TABLE IF NOT EXISTS approach_events (
  id BIGSERIAL PRIMARY KEY,
  object_id TEXT NOT NULL,
  name TEXT NULL,
  approach_ts BIGINT NOT NULL,
  miss_distance_km DOUBLE PRECISION NOT NULL,
  v_rel_km_s DOUBLE PRECISION NOT NULL,
  source TEXT NOT NULL DEFAULT 'NASA_JPL_CAD',
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_approach_events_approach_ts ON approach_events(approach_ts)`,
		// Re-running ingestion must not duplicate feed records.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_approach_events_dedup ON approach_events(object_id, approach_ts, source)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
