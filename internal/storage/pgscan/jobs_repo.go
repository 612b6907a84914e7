package pgscan

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/orbitguard/orbitguard/internal/models"
	"github.com/pkg/errors"
)

const defaultMaxAttempts = 3

const jobColumns = `
  id, start_ts, end_ts, threshold_km,
  status, attempts, max_attempts, error,
  created_at, updated_at`

func scanJobRow(row pgx.Row) (*models.ScanJob, error) {
	var j models.ScanJob
	var errText *string
	if err := row.Scan(
		&j.ID, &j.StartTS, &j.EndTS, &j.ThresholdKM,
		&j.Status, &j.Attempts, &j.MaxAttempts, &errText,
		&j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	j.Error = errText
	return &j, nil
}

// CreateJob persists a new PENDING job. Window and threshold are
// validated by the API service before this is reached.
func (s *Storage) CreateJob(ctx context.Context, startTS, endTS int64, thresholdKM float64) (*models.ScanJob, error) {
	now := time.Now().UTC()

	job, err := scanJobRow(s.db.QueryRow(ctx, `
INSERT INTO scan_jobs (
  start_ts, end_ts, threshold_km, status, attempts, max_attempts, created_at, updated_at
)
VALUES ($1,$2,$3,$4,0,$5,$6,$6)
RETURNING`+jobColumns,
		startTS, endTS, thresholdKM, models.JobStatusPending, defaultMaxAttempts, now))
	if err != nil {
		return nil, errors.Wrap(err, "insert scan job")
	}
	return job, nil
}

func (s *Storage) GetJob(ctx context.Context, id uint64) (*models.ScanJob, error) {
	job, err := scanJobRow(s.db.QueryRow(ctx, `
SELECT`+jobColumns+`
FROM scan_jobs
WHERE id = $1
`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select scan job")
	}
	return job, nil
}

// ClaimNextJob picks the oldest PENDING job and marks it RUNNING in a
// single transaction. FOR UPDATE SKIP LOCKED keeps concurrent workers
// off the same row, and the UPDATE is conditioned on the status still
// being PENDING, so two callers can never both claim one job.
// Returns (nil, nil) when no PENDING job exists.
func (s *Storage) ClaimNextJob(ctx context.Context) (*models.ScanJob, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	job, err := scanJobRow(tx.QueryRow(ctx, `
SELECT`+jobColumns+`
FROM scan_jobs
WHERE status = $1
ORDER BY created_at ASC, id ASC
LIMIT 1
FOR UPDATE SKIP LOCKED
`, models.JobStatusPending))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select pending job")
	}

	tag, err := tx.Exec(ctx, `
UPDATE scan_jobs
SET status = $2, error = NULL, updated_at = now()
WHERE id = $1 AND status = $3
`, job.ID, models.JobStatusRunning, models.JobStatusPending)
	if err != nil {
		return nil, errors.Wrap(err, "mark job running")
	}
	if tag.RowsAffected() != 1 {
		// Row moved out of PENDING between select and update; with the
		// row lock held this should not happen, treat it as "nothing to claim".
		return nil, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	job.Status = models.JobStatusRunning
	job.Error = nil
	return job, nil
}

// CompleteJob transitions RUNNING -> SUCCEEDED.
func (s *Storage) CompleteJob(ctx context.Context, id uint64) error {
	tag, err := s.db.Exec(ctx, `
UPDATE scan_jobs
SET status = $2, updated_at = now()
WHERE id = $1 AND status = $3
`, id, models.JobStatusSucceeded, models.JobStatusRunning)
	if err != nil {
		return errors.Wrap(err, "complete job")
	}
	if tag.RowsAffected() != 1 {
		return errors.Errorf("job %d is not RUNNING", id)
	}
	return nil
}

// FailJob records the error, increments attempts and transitions the
// RUNNING job back to PENDING (retry) or to terminal FAILED once
// attempts reach max_attempts. Returns the resulting status.
func (s *Storage) FailJob(ctx context.Context, id uint64, errText string) (models.JobStatus, error) {
	var status models.JobStatus
	err := s.db.QueryRow(ctx, `
UPDATE scan_jobs
SET
  attempts = attempts + 1,
  error = $2,
  status = CASE WHEN attempts + 1 >= max_attempts THEN $3::text ELSE $4::text END,
  updated_at = now()
WHERE id = $1 AND status = $5
RETURNING status
`, id, errText, models.JobStatusFailed, models.JobStatusPending, models.JobStatusRunning).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", errors.Errorf("job %d is not RUNNING", id)
	}
	if err != nil {
		return "", errors.Wrap(err, "fail job")
	}
	return status, nil
}
