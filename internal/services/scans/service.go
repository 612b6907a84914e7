package scans

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/orbitguard/orbitguard/internal/broker/messages"
	"github.com/orbitguard/orbitguard/internal/cache"
	"github.com/orbitguard/orbitguard/internal/models"
	"github.com/orbitguard/orbitguard/internal/storage/pgscan"
	"github.com/pkg/errors"
)

type Repository interface {
	CreateJob(ctx context.Context, startTS, endTS int64, thresholdKM float64) (*models.ScanJob, error)
	GetJob(ctx context.Context, id uint64) (*models.ScanJob, error)
	JobSummary(ctx context.Context, jobID uint64) (*pgscan.JobSummary, error)
	ListRiskEvents(ctx context.Context, jobID uint64, limit, offset int) ([]*models.RiskEvent, error)
	GetRiskEvent(ctx context.Context, id uint64) (*models.RiskEvent, error)
	ListAlerts(ctx context.Context, status models.AlertStatus, limit, offset int) ([]*models.Alert, error)
	AckAlert(ctx context.Context, id uint64) error
	ResolveAlert(ctx context.Context, id uint64) error
	UpsertObjects(ctx context.Context, items []models.TrackedObjectInput) (int, error)
}

type Service struct {
	repo       Repository
	cache      cache.BytesCache
	summaryTTL time.Duration
}

func New(repo Repository, c cache.BytesCache, summaryTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, summaryTTL: summaryTTL}
}

// CreateScan enqueues a scan job. The job is picked up asynchronously
// by the worker; the returned job is always PENDING.
func (s *Service) CreateScan(ctx context.Context, startTS, endTS int64, thresholdKM float64) (*models.ScanJob, error) {
	if endTS <= startTS {
		return nil, errors.New("endTs must be greater than startTs")
	}
	if thresholdKM <= 0 {
		return nil, errors.New("thresholdKm must be positive")
	}
	return s.repo.CreateJob(ctx, startTS, endTS, thresholdKM)
}

func (s *Service) GetScan(ctx context.Context, id uint64) (*models.ScanJob, error) {
	if id == 0 {
		return nil, errors.New("scanId is required")
	}
	return s.repo.GetJob(ctx, id)
}

// Summary returns the aggregated outcome of a scan job. Summaries of
// terminal jobs are immutable except for late alert links, so they are
// cached best-effort and invalidated on alert.raised.
func (s *Service) Summary(ctx context.Context, jobID uint64) (*pgscan.JobSummary, error) {
	if jobID == 0 {
		return nil, errors.New("scanId is required")
	}

	if s.cache != nil && s.summaryTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, summaryKey(jobID)); err == nil && ok {
			var sum pgscan.JobSummary
			if json.Unmarshal(b, &sum) == nil {
				return &sum, nil
			}
		}
	}

	sum, err := s.repo.JobSummary(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.summaryTTL > 0 && sum.Status.Terminal() {
		if b, err := json.Marshal(sum); err == nil {
			_ = s.cache.Set(ctx, summaryKey(jobID), b, s.summaryTTL)
		}
	}
	return sum, nil
}

func (s *Service) ListRisks(ctx context.Context, jobID uint64, limit, offset int) ([]*models.RiskEvent, error) {
	return s.repo.ListRiskEvents(ctx, jobID, limit, offset)
}

// ExplainRisk returns the stored explanation document verbatim. It was
// serialized deterministically at scan time and is never rebuilt.
func (s *Service) ExplainRisk(ctx context.Context, riskID uint64) (json.RawMessage, error) {
	if riskID == 0 {
		return nil, errors.New("riskId is required")
	}
	ev, err := s.repo.GetRiskEvent(ctx, riskID)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(ev.Explanation), nil
}

func (s *Service) ListAlerts(ctx context.Context, status models.AlertStatus, limit, offset int) ([]*models.Alert, error) {
	switch status {
	case "", models.AlertStatusOpen, models.AlertStatusAcked, models.AlertStatusResolved:
	default:
		return nil, errors.Errorf("unknown alert status %q", status)
	}
	return s.repo.ListAlerts(ctx, status, limit, offset)
}

func (s *Service) AckAlert(ctx context.Context, id uint64) error {
	if id == 0 {
		return errors.New("alertId is required")
	}
	return s.repo.AckAlert(ctx, id)
}

func (s *Service) ResolveAlert(ctx context.Context, id uint64) error {
	if id == 0 {
		return errors.New("alertId is required")
	}
	return s.repo.ResolveAlert(ctx, id)
}

// IngestObjects validates and upserts tracked object state vectors.
// Returns the number of objects written.
func (s *Service) IngestObjects(ctx context.Context, items []models.TrackedObjectInput) (int, error) {
	if len(items) == 0 {
		return 0, errors.New("objects is empty")
	}
	if len(items) > 10_000 {
		return 0, errors.New("too many objects (max 10000)")
	}

	clean := make([]models.TrackedObjectInput, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.ObjectID == "" {
			return 0, errors.New("objectId is required")
		}
		if _, ok := seen[it.ObjectID]; ok {
			continue
		}
		seen[it.ObjectID] = struct{}{}
		clean = append(clean, it)
	}

	return s.repo.UpsertObjects(ctx, clean)
}

// ApplyKafkaAlert handles an alert.raised notification: cached
// summaries for the job go stale (a new alert changes the linked alert
// count), so drop them.
func (s *Service) ApplyKafkaAlert(ctx context.Context, msg messages.AlertRaised) error {
	if msg.JobID == 0 {
		return errors.New("job_id is required")
	}
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, summaryKey(msg.JobID))
}

func summaryKey(jobID uint64) string {
	return fmt.Sprintf("scan:%d:summary", jobID)
}
