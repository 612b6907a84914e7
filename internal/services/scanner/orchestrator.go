package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/orbitguard/orbitguard/internal/broker/messages"
	"github.com/orbitguard/orbitguard/internal/geometry"
	"github.com/orbitguard/orbitguard/internal/models"
	"github.com/orbitguard/orbitguard/internal/risk"
	"github.com/orbitguard/orbitguard/internal/storage/pgscan"
	"github.com/pkg/errors"
)

type Repository interface {
	ClaimNextJob(ctx context.Context) (*models.ScanJob, error)
	ListObjects(ctx context.Context) ([]*models.TrackedObject, error)
	InsertRiskEvent(ctx context.Context, ev *models.RiskEvent) error
	UpsertAlert(ctx context.Context, objectID string, tcaTS int64, minDistanceKM, score, thresholdKM float64) (bool, error)
	CompleteJob(ctx context.Context, id uint64) error
	FailJob(ctx context.Context, id uint64, errText string) (models.JobStatus, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// RunOne claims the next pending scan job and drives it to a terminal
// or retryable state. Returns whether a job was claimed. Processing
// errors never escape: they are recorded on the job and fed into the
// retry transition instead.
func (w *Worker) RunOne(ctx context.Context) (bool, error) {
	job, err := w.repo.ClaimNextJob(ctx)
	if err != nil {
		return false, errors.Wrap(err, "claim job")
	}
	if job == nil {
		return false, nil
	}

	slog.Info("scan job claimed",
		"job_id", job.ID, "start_ts", job.StartTS, "end_ts", job.EndTS,
		"threshold_km", job.ThresholdKM, "attempt", job.Attempts+1)

	if procErr := w.processJob(ctx, job); procErr != nil {
		status, failErr := w.repo.FailJob(ctx, job.ID, procErr.Error())
		if failErr != nil {
			return true, errors.Wrap(failErr, "record job failure")
		}
		slog.Error("scan job failed", "job_id", job.ID, "status", string(status), "error", procErr.Error())
		return true, nil
	}

	if err := w.repo.CompleteJob(ctx, job.ID); err != nil {
		return true, errors.Wrap(err, "complete job")
	}
	slog.Info("scan job succeeded", "job_id", job.ID)
	return true, nil
}

// processJob evaluates every tracked object against the job window.
// Each flagged object's writes are their own unit of work: results
// committed before a later failure stay committed.
func (w *Worker) processJob(ctx context.Context, job *models.ScanJob) error {
	objects, err := w.repo.ListObjects(ctx)
	if err != nil {
		return errors.Wrap(err, "list objects")
	}

	for _, obj := range objects {
		if err := w.processObject(ctx, job, obj); err != nil {
			return errors.Wrapf(err, "object %s", obj.ObjectID)
		}
	}
	return nil
}

func (w *Worker) processObject(ctx context.Context, job *models.ScanJob, obj *models.TrackedObject) error {
	tca, dmin := geometry.ClosestApproach(
		obj.EpochTS,
		geometry.Vec3{X: obj.XKM, Y: obj.YKM, Z: obj.ZKM},
		geometry.Vec3{X: obj.VXKMS, Y: obj.VYKMS, Z: obj.VZKMS},
		job.StartTS, job.EndTS,
	)

	if dmin > job.ThresholdKM {
		return nil
	}

	score := risk.Score(job.ThresholdKM, dmin)
	expl, err := risk.BuildExplanation(obj.ObjectID, obj.EpochTS, job.StartTS, job.EndTS, job.ThresholdKM, tca, dmin, score)
	if err != nil {
		return err
	}

	ev := &models.RiskEvent{
		JobID:         job.ID,
		ObjectID:      obj.ObjectID,
		MinDistanceKM: dmin,
		TCATS:         tca,
		RiskScore:     score,
		Explanation:   string(expl),
	}
	if err := w.repo.InsertRiskEvent(ctx, ev); err != nil {
		return err
	}

	created, err := w.repo.UpsertAlert(ctx, obj.ObjectID, tca, dmin, score, job.ThresholdKM)
	if err != nil {
		return err
	}
	if created {
		w.publishAlertRaised(ctx, job, ev)
	}
	return nil
}

// publishAlertRaised notifies downstream consumers of a newly created
// alert. Best-effort: the alert row is the source of truth, a broker
// outage must not fail the scan.
func (w *Worker) publishAlertRaised(ctx context.Context, job *models.ScanJob, ev *models.RiskEvent) {
	if w.producer == nil || w.topic == "" {
		return
	}

	b, err := json.Marshal(messages.AlertRaised{
		AlertDedupeKey: pgscan.DedupeKey(ev.ObjectID, ev.TCATS, job.ThresholdKM),
		JobID:          job.ID,
		ObjectID:       ev.ObjectID,
		TCATS:          ev.TCATS,
		MinDistanceKM:  ev.MinDistanceKM,
		RiskScore:      ev.RiskScore,
		ThresholdKM:    job.ThresholdKM,
	})
	if err != nil {
		slog.Error("marshal alert.raised", "error", err.Error())
		return
	}

	key := []byte(fmt.Sprintf("%s:%d", ev.ObjectID, ev.TCATS))
	if err := w.producer.Publish(ctx, w.topic, key, b); err != nil {
		slog.Warn("publish alert.raised", "object_id", ev.ObjectID, "error", err.Error())
	}
}
