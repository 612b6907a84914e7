package pgscan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/orbitguard/orbitguard/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestHourBucket(t *testing.T) {
	require.Equal(t, int64(3600), HourBucket(3600))
	require.Equal(t, int64(3600), HourBucket(3601))
	require.Equal(t, int64(3600), HourBucket(7199))
	require.Equal(t, int64(7200), HourBucket(7200))
	require.Equal(t, int64(0), HourBucket(59))
}

func TestDedupeKey(t *testing.T) {
	require.Equal(t, "2010 AB:3600:50", DedupeKey("2010 AB", 3725, 50.0))
	// Fractional thresholds collapse onto the same integer bucket.
	require.Equal(t, DedupeKey("X", 100, 50.2), DedupeKey("X", 100, 50.9))
}

func startPostgres(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "orbitguard_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/orbitguard_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func TestPGScan_JobLifecycle(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, 0, 200, 50)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusPending, job.Status)
	require.Equal(t, int32(3), job.MaxAttempts)

	// Claim marks the oldest pending job RUNNING.
	claimed, err := st.ClaimNextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, job.ID, claimed.ID)
	require.Equal(t, models.JobStatusRunning, claimed.Status)

	// Nothing left to claim.
	none, err := st.ClaimNextJob(ctx)
	require.NoError(t, err)
	require.Nil(t, none)

	// First failure: back to PENDING with the error recorded.
	status, err := st.FailJob(ctx, job.ID, "boom 1")
	require.NoError(t, err)
	require.Equal(t, models.JobStatusPending, status)

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, int32(1), got.Attempts)
	require.NotNil(t, got.Error)
	require.Equal(t, "boom 1", *got.Error)

	// Claim clears the error.
	claimed, err = st.ClaimNextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Nil(t, claimed.Error)

	// Succeed on the second run.
	require.NoError(t, st.CompleteJob(ctx, job.ID))
	got, err = st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusSucceeded, got.Status)
	require.Equal(t, int32(1), got.Attempts)

	// Terminal: completing again is an error.
	require.Error(t, st.CompleteJob(ctx, job.ID))
}

func TestPGScan_FailJobExhaustsAttempts(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, 0, 100, 10)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		claimed, err := st.ClaimNextJob(ctx)
		require.NoError(t, err)
		require.NotNil(t, claimed, "attempt %d", i)

		status, err := st.FailJob(ctx, job.ID, "always fails")
		require.NoError(t, err)
		if i < 3 {
			require.Equal(t, models.JobStatusPending, status)
		} else {
			require.Equal(t, models.JobStatusFailed, status)
		}
	}

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusFailed, got.Status)
	require.Equal(t, int32(3), got.Attempts)
	require.NotNil(t, got.Error)
	require.NotEmpty(t, *got.Error)

	none, err := st.ClaimNextJob(ctx)
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestPGScan_ClaimNextJob_Concurrent(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, 0, 100, 10)
	require.NoError(t, err)

	const workers = 8
	claims := make(chan *models.ScanJob, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := st.ClaimNextJob(ctx)
			require.NoError(t, err)
			claims <- c
		}()
	}
	wg.Wait()
	close(claims)

	winners := 0
	for c := range claims {
		if c != nil {
			winners++
			require.Equal(t, job.ID, c.ID)
		}
	}
	require.Equal(t, 1, winners, "exactly one worker must claim the job")
}

func TestPGScan_ObjectsAndEvents(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	name := "Demo"
	n, err := st.UpsertObjects(ctx, []models.TrackedObjectInput{
		{ObjectID: "2010 AB", Name: &name, EpochTS: 0, XKM: 1000, VXKMS: -10},
		{ObjectID: "2020 CD", EpochTS: 0, XKM: 9999},
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// Re-ingest replaces the state vector, no duplicate row.
	_, err = st.UpsertObjects(ctx, []models.TrackedObjectInput{
		{ObjectID: "2010 AB", EpochTS: 100, XKM: 500, VXKMS: -5},
	})
	require.NoError(t, err)

	objs, err := st.ListObjects(ctx)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	require.Equal(t, "2010 AB", objs[0].ObjectID)
	require.Equal(t, int64(100), objs[0].EpochTS)
	require.Equal(t, 500.0, objs[0].XKM)

	ins, err := st.InsertApproachEvents(ctx, []models.ApproachEventInput{
		{ObjectID: "2010 AB", ApproachTS: 50, MissDistanceKM: 1e5, VRelKMS: 12, Source: "NASA_JPL_CAD"},
		{ObjectID: "2020 CD", ApproachTS: 5000, MissDistanceKM: 2e5, VRelKMS: 7, Source: "NASA_JPL_CAD"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, ins)

	// Idempotent re-ingest.
	ins, err = st.InsertApproachEvents(ctx, []models.ApproachEventInput{
		{ObjectID: "2010 AB", ApproachTS: 50, MissDistanceKM: 1e5, VRelKMS: 12, Source: "NASA_JPL_CAD"},
	})
	require.NoError(t, err)
	require.Equal(t, 0, ins)

	inWindow, err := st.CountEventsInWindow(ctx, 0, 100)
	require.NoError(t, err)
	require.Equal(t, int64(1), inWindow)
}

func TestPGScan_RisksAlertsAndSummary(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, 0, 200, 50)
	require.NoError(t, err)

	ev := &models.RiskEvent{
		JobID:         job.ID,
		ObjectID:      "2010 AB",
		MinDistanceKM: 0,
		TCATS:         100,
		RiskScore:     1,
		Explanation:   `{"object_id":"2010 AB"}`,
	}
	require.NoError(t, st.InsertRiskEvent(ctx, ev))
	require.NotZero(t, ev.ID)

	got, err := st.GetRiskEvent(ctx, ev.ID)
	require.NoError(t, err)
	require.Equal(t, ev.Explanation, got.Explanation)

	_, err = st.GetRiskEvent(ctx, 99999)
	require.ErrorIs(t, err, ErrNotFound)

	// First upsert creates, the duplicate (different distance!) is a no-op.
	created, err := st.UpsertAlert(ctx, "2010 AB", 100, 0, 1, 50)
	require.NoError(t, err)
	require.True(t, created)

	created, err = st.UpsertAlert(ctx, "2010 AB", 100, 12.5, 0.75, 50)
	require.NoError(t, err)
	require.False(t, created)

	alerts, err := st.ListAlerts(ctx, models.AlertStatusOpen, 10, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, 0.0, alerts[0].MinDistanceKM, "first write wins")

	// Ack / resolve lifecycle, both idempotent.
	require.NoError(t, st.AckAlert(ctx, alerts[0].ID))
	require.NoError(t, st.AckAlert(ctx, alerts[0].ID)) // not OPEN anymore: no-op
	require.NoError(t, st.ResolveAlert(ctx, alerts[0].ID))
	require.NoError(t, st.ResolveAlert(ctx, alerts[0].ID))
	require.ErrorIs(t, st.AckAlert(ctx, 99999), ErrNotFound)

	a, err := st.GetAlert(ctx, alerts[0].ID)
	require.NoError(t, err)
	require.Equal(t, models.AlertStatusResolved, a.Status)

	sum, err := st.JobSummary(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), sum.RisksFound)
	require.Equal(t, int64(1), sum.AlertsLinked)

	_, err = st.JobSummary(ctx, 99999)
	require.ErrorIs(t, err, ErrNotFound)
}
