package scanner

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type Worker struct {
	repo     Repository
	producer Producer

	topic string

	pollInterval  time.Duration
	maxJobsPerRun int

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, producer Producer, topic string) *Worker {
	return &Worker{
		repo: repo, producer: producer, topic: topic,
		pollInterval:      2 * time.Second,
		maxJobsPerRun:     50,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (w *Worker) WithSettings(pollInterval time.Duration, maxJobsPerRun int) *Worker {
	if pollInterval > 0 {
		w.pollInterval = pollInterval
	}
	if maxJobsPerRun > 0 {
		w.maxJobsPerRun = maxJobsPerRun
	}
	return w
}

// Trigger forces an immediate poll cycle (best-effort, non-blocking).
func (w *Worker) Trigger() {
	w.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalErrors    int64      `json:"totalErrors"`
	LastError      string     `json:"lastError,omitempty"`
}

func (w *Worker) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, w.startedAtUnixNano).UTC(),
		TotalClaimed:   w.totalClaimed.Load(),
		TotalProcessed: w.totalProcessed.Load(),
		TotalErrors:    w.totalErrors.Load(),
	}
	if n := w.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := w.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	w.lastErrorMu.Lock()
	st.LastError = w.lastError
	w.lastErrorMu.Unlock()
	return st
}

func (w *Worker) Run(ctx context.Context) error {
	t := time.NewTicker(w.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			w.runCycle(ctx)
		case <-w.triggerCh:
			w.runCycle(ctx)
		}
	}
}

// runCycle drains pending jobs one at a time, up to maxJobsPerRun,
// stopping early when the queue is empty or the context is cancelled.
func (w *Worker) runCycle(ctx context.Context) {
	w.lastCycleUnixNano.Store(time.Now().UTC().UnixNano())

	for i := 0; i < w.maxJobsPerRun; i++ {
		if ctx.Err() != nil {
			return
		}

		claimed, err := w.RunOne(ctx)
		if err != nil {
			slog.Error("scan cycle", "error", err.Error())
			w.lastErrorMu.Lock()
			w.lastError = err.Error()
			w.lastErrorMu.Unlock()
			w.totalErrors.Add(1)
			return
		}
		if !claimed {
			return
		}
		w.totalClaimed.Add(1)
		w.totalProcessed.Add(1)
	}
}
