package models

import "time"

// JobStatus is the closed set of scan job states. Persisted as text
// at the storage boundary only.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

type AlertStatus string

const (
	AlertStatusOpen     AlertStatus = "OPEN"
	AlertStatusAcked    AlertStatus = "ACKED"
	AlertStatusResolved AlertStatus = "RESOLVED"
)

// ScanJob is one requested scan over a time window and distance threshold.
type ScanJob struct {
	ID          uint64
	StartTS     int64
	EndTS       int64
	ThresholdKM float64
	Status      JobStatus
	Attempts    int32
	MaxAttempts int32
	Error       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TrackedObject is an object state vector at a known epoch.
// Written by ingestion only; read-only to the scan engine.
type TrackedObject struct {
	ID       uint64
	ObjectID string
	Name     *string
	EpochTS  int64

	XKM float64
	YKM float64
	ZKM float64

	VXKMS float64
	VYKMS float64
	VZKMS float64

	CreatedAt time.Time
}

type TrackedObjectInput struct {
	ObjectID string
	Name     *string
	EpochTS  int64
	XKM      float64
	YKM      float64
	ZKM      float64
	VXKMS    float64
	VYKMS    float64
	VZKMS    float64
}

// RiskEvent is an immutable per-(job, object) scan result.
type RiskEvent struct {
	ID            uint64
	JobID         uint64
	ObjectID      string
	MinDistanceKM float64
	TCATS         int64
	RiskScore     float64
	Explanation   string
	CreatedAt     time.Time
}

// Alert is a deduplicated notification for a close approach.
// At most one row ever exists per DedupeKey.
type Alert struct {
	ID            uint64
	ObjectID      string
	TCATS         int64
	MinDistanceKM float64
	RiskScore     float64
	Status        AlertStatus
	DedupeKey     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ApproachEvent is one ingested close-approach record from the external feed.
type ApproachEvent struct {
	ID             uint64
	ObjectID       string
	Name           *string
	ApproachTS     int64
	MissDistanceKM float64
	VRelKMS        float64
	Source         string
	CreatedAt      time.Time
}

type ApproachEventInput struct {
	ObjectID       string
	Name           *string
	ApproachTS     int64
	MissDistanceKM float64
	VRelKMS        float64
	Source         string
}
