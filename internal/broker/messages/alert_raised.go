package messages

// AlertRaised is published when the dedupe insert actually created a
// new alert. Consumers treat it as a notification; the alert row in
// storage is the source of truth.
type AlertRaised struct {
	AlertDedupeKey string  `json:"alert_dedupe_key"`
	JobID          uint64  `json:"job_id"`
	ObjectID       string  `json:"object_id"`
	TCATS          int64   `json:"tca_ts"`
	MinDistanceKM  float64 `json:"min_distance_km"`
	RiskScore      float64 `json:"risk_score"`
	ThresholdKM    float64 `json:"threshold_km"`
}
