package risk

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Score maps a minimum approach distance to a risk score in [0,1]:
//
//	score = clamp(1 - minDistanceKM/thresholdKM, 0, 1)
//
// 1 at zero distance, 0 at the threshold and beyond. A non-positive
// threshold scores 0. Whether an object is flagged is decided by the
// orchestrator, not here.
func Score(thresholdKM, minDistanceKM float64) float64 {
	if thresholdKM <= 0 {
		return 0
	}
	s := 1 - minDistanceKM/thresholdKM
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Explanation is the persisted audit record for one scan result.
//
// Field order is alphabetical by JSON key so identical inputs always
// serialize to identical bytes; the payload is stored verbatim and must
// be byte-reproducible.
type Explanation struct {
	ClosestApproach ExplanationApproach `json:"closest_approach"`
	EpochTS         int64               `json:"epoch_ts"`
	ObjectID        string              `json:"object_id"`
	RiskScore       float64             `json:"risk_score"`
	ThresholdKM     float64             `json:"threshold_km"`
	WhyFlagged      bool                `json:"why_flagged"`
	Window          ExplanationWindow   `json:"window"`
}

type ExplanationApproach struct {
	MinDistanceKM float64 `json:"min_distance_km"`
	TCATS         int64   `json:"tca_ts"`
}

type ExplanationWindow struct {
	EndTS   int64 `json:"end_ts"`
	StartTS int64 `json:"start_ts"`
}

// BuildExplanation serializes the inputs and outputs of one scan result.
func BuildExplanation(objectID string, epochTS, startTS, endTS int64, thresholdKM float64, tcaTS int64, minDistanceKM, score float64) ([]byte, error) {
	b, err := json.Marshal(Explanation{
		ClosestApproach: ExplanationApproach{
			MinDistanceKM: minDistanceKM,
			TCATS:         tcaTS,
		},
		EpochTS:     epochTS,
		ObjectID:    objectID,
		RiskScore:   score,
		ThresholdKM: thresholdKM,
		WhyFlagged:  minDistanceKM <= thresholdKM,
		Window: ExplanationWindow{
			EndTS:   endTS,
			StartTS: startTS,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal explanation")
	}
	return b, nil
}
