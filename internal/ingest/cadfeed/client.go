package cadfeed

import "context"

// AUToKM converts astronomical units (feed miss distances) to km.
const AUToKM = 149_597_870.7

// Record is one normalized close-approach record: distances already in
// km, times already in unix seconds.
type Record struct {
	ObjectID       string
	Name           *string
	ApproachTS     int64
	MissDistanceKM float64
	VRelKMS        float64
}

// Query selects the feed slice to fetch. Values follow the upstream CAD
// API conventions ("0.05" AU, "now", "+60" days).
type Query struct {
	DistMaxAU string
	DateMin   string
	DateMax   string
}

type Client interface {
	FetchCloseApproaches(ctx context.Context, q Query) ([]Record, error)
}
