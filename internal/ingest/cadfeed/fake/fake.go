package fake

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/orbitguard/orbitguard/internal/ingest/cadfeed"
)

// FakeClient serves deterministic close-approach records for local runs
// without hitting the upstream feed. Record values are derived from the
// object designation hash, so repeated fetches return the same data.
type FakeClient struct {
	count int
}

func New() *FakeClient { return &FakeClient{count: 8} }

func (f *FakeClient) FetchCloseApproaches(ctx context.Context, q cadfeed.Query) ([]cadfeed.Record, error) {
	now := time.Now().UTC().Unix()

	out := make([]cadfeed.Record, 0, f.count)
	for i := 0; i < f.count; i++ {
		des := fmt.Sprintf("2026 FA%d", i)

		h := fnv.New32a()
		_, _ = h.Write([]byte(des))
		v := h.Sum32()

		out = append(out, cadfeed.Record{
			ObjectID:       des,
			Name:           ptr("(" + des + ")"),
			ApproachTS:     now + int64(i+1)*3600,
			MissDistanceKM: float64(10_000+v%4_000_000) / 10, // 1e3 .. 4e5 km
			VRelKMS:        float64(1+v%30) / 2,
		})
	}
	return out, nil
}

func ptr(s string) *string { return &s }
