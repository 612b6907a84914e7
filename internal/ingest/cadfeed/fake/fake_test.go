package fake

import (
	"context"
	"testing"

	"github.com/orbitguard/orbitguard/internal/ingest/cadfeed"
	"github.com/stretchr/testify/require"
)

func TestFakeClient_Deterministic(t *testing.T) {
	c := New()
	a, err := c.FetchCloseApproaches(context.Background(), cadfeed.Query{})
	require.NoError(t, err)
	require.NotEmpty(t, a)

	b, err := c.FetchCloseApproaches(context.Background(), cadfeed.Query{})
	require.NoError(t, err)
	require.Len(t, b, len(a))
	for i := range a {
		require.Equal(t, a[i].ObjectID, b[i].ObjectID)
		require.Equal(t, a[i].MissDistanceKM, b[i].MissDistanceKM)
		require.Equal(t, a[i].VRelKMS, b[i].VRelKMS)
		require.Positive(t, a[i].MissDistanceKM)
	}
}
