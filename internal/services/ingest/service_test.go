package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/orbitguard/orbitguard/internal/ingest/cadfeed"
	"github.com/orbitguard/orbitguard/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	eventsIn  []models.ApproachEventInput
	objectsIn []models.TrackedObjectInput
	insertN   int
	insertErr error
}

func (f *fakeRepo) InsertApproachEvents(ctx context.Context, items []models.ApproachEventInput) (int, error) {
	f.eventsIn = items
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	if f.insertN > 0 {
		return f.insertN, nil
	}
	return len(items), nil
}

func (f *fakeRepo) UpsertObjects(ctx context.Context, items []models.TrackedObjectInput) (int, error) {
	f.objectsIn = items
	return len(items), nil
}

type fakeFeed struct {
	recs []cadfeed.Record
	err  error
}

func (f fakeFeed) FetchCloseApproaches(ctx context.Context, q cadfeed.Query) ([]cadfeed.Record, error) {
	return f.recs, f.err
}

type fakeRL struct {
	allowed bool
	err     error
}

func (r fakeRL) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	return r.allowed, 1, r.err
}

func name(s string) *string { return &s }

func TestSync_WritesEventsAndObjects(t *testing.T) {
	repo := &fakeRepo{}
	feed := fakeFeed{recs: []cadfeed.Record{
		{ObjectID: "2010 AB", Name: name("(2010 AB)"), ApproachTS: 1000, MissDistanceKM: 250_000, VRelKMS: 12.5},
		{ObjectID: "2020 CD", ApproachTS: 2000, MissDistanceKM: 90_000, VRelKMS: 7.25},
		{ObjectID: "2010 AB", ApproachTS: 90_000, MissDistanceKM: 300_000, VRelKMS: 11},
	}}
	s := New(repo, feed, fakeRL{allowed: true}, 30)

	res, err := s.Sync(context.Background(), cadfeed.Query{})
	require.NoError(t, err)
	require.Equal(t, 3, res.Fetched)
	require.Equal(t, 3, res.EventsInserted)
	require.Equal(t, 2, res.ObjectsWritten)

	// All records become approach events, repeats included.
	require.Len(t, repo.eventsIn, 3)
	require.Equal(t, "jpl_cad", repo.eventsIn[0].Source)

	// One state vector per object, from its first (earliest) record.
	require.Len(t, repo.objectsIn, 2)
	obj := repo.objectsIn[0]
	require.Equal(t, "2010 AB", obj.ObjectID)
	require.Equal(t, int64(1000), obj.EpochTS)
	require.Equal(t, 250_000.0, obj.XKM)
	require.Zero(t, obj.YKM)
	require.Equal(t, 12.5, obj.VYKMS)
	require.Zero(t, obj.VXKMS)
}

func TestSync_EmptyFeed(t *testing.T) {
	repo := &fakeRepo{}
	s := New(repo, fakeFeed{}, nil, 0)

	res, err := s.Sync(context.Background(), cadfeed.Query{})
	require.NoError(t, err)
	require.Zero(t, res.Fetched)
	require.Nil(t, repo.eventsIn)
}

func TestSync_FeedError(t *testing.T) {
	s := New(&fakeRepo{}, fakeFeed{err: errors.New("upstream down")}, nil, 0)
	_, err := s.Sync(context.Background(), cadfeed.Query{})
	require.Error(t, err)
}

func TestSync_RateLimited(t *testing.T) {
	repo := &fakeRepo{}
	s := New(repo, fakeFeed{recs: []cadfeed.Record{{ObjectID: "X", ApproachTS: 1}}}, fakeRL{allowed: false}, 1)

	_, err := s.Sync(context.Background(), cadfeed.Query{})
	require.Error(t, err)
	require.Nil(t, repo.eventsIn)
}

func TestSync_DedupCountFromStorage(t *testing.T) {
	repo := &fakeRepo{insertN: 1}
	feed := fakeFeed{recs: []cadfeed.Record{
		{ObjectID: "2010 AB", ApproachTS: 1000, MissDistanceKM: 1, VRelKMS: 1},
		{ObjectID: "2020 CD", ApproachTS: 2000, MissDistanceKM: 1, VRelKMS: 1},
	}}
	s := New(repo, feed, nil, 0)

	res, err := s.Sync(context.Background(), cadfeed.Query{})
	require.NoError(t, err)
	require.Equal(t, 2, res.Fetched)
	require.Equal(t, 1, res.EventsInserted)
}
