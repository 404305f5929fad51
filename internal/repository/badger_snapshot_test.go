package repository

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ironlog/ironlog/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSnapshotStoreLoadEmpty(t *testing.T) {
	store := NewBadgerSnapshotStore(openTestDB(t))

	bundle, err := store.Load(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, bundle)
	assert.Equal(t, int64(0), bundle.LastSyncTimestamp)
	assert.Empty(t, bundle.Logs)
	assert.Nil(t, bundle.CurrentSession)
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	store := NewBadgerSnapshotStore(openTestDB(t))
	ctx := context.Background()

	day := 2
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	reps := 10
	weight := 50.0
	session := &domain.Session{
		ActiveDay: &day,
		StartTime: &start,
		Exercises: []*domain.ExerciseState{
			{
				ID: "sq", Name: "Back Squat", TargetSets: 3, TargetReps: 5,
				LoggedSets: []*domain.LoggedSet{
					{RepsAchieved: &reps, WeightUsed: &weight, Completed: true},
				},
				Completed: true, Success: true,
			},
			{ID: "bp", Name: "Bench Press", LoggedSets: []*domain.LoggedSet{}},
		},
		ExerciseRecommendations: []domain.Recommendation{},
	}

	ts := start.UnixMilli()
	err := store.Save(ctx, "u1", &domain.BundlePatch{
		Session: session, SessionSet: true, LastSyncTimestamp: &ts,
	})
	require.NoError(t, err)

	bundle, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, bundle.CurrentSession)

	got := bundle.CurrentSession
	assert.Equal(t, session.ActiveDay, got.ActiveDay)
	require.NotNil(t, got.StartTime)
	assert.True(t, got.StartTime.Equal(start))
	assert.True(t, domain.ExercisesEqual(session.Exercises, got.Exercises))
	assert.Equal(t, ts, bundle.LastSyncTimestamp)
}

func TestSnapshotStorePartialPatchKeepsSession(t *testing.T) {
	store := NewBadgerSnapshotStore(openTestDB(t))
	ctx := context.Background()

	day := 1
	session := &domain.Session{ActiveDay: &day, Exercises: []*domain.ExerciseState{{ID: "dl", Name: "Deadlift"}}}
	require.NoError(t, store.Save(ctx, "u1", &domain.BundlePatch{Session: session, SessionSet: true}))

	// A logs-only patch must not clear the stored session.
	logs := []*domain.WorkoutLog{{UserID: "u1", Day: 1, CompletedAt: time.Now()}}
	require.NoError(t, store.Save(ctx, "u1", &domain.BundlePatch{Logs: logs}))

	bundle, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, bundle.CurrentSession)
	assert.Len(t, bundle.Logs, 1)
}

func TestSnapshotStoreIsFresh(t *testing.T) {
	store := NewBadgerSnapshotStore(openTestDB(t))
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	fresh, err := store.IsFresh(ctx, "u1", time.Hour)
	require.NoError(t, err)
	assert.False(t, fresh, "never-synced bundle is not fresh")

	ts := now.Add(-30 * time.Minute).UnixMilli()
	require.NoError(t, store.Save(ctx, "u1", &domain.BundlePatch{LastSyncTimestamp: &ts}))

	fresh, err = store.IsFresh(ctx, "u1", time.Hour)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = store.IsFresh(ctx, "u1", 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestSnapshotStorePurgeStale(t *testing.T) {
	db := openTestDB(t)
	store := NewBadgerSnapshotStore(db)
	queue := NewBadgerMutationQueue(db)
	ctx := context.Background()

	now := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	oldTS := now.Add(-8 * 24 * time.Hour).UnixMilli()
	newTS := now.Add(-time.Hour).UnixMilli()
	require.NoError(t, store.Save(ctx, "stale-user", &domain.BundlePatch{LastSyncTimestamp: &oldTS}))
	require.NoError(t, store.Save(ctx, "fresh-user", &domain.BundlePatch{LastSyncTimestamp: &newTS}))

	// Queue entries share the DB but must survive a purge.
	require.NoError(t, queue.Enqueue(ctx, "stale-user", &domain.QueueEntry{Kind: domain.MutationSessionWrite}))

	purged, err := store.PurgeStale(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	bundle, err := store.Load(ctx, "stale-user")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bundle.LastSyncTimestamp, "stale bundle gone")

	bundle, err = store.Load(ctx, "fresh-user")
	require.NoError(t, err)
	assert.Equal(t, newTS, bundle.LastSyncTimestamp)

	n, err := queue.Len(ctx, "stale-user")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "purge must not touch the mutation queue")
}
