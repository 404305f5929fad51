package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironlog/ironlog/internal/domain"
)

type reconcilerFixture struct {
	*serviceFixture
	rec      *Reconciler
	analyzer *fakeAnalyzer
}

func newReconcilerFixture(t *testing.T, online bool) *reconcilerFixture {
	t.Helper()
	base := newServiceFixture(t, online)
	analyzer := &fakeAnalyzer{}
	return &reconcilerFixture{
		serviceFixture: base,
		rec:            NewReconciler(base.svc, base.conn, base.store, analyzer),
		analyzer:       analyzer,
	}
}

func remoteSnapshot(day int, start time.Time, exercises []*domain.ExerciseState) *domain.Session {
	return &domain.Session{
		ActiveDay:               &day,
		Exercises:               exercises,
		StartTime:               &start,
		ExerciseRecommendations: []domain.Recommendation{},
	}
}

func TestOfflineSnapshotsAreDiscarded(t *testing.T) {
	f := newReconcilerFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.StartWorkout(ctx, 3, planExercises())
	require.NoError(t, err)
	require.NoError(t, f.svc.UpdateExercise(ctx, 0, []*domain.LoggedSet{{RepsAchieved: intPtr(5)}}, true, false))

	// A buffered "no session" snapshot arrives while disconnected: the live
	// offline workout must survive it untouched.
	f.rec.ApplySnapshot(ctx, nil)

	session := f.svc.Current()
	require.True(t, session.Active())
	assert.Equal(t, 3, *session.ActiveDay)
	assert.True(t, session.Exercises[0].Completed)

	// Same for a divergent non-nil snapshot.
	f.rec.ApplySnapshot(ctx, remoteSnapshot(5, time.Now(), nil))
	assert.Equal(t, 3, *f.svc.Current().ActiveDay)
}

func TestNilSnapshotResetsWhenOnline(t *testing.T) {
	f := newReconcilerFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.StartWorkout(ctx, 1, planExercises())
	require.NoError(t, err)

	f.rec.ApplySnapshot(ctx, nil)

	session := f.svc.Current()
	assert.False(t, session.Active())
	assert.Nil(t, session.ActiveDay)
	assert.Empty(t, session.Exercises)
}

func TestEqualSnapshotKeepsExerciseReference(t *testing.T) {
	f := newReconcilerFixture(t, true)
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	f.rec.ApplySnapshot(ctx, remoteSnapshot(2, start, planExercises()))
	before := f.svc.Current().Exercises
	require.Len(t, before, 3)

	// Re-delivery of a structurally identical snapshot: everything else is
	// overwritten but the exercise slice must be the same one, so holders of
	// the reference see an unchanged sequence.
	f.rec.ApplySnapshot(ctx, remoteSnapshot(2, start, planExercises()))
	after := f.svc.Current().Exercises
	require.Len(t, after, 3)
	for i := range before {
		assert.Same(t, before[i], after[i])
	}
}

func TestDivergentSnapshotReplacesExercises(t *testing.T) {
	f := newReconcilerFixture(t, true)
	ctx := context.Background()

	start := time.Now()
	f.rec.ApplySnapshot(ctx, remoteSnapshot(2, start, planExercises()))

	changed := planExercises()
	changed[0].Completed = true
	changed[0].LoggedSets = []*domain.LoggedSet{{RepsAchieved: intPtr(5), Completed: true}}
	f.rec.ApplySnapshot(ctx, remoteSnapshot(2, start, changed))

	exercises := f.svc.Current().Exercises
	assert.True(t, exercises[0].Completed)
	require.Len(t, exercises[0].LoggedSets, 1)
}

func TestSnapshotDefaultsAbsentCollections(t *testing.T) {
	f := newReconcilerFixture(t, true)
	ctx := context.Background()

	day := 1
	f.rec.ApplySnapshot(ctx, &domain.Session{ActiveDay: &day})

	session := f.svc.Current()
	assert.NotNil(t, session.Exercises)
	assert.NotNil(t, session.ExerciseRecommendations)
}

func TestDayChangeReloadsRecommendations(t *testing.T) {
	f := newReconcilerFixture(t, true)
	ctx := context.Background()

	f.analyzer.recs = []domain.Recommendation{
		{ExerciseID: "sq", Action: "increase_weight", SuggestedWeight: floatPtr(105)},
	}
	payload, err := json.Marshal(planExercises())
	require.NoError(t, err)
	require.NoError(t, f.store.Save(ctx, "user-1", &domain.BundlePatch{
		Logs: []*domain.WorkoutLog{{UserID: "user-1", Day: 3, Exercises: payload}},
	}))

	start := time.Now()
	f.rec.ApplySnapshot(ctx, remoteSnapshot(3, start, planExercises()))
	assert.Equal(t, []int{3}, f.analyzer.calls())

	recs := f.svc.Current().ExerciseRecommendations
	require.Len(t, recs, 1)
	assert.Equal(t, "increase_weight", recs[0].Action)

	// Same day again: no second load.
	f.rec.ApplySnapshot(ctx, remoteSnapshot(3, start, planExercises()))
	assert.Equal(t, []int{3}, f.analyzer.calls())

	// Day changes: reload.
	f.rec.ApplySnapshot(ctx, remoteSnapshot(4, start, planExercises()))
	assert.Equal(t, []int{3, 4}, f.analyzer.calls())

	// Session ends and the same day restarts later: the marker was cleared,
	// so the day loads fresh.
	f.rec.ApplySnapshot(ctx, nil)
	f.rec.ApplySnapshot(ctx, remoteSnapshot(4, start, planExercises()))
	assert.Equal(t, []int{3, 4, 4}, f.analyzer.calls())
}
