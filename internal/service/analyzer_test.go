package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironlog/ironlog/internal/domain"
)

func logForDay(t *testing.T, day int, completedAt time.Time, exercises []*domain.ExerciseState) *domain.WorkoutLog {
	t.Helper()
	payload, err := json.Marshal(exercises)
	require.NoError(t, err)
	return &domain.WorkoutLog{UserID: "user-1", Day: day, CompletedAt: completedAt, Exercises: payload}
}

func loggedSets(reps []int, weight float64) []*domain.LoggedSet {
	sets := make([]*domain.LoggedSet, 0, len(reps))
	for _, r := range reps {
		w := weight
		sets = append(sets, &domain.LoggedSet{RepsAchieved: &r, WeightUsed: &w, Completed: true})
	}
	return sets
}

func TestRecommendationsPerExercise(t *testing.T) {
	analyzer := NewProgressionAnalyzer()

	tests := []struct {
		name       string
		ex         *domain.ExerciseState
		wantAction string
		wantWeight *float64
	}{
		{
			name: "all sets at target adds weight with lower-body increment",
			ex: &domain.ExerciseState{
				ID: "sq", TargetSets: 3, TargetReps: 5, WeightMode: "barbell_lower",
				Success: true, LoggedSets: loggedSets([]int{5, 5, 5}, 100),
			},
			wantAction: "increase_weight",
			wantWeight: floatPtr(105),
		},
		{
			name: "upper-body increment is smaller",
			ex: &domain.ExerciseState{
				ID: "bp", TargetSets: 3, TargetReps: 5, WeightMode: "barbell_upper",
				Success: true, LoggedSets: loggedSets([]int{5, 5, 5}, 60),
			},
			wantAction: "increase_weight",
			wantWeight: floatPtr(62.5),
		},
		{
			name: "successful but short of target reps adds reps",
			ex: &domain.ExerciseState{
				ID: "rw", TargetSets: 3, TargetReps: 8, WeightMode: "machine_upper",
				Success: true, LoggedSets: loggedSets([]int{8, 8, 6}, 50),
			},
			wantAction: "add_reps",
		},
		{
			name: "fewer sets than prescribed adds reps",
			ex: &domain.ExerciseState{
				ID: "rw", TargetSets: 3, TargetReps: 8, WeightMode: "machine_upper",
				Success: true, LoggedSets: loggedSets([]int{8, 8}, 50),
			},
			wantAction: "add_reps",
		},
		{
			name: "failure deloads off the heaviest set",
			ex: &domain.ExerciseState{
				ID: "dl", TargetSets: 1, TargetReps: 5, WeightMode: "barbell_lower",
				Success: false, LoggedSets: loggedSets([]int{3}, 140),
			},
			wantAction: "deload",
			wantWeight: floatPtr(126),
		},
		{
			name:       "skip holds",
			ex:         &domain.ExerciseState{ID: "cu", TargetSets: 3, TargetReps: 12, Skipped: true},
			wantAction: "hold",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logs := []*domain.WorkoutLog{
				logForDay(t, 1, time.Now(), []*domain.ExerciseState{tc.ex}),
			}
			recs := analyzer.RecommendationsForDay(logs, 1)
			require.Len(t, recs, 1)
			assert.Equal(t, tc.ex.ID, recs[0].ExerciseID)
			assert.Equal(t, tc.wantAction, recs[0].Action)
			if tc.wantWeight != nil {
				require.NotNil(t, recs[0].SuggestedWeight)
				assert.InDelta(t, *tc.wantWeight, *recs[0].SuggestedWeight, 0.001)
			}
		})
	}
}

func TestRecommendationsUseLatestLogForDay(t *testing.T) {
	analyzer := NewProgressionAnalyzer()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	older := []*domain.ExerciseState{{
		ID: "sq", TargetSets: 3, TargetReps: 5, WeightMode: "barbell_lower",
		Success: false, LoggedSets: loggedSets([]int{3, 3, 3}, 100),
	}}
	newer := []*domain.ExerciseState{{
		ID: "sq", TargetSets: 3, TargetReps: 5, WeightMode: "barbell_lower",
		Success: true, LoggedSets: loggedSets([]int{5, 5, 5}, 95),
	}}
	otherDay := []*domain.ExerciseState{{
		ID: "bp", TargetSets: 3, TargetReps: 5, Skipped: true,
	}}

	logs := []*domain.WorkoutLog{
		logForDay(t, 1, base, older),
		logForDay(t, 1, base.AddDate(0, 0, 7), newer),
		logForDay(t, 2, base.AddDate(0, 0, 8), otherDay),
	}

	recs := analyzer.RecommendationsForDay(logs, 1)
	require.Len(t, recs, 1)
	assert.Equal(t, "sq", recs[0].ExerciseID)
	assert.Equal(t, "increase_weight", recs[0].Action)
	assert.InDelta(t, 100, *recs[0].SuggestedWeight, 0.001)
}

func TestRecommendationsDegradeQuietly(t *testing.T) {
	analyzer := NewProgressionAnalyzer()

	// No history at all.
	recs := analyzer.RecommendationsForDay(nil, 1)
	require.NotNil(t, recs)
	assert.Empty(t, recs)

	// Day exists only with an undecodable payload.
	logs := []*domain.WorkoutLog{
		{UserID: "user-1", Day: 1, CompletedAt: time.Now(), Exercises: json.RawMessage(`{broken`)},
		nil,
	}
	recs = analyzer.RecommendationsForDay(logs, 1)
	assert.Empty(t, recs)
}
