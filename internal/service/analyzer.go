package service

import (
	"encoding/json"

	"github.com/ironlog/ironlog/internal/domain"
)

// Weight increments by equipment kind. Coarse on purpose; the analyzer is a
// default, not a coaching product.
const (
	incrementUpper = 2.5
	incrementLower = 5.0
	deloadFactor   = 0.9
)

// ProgressionAnalyzer is the default domain.Analyzer: double-progression
// rules applied to the most recent log for the requested day. All target
// reps hit on every completed set means add weight; a failed exercise means
// deload; a skip holds.
type ProgressionAnalyzer struct{}

// NewProgressionAnalyzer returns the default analyzer.
func NewProgressionAnalyzer() *ProgressionAnalyzer {
	return &ProgressionAnalyzer{}
}

// RecommendationsForDay derives recommendations from history. Logs whose
// exercise payload doesn't decode contribute nothing; an empty history
// yields an empty list, never nil.
func (a *ProgressionAnalyzer) RecommendationsForDay(logs []*domain.WorkoutLog, day int) []domain.Recommendation {
	recs := []domain.Recommendation{}

	latest := latestLogForDay(logs, day)
	if latest == nil {
		return recs
	}

	var exercises []*domain.ExerciseState
	if err := json.Unmarshal(latest.Exercises, &exercises); err != nil {
		return recs
	}

	for _, ex := range exercises {
		if ex == nil || ex.ID == "" {
			continue
		}
		recs = append(recs, recommendFor(ex))
	}
	return recs
}

func latestLogForDay(logs []*domain.WorkoutLog, day int) *domain.WorkoutLog {
	var latest *domain.WorkoutLog
	for _, l := range logs {
		if l == nil || l.Day != day || len(l.Exercises) == 0 {
			continue
		}
		if latest == nil || l.CompletedAt.After(latest.CompletedAt) {
			latest = l
		}
	}
	return latest
}

func recommendFor(ex *domain.ExerciseState) domain.Recommendation {
	rec := domain.Recommendation{ExerciseID: ex.ID}

	if ex.Skipped {
		rec.Action = "hold"
		rec.Reason = "skipped last time, repeat the prescription"
		return rec
	}
	if !ex.Success {
		rec.Action = "deload"
		if w := maxWeight(ex.LoggedSets); w != nil {
			deload := *w * deloadFactor
			rec.SuggestedWeight = &deload
		}
		rec.Reason = "missed target reps, back off and rebuild"
		return rec
	}
	if allSetsAtTarget(ex) {
		rec.Action = "increase_weight"
		if w := maxWeight(ex.LoggedSets); w != nil {
			next := *w + incrementFor(ex.WeightMode)
			rec.SuggestedWeight = &next
		}
		rec.Reason = "all sets at target reps"
		return rec
	}

	rec.Action = "add_reps"
	reps := ex.TargetReps
	rec.SuggestedReps = &reps
	rec.Reason = "close out remaining reps before adding weight"
	return rec
}

func allSetsAtTarget(ex *domain.ExerciseState) bool {
	if len(ex.LoggedSets) < ex.TargetSets {
		return false
	}
	for _, set := range ex.LoggedSets {
		if set == nil || !set.Completed || set.RepsAchieved == nil || *set.RepsAchieved < ex.TargetReps {
			return false
		}
	}
	return true
}

func maxWeight(sets []*domain.LoggedSet) *float64 {
	var max *float64
	for _, set := range sets {
		if set == nil || set.WeightUsed == nil {
			continue
		}
		if max == nil || *set.WeightUsed > *max {
			max = set.WeightUsed
		}
	}
	return max
}

func incrementFor(weightMode string) float64 {
	switch weightMode {
	case "barbell_lower", "machine_lower":
		return incrementLower
	default:
		return incrementUpper
	}
}
