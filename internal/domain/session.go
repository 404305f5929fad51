package domain

import (
	"encoding/json"
	"time"
)

// LoggedSet is one performed set inside an exercise. RepsAchieved and
// WeightUsed stay nil when the client never filled them in; downstream
// consumers must not treat nil as zero.
type LoggedSet struct {
	RepsAchieved  *int     `json:"reps_achieved"`
	WeightUsed    *float64 `json:"weight_used"`
	Completed     bool     `json:"completed"`
	WeightContext string   `json:"weight_context,omitempty"` // e.g. "per_side", "total", "bodyweight"
}

// ExerciseState is one exercise inside the active session. Display fields are
// denormalized from the plan at start time. Completed/LoggedSets/Success/
// Skipped are the only fields the session mutates afterwards.
type ExerciseState struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TargetSets  int    `json:"target_sets"`
	TargetReps  int    `json:"target_reps"`
	RestSeconds int    `json:"rest_seconds"`
	WeightMode  string `json:"weight_mode,omitempty"` // e.g. "barbell", "dumbbell", "bodyweight"

	Completed  bool         `json:"completed"`
	LoggedSets []*LoggedSet `json:"logged_sets"`
	Success    bool         `json:"success"`
	Skipped    bool         `json:"skipped"`
}

// Recommendation is produced by the analyzer from workout history. The engine
// stores and serves it without interpreting it.
type Recommendation struct {
	ExerciseID      string   `json:"exercise_id"`
	Action          string   `json:"action"` // "increase_weight", "hold", "deload", "add_reps"
	SuggestedWeight *float64 `json:"suggested_weight,omitempty"`
	SuggestedReps   *int     `json:"suggested_reps,omitempty"`
	SuggestedSets   *int     `json:"suggested_sets,omitempty"`
	Reason          string   `json:"reason,omitempty"`
}

// Session is the single active-or-absent workout for one user.
//
// ActiveDay == nil means "no session running"; in that state Exercises is
// empty and StartTime is nil. The three transition together, always.
//
// TimerSeconds is a display cache. Elapsed time is always re-derivable as
// now - StartTime; nothing may treat TimerSeconds as the source of truth.
type Session struct {
	ActiveDay    *int             `json:"active_day"`
	Exercises    []*ExerciseState `json:"exercises"`
	StartTime    *time.Time       `json:"start_time"`
	TimerSeconds int              `json:"timer_seconds"`

	// Opaque payloads owned by external collaborators. Stored and merged,
	// never interpreted.
	WellnessCheck           json.RawMessage  `json:"wellness_check,omitempty"`
	AdaptivePlan            json.RawMessage  `json:"adaptive_plan,omitempty"`
	WellnessRecommendations json.RawMessage  `json:"wellness_recommendations,omitempty"`
	ExerciseRecommendations []Recommendation `json:"exercise_recommendations"`
}

// EmptySession returns the null session state.
func EmptySession() *Session {
	return &Session{Exercises: []*ExerciseState{}, ExerciseRecommendations: []Recommendation{}}
}

// Active reports whether a workout is currently running.
func (s *Session) Active() bool {
	return s != nil && s.ActiveDay != nil
}

// ElapsedSeconds derives elapsed time from StartTime. Returns 0 when no
// session is running. Never reads TimerSeconds.
func (s *Session) ElapsedSeconds(now time.Time) int {
	if s == nil || s.StartTime == nil {
		return 0
	}
	d := now.Sub(*s.StartTime)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

// SanitizeLoggedSets normalizes client-supplied sets: nil entries are dropped,
// missing numeric fields stay nil, and a missing completed flag decodes to
// false via the zero value. Always returns a non-nil slice.
func SanitizeLoggedSets(sets []*LoggedSet) []*LoggedSet {
	out := make([]*LoggedSet, 0, len(sets))
	for _, ls := range sets {
		if ls == nil {
			continue
		}
		out = append(out, &LoggedSet{
			RepsAchieved:  ls.RepsAchieved,
			WeightUsed:    ls.WeightUsed,
			Completed:     ls.Completed,
			WeightContext: ls.WeightContext,
		})
	}
	return out
}

// loggedSetEqual compares two sets field by field, including nil-ness of the
// optional numerics.
func loggedSetEqual(a, b *LoggedSet) bool {
	if a == nil || b == nil {
		return a == b
	}
	if (a.RepsAchieved == nil) != (b.RepsAchieved == nil) {
		return false
	}
	if a.RepsAchieved != nil && *a.RepsAchieved != *b.RepsAchieved {
		return false
	}
	if (a.WeightUsed == nil) != (b.WeightUsed == nil) {
		return false
	}
	if a.WeightUsed != nil && *a.WeightUsed != *b.WeightUsed {
		return false
	}
	return a.Completed == b.Completed && a.WeightContext == b.WeightContext
}

// exerciseStateEqual compares identifier, display fields and all
// session-mutable fields, set by set.
func exerciseStateEqual(a, b *ExerciseState) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ID != b.ID || a.Name != b.Name || a.Description != b.Description {
		return false
	}
	if a.TargetSets != b.TargetSets || a.TargetReps != b.TargetReps ||
		a.RestSeconds != b.RestSeconds || a.WeightMode != b.WeightMode {
		return false
	}
	if a.Completed != b.Completed || a.Success != b.Success || a.Skipped != b.Skipped {
		return false
	}
	if len(a.LoggedSets) != len(b.LoggedSets) {
		return false
	}
	for i := range a.LoggedSets {
		if !loggedSetEqual(a.LoggedSets[i], b.LoggedSets[i]) {
			return false
		}
	}
	return true
}

// ExercisesEqual is the structural-equality gate used at the merge boundary.
// Two sequences are equal only when they have the same length, order, and
// per-exercise content. The reconciler keeps the existing local slice when
// this returns true, so downstream consumers see a stable reference and
// don't re-process.
func ExercisesEqual(a, b []*ExerciseState) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !exerciseStateEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}
