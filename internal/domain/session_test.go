package domain

import (
	"testing"
	"time"
)

func intPtr(i int) *int { return &i }

func floatPtr(f float64) *float64 { return &f }

func timePtr(t time.Time) *time.Time { return &t }

func TestElapsedSeconds(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		session *Session
		now     time.Time
		want    int
	}{
		{
			name:    "nil session",
			session: nil,
			now:     start,
			want:    0,
		},
		{
			name:    "no start time",
			session: EmptySession(),
			now:     start,
			want:    0,
		},
		{
			name:    "five minutes in",
			session: &Session{ActiveDay: intPtr(1), StartTime: timePtr(start)},
			now:     start.Add(5 * time.Minute),
			want:    300,
		},
		{
			name:    "clock behind start clamps to zero",
			session: &Session{ActiveDay: intPtr(1), StartTime: timePtr(start)},
			now:     start.Add(-time.Minute),
			want:    0,
		},
		{
			name:    "sub-second truncates",
			session: &Session{ActiveDay: intPtr(1), StartTime: timePtr(start)},
			now:     start.Add(2900 * time.Millisecond),
			want:    2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.session.ElapsedSeconds(tt.now); got != tt.want {
				t.Errorf("ElapsedSeconds() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSanitizeLoggedSets(t *testing.T) {
	in := []*LoggedSet{
		nil,
		{RepsAchieved: intPtr(10), WeightUsed: floatPtr(50), Completed: true},
		{}, // nothing filled in
	}

	out := SanitizeLoggedSets(in)
	if len(out) != 2 {
		t.Fatalf("expected nil entries dropped, got %d sets", len(out))
	}
	if out[0].RepsAchieved == nil || *out[0].RepsAchieved != 10 {
		t.Errorf("reps not preserved: %+v", out[0])
	}
	if out[1].RepsAchieved != nil || out[1].WeightUsed != nil {
		t.Errorf("missing numerics must stay nil: %+v", out[1])
	}
	if out[1].Completed {
		t.Errorf("missing completed must default to false")
	}

	if got := SanitizeLoggedSets(nil); got == nil || len(got) != 0 {
		t.Errorf("nil input must yield empty non-nil slice, got %v", got)
	}
}

func TestExercisesEqual(t *testing.T) {
	base := func() []*ExerciseState {
		return []*ExerciseState{
			{
				ID: "sq", Name: "Back Squat", TargetSets: 3, TargetReps: 5, RestSeconds: 180,
				LoggedSets: []*LoggedSet{{RepsAchieved: intPtr(5), WeightUsed: floatPtr(100), Completed: true}},
				Completed:  true, Success: true,
			},
			{ID: "bp", Name: "Bench Press", TargetSets: 3, TargetReps: 8, RestSeconds: 120, LoggedSets: []*LoggedSet{}},
		}
	}

	tests := []struct {
		name   string
		mutate func([]*ExerciseState)
		want   bool
	}{
		{"identical copies", func([]*ExerciseState) {}, true},
		{"different order", func(e []*ExerciseState) { e[0], e[1] = e[1], e[0] }, false},
		{"set weight differs", func(e []*ExerciseState) { e[0].LoggedSets[0].WeightUsed = floatPtr(102.5) }, false},
		{"set weight nil vs value", func(e []*ExerciseState) { e[0].LoggedSets[0].WeightUsed = nil }, false},
		{"skipped flag differs", func(e []*ExerciseState) { e[1].Skipped = true }, false},
		{"extra logged set", func(e []*ExerciseState) {
			e[1].LoggedSets = append(e[1].LoggedSets, &LoggedSet{Completed: true})
		}, false},
		{"display field differs", func(e []*ExerciseState) { e[1].Name = "Incline Bench" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := base(), base()
			tt.mutate(b)
			if got := ExercisesEqual(a, b); got != tt.want {
				t.Errorf("ExercisesEqual() = %v, want %v", got, tt.want)
			}
		})
	}

	if !ExercisesEqual(nil, []*ExerciseState{}) {
		t.Errorf("nil and empty sequences are structurally equal")
	}
}

func TestBundlePatchApply(t *testing.T) {
	b := EmptyBundle()
	sess := &Session{ActiveDay: intPtr(2), StartTime: timePtr(time.Now()), Exercises: []*ExerciseState{}}

	(&BundlePatch{Session: sess, SessionSet: true}).Apply(b)
	if b.CurrentSession != sess {
		t.Fatalf("session not applied")
	}

	// Patch without SessionSet must leave the session alone.
	ts := int64(1234)
	(&BundlePatch{LastSyncTimestamp: &ts}).Apply(b)
	if b.CurrentSession != sess {
		t.Errorf("session clobbered by unrelated patch")
	}
	if b.LastSyncTimestamp != 1234 {
		t.Errorf("timestamp not applied: %d", b.LastSyncTimestamp)
	}

	// Explicit clear.
	(&BundlePatch{Session: nil, SessionSet: true}).Apply(b)
	if b.CurrentSession != nil {
		t.Errorf("SessionSet with nil session must clear")
	}
}
