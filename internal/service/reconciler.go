package service

import (
	"context"
	"log"

	"github.com/ironlog/ironlog/internal/domain"
)

// Reconciler merges snapshots pushed by the remote session channel into local
// state. Two rules keep it safe:
//
//  1. Offline discard: while disconnected, inbound snapshots are dropped
//     entirely. Local state is authoritative offline, so a stale remote
//     "no session" can never erase a live offline workout.
//  2. Equality gating: the exercise sequence is only replaced when it
//     structurally differs from the local one. An equal sequence keeps the
//     existing slice, so downstream consumers holding the reference don't
//     re-process a merge that changed nothing.
type Reconciler struct {
	svc      *SessionService
	conn     domain.Connectivity
	store    domain.SnapshotStore
	analyzer domain.Analyzer

	// Day of the last recommendation load. Plain last-seen marker; rapid
	// day flapping can skip a reload, which we accept.
	lastLoadedDay *int
}

// NewReconciler wires a reconciler for the service's user.
func NewReconciler(svc *SessionService, conn domain.Connectivity, store domain.SnapshotStore, analyzer domain.Analyzer) *Reconciler {
	return &Reconciler{svc: svc, conn: conn, store: store, analyzer: analyzer}
}

// ApplySnapshot processes one inbound snapshot. Connectivity is checked at
// apply time, not at send time: a snapshot buffered across an offline
// transition is discarded here.
func (r *Reconciler) ApplySnapshot(ctx context.Context, snap *domain.Session) {
	if !r.conn.Online() {
		return
	}

	if snap == nil {
		// Remote says no active session. Clearing the day marker means a
		// later session on the same day reloads its recommendations.
		r.svc.ReconcileRemote(ctx, func(*domain.Session) *domain.Session {
			return domain.EmptySession()
		})
		r.lastLoadedDay = nil
		return
	}

	var mergedDay *int
	r.svc.ReconcileRemote(ctx, func(local *domain.Session) *domain.Session {
		next := mergeSnapshot(local, snap)
		mergedDay = next.ActiveDay
		return next
	})

	r.maybeReloadRecommendations(ctx, mergedDay)
}

// mergeSnapshot builds the post-merge session: every field except the
// exercise sequence is overwritten from the snapshot with absent optionals
// degraded to safe defaults; the sequence itself is equality-gated.
func mergeSnapshot(local, snap *domain.Session) *domain.Session {
	next := &domain.Session{
		ActiveDay:               snap.ActiveDay,
		StartTime:               snap.StartTime,
		TimerSeconds:            snap.TimerSeconds,
		WellnessCheck:           snap.WellnessCheck,
		AdaptivePlan:            snap.AdaptivePlan,
		WellnessRecommendations: snap.WellnessRecommendations,
	}

	if snap.ExerciseRecommendations != nil {
		next.ExerciseRecommendations = snap.ExerciseRecommendations
	} else {
		next.ExerciseRecommendations = []domain.Recommendation{}
	}

	remote := snap.Exercises
	if remote == nil {
		remote = []*domain.ExerciseState{}
	}
	if local != nil && domain.ExercisesEqual(local.Exercises, remote) {
		next.Exercises = local.Exercises
	} else {
		next.Exercises = remote
	}
	return next
}

// maybeReloadRecommendations refreshes exercise recommendations from stored
// history when the active day changed since the last load. Freshly computed
// recommendations win over whatever the snapshot carried, so a stale remote
// copy can't shadow them.
func (r *Reconciler) maybeReloadRecommendations(ctx context.Context, day *int) {
	if day == nil {
		r.lastLoadedDay = nil
		return
	}
	if r.lastLoadedDay != nil && *r.lastLoadedDay == *day {
		return
	}

	bundle, err := r.store.Load(ctx, r.svc.UserID())
	if err != nil {
		log.Printf("reconciler %s: history load for recommendations failed: %v", r.svc.UserID(), err)
		return
	}

	recs := r.analyzer.RecommendationsForDay(bundle.Logs, *day)
	r.svc.SetRecommendations(ctx, recs)

	d := *day
	r.lastLoadedDay = &d
}
