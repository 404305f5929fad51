package domain

import (
	"context"
	"time"
)

// SnapshotStore is the durable local cache of the full offline bundle.
// One record per user; whole-bundle writes, no diffs.
type SnapshotStore interface {
	// Save merges the patch into the stored bundle and persists the result.
	Save(ctx context.Context, userID string, patch *BundlePatch) error
	// Load returns the last persisted bundle, or EmptyBundle() when none
	// exists. Never returns (nil, nil).
	Load(ctx context.Context, userID string) (*OfflineBundle, error)
	// IsFresh reports whether the stored bundle was synced within maxAge.
	IsFresh(ctx context.Context, userID string, maxAge time.Duration) (bool, error)
	// PurgeStale deletes bundles older than threshold and returns how many
	// were removed. The mutation queue is not touched.
	PurgeStale(ctx context.Context, threshold time.Duration) (int, error)
	// Delete removes the user's bundle (logout).
	Delete(ctx context.Context, userID string) error
}

// MutationQueue is the durable FIFO of writes pending remote delivery.
type MutationQueue interface {
	Enqueue(ctx context.Context, userID string, entry *QueueEntry) error
	// Drain replays entries in enqueue order, removing each only after apply
	// succeeds. It stops at the first failure and returns how many entries
	// were applied; the failed entry stays at the head for the next drain.
	Drain(ctx context.Context, userID string, apply func(*QueueEntry) error) (int, error)
	Len(ctx context.Context, userID string) (int, error)
}

// SessionChannel is the push/subscribe channel to the one canonical session
// document per user. Delivery is at-least-once and may race local writes;
// the reconciler re-checks connectivity at apply time.
type SessionChannel interface {
	// Subscribe delivers every snapshot of the user's canonical document to
	// fn, nil meaning "no session". The returned stop func cancels the
	// subscription.
	Subscribe(ctx context.Context, userID string, fn func(*Session)) (func(), error)
	Write(ctx context.Context, userID string, session *Session) error
	Delete(ctx context.Context, userID string) error
}

// Connectivity answers "are we online right now" and announces transitions.
type Connectivity interface {
	Online() bool
	// OnTransition registers fn to run on every offline<->online flip. The
	// returned stop func unregisters it.
	OnTransition(fn func(online bool)) func()
}

// HistoryStore is the external profile/plan/log collaborator. The engine
// reads logs only for day numbers and timestamps.
type HistoryStore interface {
	LoadProfile(ctx context.Context, userID string) ([]byte, error)
	LoadPlan(ctx context.Context, userID string) ([]byte, error)
	LoadLogs(ctx context.Context, userID string) ([]*WorkoutLog, error)
	SaveLog(ctx context.Context, log *WorkoutLog) (*WorkoutLog, error)
}

// Analyzer turns workout history into per-exercise recommendations. Pure
// function of its inputs.
type Analyzer interface {
	RecommendationsForDay(logs []*WorkoutLog, day int) []Recommendation
}
