package domain

import (
	"encoding/json"
	"time"
)

// WorkoutLog is one finished workout in history. The sync engine only reads
// Day and CompletedAt (to feed recommendation reloads); Exercises stays
// opaque.
type WorkoutLog struct {
	ID          string          `json:"id" bson:"_id,omitempty"`
	UserID      string          `json:"user_id" bson:"user_id"`
	Day         int             `json:"day" bson:"day"`
	CompletedAt time.Time       `json:"completed_at" bson:"completed_at"`
	Exercises   json.RawMessage `json:"exercises,omitempty" bson:"exercises,omitempty"`
}

// OfflineBundle is the full durable snapshot kept per user: everything the
// app needs to run disconnected. Persisted as one unit, not as diffs.
type OfflineBundle struct {
	Logs              []*WorkoutLog   `json:"logs"`
	Profile           json.RawMessage `json:"profile,omitempty"`
	Plan              json.RawMessage `json:"plan,omitempty"`
	CurrentSession    *Session        `json:"current_session"`
	LastSyncTimestamp int64           `json:"last_sync_timestamp"` // ms epoch, 0 = never synced
}

// EmptyBundle returns the bundle used when nothing has been persisted yet.
func EmptyBundle() *OfflineBundle {
	return &OfflineBundle{Logs: []*WorkoutLog{}, LastSyncTimestamp: 0}
}

// BundlePatch is a partial update merged into the stored bundle. Nil fields
// leave the stored value alone. SessionSet distinguishes "clear the session"
// from "don't touch the session".
type BundlePatch struct {
	Logs              []*WorkoutLog
	Profile           json.RawMessage
	Plan              json.RawMessage
	Session           *Session
	SessionSet        bool
	LastSyncTimestamp *int64
}

// Apply merges the patch into b.
func (p *BundlePatch) Apply(b *OfflineBundle) {
	if p.Logs != nil {
		b.Logs = p.Logs
	}
	if p.Profile != nil {
		b.Profile = p.Profile
	}
	if p.Plan != nil {
		b.Plan = p.Plan
	}
	if p.SessionSet {
		b.CurrentSession = p.Session
	}
	if p.LastSyncTimestamp != nil {
		b.LastSyncTimestamp = *p.LastSyncTimestamp
	}
}

// Mutation kinds carried by queue entries.
const (
	MutationSessionWrite  = "session.write"
	MutationSessionDelete = "session.delete"
	MutationLogSave       = "log.save"
)

// QueueEntry is one pending remote mutation recorded while the device was
// offline or a remote write failed. ID is a ULID, so lexicographic key order
// in the queue store is enqueue order.
type QueueEntry struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}
