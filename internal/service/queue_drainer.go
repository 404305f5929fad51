package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ironlog/ironlog/internal/domain"
)

// QueueDrainer replays queued mutations against the remote store. It runs on
// the offline-to-online transition and, defensively, on a periodic tick. The
// queue itself guarantees FIFO with halt-on-failure; the drainer supplies
// the per-kind apply logic and stamps the bundle's last-sync time after a
// clean replay.
type QueueDrainer struct {
	userID  string
	queue   domain.MutationQueue
	channel domain.SessionChannel
	history domain.HistoryStore
	conn    domain.Connectivity
	store   domain.SnapshotStore
	now     func() time.Time
}

// NewQueueDrainer wires a drainer for one user.
func NewQueueDrainer(
	userID string,
	queue domain.MutationQueue,
	channel domain.SessionChannel,
	history domain.HistoryStore,
	conn domain.Connectivity,
	store domain.SnapshotStore,
) *QueueDrainer {
	return &QueueDrainer{
		userID:  userID,
		queue:   queue,
		channel: channel,
		history: history,
		conn:    conn,
		store:   store,
		now:     time.Now,
	}
}

// Drain replays pending mutations in order. A failed entry halts the drain
// and stays queued for the next trigger; going offline mid-drain fails the
// head entry the same way. Returns how many entries were applied.
func (d *QueueDrainer) Drain(ctx context.Context) (int, error) {
	if !d.conn.Online() {
		return 0, nil
	}

	applied, err := d.queue.Drain(ctx, d.userID, func(e *domain.QueueEntry) error {
		if !d.conn.Online() {
			return fmt.Errorf("went offline during replay")
		}
		return d.apply(ctx, e)
	})
	if err != nil {
		log.Printf("drain %s: halted after %d entries: %v", d.userID, applied, err)
		return applied, err
	}

	if applied > 0 {
		ts := d.now().UnixMilli()
		if err := d.store.Save(ctx, d.userID, &domain.BundlePatch{LastSyncTimestamp: &ts}); err != nil {
			log.Printf("drain %s: last-sync stamp failed: %v", d.userID, err)
		}
	}
	return applied, nil
}

// QueueDepth reports how many mutations are waiting for replay.
func (d *QueueDrainer) QueueDepth(ctx context.Context) (int, error) {
	return d.queue.Len(ctx, d.userID)
}

func (d *QueueDrainer) apply(ctx context.Context, e *domain.QueueEntry) error {
	switch e.Kind {
	case domain.MutationSessionWrite:
		var session domain.Session
		if err := json.Unmarshal(e.Payload, &session); err != nil {
			return fmt.Errorf("corrupt session payload: %w", err)
		}
		return d.channel.Write(ctx, d.userID, &session)

	case domain.MutationSessionDelete:
		return d.channel.Delete(ctx, d.userID)

	case domain.MutationLogSave:
		var workoutLog domain.WorkoutLog
		if err := json.Unmarshal(e.Payload, &workoutLog); err != nil {
			return fmt.Errorf("corrupt log payload: %w", err)
		}
		_, err := d.history.SaveLog(ctx, &workoutLog)
		return err

	default:
		return fmt.Errorf("unknown mutation kind %q", e.Kind)
	}
}
