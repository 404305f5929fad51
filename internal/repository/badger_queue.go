package repository

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ironlog/ironlog/internal/domain"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const queueKeyPrefix = "queue:"

// BadgerMutationQueue implements domain.MutationQueue on BadgerDB. Entries
// are keyed "queue:<userID>:<ulid>"; ULIDs are monotonic within the process,
// so Badger's lexicographic iteration order is enqueue order and survives
// restarts.
type BadgerMutationQueue struct {
	db *badger.DB

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewBadgerMutationQueue creates a mutation queue on an open Badger handle.
func NewBadgerMutationQueue(db *badger.DB) *BadgerMutationQueue {
	return &BadgerMutationQueue{
		db:      db,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func queuePrefix(userID string) []byte {
	return []byte(queueKeyPrefix + userID + ":")
}

func (q *BadgerMutationQueue) nextID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), q.entropy).String()
}

// Enqueue appends the entry to the user's durable queue. A missing ID or
// timestamp is filled in here.
func (q *BadgerMutationQueue) Enqueue(ctx context.Context, userID string, entry *domain.QueueEntry) error {
	tracer := otel.Tracer("badger")
	_, span := tracer.Start(ctx, "badger.Enqueue",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("mutation.kind", entry.Kind),
		),
	)
	defer span.End()

	if entry.ID == "" {
		entry.ID = q.nextID()
	}
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal queue entry: %w", err)
	}

	key := append(queuePrefix(userID), []byte(entry.ID)...)
	err = q.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to enqueue mutation: %w", err)
	}
	return nil
}

// Drain replays pending entries strictly in enqueue order. Each entry is
// deleted only after apply succeeds; the first failure stops the drain and
// leaves the failed entry at the head for the next trigger.
func (q *BadgerMutationQueue) Drain(ctx context.Context, userID string, apply func(*domain.QueueEntry) error) (int, error) {
	tracer := otel.Tracer("badger")
	ctx, span := tracer.Start(ctx, "badger.DrainQueue",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	applied := 0
	for {
		entry, key, err := q.head(userID)
		if err != nil {
			span.RecordError(err)
			return applied, err
		}
		if entry == nil {
			break // queue empty
		}

		if err := ctx.Err(); err != nil {
			return applied, err
		}

		if err := apply(entry); err != nil {
			span.SetAttributes(attribute.Int("queue.applied", applied))
			return applied, fmt.Errorf("replay halted at entry %s (%s): %w", entry.ID, entry.Kind, err)
		}

		err = q.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
		if err != nil {
			// The remote write went through but the entry stays queued; the
			// next drain re-applies it. At-least-once is the contract here.
			return applied, fmt.Errorf("failed to remove applied entry %s: %w", entry.ID, err)
		}
		applied++
	}

	span.SetAttributes(attribute.Int("queue.applied", applied))
	return applied, nil
}

// Len returns the number of pending entries for the user.
func (q *BadgerMutationQueue) Len(ctx context.Context, userID string) (int, error) {
	count := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = queuePrefix(userID)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return count, nil
}

// head returns the oldest pending entry and its key, or (nil, nil, nil) when
// the queue is empty.
func (q *BadgerMutationQueue) head(userID string) (*domain.QueueEntry, []byte, error) {
	var entry *domain.QueueEntry
	var key []byte

	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = queuePrefix(userID)
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Rewind()
		if !it.Valid() {
			return nil
		}
		item := it.Item()
		key = item.KeyCopy(nil)
		return item.Value(func(val []byte) error {
			entry = &domain.QueueEntry{}
			return json.Unmarshal(val, entry)
		})
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read queue head: %w", err)
	}
	return entry, key, nil
}
