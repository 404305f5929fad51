package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ironlog/ironlog/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const bundleKeyPrefix = "bundle:"

// BadgerSnapshotStore implements domain.SnapshotStore on an embedded
// BadgerDB. One key per user holding the whole bundle as JSON; Save is
// read-merge-write inside a single transaction, so callers never observe a
// half-applied patch.
type BadgerSnapshotStore struct {
	db  *badger.DB
	now func() time.Time
}

// NewBadgerSnapshotStore creates a snapshot store on an open Badger handle.
func NewBadgerSnapshotStore(db *badger.DB) *BadgerSnapshotStore {
	return &BadgerSnapshotStore{db: db, now: time.Now}
}

func bundleKey(userID string) []byte {
	return []byte(bundleKeyPrefix + userID)
}

// Save merges the patch into the stored bundle and persists the result as one
// unit.
func (s *BadgerSnapshotStore) Save(ctx context.Context, userID string, patch *domain.BundlePatch) error {
	tracer := otel.Tracer("badger")
	_, span := tracer.Start(ctx, "badger.SaveBundle",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	err := s.db.Update(func(txn *badger.Txn) error {
		bundle, err := readBundle(txn, userID)
		if err != nil {
			return err
		}
		patch.Apply(bundle)

		data, err := json.Marshal(bundle)
		if err != nil {
			return fmt.Errorf("failed to marshal bundle: %w", err)
		}
		return txn.Set(bundleKey(userID), data)
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save bundle: %w", err)
	}
	return nil
}

// Load returns the last persisted bundle, or an empty bundle when the user
// has never synced.
func (s *BadgerSnapshotStore) Load(ctx context.Context, userID string) (*domain.OfflineBundle, error) {
	tracer := otel.Tracer("badger")
	_, span := tracer.Start(ctx, "badger.LoadBundle",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	var bundle *domain.OfflineBundle
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		bundle, err = readBundle(txn, userID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load bundle: %w", err)
	}
	return bundle, nil
}

// IsFresh reports whether the stored bundle was synced within maxAge.
func (s *BadgerSnapshotStore) IsFresh(ctx context.Context, userID string, maxAge time.Duration) (bool, error) {
	bundle, err := s.Load(ctx, userID)
	if err != nil {
		return false, err
	}
	if bundle.LastSyncTimestamp == 0 {
		return false, nil
	}
	synced := time.UnixMilli(bundle.LastSyncTimestamp)
	return s.now().Sub(synced) <= maxAge, nil
}

// PurgeStale deletes bundles whose last sync is older than threshold. Queue
// entries live under a different prefix and are untouched.
func (s *BadgerSnapshotStore) PurgeStale(ctx context.Context, threshold time.Duration) (int, error) {
	tracer := otel.Tracer("badger")
	_, span := tracer.Start(ctx, "badger.PurgeStale")
	defer span.End()

	cutoff := s.now().Add(-threshold).UnixMilli()
	purged := 0

	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(bundleKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var bundle domain.OfflineBundle
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &bundle)
			})
			if err != nil {
				// Unreadable record counts as stale.
				stale = append(stale, item.KeyCopy(nil))
				continue
			}
			if bundle.LastSyncTimestamp < cutoff {
				stale = append(stale, item.KeyCopy(nil))
			}
		}
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
			purged++
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return purged, fmt.Errorf("failed to purge stale bundles: %w", err)
	}
	span.SetAttributes(attribute.Int("bundles.purged", purged))
	return purged, nil
}

// Delete removes the user's bundle entirely (logout).
func (s *BadgerSnapshotStore) Delete(ctx context.Context, userID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(bundleKey(userID))
	})
	if err != nil {
		return fmt.Errorf("failed to delete bundle: %w", err)
	}
	return nil
}

func readBundle(txn *badger.Txn, userID string) (*domain.OfflineBundle, error) {
	item, err := txn.Get(bundleKey(userID))
	if err == badger.ErrKeyNotFound {
		return domain.EmptyBundle(), nil
	}
	if err != nil {
		return nil, err
	}

	bundle := domain.EmptyBundle()
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, bundle)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal bundle: %w", err)
	}
	if bundle.Logs == nil {
		bundle.Logs = []*domain.WorkoutLog{}
	}
	return bundle, nil
}
