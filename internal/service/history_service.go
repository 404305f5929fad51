package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ironlog/ironlog/internal/domain"
)

// HistoryService fronts the external history collaborator with the same
// offline posture as the session machinery: reads fall back to the local
// bundle, writes fall back to the mutation queue. The bundle doubles as the
// read cache, refreshed whenever the remote store answers.
type HistoryService struct {
	history  domain.HistoryStore
	store    domain.SnapshotStore
	queue    domain.MutationQueue
	conn     domain.Connectivity
	analyzer domain.Analyzer
	now      func() time.Time
}

// NewHistoryService wires the history surface.
func NewHistoryService(
	history domain.HistoryStore,
	store domain.SnapshotStore,
	queue domain.MutationQueue,
	conn domain.Connectivity,
	analyzer domain.Analyzer,
) *HistoryService {
	return &HistoryService{
		history:  history,
		store:    store,
		queue:    queue,
		conn:     conn,
		analyzer: analyzer,
		now:      time.Now,
	}
}

// Logs returns the user's workout history, remote-first with the cached
// bundle as the offline answer.
func (s *HistoryService) Logs(ctx context.Context, userID string) ([]*domain.WorkoutLog, error) {
	if s.conn.Online() {
		logs, err := s.history.LoadLogs(ctx, userID)
		if err == nil {
			if err := s.store.Save(ctx, userID, &domain.BundlePatch{Logs: logs}); err != nil {
				log.Printf("history %s: log cache refresh failed: %v", userID, err)
			}
			return logs, nil
		}
		log.Printf("history %s: remote log load failed, serving cache: %v", userID, err)
	}

	bundle, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cached logs: %w", err)
	}
	return bundle.Logs, nil
}

// SaveLog records a finished workout. The log always lands in the local
// bundle immediately; the remote save is best-effort and queued when offline
// or failing, so a dead zone never loses a finished workout.
func (s *HistoryService) SaveLog(ctx context.Context, workoutLog *domain.WorkoutLog) (*domain.WorkoutLog, error) {
	if workoutLog == nil || workoutLog.UserID == "" {
		return nil, domain.ErrNoUserIdentity
	}
	if workoutLog.CompletedAt.IsZero() {
		workoutLog.CompletedAt = s.now()
	}

	saved := workoutLog
	remoteOK := false
	if s.conn.Online() {
		got, err := s.history.SaveLog(ctx, workoutLog)
		if err == nil {
			saved = got
			remoteOK = true
		} else {
			log.Printf("history %s: remote log save failed, queueing: %v", workoutLog.UserID, err)
		}
	}
	if !remoteOK {
		payload, err := json.Marshal(workoutLog)
		if err != nil {
			return nil, fmt.Errorf("marshal log for queue: %w", err)
		}
		err = s.queue.Enqueue(ctx, workoutLog.UserID, &domain.QueueEntry{
			Kind:       domain.MutationLogSave,
			Payload:    payload,
			EnqueuedAt: s.now(),
		})
		if err != nil {
			return nil, fmt.Errorf("queue log save: %w", err)
		}
	}

	bundle, err := s.store.Load(ctx, saved.UserID)
	if err != nil {
		log.Printf("history %s: bundle load for log cache failed: %v", saved.UserID, err)
		return saved, nil
	}
	cached := append([]*domain.WorkoutLog{saved}, bundle.Logs...)
	if err := s.store.Save(ctx, saved.UserID, &domain.BundlePatch{Logs: cached}); err != nil {
		log.Printf("history %s: log cache update failed: %v", saved.UserID, err)
	}
	return saved, nil
}

// Recommendations computes progression recommendations for a plan day from
// the cached history. Works offline by construction.
func (s *HistoryService) Recommendations(ctx context.Context, userID string, day int) ([]domain.Recommendation, error) {
	bundle, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load history for recommendations: %w", err)
	}
	return s.analyzer.RecommendationsForDay(bundle.Logs, day), nil
}

// Hydrate pulls profile, plan and logs from the remote store into the local
// bundle. Called after login so the bundle is complete before the first
// offline stretch. Missing documents are not errors; a user may simply not
// have a profile yet.
func (s *HistoryService) Hydrate(ctx context.Context, userID string) error {
	if !s.conn.Online() {
		return nil
	}

	patch := &domain.BundlePatch{}

	if profile, err := s.history.LoadProfile(ctx, userID); err == nil {
		patch.Profile = profile
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("hydrate profile: %w", err)
	}
	if plan, err := s.history.LoadPlan(ctx, userID); err == nil {
		patch.Plan = plan
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("hydrate plan: %w", err)
	}
	logs, err := s.history.LoadLogs(ctx, userID)
	if err != nil {
		return fmt.Errorf("hydrate logs: %w", err)
	}
	patch.Logs = logs

	ts := s.now().UnixMilli()
	patch.LastSyncTimestamp = &ts
	if err := s.store.Save(ctx, userID, patch); err != nil {
		return fmt.Errorf("persist hydrated bundle: %w", err)
	}
	return nil
}
