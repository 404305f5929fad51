package service

import (
	"context"
	"log"
	"time"

	"github.com/ironlog/ironlog/internal/domain"
)

// SyncRunner is the background half of the engine for one user: it feeds the
// reconciler from the remote channel, reacts to connectivity transitions
// (immediate timer resync + queue drain on reconnect), keeps the timer
// ticking, and drains the queue on a defensive interval in case a transition
// event was missed.
type SyncRunner struct {
	svc        *SessionService
	reconciler *Reconciler
	timer      *TimerReconciler
	drainer    *QueueDrainer
	channel    domain.SessionChannel
	conn       domain.Connectivity

	drainInterval time.Duration
}

// NewSyncRunner assembles the runner from the per-user engine parts.
func NewSyncRunner(
	svc *SessionService,
	reconciler *Reconciler,
	timer *TimerReconciler,
	drainer *QueueDrainer,
	channel domain.SessionChannel,
	conn domain.Connectivity,
	drainInterval time.Duration,
) *SyncRunner {
	if drainInterval <= 0 {
		drainInterval = 30 * time.Second
	}
	return &SyncRunner{
		svc:           svc,
		reconciler:    reconciler,
		timer:         timer,
		drainer:       drainer,
		channel:       channel,
		conn:          conn,
		drainInterval: drainInterval,
	}
}

// Run blocks until ctx is cancelled.
func (r *SyncRunner) Run(ctx context.Context) error {
	userID := r.svc.UserID()

	stopSub, err := r.channel.Subscribe(ctx, userID, func(snap *domain.Session) {
		r.reconciler.ApplySnapshot(ctx, snap)
	})
	if err != nil {
		return err
	}
	defer stopSub()

	stopConn := r.conn.OnTransition(func(online bool) {
		if !online {
			return
		}
		// Reconnect: correct the clock first, then flush pending writes.
		r.timer.Resync(ctx)
		if _, err := r.drainer.Drain(ctx); err != nil {
			log.Printf("sync %s: reconnect drain incomplete: %v", userID, err)
		}
	})
	defer stopConn()

	go r.timer.Run(ctx)

	// Catch-up drain at startup for entries queued before the last shutdown.
	if _, err := r.drainer.Drain(ctx); err != nil {
		log.Printf("sync %s: startup drain incomplete: %v", userID, err)
	}

	ticker := time.NewTicker(r.drainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.drainer.Drain(ctx); err != nil {
				log.Printf("sync %s: periodic drain incomplete: %v", userID, err)
			}
		}
	}
}
