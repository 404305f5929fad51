package service

import (
	"context"
	"time"
)

// TimerReconciler keeps the cached timer value honest. It never counts
// ticks: every update derives elapsed seconds from the session's absolute
// start time, so a process that slept for five minutes shows five minutes
// the moment it wakes, no matter how many ticks were skipped.
type TimerReconciler struct {
	svc      *SessionService
	interval time.Duration
	now      func() time.Time
}

// NewTimerReconciler creates a timer for the service's user. interval is the
// coarse recompute cadence; 1s gives a smoothly moving display.
func NewTimerReconciler(svc *SessionService, interval time.Duration) *TimerReconciler {
	if interval <= 0 {
		interval = time.Second
	}
	return &TimerReconciler{svc: svc, interval: interval, now: time.Now}
}

// Resync recomputes once, immediately. Called on reconnect and on
// resume-from-background so the displayed value is never stale longer than
// the recompute itself.
func (t *TimerReconciler) Resync(ctx context.Context) {
	session := t.svc.Current()
	if !session.Active() {
		return
	}
	t.svc.UpdateTimer(ctx, session.ElapsedSeconds(t.now()))
}

// Run recomputes on the interval until ctx is cancelled. Ticks while no
// session is active are no-ops.
func (t *TimerReconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Resync(ctx)
		}
	}
}
