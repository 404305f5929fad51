package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ironlog/ironlog/internal/domain"
)

// EngineDeps are the shared collaborators every per-user engine is built
// from. All of them are interfaces, so tests assemble engines from fakes.
type EngineDeps struct {
	Store    domain.SnapshotStore
	Queue    domain.MutationQueue
	Channel  domain.SessionChannel
	Conn     domain.Connectivity
	History  domain.HistoryStore
	Analyzer domain.Analyzer

	TimerInterval time.Duration
	DrainInterval time.Duration

	// StaleAfter bounds how old a persisted bundle may be before the engine
	// refuses to adopt its session on restore. Zero disables the check.
	StaleAfter time.Duration
}

// Engine bundles one user's session machinery: the state machine plus its
// reconciler, timer, drainer and background runner.
type Engine struct {
	Service *SessionService
	Drainer *QueueDrainer

	cancel context.CancelFunc
	done   chan struct{}
}

// EngineManager creates and caches one engine per user, lazily on first use.
// Engines run until Shutdown.
type EngineManager struct {
	deps EngineDeps

	mu      sync.Mutex
	engines map[string]*Engine
}

// NewEngineManager creates an empty manager.
func NewEngineManager(deps EngineDeps) *EngineManager {
	return &EngineManager{deps: deps, engines: make(map[string]*Engine)}
}

// ForUser returns the user's engine, building and starting it on first call.
// The engine restores its persisted session before its runner starts, so a
// process restart resumes an in-flight workout.
func (m *EngineManager) ForUser(ctx context.Context, userID string) (*Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if eng, ok := m.engines[userID]; ok {
		return eng, nil
	}

	svc, err := NewSessionService(userID, m.deps.Store, m.deps.Queue, m.deps.Channel, m.deps.Conn)
	if err != nil {
		return nil, err
	}
	restore := true
	if m.deps.StaleAfter > 0 {
		fresh, err := m.deps.Store.IsFresh(ctx, userID, m.deps.StaleAfter)
		if err != nil {
			log.Printf("engine %s: freshness check failed: %v", userID, err)
		} else if !fresh {
			log.Printf("engine %s: persisted bundle is stale, starting empty", userID)
			restore = false
		}
	}
	if restore {
		if err := svc.Restore(ctx); err != nil {
			log.Printf("engine %s: restore failed, starting empty: %v", userID, err)
		}
	}

	reconciler := NewReconciler(svc, m.deps.Conn, m.deps.Store, m.deps.Analyzer)
	timer := NewTimerReconciler(svc, m.deps.TimerInterval)
	drainer := NewQueueDrainer(userID, m.deps.Queue, m.deps.Channel, m.deps.History, m.deps.Conn, m.deps.Store)
	runner := NewSyncRunner(svc, reconciler, timer, drainer, m.deps.Channel, m.deps.Conn, m.deps.DrainInterval)

	runCtx, cancel := context.WithCancel(context.Background())
	eng := &Engine{
		Service: svc,
		Drainer: drainer,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go func() {
		defer close(eng.done)
		if err := runner.Run(runCtx); err != nil && runCtx.Err() == nil {
			log.Printf("engine %s: runner exited: %v", userID, err)
		}
	}()

	m.engines[userID] = eng
	return eng, nil
}

// Remove stops and discards the user's engine if one is running. A later
// ForUser builds a fresh one.
func (m *EngineManager) Remove(userID string) {
	m.mu.Lock()
	eng, ok := m.engines[userID]
	if ok {
		delete(m.engines, userID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	eng.cancel()
	<-eng.done
}

// Shutdown stops every running engine and waits for their runners.
func (m *EngineManager) Shutdown() {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.engines))
	for _, eng := range m.engines {
		engines = append(engines, eng)
	}
	m.engines = make(map[string]*Engine)
	m.mu.Unlock()

	for _, eng := range engines {
		eng.cancel()
		<-eng.done
	}
}
