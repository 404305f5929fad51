package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ironlog/ironlog/internal/domain"
)

// fakeConn is a hand-operated connectivity oracle.
type fakeConn struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(bool)
}

func newFakeConn(online bool) *fakeConn {
	return &fakeConn{online: online, subs: map[int]func(bool){}}
}

func (c *fakeConn) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *fakeConn) OnTransition(fn func(bool)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *fakeConn) set(online bool) {
	c.mu.Lock()
	changed := online != c.online
	c.online = online
	var subs []func(bool)
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	if changed {
		for _, fn := range subs {
			fn(online)
		}
	}
}

// memStore keeps bundles as marshaled JSON so Save/Load exercise real
// serialization, like the Badger store does.
type memStore struct {
	mu       sync.Mutex
	bundles  map[string][]byte
	failSave bool
}

func newMemStore() *memStore {
	return &memStore{bundles: map[string][]byte{}}
}

func (s *memStore) Save(ctx context.Context, userID string, patch *domain.BundlePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return errors.New("store unavailable")
	}
	bundle := s.loadLocked(userID)
	patch.Apply(bundle)
	data, err := json.Marshal(bundle)
	if err != nil {
		return err
	}
	s.bundles[userID] = data
	return nil
}

func (s *memStore) Load(ctx context.Context, userID string) (*domain.OfflineBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(userID), nil
}

func (s *memStore) loadLocked(userID string) *domain.OfflineBundle {
	data, ok := s.bundles[userID]
	if !ok {
		return domain.EmptyBundle()
	}
	bundle := domain.EmptyBundle()
	if err := json.Unmarshal(data, bundle); err != nil {
		return domain.EmptyBundle()
	}
	return bundle
}

func (s *memStore) IsFresh(ctx context.Context, userID string, maxAge time.Duration) (bool, error) {
	bundle, _ := s.Load(ctx, userID)
	if bundle.LastSyncTimestamp == 0 {
		return false, nil
	}
	return time.Since(time.UnixMilli(bundle.LastSyncTimestamp)) <= maxAge, nil
}

func (s *memStore) PurgeStale(ctx context.Context, threshold time.Duration) (int, error) {
	return 0, nil
}

func (s *memStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bundles, userID)
	return nil
}

// memQueue is an in-memory FIFO with the same halt-on-failure drain contract
// as the Badger queue.
type memQueue struct {
	mu      sync.Mutex
	entries map[string][]*domain.QueueEntry
	nextID  int
}

func newMemQueue() *memQueue {
	return &memQueue{entries: map[string][]*domain.QueueEntry{}}
}

func (q *memQueue) Enqueue(ctx context.Context, userID string, entry *domain.QueueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if entry.ID == "" {
		q.nextID++
		entry.ID = string(rune('a' + q.nextID))
	}
	q.entries[userID] = append(q.entries[userID], entry)
	return nil
}

func (q *memQueue) Drain(ctx context.Context, userID string, apply func(*domain.QueueEntry) error) (int, error) {
	applied := 0
	for {
		q.mu.Lock()
		pending := q.entries[userID]
		if len(pending) == 0 {
			q.mu.Unlock()
			return applied, nil
		}
		head := pending[0]
		q.mu.Unlock()

		if err := apply(head); err != nil {
			return applied, err
		}

		q.mu.Lock()
		q.entries[userID] = q.entries[userID][1:]
		q.mu.Unlock()
		applied++
	}
}

func (q *memQueue) Len(ctx context.Context, userID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries[userID]), nil
}

// fakeChannel records canonical documents and lets tests push snapshots.
// Writes round-trip through JSON, like the wire would.
type fakeChannel struct {
	mu         sync.Mutex
	docs       map[string][]byte
	failWrites bool
	writes     int
	deletes    int
	onWrite    func()
	subs       map[string][]func(*domain.Session)
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{docs: map[string][]byte{}, subs: map[string][]func(*domain.Session){}}
}

func (c *fakeChannel) Write(ctx context.Context, userID string, session *domain.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return errors.New("remote write refused")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	c.docs[userID] = data
	c.writes++
	if c.onWrite != nil {
		c.onWrite()
	}
	return nil
}

func (c *fakeChannel) Delete(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return errors.New("remote delete refused")
	}
	delete(c.docs, userID)
	c.deletes++
	return nil
}

func (c *fakeChannel) Subscribe(ctx context.Context, userID string, fn func(*domain.Session)) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[userID] = append(c.subs[userID], fn)
	return func() {}, nil
}

// push delivers a snapshot to subscribers, the way the remote store would.
func (c *fakeChannel) push(userID string, session *domain.Session) {
	c.mu.Lock()
	subs := append(make([]func(*domain.Session), 0, len(c.subs[userID])), c.subs[userID]...)
	c.mu.Unlock()
	for _, fn := range subs {
		fn(session)
	}
}

func (c *fakeChannel) doc(userID string) *domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.docs[userID]
	if !ok {
		return nil
	}
	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil
	}
	return &session
}

func (c *fakeChannel) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

// fakeHistory serves canned logs and records saves.
type fakeHistory struct {
	mu    sync.Mutex
	logs  []*domain.WorkoutLog
	saved []*domain.WorkoutLog
}

func (h *fakeHistory) LoadProfile(ctx context.Context, userID string) ([]byte, error) {
	return nil, domain.ErrNotFound
}

func (h *fakeHistory) LoadPlan(ctx context.Context, userID string) ([]byte, error) {
	return nil, domain.ErrNotFound
}

func (h *fakeHistory) LoadLogs(ctx context.Context, userID string) ([]*domain.WorkoutLog, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.logs, nil
}

func (h *fakeHistory) SaveLog(ctx context.Context, l *domain.WorkoutLog) (*domain.WorkoutLog, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saved = append(h.saved, l)
	return l, nil
}

// fakeAnalyzer records which days it was asked about.
type fakeAnalyzer struct {
	mu   sync.Mutex
	days []int
	recs []domain.Recommendation
}

func (a *fakeAnalyzer) RecommendationsForDay(logs []*domain.WorkoutLog, day int) []domain.Recommendation {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.days = append(a.days, day)
	return a.recs
}

func (a *fakeAnalyzer) calls() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.days...)
}
