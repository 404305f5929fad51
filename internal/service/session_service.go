package service

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/ironlog/ironlog/internal/domain"
)

// SessionService is the state machine for one user's active workout. It owns
// the Session value: every mutation goes local-first (update in memory,
// persist the bundle), then best-effort remote (write the canonical document,
// or queue the mutation when offline or the write fails). Callers never see a
// remote error from a session operation; offline is a normal operating mode.
//
// One instance per user. The mutex serializes user actions against inbound
// reconciliation and timer ticks; no operation observes a half-updated
// session.
type SessionService struct {
	userID  string
	store   domain.SnapshotStore
	queue   domain.MutationQueue
	channel domain.SessionChannel
	conn    domain.Connectivity
	now     func() time.Time

	mu       sync.Mutex
	session  *domain.Session
	degraded bool
}

// NewSessionService creates the state machine for userID. An empty userID is
// a caller bug, reported as ErrNoUserIdentity.
func NewSessionService(
	userID string,
	store domain.SnapshotStore,
	queue domain.MutationQueue,
	channel domain.SessionChannel,
	conn domain.Connectivity,
) (*SessionService, error) {
	if userID == "" {
		return nil, domain.ErrNoUserIdentity
	}
	return &SessionService{
		userID:  userID,
		store:   store,
		queue:   queue,
		channel: channel,
		conn:    conn,
		now:     time.Now,
		session: domain.EmptySession(),
	}, nil
}

// UserID returns the owner of this session.
func (s *SessionService) UserID() string { return s.userID }

// Restore loads the persisted bundle and adopts its session, so a restart
// resumes where the process left off.
func (s *SessionService) Restore(ctx context.Context) error {
	bundle, err := s.store.Load(ctx, s.userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if bundle.CurrentSession != nil {
		s.session = bundle.CurrentSession
	}
	return nil
}

// StartWorkout begins a session for the given plan day. The exercises are
// snapshotted with all session-mutable fields reset; a previously running
// session is replaced (last writer wins, same as a remote restart would).
func (s *SessionService) StartWorkout(ctx context.Context, day int, exercises []*domain.ExerciseState) (*domain.Session, error) {
	start := s.now()
	states := make([]*domain.ExerciseState, 0, len(exercises))
	for _, ex := range exercises {
		if ex == nil {
			continue
		}
		states = append(states, freshExerciseState(ex))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = &domain.Session{
		ActiveDay:               &day,
		Exercises:               states,
		StartTime:               &start,
		TimerSeconds:            0,
		ExerciseRecommendations: []domain.Recommendation{},
	}
	s.persistLocked(ctx)
	s.pushSessionLocked(ctx)
	return s.session, nil
}

// UpdateExercise mutates one exercise by position. Logged sets are sanitized
// on the way in. An out-of-range index is reported, not ignored.
func (s *SessionService) UpdateExercise(ctx context.Context, index int, sets []*domain.LoggedSet, success, skipped bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.Active() {
		return domain.ErrNoActiveSession
	}
	if index < 0 || index >= len(s.session.Exercises) {
		return domain.ErrExerciseIndex
	}

	ex := s.session.Exercises[index]
	ex.LoggedSets = domain.SanitizeLoggedSets(sets)
	ex.Success = success
	ex.Skipped = skipped
	ex.Completed = !skipped

	s.persistLocked(ctx)
	s.pushSessionLocked(ctx)
	return nil
}

// AddExercise appends one exercise with session fields at defaults. Existing
// ordering is untouched.
func (s *SessionService) AddExercise(ctx context.Context, ex *domain.ExerciseState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ex == nil || ex.ID == "" {
		return domain.ErrInvalidID
	}
	if !s.session.Active() {
		return domain.ErrNoActiveSession
	}
	s.session.Exercises = append(s.session.Exercises, freshExerciseState(ex))

	s.persistLocked(ctx)
	s.pushSessionLocked(ctx)
	return nil
}

// ReorderExercises replaces the execution order. The new order must be a
// permutation of the current exercise ids; anything that adds, drops or
// duplicates an id is rejected.
func (s *SessionService) ReorderExercises(ctx context.Context, order []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.Active() {
		return domain.ErrNoActiveSession
	}
	if len(order) != len(s.session.Exercises) {
		return domain.ErrBadReorder
	}

	byID := make(map[string]*domain.ExerciseState, len(s.session.Exercises))
	for _, ex := range s.session.Exercises {
		byID[ex.ID] = ex
	}

	next := make([]*domain.ExerciseState, 0, len(order))
	for _, id := range order {
		ex, ok := byID[id]
		if !ok {
			return domain.ErrBadReorder
		}
		delete(byID, id) // catches duplicates
		next = append(next, ex)
	}

	s.session.Exercises = next
	s.persistLocked(ctx)
	s.pushSessionLocked(ctx)
	return nil
}

// EndWorkout resets the session to the null state and asks the remote store
// to drop the canonical document. The local reset stands even if the remote
// delete fails; the deletion is queued instead.
func (s *SessionService) EndWorkout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.Active() {
		return domain.ErrNoActiveSession
	}

	s.session = domain.EmptySession()
	s.persistLocked(ctx)

	if !s.conn.Online() {
		s.enqueueLocked(ctx, domain.MutationSessionDelete, nil)
		return nil
	}
	if err := s.channel.Delete(ctx, s.userID); err != nil {
		log.Printf("session %s: remote delete failed, queueing: %v", s.userID, err)
		s.enqueueLocked(ctx, domain.MutationSessionDelete, nil)
	}
	return nil
}

// UpdateTimer overwrites the cached timer value. Called by the timer
// reconciler, not general callers. The value is pushed upstream while online
// but never queued; the remote copy is recomputable from StartTime, so a
// missed timer write loses nothing.
func (s *SessionService) UpdateTimer(ctx context.Context, seconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.Active() || s.session.TimerSeconds == seconds {
		return
	}
	s.session.TimerSeconds = seconds
	s.persistLocked(ctx)

	if s.conn.Online() {
		if err := s.channel.Write(ctx, s.userID, s.session); err != nil {
			log.Printf("session %s: timer push failed: %v", s.userID, err)
		}
	}
}

// Current returns the session value. Callers must treat it as read-only; all
// mutation goes through the service.
func (s *SessionService) Current() *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Degraded reports whether the last local persist failed. The in-memory
// session stays usable; durability is gone until the store recovers.
func (s *SessionService) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// ReconcileRemote runs merge under the session lock and adopts its result,
// persisting locally without echoing back to the remote store (the value
// just came from there). This is the only door for inbound snapshots.
func (s *SessionService) ReconcileRemote(ctx context.Context, merge func(local *domain.Session) *domain.Session) *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := merge(s.session)
	if next == nil {
		next = domain.EmptySession()
	}
	if next != s.session {
		s.session = next
		s.persistLocked(ctx)
	}
	return s.session
}

// SetRecommendations replaces the session's exercise recommendations
// (reconciler path, after an analyzer reload). Local persist only.
func (s *SessionService) SetRecommendations(ctx context.Context, recs []domain.Recommendation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.Active() {
		return
	}
	if recs == nil {
		recs = []domain.Recommendation{}
	}
	s.session.ExerciseRecommendations = recs
	s.persistLocked(ctx)
}

// persistLocked writes the whole bundle session slot. Failure flips the
// degraded flag and is otherwise swallowed: the session must stay usable
// when the disk is not.
func (s *SessionService) persistLocked(ctx context.Context) {
	var sess *domain.Session
	if s.session.Active() {
		sess = s.session
	}
	err := s.store.Save(ctx, s.userID, &domain.BundlePatch{Session: sess, SessionSet: true})
	if err != nil {
		log.Printf("session %s: local persist failed: %v", s.userID, err)
		s.degraded = true
		return
	}
	s.degraded = false
}

// pushSessionLocked attempts the best-effort remote write, queueing the
// mutation when offline or on failure. Local state is already authoritative
// by the time this runs.
func (s *SessionService) pushSessionLocked(ctx context.Context) {
	if !s.conn.Online() {
		s.enqueueSessionWriteLocked(ctx)
		return
	}
	if err := s.channel.Write(ctx, s.userID, s.session); err != nil {
		log.Printf("session %s: remote write failed, queueing: %v", s.userID, err)
		s.enqueueSessionWriteLocked(ctx)
	}
}

func (s *SessionService) enqueueSessionWriteLocked(ctx context.Context) {
	payload, err := json.Marshal(s.session)
	if err != nil {
		log.Printf("session %s: cannot marshal session for queue: %v", s.userID, err)
		return
	}
	s.enqueueLocked(ctx, domain.MutationSessionWrite, payload)
}

func (s *SessionService) enqueueLocked(ctx context.Context, kind string, payload json.RawMessage) {
	err := s.queue.Enqueue(ctx, s.userID, &domain.QueueEntry{
		Kind:       kind,
		Payload:    payload,
		EnqueuedAt: s.now(),
	})
	if err != nil {
		log.Printf("session %s: enqueue %s failed: %v", s.userID, kind, err)
		s.degraded = true
	}
}

// freshExerciseState copies the display fields and resets everything the
// session mutates.
func freshExerciseState(ex *domain.ExerciseState) *domain.ExerciseState {
	return &domain.ExerciseState{
		ID:          ex.ID,
		Name:        ex.Name,
		Description: ex.Description,
		TargetSets:  ex.TargetSets,
		TargetReps:  ex.TargetReps,
		RestSeconds: ex.RestSeconds,
		WeightMode:  ex.WeightMode,
		Completed:   false,
		LoggedSets:  []*domain.LoggedSet{},
		Success:     false,
		Skipped:     false,
	}
}
