package exam

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// GenerationStatus is the user-visible state of conclusions drafting for a
// session.
type GenerationStatus struct {
	InProgress bool       `json:"inProgress"`
	LastError  string     `json:"lastError,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Session is one editing session: a Record Store plus bookkeeping.
type Session struct {
	ID        string
	Store     *Store
	CreatedAt time.Time

	mu         sync.Mutex
	lastSeen   time.Time
	generation GenerationStatus
}

// Generation returns the current generation status.
func (s *Session) Generation() GenerationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// SetGeneration replaces the generation status.
func (s *Session) SetGeneration(st GenerationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation = st
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Registry holds the live editing sessions in memory. Sessions are never
// persisted; idle ones are evicted after the configured TTL.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	onCreate []func(*Session)
}

// NewRegistry creates an empty registry. A zero ttl disables eviction.
func NewRegistry(ttl time.Duration, now func() time.Time, logger zerolog.Logger) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      now,
		logger:   logger,
	}
}

// OnCreate registers a hook run for every new session, typically to subscribe
// to its store.
func (r *Registry) OnCreate(fn func(*Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCreate = append(r.onCreate, fn)
}

// Create starts a new session holding the default record.
func (r *Registry) Create() *Session {
	return r.CreateWith(nil)
}

// CreateWith starts a new session seeded with rec, or the default record when
// rec is nil.
func (r *Registry) CreateWith(rec *ExamRecord) *Session {
	now := r.now()
	sess := &Session{
		ID:        uuid.New().String(),
		Store:     NewStoreWith(rec, r.now),
		CreatedAt: now,
		lastSeen:  now,
	}

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	hooks := append([]func(*Session){}, r.onCreate...)
	r.mu.Unlock()

	for _, h := range hooks {
		h(sess)
	}
	r.logger.Debug().Str("session_id", sess.ID).Msg("session created")
	return sess
}

// Get returns the session and marks it as recently used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.touch(r.now())
	return sess, nil
}

// Delete removes a session. Deleting an unknown id is a no-op.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many were
// removed. Sessions with a generation in flight are kept.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, sess := range r.sessions {
		if sess.idleSince().Before(cutoff) && !sess.Generation().InProgress {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if r.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Info().Int("evicted", n).Int("remaining", r.Len()).Msg("idle sessions evicted")
			}
		}
	}
}

// Topic is the notification topic carrying a session's change events.
func Topic(sessionID string) string {
	return "session/" + sessionID
}

// Event types published on a session topic.
const (
	EventRecordUpdated       = "record.updated"
	EventRecordReset         = "record.reset"
	EventGenerationStarted   = "generation.started"
	EventGenerationCompleted = "generation.completed"
	EventGenerationFailed    = "generation.failed"
)

// EventType maps a store change to the event announcing it.
func EventType(ch Change) string {
	if ch.Field == FieldReset {
		return EventRecordReset
	}
	return EventRecordUpdated
}
