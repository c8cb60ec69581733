package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tablefix/domain/modifier"
	"tablefix/internal/errors"

	"github.com/google/uuid"
)

// Store holds live sessions keyed by ID
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	ttl         time.Duration
	now         func() time.Time
	newModifier func() *modifier.Modifier
	logger      *slog.Logger
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithModifierFactory sets how each session's modifier is built
func WithModifierFactory(fn func() *modifier.Modifier) StoreOption {
	return func(s *Store) { s.newModifier = fn }
}

// WithClock overrides the time source used for expiry
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates an empty store whose sessions expire after ttl of
// inactivity
func NewStore(ttl time.Duration, opts ...StoreOption) *Store {
	s := &Store{
		sessions:    make(map[string]*Session),
		ttl:         ttl,
		now:         time.Now,
		newModifier: func() *modifier.Modifier { return modifier.New() },
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "SessionStore")
	return s
}

// Create starts a new empty session
func (s *Store) Create() *Session {
	now := s.now()
	sess := &Session{
		ID:          uuid.NewString(),
		CreatedAt:   now,
		lastSeen:    now,
		newModifier: s.newModifier,
		now:         s.now,
	}
	sess.state.Modifier = s.newModifier()

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.logger.Debug("session created", "session", sess.ID)
	return sess
}

// Get returns a live session or a NOT_FOUND error
func (s *Store) Get(id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("session")
	}

	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || s.expired(sess) {
		return nil, errors.NotFound("session")
	}
	return sess, nil
}

// Delete ends a session
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len returns the number of sessions held, expired or not
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep drops expired sessions and returns how many were removed
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("expired sessions removed", "count", removed, "remaining", len(s.sessions))
	}
	return removed
}

// Run sweeps on every interval until ctx is done
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Store) expired(sess *Session) bool {
	return s.now().Sub(sess.idleSince()) > s.ttl
}
