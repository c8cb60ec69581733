// Package session keeps the per-user working state: the current table and
// the modifier that owns its log. Sessions live in memory only and are
// dropped after an idle timeout.
package session

import (
	"sync"
	"time"

	"tablefix/domain/modifier"
	"tablefix/domain/table"
)

// State is the working state guarded by the session lock
type State struct {
	FileName string
	Table    *table.Table
	Modifier *modifier.Modifier
}

// Loaded reports whether a file has been uploaded into the session
func (s *State) Loaded() bool {
	return s.Table != nil
}

// Session is one user's working copy
type Session struct {
	ID        string
	CreatedAt time.Time

	mu          sync.Mutex
	state       State
	lastSeen    time.Time
	newModifier func() *modifier.Modifier
	now         func() time.Time
}

// Update runs fn with exclusive access to the state
func (s *Session) Update(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now()
	return fn(&s.state)
}

// View runs fn with read access to the state. fn must not keep the
// modifier beyond the call.
func (s *Session) View(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now()
	fn(s.state)
}

// Reset replaces the table and starts a fresh log. It must be called from
// within Update.
func (s *Session) Reset(st *State, fileName string, t *table.Table) {
	st.FileName = fileName
	st.Table = t
	st.Modifier = s.newModifier()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
