package pipeline

import (
	"sync"
	"time"

	"github.com/hipat/pat/internal/nutrition"
)

// PendingMacro is a macro answer already shown to the user, held so a
// follow-up "log it" can be fulfilled without re-resolving.
type PendingMacro struct {
	Food     string
	Estimate nutrition.Estimate
	ShownAt  time.Time
}

// Sessions is the in-memory per-session scratchpad. Entries expire after ttl;
// a stale "log it" should not silently log last week's answer.
type Sessions struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	pending map[string]PendingMacro
}

// DefaultSessionTTL bounds how long a shown macro answer stays loggable.
const DefaultSessionTTL = 10 * time.Minute

func NewSessions(ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{ttl: ttl, now: time.Now, pending: make(map[string]PendingMacro)}
}

// Put records the macro answer just shown in this session.
func (s *Sessions) Put(sessionID string, p PendingMacro) {
	p.ShownAt = s.now()
	s.mu.Lock()
	s.pending[sessionID] = p
	s.mu.Unlock()
}

// Get returns the pending macro answer for the session, if fresh.
func (s *Sessions) Get(sessionID string) (PendingMacro, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[sessionID]
	if !ok {
		return PendingMacro{}, false
	}
	if s.now().Sub(p.ShownAt) > s.ttl {
		delete(s.pending, sessionID)
		return PendingMacro{}, false
	}
	return p, true
}

// Clear drops the session's pending answer, typically after it was logged.
func (s *Sessions) Clear(sessionID string) {
	s.mu.Lock()
	delete(s.pending, sessionID)
	s.mu.Unlock()
}
