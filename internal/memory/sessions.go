package memory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultSessionTTL is how long an idle session is kept.
const DefaultSessionTTL = time.Hour

// Sessions maps session ids to their context stores.
// Stores are created on first use and dropped after ttl without access.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*session
	maxTurns int
	ttl      time.Duration
	now      func() time.Time

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type session struct {
	store      *ContextStore
	lastAccess time.Time
}

// NewSessions creates a session registry. ttl <= 0 disables expiry and
// no janitor goroutine is started. Call Close when done.
func NewSessions(maxTurns int, ttl time.Duration) *Sessions {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sessions{
		sessions: make(map[string]*session),
		maxTurns: maxTurns,
		ttl:      ttl,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}

	if ttl > 0 {
		s.wg.Add(1)
		go s.cleanupLoop(sweepInterval(ttl))
	}
	return s
}

func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval > 10*time.Minute {
		interval = 10 * time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

// Close stops the janitor. The sessions stay readable.
func (s *Sessions) Close() {
	s.cancel()
	s.wg.Wait()
}

// Get returns the store for id, creating it if needed, and marks the
// session as used.
func (s *Sessions) Get(id string) *ContextStore {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{store: NewContextStore(s.maxTurns)}
		s.sessions[id] = sess
	}
	sess.lastAccess = s.now()
	return sess.store
}

// Lookup returns the store for id without creating one.
func (s *Sessions) Lookup(id string) (*ContextStore, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	sess.lastAccess = s.now()
	return sess.store, true
}

// Delete drops a session and its history.
func (s *Sessions) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// IDs returns the live session ids, sorted.
func (s *Sessions) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops sessions idle for longer than the ttl and returns how many
// were dropped.
func (s *Sessions) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	dropped := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastAccess) > s.ttl {
			delete(s.sessions, id)
			dropped++
		}
	}
	return dropped
}

// cleanupLoop periodically removes stale sessions.
// Stops when the context is cancelled.
func (s *Sessions) cleanupLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
