// Package memory keeps conversation context: bounded per-model turn logs
// in memory, grouped by session, with an optional sqlite archive.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/flynn-ai/joat/pkg/protocol"
)

// DefaultMaxTurns bounds each model's log when no limit is configured.
const DefaultMaxTurns = 20

// ContextStore holds one ordered turn log per model id.
// Logs are never shared between models. Operations on one model are
// serialized by that model's lock; different models proceed in parallel.
type ContextStore struct {
	maxTurns int

	mu   sync.Mutex // guards logs; held only to find or create an entry
	logs map[string]*turnLog
}

type turnLog struct {
	mu    sync.Mutex
	turns []protocol.Turn
}

// NewContextStore creates a store keeping at most maxTurns turns per model.
// maxTurns <= 0 uses DefaultMaxTurns.
func NewContextStore(maxTurns int) *ContextStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &ContextStore{
		maxTurns: maxTurns,
		logs:     make(map[string]*turnLog),
	}
}

// MaxTurns returns the per-model bound.
func (s *ContextStore) MaxTurns() int {
	return s.maxTurns
}

func (s *ContextStore) log(modelID string, create bool) *turnLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.logs[modelID]
	if !ok && create {
		l = &turnLog{}
		s.logs[modelID] = l
	}
	return l
}

// Append adds turns to modelID's log as one unit, then evicts the oldest
// turns beyond the bound. A zero timestamp is stamped with the current
// time, and a timestamp not after its predecessor is moved 1ns past it,
// so the log is always strictly time-ordered.
func (s *ContextStore) Append(modelID string, turns ...protocol.Turn) {
	if len(turns) == 0 {
		return
	}

	l := s.log(modelID, true)
	l.mu.Lock()
	defer l.mu.Unlock()

	var prev time.Time
	if n := len(l.turns); n > 0 {
		prev = l.turns[n-1].Timestamp
	}

	for _, turn := range turns {
		if turn.Timestamp.IsZero() {
			turn.Timestamp = time.Now()
		}
		if !prev.IsZero() && !turn.Timestamp.After(prev) {
			turn.Timestamp = prev.Add(time.Nanosecond)
		}
		prev = turn.Timestamp
		l.turns = append(l.turns, turn)
	}

	if over := len(l.turns) - s.maxTurns; over > 0 {
		// Copy so evicted turns are released.
		kept := make([]protocol.Turn, s.maxTurns)
		copy(kept, l.turns[over:])
		l.turns = kept
	}
}

// History returns a copy of modelID's turns, oldest first.
// It is never nil.
func (s *ContextStore) History(modelID string) []protocol.Turn {
	l := s.log(modelID, false)
	if l == nil {
		return []protocol.Turn{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]protocol.Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Len returns the number of turns held for modelID.
func (s *ContextStore) Len(modelID string) int {
	l := s.log(modelID, false)
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.turns)
}

// Clear empties modelID's log. Clearing an empty or unknown log is a no-op.
func (s *ContextStore) Clear(modelID string) {
	l := s.log(modelID, false)
	if l == nil {
		return
	}
	l.mu.Lock()
	l.turns = nil
	l.mu.Unlock()
}

// ClearAll empties every log.
func (s *ContextStore) ClearAll() {
	s.mu.Lock()
	logs := make([]*turnLog, 0, len(s.logs))
	for _, l := range s.logs {
		logs = append(logs, l)
	}
	s.mu.Unlock()

	for _, l := range logs {
		l.mu.Lock()
		l.turns = nil
		l.mu.Unlock()
	}
}

// Models returns the ids of models with a non-empty log, sorted.
func (s *ContextStore) Models() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.logs))
	logs := make([]*turnLog, 0, len(s.logs))
	for id, l := range s.logs {
		ids = append(ids, id)
		logs = append(logs, l)
	}
	s.mu.Unlock()

	out := ids[:0]
	for i, l := range logs {
		l.mu.Lock()
		n := len(l.turns)
		l.mu.Unlock()
		if n > 0 {
			out = append(out, ids[i])
		}
	}
	sort.Strings(out)
	return out
}
