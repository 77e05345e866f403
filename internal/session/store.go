package session

import (
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// Store holds the last authoritative snapshot. Every outgoing request is
// stamped with a sequence number from Begin; a response is applied only if
// its request was issued after the request whose response was applied last.
type Store struct {
	logger *log.Logger

	// applyMu serializes apply+notify so subscribers observe snapshots in
	// the order they were applied.
	applyMu sync.Mutex

	mu      sync.RWMutex
	state   *GameState
	applied uint64
	closed  bool

	seq atomic.Uint64

	subsMu sync.Mutex
	subs   map[int]func(*GameState)
	nextID int
}

// NewStore creates an empty store
func NewStore(logger *log.Logger) *Store {
	return &Store{
		logger: logger.WithPrefix("store"),
		subs:   make(map[int]func(*GameState)),
	}
}

// Begin stamps an outgoing request. Stamps are strictly increasing.
func (s *Store) Begin() uint64 {
	return s.seq.Add(1)
}

// Apply replaces the held snapshot with state if seq is newer than the
// last applied stamp, then notifies subscribers. It reports whether the
// snapshot was applied.
func (s *Store) Apply(seq uint64, state *GameState) bool {
	if state == nil {
		return false
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("Dropping response after close", "seq", seq)
		return false
	}
	if seq <= s.applied {
		applied := s.applied
		s.mu.Unlock()
		s.logger.Debug("Dropping stale response", "seq", seq, "applied", applied)
		return false
	}
	s.state = state
	s.applied = seq
	s.mu.Unlock()

	if err := state.Check(); err != nil {
		s.logger.Warn("Snapshot violates table invariants", "seq", seq, "error", err)
	}

	for _, fn := range s.subscribers() {
		fn(state)
	}
	return true
}

// Replace stamps and applies state in one step.
func (s *Store) Replace(state *GameState) bool {
	return s.Apply(s.Begin(), state)
}

// Current returns the latest snapshot, or nil before the first load.
func (s *Store) Current() *GameState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastApplied returns the stamp of the request whose response is held.
func (s *Store) LastApplied() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied
}

// IsMyTurn reports whether the held snapshot has the local user to act.
func (s *Store) IsMyTurn() bool {
	st := s.Current()
	return st != nil && st.IsMyTurn()
}

// CurrentActor returns the seat to act in the held snapshot.
func (s *Store) CurrentActor() (Player, bool) {
	st := s.Current()
	if st == nil {
		return Player{}, false
	}
	return st.CurrentActor()
}

// Subscribe registers fn to be called after each applied snapshot. fn
// must not call Apply or Replace.
func (s *Store) Subscribe(fn func(*GameState)) func() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) subscribers() []func(*GameState) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	fns := make([]func(*GameState), 0, len(s.subs))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}

// Close makes the store refuse every later apply.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
