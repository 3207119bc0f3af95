package dispatch

import (
	"sync"

	"github.com/teslashibe/safevision/pkg/protocol"
)

// Snapshot is the presentation state: the latest verdict and whether a
// dispatch is in flight.
type Snapshot struct {
	Verdict    protocol.Verdict `json:"verdict"`
	Processing bool             `json:"processing"`
	Published  uint64           `json:"published"`

	// Version increases with every state change.
	Version uint64 `json:"version"`
}

// Store holds the latest verdict and the processing flag. Verdicts are
// replaced wholesale. Subscribers run synchronously, outside the state
// lock, on the goroutine that changed the state. Deliveries are serialized
// and never go backwards: a snapshot older than one already delivered is
// skipped. Subscribers may read the store but must not update it.
type Store struct {
	mu          sync.RWMutex
	verdict     protocol.Verdict
	inflight    int
	published   uint64
	version     uint64
	detached    bool
	subscribers []func(Snapshot)

	notifyMu  sync.Mutex
	delivered uint64
}

// NewStore creates a store holding the placeholder verdict.
func NewStore() *Store {
	return &Store{verdict: protocol.Placeholder()}
}

// Publish replaces the latest verdict.
func (s *Store) Publish(v protocol.Verdict) {
	s.update(func() bool {
		s.verdict = v
		s.published++
		return true
	})
}

// Begin marks a dispatch as in flight.
func (s *Store) Begin() {
	s.update(func() bool {
		s.inflight++
		return true
	})
}

// End marks a dispatch as finished. Processing stays set while other
// dispatches overlap.
func (s *Store) End() {
	s.update(func() bool {
		if s.inflight == 0 {
			return false
		}
		s.inflight--
		return true
	})
}

// Detach drops all later updates. Dispatches still in flight complete and
// their results are discarded.
func (s *Store) Detach() {
	s.mu.Lock()
	s.detached = true
	s.subscribers = nil
	s.mu.Unlock()
}

// Verdict returns the latest verdict.
func (s *Store) Verdict() protocol.Verdict {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verdict
}

// Processing reports whether any dispatch is in flight.
func (s *Store) Processing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inflight > 0
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe registers fn for every state change.
func (s *Store) Subscribe(fn func(Snapshot)) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Verdict:    s.verdict,
		Processing: s.inflight > 0,
		Published:  s.published,
		Version:    s.version,
	}
}

func (s *Store) update(fn func() bool) {
	s.mu.Lock()
	if s.detached || !fn() {
		s.mu.Unlock()
		return
	}
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

func (s *Store) notify(snap Snapshot) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if snap.Version <= s.delivered {
		return
	}
	s.delivered = snap.Version

	s.mu.RLock()
	subs := make([]func(Snapshot), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.RUnlock()

	for _, sub := range subs {
		sub(snap)
	}
}
