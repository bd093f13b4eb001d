package cart

import (
	"context"
	"sync"
)

// Store holds the session's cart snapshot and the state of in-flight operations.
// Commits carry the generation that was current when the operation began; a
// Reset bumps the generation, so responses from before the reset are dropped.
type Store struct {
	mu      sync.Mutex
	items   []LineItem
	pending int
	err     *Error
	gen     uint64

	nextOp   uint64
	inflight map[uint64]context.CancelFunc

	nextSub uint64
	subs    map[uint64]func(Cart)
}

func NewStore() *Store {
	return &Store{
		items:    []LineItem{},
		inflight: make(map[uint64]context.CancelFunc),
		subs:     make(map[uint64]func(Cart)),
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Cart {
	c := Cart{
		Items:      cloneItems(s.items),
		Loading:    s.pending > 0,
		Generation: s.gen,
	}
	if s.err != nil {
		e := *s.err
		c.Err = &e
	}
	return c
}

func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Begin marks an operation as in flight and returns the generation it belongs to.
func (s *Store) Begin() uint64 {
	s.mu.Lock()
	s.pending++
	s.err = nil
	gen := s.gen
	s.publishLocked()
	return gen
}

// CommitItems replaces the items wholesale with a server-confirmed snapshot.
func (s *Store) CommitItems(gen uint64, items []LineItem) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}
	s.items = cloneItems(items)
	s.settleLocked()
	s.err = nil
	s.publishLocked()
	return true
}

// CommitError records a failure and keeps the last known good items.
func (s *Store) CommitError(gen uint64, err *Error) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}
	s.settleLocked()
	s.err = err
	s.publishLocked()
	return true
}

// Abort settles an operation without touching items or error.
func (s *Store) Abort(gen uint64) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}
	s.settleLocked()
	s.publishLocked()
	return true
}

// RecordError stores err for an operation that never went in flight.
func (s *Store) RecordError(err *Error) {
	s.mu.Lock()
	s.err = err
	s.publishLocked()
}

// Reset empties the cart, starts a new generation and cancels in-flight requests.
func (s *Store) Reset() {
	s.mu.Lock()
	s.items = []LineItem{}
	s.err = nil
	s.pending = 0
	s.gen++
	for id, cancel := range s.inflight {
		cancel()
		delete(s.inflight, id)
	}
	s.publishLocked()
}

// track derives a context that Reset cancels. The returned func must be called
// once the request is done.
func (s *Store) track(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.nextOp++
	id := s.nextOp
	s.inflight[id] = cancel
	s.mu.Unlock()

	return ctx, func() {
		s.mu.Lock()
		delete(s.inflight, id)
		s.mu.Unlock()
		cancel()
	}
}

// Subscribe registers fn to be called with a fresh snapshot after every change.
func (s *Store) Subscribe(fn func(Cart)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) settleLocked() {
	if s.pending > 0 {
		s.pending--
	}
}

// publishLocked releases s.mu and then notifies subscribers.
func (s *Store) publishLocked() {
	snap := s.snapshotLocked()
	subs := make([]func(Cart), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
