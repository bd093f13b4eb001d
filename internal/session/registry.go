package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/auth"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/cart"
)

// ReasonLogout is the reset reason reported when a session ends.
const ReasonLogout = "logout"

// Session bundles the per-session gate, cart store and dispatcher.
type Session struct {
	ID         string
	Gate       *auth.Gate
	Store      *cart.Store
	Dispatcher *cart.Dispatcher

	lastUsed time.Time
}

// Registry owns one Session per session id. Sessions are created on first
// use; credentials survive eviction through the token store.
type Registry struct {
	tokens auth.TokenStore
	remote cart.Remote
	opts   cart.Options
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry builds sessions from opts; SessionID and Logger are set per session.
func NewRegistry(tokens auth.TokenStore, remote cart.Remote, opts cart.Options, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tokens:   tokens,
		remote:   remote,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for id, creating it if needed.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		s = r.newSession(id)
		r.sessions[id] = s
		r.logger.Debug("session created", zap.String("session_id", id))
	}
	s.lastUsed = r.now()
	return s
}

func (r *Registry) newSession(id string) *Session {
	gate := auth.NewGate(id, r.tokens, r.logger)
	store := cart.NewStore()

	opts := r.opts
	opts.SessionID = id
	opts.Logger = r.logger

	return &Session{
		ID:         id,
		Gate:       gate,
		Store:      store,
		Dispatcher: cart.NewDispatcher(store, gate, r.remote, opts),
	}
}

// Start records a login for id.
func (r *Registry) Start(ctx context.Context, id, token string, user []byte) (*Session, error) {
	s := r.Get(id)
	if err := s.Gate.SetSession(ctx, token, user); err != nil {
		return s, fmt.Errorf("start session: %w", err)
	}
	r.logger.Info("session started", zap.String("session_id", id))
	return s, nil
}

// End logs the session out: credentials are cleared, the cart is reset and the
// session is dropped from the registry.
func (r *Registry) End(ctx context.Context, id string) error {
	s := r.Get(id)

	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()

	s.Dispatcher.Reset(ctx, ReasonLogout)
	if err := s.Gate.Clear(ctx); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	r.logger.Info("session ended", zap.String("session_id", id))
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Evict drops sessions idle for longer than idle and returns how many were
// removed. Only in-memory state is dropped; persisted credentials remain, so
// the next request rebuilds the session with an empty cart.
func (r *Registry) Evict(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var stale []*Session
	for id, s := range r.sessions {
		if s.lastUsed.Before(cutoff) && !s.Store.Snapshot().Loading {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		s.Store.Reset()
	}
	return len(stale)
}

// RunEviction calls Evict every interval until ctx is done.
func (r *Registry) RunEviction(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 || idle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Evict(idle); n > 0 {
				r.logger.Debug("evicted idle sessions", zap.Int("count", n))
			}
		}
	}
}
