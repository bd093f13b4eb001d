package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Gate decides whether cart operations may proceed for one session. A session
// exists iff a non-empty token resolves from memory or from the persistent store.
type Gate struct {
	sessionID string
	store     TokenStore
	logger    *zap.Logger

	mu    sync.RWMutex
	token string
}

func NewGate(sessionID string, store TokenStore, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{sessionID: sessionID, store: store, logger: logger}
}

func (g *Gate) HasSession(ctx context.Context) bool {
	_, ok := g.Token(ctx)
	return ok
}

// Token resolves the bearer token. It never writes.
func (g *Gate) Token(ctx context.Context) (string, bool) {
	g.mu.RLock()
	token := strings.TrimSpace(g.token)
	g.mu.RUnlock()
	if token != "" {
		return token, true
	}
	if g.store == nil {
		return "", false
	}

	for _, key := range []string{KeyToken, KeyAuthToken} {
		v, err := g.store.Get(ctx, g.sessionID, key)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				g.logger.Warn("token store lookup failed",
					zap.String("session_id", g.sessionID), zap.String("key", key), zap.Error(err))
			}
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			return v, true
		}
	}
	return "", false
}

// SetSession records a login. The token is persisted, together with the
// opaque user blob, before it becomes visible in memory; a failed write leaves
// the session logged out.
func (g *Gate) SetSession(ctx context.Context, token string, user []byte) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is required")
	}

	if g.store != nil {
		if err := g.persist(ctx, token, user); err != nil {
			if delErr := g.store.Delete(ctx, g.sessionID, KeyToken, KeyAuthToken, KeyUser); delErr != nil {
				g.logger.Warn("rollback of partial login failed",
					zap.String("session_id", g.sessionID), zap.Error(delErr))
			}
			return err
		}
	}

	g.mu.Lock()
	g.token = token
	g.mu.Unlock()
	return nil
}

func (g *Gate) persist(ctx context.Context, token string, user []byte) error {
	for _, key := range []string{KeyToken, KeyAuthToken} {
		if err := g.store.Set(ctx, g.sessionID, key, token); err != nil {
			return fmt.Errorf("persist %s: %w", key, err)
		}
	}
	if len(user) > 0 {
		if err := g.store.Set(ctx, g.sessionID, KeyUser, string(user)); err != nil {
			return fmt.Errorf("persist %s: %w", KeyUser, err)
		}
	}
	return nil
}

// Clear forgets every credential of the session.
func (g *Gate) Clear(ctx context.Context) error {
	g.mu.Lock()
	g.token = ""
	g.mu.Unlock()

	if g.store == nil {
		return nil
	}
	return g.store.Delete(ctx, g.sessionID, KeyToken, KeyAuthToken, KeyRefreshToken, KeyUser)
}
