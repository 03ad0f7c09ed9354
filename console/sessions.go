package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edgecv/fleet-console/internal/orchestration"
)

type sessionEntry struct {
	session  *orchestration.Session
	lastUsed time.Time
}

// sessionRegistry maps session ids to sessions. Sessions idle for longer
// than ttl are dropped by prune.
type sessionRegistry struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

func newSessionRegistry(ttl time.Duration) *sessionRegistry {
	return &sessionRegistry{
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
		sessions: map[string]*sessionEntry{},
	}
}

func (r *sessionRegistry) create(build func(id string) *orchestration.Session) *orchestration.Session {
	id := uuid.NewString()
	s := build(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &sessionEntry{session: s, lastUsed: r.now()}
	return s
}

func (r *sessionRegistry) get(id string) (*orchestration.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	entry.lastUsed = r.now()
	return entry.session, true
}

func (r *sessionRegistry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

func (r *sessionRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *sessionRegistry) prune() int {
	cutoff := r.now().Add(-r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, entry := range r.sessions {
		if entry.lastUsed.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

func (r *sessionRegistry) runPruner(ctx context.Context, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.prune(); n > 0 && logger != nil {
				logger.Info("expired sessions pruned", "component", "session_registry", "removed", n)
			}
		}
	}
}
