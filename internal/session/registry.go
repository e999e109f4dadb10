// Package session tracks live database sessions by id. Each entry owns
// its connection handle and the per-session table search index, and
// expires after a TTL measured from the last access.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sqlmesa/sqlmesa/internal/dbconn"
	"github.com/sqlmesa/sqlmesa/internal/observability"
	"github.com/sqlmesa/sqlmesa/internal/search"
)

// Session is one live connection and its associated state.
type Session struct {
	ID        string
	Dialect   string
	Handle    *dbconn.Handle
	Search    search.TableSearch
	CreatedAt time.Time
}

type entry struct {
	session   *Session
	ttl       time.Duration
	expiresAt time.Time
}

// Registry is a concurrency-safe session store with lazy TTL eviction.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  *slog.Logger
	now     func() time.Time
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger,
		now:     time.Now,
	}
}

// Store registers a session under its id, replacing and closing any
// previous session with the same id. A non-positive ttl produces an
// entry that is already expired on the next access.
func (r *Registry) Store(s *Session, ttl time.Duration) {
	r.mu.Lock()
	previous, existed := r.entries[s.ID]
	r.entries[s.ID] = &entry{
		session:   s,
		ttl:       ttl,
		expiresAt: r.now().Add(ttl),
	}
	count := len(r.entries)
	r.mu.Unlock()

	if existed {
		r.closeSession(previous.session, "replaced")
	}
	observability.SetActiveSessions(count)
}

// Get returns the live session for id. Expired entries are evicted on
// the way out and reported as absent; live entries get their expiry
// pushed forward by the session's ttl.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	now := r.now()
	if !now.Before(e.expiresAt) {
		delete(r.entries, id)
		count := len(r.entries)
		r.mu.Unlock()
		r.closeSession(e.session, "expired")
		observability.SetActiveSessions(count)
		observability.IncrementSessionEviction()
		return nil, false
	}
	e.expiresAt = now.Add(e.ttl)
	r.mu.Unlock()
	return e.session, true
}

// Remove deletes a session and closes its connection. Removing an
// unknown id is a no-op and reports false.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	count := len(r.entries)
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.closeSession(e.session, "removed")
	observability.SetActiveSessions(count)
	return true
}

// Len reports the number of stored entries, expired or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep evicts expired sessions every interval until ctx is done. Lazy
// eviction in Get already keeps lookups correct; the sweeper exists so
// abandoned connections are released without waiting for traffic.
func (r *Registry) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evictExpired()
		}
	}
}

func (r *Registry) evictExpired() {
	now := r.now()

	r.mu.Lock()
	var expired []*Session
	for id, e := range r.entries {
		if !now.Before(e.expiresAt) {
			expired = append(expired, e.session)
			delete(r.entries, id)
		}
	}
	count := len(r.entries)
	r.mu.Unlock()

	for _, s := range expired {
		r.closeSession(s, "expired")
		observability.IncrementSessionEviction()
	}
	if len(expired) > 0 {
		observability.SetActiveSessions(count)
		r.logger.Info("evicted expired sessions", slog.Int("count", len(expired)))
	}
}

// Close evicts everything. Used at shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	remaining := make([]*Session, 0, len(r.entries))
	for _, e := range r.entries {
		remaining = append(remaining, e.session)
	}
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, s := range remaining {
		r.closeSession(s, "shutdown")
	}
	observability.SetActiveSessions(0)
}

// Connection close failures are logged, never surfaced: the session is
// gone either way.
func (r *Registry) closeSession(s *Session, reason string) {
	if s == nil || s.Handle == nil {
		return
	}
	if err := s.Handle.Close(); err != nil {
		r.logger.Warn("closing session connection failed",
			slog.String("session_id", s.ID),
			slog.String("reason", reason),
			slog.String("error", err.Error()))
	}
}
