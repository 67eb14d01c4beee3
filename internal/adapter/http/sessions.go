package http

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchcryptid/covid-grid-service/internal/dashboard"
	"github.com/couchcryptid/covid-grid-service/internal/observability"
)

// SessionCookie names the cookie carrying the session ID.
const SessionCookie = "sid"

// SessionFactory creates the dashboard session for a new ID.
type SessionFactory func(id string) *dashboard.Session

// Sessions maps session cookies to dashboard sessions. The least recently
// used session is closed when the cache is full.
type Sessions struct {
	mu      sync.Mutex
	cache   *lru.Cache[string, *dashboard.Session]
	factory SessionFactory
	metrics *observability.Metrics
}

// NewSessions creates a session cache holding at most size sessions.
func NewSessions(size int, factory SessionFactory, metrics *observability.Metrics) (*Sessions, error) {
	cache, err := lru.NewWithEvict(size, func(_ string, s *dashboard.Session) {
		s.Close()
		metrics.ActiveSessions.Dec()
	})
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &Sessions{cache: cache, factory: factory, metrics: metrics}, nil
}

// Get returns the session of the request, creating one and setting the
// cookie when the request has none or its session was evicted.
func (s *Sessions) Get(w http.ResponseWriter, r *http.Request) *dashboard.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, err := r.Cookie(SessionCookie); err == nil {
		if sess, ok := s.cache.Get(c.Value); ok {
			return sess
		}
	}

	id := uuid.NewString()
	sess := s.factory(id)
	s.cache.Add(id, sess)
	s.metrics.ActiveSessions.Inc()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int { return s.cache.Len() }

// Close closes every session.
func (s *Sessions) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
}
