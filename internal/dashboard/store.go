package dashboard

import (
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/kjstillabower/mintemp-dashboard/internal/observability"
)

// Store keeps sessions in memory and expires them after ttl without access.
// Sessions are not persisted.
type Store struct {
	deps     Deps
	sessions *gocache.Cache
}

// NewStore creates a Store. cleanup is the interval at which expired
// sessions are purged.
func NewStore(deps Deps, ttl, cleanup time.Duration) *Store {
	c := gocache.New(ttl, cleanup)
	c.OnEvicted(func(string, interface{}) {
		observability.SessionsActive.Dec()
	})
	return &Store{deps: deps, sessions: c}
}

// Create starts a new empty session.
func (st *Store) Create() *Session {
	s := NewSession(uuid.NewString(), st.deps)
	st.sessions.Set(s.ID, s, gocache.DefaultExpiration)
	observability.SessionsActive.Inc()
	return s
}

// Get returns the session and extends its lifetime.
func (st *Store) Get(id string) (*Session, bool) {
	v, ok := st.sessions.Get(id)
	if !ok {
		return nil, false
	}
	s := v.(*Session)
	st.sessions.Set(id, s, gocache.DefaultExpiration)
	return s, true
}

// Delete ends a session. It reports whether the session existed.
func (st *Store) Delete(id string) bool {
	if _, ok := st.sessions.Get(id); !ok {
		return false
	}
	st.sessions.Delete(id)
	return true
}

// Len returns the number of stored sessions, expired ones not yet purged included.
func (st *Store) Len() int {
	return st.sessions.ItemCount()
}
