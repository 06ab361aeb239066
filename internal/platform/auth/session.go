package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Session is the per-user interactive state. Authenticated starts false and
// is only ever set to true; there is no logout.
type Session struct {
	ID            string
	Subject       string
	Authenticated bool
	CreatedAt     time.Time
}

type contextKey string

const SessionKey contextKey = "abg_session"

// WithSession stores sess on ctx.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, SessionKey, sess)
}

// SessionFromContext returns the session attached by SessionMiddleware or
// JWTMiddleware, or nil.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(SessionKey).(*Session)
	return sess
}

// SessionStore keeps sessions in memory. A zero TTL keeps them for the life
// of the process.
type SessionStore struct {
	cache *cache.Cache
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	expiration := cache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		expiration = ttl
		cleanup = 10 * time.Minute
		if ttl < cleanup {
			cleanup = ttl
		}
	}
	return &SessionStore{cache: cache.New(expiration, cleanup)}
}

// New returns a fresh unauthenticated session. It is not stored until Save.
func (s *SessionStore) New() *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
	}
}

// Get returns a copy of the stored session.
func (s *SessionStore) Get(id string) (*Session, bool) {
	x, found := s.cache.Get(id)
	if !found {
		return nil, false
	}
	sess := x.(Session)
	return &sess, true
}

func (s *SessionStore) Save(sess *Session) {
	s.cache.Set(sess.ID, *sess, cache.DefaultExpiration)
}

func (s *SessionStore) Count() int {
	return s.cache.ItemCount()
}
