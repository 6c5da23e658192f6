// Package web serves the statistics and playlist builder as a JSON HTTP API.
package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/justestif/spotify-stats/internal/auth"
	"github.com/justestif/spotify-stats/internal/db"
	"github.com/justestif/spotify-stats/internal/music"
)

const (
	sessionCookieName = "session_id"
	stateCookieName   = "oauth_state"

	// DefaultSessionTTL is how long a session stays valid after sign-in.
	DefaultSessionTTL = 24 * time.Hour
)

// ErrNoSession is returned when a request carries no valid session.
var ErrNoSession = errors.New("no session")

// Session is an authenticated user session.
type Session struct {
	ID        string
	Token     *auth.AccessTokenInfo
	UserID    string
	UserName  string
	CreatedAt time.Time
}

// SessionManager stores sessions and the Spotify token each one holds.
type SessionManager interface {
	Create(ctx context.Context, token *auth.AccessTokenInfo, user *music.UserProfile) (*Session, error)
	// Get returns ErrNoSession for unknown or expired sessions.
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	UpdateToken(ctx context.Context, id string, token *auth.AccessTokenInfo) error
	// DeleteExpired removes expired sessions and returns how many were removed.
	DeleteExpired(ctx context.Context) (int64, error)
}

// ============================================================================
// In-Memory Session Store
// ============================================================================

// MemorySessionStore keeps sessions in memory. Sessions are lost on restart.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewMemorySessionStore creates a memory session store. A non-positive ttl
// uses DefaultSessionTTL.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemorySessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemorySessionStore) Create(_ context.Context, token *auth.AccessTokenInfo, user *music.UserProfile) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:        id,
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	return session, nil
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNoSession
	}
	if s.expired(session) {
		s.mu.Lock()
		if current, ok := s.sessions[id]; ok && s.expired(current) {
			delete(s.sessions, id)
		}
		s.mu.Unlock()
		return nil, ErrNoSession
	}

	cp := *session
	if session.Token != nil {
		tok := *session.Token
		cp.Token = &tok
	}
	return &cp, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, session := range s.sessions {
		if s.expired(session) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *MemorySessionStore) expired(session *Session) bool {
	return s.now().Sub(session.CreatedAt) > s.ttl
}

func (s *MemorySessionStore) UpdateToken(_ context.Context, id string, token *auth.AccessTokenInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ErrNoSession
	}
	session.Token = token
	return nil
}

// ============================================================================
// Database-Backed Session Store
// ============================================================================

// DBSessionStore keeps sessions in PostgreSQL.
type DBSessionStore struct {
	database *db.DB
	ttl      time.Duration
}

// NewDBSessionStore creates a database-backed session store.
func NewDBSessionStore(database *db.DB, ttl time.Duration) *DBSessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &DBSessionStore{database: database, ttl: ttl}
}

func (s *DBSessionStore) Create(ctx context.Context, token *auth.AccessTokenInfo, user *music.UserProfile) (*Session, error) {
	if err := s.database.Users().Upsert(ctx, &db.User{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		Country:     user.Country,
		Product:     user.Product,
	}); err != nil {
		return nil, err
	}

	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	dbSession := &db.Session{
		ID:           id,
		UserID:       user.ID,
		AccessToken:  token.Token,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.ExpiresAt,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.database.Sessions().Create(ctx, dbSession); err != nil {
		return nil, err
	}

	return &Session{
		ID:        id,
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		CreatedAt: now,
	}, nil
}

func (s *DBSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	dbSession, err := s.database.Sessions().Get(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID: dbSession.ID,
		Token: &auth.AccessTokenInfo{
			Token:        dbSession.AccessToken,
			RefreshToken: dbSession.RefreshToken,
			ExpiresAt:    dbSession.TokenExpiry,
		},
		UserID:    dbSession.UserID,
		CreatedAt: dbSession.CreatedAt,
	}

	user, err := s.database.Users().Get(ctx, dbSession.UserID)
	if err == nil {
		session.UserName = user.DisplayName
	}
	return session, nil
}

func (s *DBSessionStore) Delete(ctx context.Context, id string) error {
	return s.database.Sessions().Delete(ctx, id)
}

func (s *DBSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	return s.database.Sessions().DeleteExpired(ctx)
}

func (s *DBSessionStore) UpdateToken(ctx context.Context, id string, token *auth.AccessTokenInfo) error {
	err := s.database.Sessions().UpdateToken(ctx, id, token.Token, token.RefreshToken, token.ExpiresAt)
	if errors.Is(err, db.ErrNotFound) {
		return ErrNoSession
	}
	return err
}

// ============================================================================
// Session Token Storage
// ============================================================================

// sessionTokenStorage exposes a session's token to auth.Repository, so
// refreshed tokens are written back to the session.
type sessionTokenStorage struct {
	sessions SessionManager
	id       string
}

func (s *sessionTokenStorage) Load(ctx context.Context) (*auth.AccessTokenInfo, error) {
	session, err := s.sessions.Get(ctx, s.id)
	if errors.Is(err, ErrNoSession) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session.Token, nil
}

func (s *sessionTokenStorage) Save(ctx context.Context, info *auth.AccessTokenInfo) error {
	return s.sessions.UpdateToken(ctx, s.id, info)
}

func (s *sessionTokenStorage) Delete(ctx context.Context) error {
	return s.sessions.Delete(ctx, s.id)
}

// ============================================================================
// Helper Functions
// ============================================================================

// generateSessionID creates a cryptographically random session ID.
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func sessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func setSessionCookie(w http.ResponseWriter, session *Session, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

var (
	_ SessionManager    = (*MemorySessionStore)(nil)
	_ SessionManager    = (*DBSessionStore)(nil)
	_ auth.TokenStorage = (*sessionTokenStorage)(nil)
)
