package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// ErrInvalidUserID is returned when attempting to create a session without a
// user identifier.
var ErrInvalidUserID = errors.New("userID is required")

// SessionStore defines the persistence contract for session tokens.
type SessionStore interface {
	Save(ctx context.Context, token, userID string, expiresAt time.Time) error
	Get(ctx context.Context, token string) (SessionRecord, bool, error)
	Delete(ctx context.Context, token string) error
	PurgeExpired(ctx context.Context, now time.Time) error
}

// SessionRecord captures a session row retrieved from the backing store.
type SessionRecord struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// SessionOption configures a SessionManager instance.
type SessionOption func(*SessionManager)

// WithStore injects a custom SessionStore implementation.
func WithStore(store SessionStore) SessionOption {
	return func(m *SessionManager) {
		if store != nil {
			m.store = store
		}
	}
}

// WithSlidingExpiry makes Validate push the session expiry forward on use.
func WithSlidingExpiry() SessionOption {
	return func(m *SessionManager) {
		m.sliding = true
	}
}

// SessionManager coordinates session creation and validation against a
// backing store.
type SessionManager struct {
	store   SessionStore
	ttl     time.Duration
	sliding bool
	now     func() time.Time
}

// NewSessionManager constructs a SessionManager with the provided TTL. It
// defaults to a 7-day TTL and an in-memory store when no store is supplied.
func NewSessionManager(ttl time.Duration, opts ...SessionOption) *SessionManager {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	manager := &SessionManager{ttl: ttl, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	if manager.store == nil {
		manager.store = NewMemorySessionStore()
	}
	return manager
}

// Create issues a new session token for the provided user identifier.
func (m *SessionManager) Create(ctx context.Context, userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrInvalidUserID
	}
	token, err := generateToken(32)
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := m.now().Add(m.ttl).UTC()
	if err := m.store.Save(ctx, token, userID, expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Validate resolves the token to a user. Expired tokens are deleted eagerly.
func (m *SessionManager) Validate(ctx context.Context, token string) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}
	record, ok, err := m.store.Get(ctx, token)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	now := m.now()
	if now.After(record.ExpiresAt) {
		_ = m.store.Delete(ctx, token)
		return "", false, nil
	}
	if m.sliding {
		refreshed := now.Add(m.ttl).UTC()
		if err := m.store.Save(ctx, record.Token, record.UserID, refreshed); err != nil {
			return "", false, err
		}
	}
	return record.UserID, true, nil
}

// Revoke deletes the session token from the backing store.
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.Delete(ctx, token)
}

// PurgeExpired removes any expired sessions from the backing store.
func (m *SessionManager) PurgeExpired(ctx context.Context) error {
	return m.store.PurgeExpired(ctx, m.now())
}

// Ping verifies the underlying store is reachable when it exposes a ping
// method.
func (m *SessionManager) Ping(ctx context.Context) error {
	if m == nil || m.store == nil {
		return nil
	}
	if pinger, ok := m.store.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func generateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
