package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"
)

// Static errors for err113 compliance.
var (
	ErrStaticTokenCannotRefresh = errors.New("static authorization cannot be refreshed")
	ErrNoCredentials            = errors.New("no credentials configured")
)

// TokenManager supplies the Authorization header value for outgoing requests.
type TokenManager interface {
	// GetToken returns the full Authorization header value, e.g. "Bearer x"
	// or "Basic x".
	GetToken(ctx context.Context) (string, error)
	// RefreshToken forces renewal of the current credentials.
	RefreshToken(ctx context.Context) error
	// SetToken replaces the current credentials.
	SetToken(token string, expiresAt time.Time)
}

// Token holds an authorization value with its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// IsExpired checks whether the token is past its expiry.
func (t *Token) IsExpired() bool {
	if t.ExpiresAt.IsZero() {
		return false
	}

	return time.Now().After(t.ExpiresAt)
}

// TokenStore provides thread-safe token storage.
type TokenStore struct {
	mutex sync.RWMutex
	token *Token
}

// Get returns the stored token, or nil.
func (s *TokenStore) Get() *Token {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.token
}

// Set replaces the stored token.
func (s *TokenStore) Set(token *Token) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.token = token
}

// StaticTokenManager serves a fixed authorization value. The value is sent
// verbatim, so callers include the scheme ("Bearer ...").
type StaticTokenManager struct {
	store TokenStore
}

// NewStaticTokenManager creates a token manager around a fixed value.
func NewStaticTokenManager(value string) *StaticTokenManager {
	manager := &StaticTokenManager{}
	manager.store.Set(&Token{Value: value})

	return manager
}

// GetToken implements TokenManager.GetToken.
func (m *StaticTokenManager) GetToken(ctx context.Context) (string, error) {
	token := m.store.Get()
	if token == nil || token.Value == "" {
		return "", ErrNoCredentials
	}

	if token.IsExpired() {
		return "", ErrStaticTokenCannotRefresh
	}

	return token.Value, nil
}

// RefreshToken implements TokenManager.RefreshToken.
func (m *StaticTokenManager) RefreshToken(ctx context.Context) error {
	return ErrStaticTokenCannotRefresh
}

// SetToken implements TokenManager.SetToken.
func (m *StaticTokenManager) SetToken(token string, expiresAt time.Time) {
	m.store.Set(&Token{Value: token, ExpiresAt: expiresAt})
}

// BasicTokenManager serves an HTTP basic auth value derived from a
// username/password pair.
type BasicTokenManager struct {
	manager StaticTokenManager
}

// NewBasicTokenManager creates a token manager for basic auth credentials.
func NewBasicTokenManager(username, password string) *BasicTokenManager {
	encoded := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	manager := &BasicTokenManager{}
	manager.manager.SetToken("Basic "+encoded, time.Time{})

	return manager
}

// GetToken implements TokenManager.GetToken.
func (m *BasicTokenManager) GetToken(ctx context.Context) (string, error) {
	return m.manager.GetToken(ctx)
}

// RefreshToken implements TokenManager.RefreshToken.
func (m *BasicTokenManager) RefreshToken(ctx context.Context) error {
	return ErrStaticTokenCannotRefresh
}

// SetToken implements TokenManager.SetToken.
func (m *BasicTokenManager) SetToken(token string, expiresAt time.Time) {
	m.manager.SetToken(token, expiresAt)
}
