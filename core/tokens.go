package core

import (
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// TokenStore holds the current access token in memory only. A new store is
// always empty; nothing is ever written to disk.
type TokenStore struct {
	mu    sync.RWMutex
	token *oauth2.Token
}

// NewTokenStore creates an empty token store
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Get returns the current access token, if any
func (s *TokenStore) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return "", false
	}
	return s.token.AccessToken, true
}

// Set replaces the current access token. An empty token clears the store.
func (s *TokenStore) Set(accessToken string) {
	if accessToken == "" {
		s.Clear()
		return
	}

	token := &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		Expiry:      tokenExpiry(accessToken),
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	slog.Debug("Access token stored",
		"token_length", len(accessToken),
		"expires_at", token.Expiry)
}

// Clear drops the current access token
func (s *TokenStore) Clear() {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()
}

// Token implements oauth2.TokenSource
func (s *TokenStore) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return nil, ErrNoAccessToken
	}
	t := *s.token
	return &t, nil
}

// Refreshed stores the token minted by a refresh call
func (s *TokenStore) Refreshed(payload *AuthPayload) {
	s.Set(payload.AccessToken)
}

// Expired clears the store after a failed refresh
func (s *TokenStore) Expired(err error) {
	slog.Debug("Access token discarded after failed refresh", "error", err)
	s.Clear()
}

// tokenExpiry reads the exp claim of a JWT access token without verifying
// it. Opaque tokens have no expiry.
func tokenExpiry(accessToken string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

var _ oauth2.TokenSource = (*TokenStore)(nil)
