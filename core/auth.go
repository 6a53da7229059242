// Package core provides the client-side authentication and session
// lifecycle for the MedHelp pharmacy API.
//
// This package includes:
//   - An in-memory access token store (never persisted)
//   - An API client that refreshes an expired access token once via the
//     HttpOnly refresh cookie and retries the original request
//   - Device fingerprinting for login anomaly detection
//   - The session controller: login, optional 2FA, logout, bootstrap
//
// ## Quick Start:
//
//	session, err := core.NewSession(core.Config{
//		BaseURL:   "http://localhost:8080/api/v1",
//		Navigator: core.NavigatorFunc(func(route string) { log.Println("go to", route) }),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	session.Bootstrap(ctx) // restore a session from the refresh cookie
//
//	result, err := session.Login(ctx, email, password)
//	if err != nil {
//		fmt.Println(core.UserMessage(err))
//		return
//	}
//	if mfa, ok := result.(core.NeedsVerification); ok {
//		err = session.Verify2FA(ctx, mfa.SessionID, code)
//	}
package core

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// State is the position of a Session in its lifecycle
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StatePendingMFA
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StatePendingMFA:
		return "pending_mfa"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Navigator moves the user to another route. In a browser this is a page
// navigation; a CLI may only print it.
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) {
	f(route)
}

type noopNavigator struct{}

func (noopNavigator) Navigate(route string) {
	slog.Debug("Navigation requested", "route", route)
}

// Config contains the configuration for the Session
type Config struct {
	BaseURL        string         // API base URL (required)
	HTTPClient     *http.Client   // Optional HTTP client; a cookie jar is added if missing
	Timeout        time.Duration  // Per-request timeout when HTTPClient has none
	Fingerprinter  *Fingerprinter // Defaults to NewFingerprinter(HostSource{})
	Navigator      Navigator      // Receives login/dashboard navigation requests
	PasswordPolicy PasswordPolicy // Zero value uses DefaultPasswordPolicy
	Metrics        *Metrics       // Optional client metrics
	UserAgent      string
}

// Session is the auth session controller. It is the only writer of the
// access token and the current user; everything else reads through its
// accessors.
type Session struct {
	client       *Client
	tokens       *TokenStore
	fingerprints *Fingerprinter
	navigator    Navigator
	validator    *validator.Validate
	policy       PasswordPolicy

	mu           sync.RWMutex
	state        State
	user         *User
	pending      *PendingMFA
	bootstrapped bool
	signedOut    bool // set by Logout; only a credential exchange clears it

	ready     chan struct{}
	readyOnce sync.Once
}

// NewSession creates a new session controller in the Unauthenticated state.
// It reports Loading until Bootstrap has returned.
func NewSession(cfg Config) (*Session, error) {
	policy := cfg.PasswordPolicy
	if policy.MinLength == 0 {
		policy = DefaultPasswordPolicy()
	}

	fingerprints := cfg.Fingerprinter
	if fingerprints == nil {
		fingerprints = NewFingerprinter(HostSource{})
	}

	navigator := cfg.Navigator
	if navigator == nil {
		navigator = noopNavigator{}
	}

	s := &Session{
		tokens:       NewTokenStore(),
		fingerprints: fingerprints,
		navigator:    navigator,
		validator:    newValidator(),
		policy:       policy,
		state:        StateUnauthenticated,
		ready:        make(chan struct{}),
	}

	client, err := NewClient(ClientConfig{
		BaseURL:     cfg.BaseURL,
		HTTPClient:  cfg.HTTPClient,
		Credentials: s,
		Metrics:     cfg.Metrics,
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	s.client = client

	return s, nil
}

// Client returns the API client bound to this session
func (s *Session) Client() *Client {
	return s.client
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// User returns a copy of the signed-in user
func (s *Session) User() (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateAuthenticated || s.user == nil {
		return nil, false
	}
	return s.user.Clone(), true
}

// IsAuthenticated reports whether a full session (token and user) exists
func (s *Session) IsAuthenticated() bool {
	return s.State() == StateAuthenticated
}

// PendingMFA returns the two-factor step awaiting verification, if any
func (s *Session) PendingMFA() (PendingMFA, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StatePendingMFA || s.pending == nil {
		return PendingMFA{}, false
	}
	return *s.pending, true
}

// Loading reports whether consumers should hold back protected rendering:
// before Bootstrap has returned, and while a login is in flight.
func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.bootstrapped || s.state == StateAuthenticating
}

// Ready is closed once Bootstrap has returned
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// HasRole reports whether the signed-in user holds role
func (s *Session) HasRole(role string) bool {
	user, ok := s.User()
	return ok && user.HasRole(role)
}

// HasPermission reports whether the signed-in user holds permission
func (s *Session) HasPermission(permission string) bool {
	user, ok := s.User()
	return ok && user.HasPermission(permission)
}

// AccessToken returns the current access token. It is only present while
// the session is Authenticated.
func (s *Session) AccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateAuthenticated {
		return "", false
	}
	return s.tokens.Get()
}

// Credentials implementation used by the client

// Get returns the token the client should attach
func (s *Session) Get() (string, bool) {
	return s.tokens.Get()
}

// Refreshed stores the token and user minted by a silent refresh. A
// refresh that completes after Logout is dropped.
func (s *Session) Refreshed(payload *AuthPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signedOut {
		slog.Debug("Dropping refresh that completed after logout", "user_id", payload.User.ID)
		return
	}
	s.establishLocked(payload.AccessToken, payload.User)
	slog.Debug("Session refreshed", "user_id", payload.User.ID)
}

// Expired ends the session after the refresh cookie was rejected
func (s *Session) Expired(err error) {
	s.mu.Lock()
	signedOut := s.signedOut
	s.clearLocked()
	s.mu.Unlock()

	if signedOut {
		return
	}
	slog.Info("Session expired, redirecting to login", "error", err)
	s.navigator.Navigate(LoginRoute)
}

var _ Credentials = (*Session)(nil)

// establishLocked installs a full session. Caller holds s.mu.
func (s *Session) establishLocked(token string, user *User) {
	s.tokens.Set(token)
	s.user = user.Clone()
	s.pending = nil
	s.state = StateAuthenticated
	s.signedOut = false
}

// clearLocked drops token, user and any pending 2FA step. Caller holds s.mu.
func (s *Session) clearLocked() {
	s.tokens.Clear()
	s.user = nil
	s.pending = nil
	s.state = StateUnauthenticated
}

func (s *Session) markBootstrapped() {
	s.mu.Lock()
	s.bootstrapped = true
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *Session) validate(req any) error {
	return validateStruct(s.validator, req)
}

func (s *Session) checkPassword(field, password string) error {
	if err := validatePasswordStrength(password, s.policy); err != nil {
		return passwordError(field, err)
	}
	return nil
}
