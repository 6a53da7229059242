package core

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Bootstrap restores a session from the refresh cookie. On success the
// session is Authenticated; otherwise it is Unauthenticated with no token.
// Loading reports true until Bootstrap returns. The returned error only
// explains why no session could be restored.
func (s *Session) Bootstrap(ctx context.Context) error {
	defer s.markBootstrapped()

	payload, err := s.client.Refresh(ctx)
	if err != nil {
		s.mu.Lock()
		s.clearLocked()
		s.mu.Unlock()
		slog.Debug("No session to restore", "error", err)
		return err
	}

	s.mu.Lock()
	s.establishLocked(payload.AccessToken, payload.User)
	s.mu.Unlock()

	slog.Info("Session restored", "user_id", payload.User.ID, "email", payload.User.Email)
	return nil
}

// Login authenticates with email and password. The result is either
// NeedsVerification, leaving the session in PendingMFA with no token, or
// Authenticated with token and user stored. On any error the session is
// Unauthenticated and nothing is retried.
func (s *Session) Login(ctx context.Context, email, password string) (LoginResult, error) {
	req := LoginRequest{
		Email:    strings.TrimSpace(email),
		Password: password,
	}
	if err := s.validate(req); err != nil {
		slog.Debug("Login validation failed", "error", err)
		return nil, err
	}

	s.mu.Lock()
	s.clearLocked()
	s.state = StateAuthenticating
	s.mu.Unlock()

	req.DeviceFingerprint = s.fingerprints.Fingerprint(ctx)

	var resp loginResponse
	err := s.client.Do(ctx, http.MethodPost, "/auth/login", req, &resp, WithoutRefresh(), WithoutBearer())

	var result LoginResult
	if err == nil {
		result, err = resp.result()
	}

	if err != nil {
		s.mu.Lock()
		s.clearLocked()
		s.mu.Unlock()
		slog.Debug("Login failed", "email", req.Email, "error", err)
		return nil, normalizeError(err, "Login failed")
	}

	s.mu.Lock()
	switch r := result.(type) {
	case NeedsVerification:
		s.pending = &PendingMFA{SessionID: r.SessionID, CreatedAt: time.Now()}
		s.state = StatePendingMFA
	case Authenticated:
		s.establishLocked(r.Token, r.User)
	}
	s.mu.Unlock()

	if _, ok := result.(NeedsVerification); ok {
		slog.Info("Login requires two-factor verification", "email", req.Email)
	} else {
		slog.Info("User logged in successfully", "email", req.Email)
	}

	return result, nil
}

// Verify2FA completes a login that required two-factor verification. An
// empty sessionID uses the pending one. On failure the state is unchanged
// and nothing is retried or counted.
func (s *Session) Verify2FA(ctx context.Context, sessionID, code string) error {
	if sessionID == "" {
		pending, ok := s.PendingMFA()
		if !ok {
			return &ValidationError{
				Fields:  map[string]string{"sessionId": "sessionId is required"},
				Message: "No two-factor verification is pending. Please sign in again.",
				err:     ErrNoPendingMFA,
			}
		}
		sessionID = pending.SessionID
	}

	req := Verify2FARequest{
		SessionID: sessionID,
		Code:      strings.TrimSpace(code),
	}
	if err := s.validate(req); err != nil {
		return err
	}

	var resp loginResponse
	if err := s.client.Do(ctx, http.MethodPost, "/auth/verify-2fa", req, &resp, WithoutRefresh(), WithoutBearer()); err != nil {
		slog.Debug("Two-factor verification failed", "error", err)
		return normalizeError(err, "Invalid 2FA code")
	}

	if resp.AccessToken == "" || resp.User == nil {
		return normalizeError(malformedResponseError("verification response without access token or user"), "Invalid 2FA code")
	}

	s.mu.Lock()
	s.establishLocked(resp.AccessToken, resp.User)
	s.mu.Unlock()

	slog.Info("Two-factor verification succeeded", "user_id", resp.User.ID)
	return nil
}

// Logout invalidates the session on the server on a best-effort basis,
// then always clears local state and navigates to the login route. It is
// safe to call in any state.
func (s *Session) Logout(ctx context.Context) {
	if err := s.client.Do(ctx, http.MethodPost, "/auth/logout", nil, nil, WithoutRefresh()); err != nil {
		slog.Error("Logout request failed", "error", err)
	}

	s.mu.Lock()
	s.clearLocked()
	s.signedOut = true
	s.mu.Unlock()

	slog.Info("Logged out")
	s.navigator.Navigate(LoginRoute)
}

// LogoutAll invalidates every session of the user on the server. Local
// state is cleared regardless of the outcome.
func (s *Session) LogoutAll(ctx context.Context) error {
	err := s.client.Do(ctx, http.MethodPost, "/auth/logout-all", nil, nil)

	s.mu.Lock()
	s.clearLocked()
	s.signedOut = true
	s.mu.Unlock()

	// a failed refresh has already navigated
	if errors.Is(err, ErrSessionExpired) {
		return nil
	}

	s.navigator.Navigate(LoginRoute)
	if err != nil {
		slog.Error("Logout from all devices failed", "error", err)
		return normalizeError(err, "Logout failed")
	}
	return nil
}

// Register creates an account. It does not sign the user in.
func (s *Session) Register(ctx context.Context, req RegisterRequest) error {
	req.Email = strings.TrimSpace(req.Email)
	if req.RoleID == 0 {
		req.RoleID = 2
	}
	if req.UserType == "" {
		req.UserType = UserTypeInternal
	}

	if err := s.validate(req); err != nil {
		return err
	}
	if err := s.checkPassword("password", req.Password); err != nil {
		return err
	}

	if err := s.client.Do(ctx, http.MethodPost, "/auth/register", req, nil, WithoutRefresh(), WithoutBearer()); err != nil {
		return normalizeError(err, "Registration failed")
	}

	slog.Info("User registered", "email", req.Email)
	return nil
}

// ResetPassword sets a new password using a reset token from email
func (s *Session) ResetPassword(ctx context.Context, token, newPassword string) error {
	req := ResetPasswordRequest{Token: strings.TrimSpace(token), NewPassword: newPassword}
	if err := s.validate(req); err != nil {
		return err
	}
	if err := s.checkPassword("newPassword", newPassword); err != nil {
		return err
	}

	if err := s.client.Do(ctx, http.MethodPost, "/auth/reset-password", req, nil, WithoutRefresh(), WithoutBearer()); err != nil {
		return normalizeError(err, "Reset password failed")
	}
	return nil
}

// ForgotPassword asks the server to email a password reset link
func (s *Session) ForgotPassword(ctx context.Context, email string) error {
	req := emailRequest{Email: strings.TrimSpace(email)}
	if err := s.validate(req); err != nil {
		return err
	}

	if err := s.client.Do(ctx, http.MethodPost, "/auth/forgot-password", req, nil, WithoutRefresh(), WithoutBearer()); err != nil {
		return normalizeError(err, "Forgot password failed")
	}
	return nil
}

// ValidateResetToken reports whether a password reset token is still usable
func (s *Session) ValidateResetToken(ctx context.Context, token string) bool {
	if strings.TrimSpace(token) == "" {
		return false
	}
	path := "/auth/validate-reset-token?" + url.Values{"token": {token}}.Encode()
	if err := s.client.Do(ctx, http.MethodGet, path, nil, nil, WithoutRefresh(), WithoutBearer()); err != nil {
		slog.Debug("Reset token rejected", "error", err)
		return false
	}
	return true
}

// VerifyEmail confirms an email address with the token from the
// verification email.
func (s *Session) VerifyEmail(ctx context.Context, token string) error {
	req := tokenRequest{Token: strings.TrimSpace(token)}
	if err := s.validate(req); err != nil {
		return err
	}

	if err := s.client.Do(ctx, http.MethodPost, "/auth/verify-email", req, nil, WithoutRefresh(), WithoutBearer()); err != nil {
		return normalizeError(err, "Email verification failed")
	}
	return nil
}

// ResendVerification asks the server to send the verification email again
func (s *Session) ResendVerification(ctx context.Context, email string) error {
	req := emailRequest{Email: strings.TrimSpace(email)}
	if err := s.validate(req); err != nil {
		return err
	}

	if err := s.client.Do(ctx, http.MethodPost, "/auth/resend-verification", req, nil, WithoutRefresh(), WithoutBearer()); err != nil {
		return normalizeError(err, "Failed to resend verification email")
	}
	return nil
}

// RefreshUser fetches the current user again and replaces the stored
// snapshot. Session state is only touched on success.
func (s *Session) RefreshUser(ctx context.Context) error {
	var user User
	if err := s.client.Do(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		slog.Error("Failed to refresh user", "error", err)
		return normalizeError(err, "Failed to load user")
	}

	s.replaceUser(&user)
	return nil
}

// replaceUser swaps the user snapshot of an authenticated session
func (s *Session) replaceUser(user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return
	}
	s.user = user.Clone()
}
