package core

import (
	"net/url"
	"slices"
	"time"
)

// Role and user-type names issued by the API
const (
	RoleAdmin = "ADMIN"

	UserTypeInternal = "INTERNAL"
	UserTypeExternal = "EXTERNAL"
)

// Routes the session controller navigates to
const (
	LoginRoute     = "/auth/login"
	DashboardRoute = "/dashboard"
	VerifyRoute    = "/auth/verify-2fa"
)

// User is the signed-in user as returned by the API. The session controller
// hands out copies; a User is never partially mutated.
type User struct {
	ID            int64    `json:"id"`
	Email         string   `json:"email"`
	Username      string   `json:"username"`
	Roles         []string `json:"roles"`
	Permissions   []string `json:"permissions"`
	BranchName    string   `json:"branchName,omitempty"`
	UserType      string   `json:"userType"`
	EmailVerified bool     `json:"emailVerified"`
	MFAEnabled    bool     `json:"mfaEnabled"`

	// Profile
	FirstName      string `json:"firstName,omitempty"`
	LastName       string `json:"lastName,omitempty"`
	Phone          string `json:"phone,omitempty"`
	DateOfBirth    string `json:"dateOfBirth,omitempty"`
	Gender         string `json:"gender,omitempty"`
	Address        string `json:"address,omitempty"`
	City           string `json:"city,omitempty"`
	State          string `json:"state,omitempty"`
	PostalCode     string `json:"postalCode,omitempty"`
	Country        string `json:"country,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// Clone returns a deep copy of u
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Roles = slices.Clone(u.Roles)
	c.Permissions = slices.Clone(u.Permissions)
	return &c
}

// HasRole reports whether the user holds role (exact match)
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Roles, role)
}

// IsAdmin reports whether the user holds the administrator role
func (u *User) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

// HasPermission reports whether the user holds permission. Administrators
// hold every permission.
func (u *User) HasPermission(permission string) bool {
	if u == nil {
		return false
	}
	if u.IsAdmin() {
		return true
	}
	return slices.Contains(u.Permissions, permission)
}

// DisplayName returns the user's full name, falling back to username and email
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return u.Username
	default:
		return u.Email
	}
}

// PendingMFA is the two-factor step between a login that requires
// verification and the verification call.
type PendingMFA struct {
	SessionID string
	CreatedAt time.Time
}

// LoginResult is the outcome of a successful login call. It is either
// NeedsVerification or Authenticated.
type LoginResult interface {
	// NextRoute is the route the caller should navigate to
	NextRoute() string
	loginResult()
}

// NeedsVerification means the server wants a two-factor code before it
// issues tokens.
type NeedsVerification struct {
	SessionID string
}

func (NeedsVerification) loginResult() {}

// NextRoute returns the verification route carrying the session identifier
func (n NeedsVerification) NextRoute() string {
	return VerifyRoute + "?" + url.Values{"sessionId": {n.SessionID}}.Encode()
}

// Authenticated means the session is fully established
type Authenticated struct {
	Token string
	User  *User
}

func (Authenticated) loginResult() {}

// NextRoute returns the dashboard route
func (Authenticated) NextRoute() string {
	return DashboardRoute
}

// Request and Response Types

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email             string `json:"email" validate:"required,email"`
	Password          string `json:"password" validate:"required"`
	DeviceFingerprint string `json:"deviceFingerprint"`
}

// Verify2FARequest is the body of POST /auth/verify-2fa
type Verify2FARequest struct {
	SessionID string `json:"sessionId" validate:"required"`
	Code      string `json:"code" validate:"required,len=6,numeric"`
}

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Username  string `json:"username" validate:"required,min=3,max=50"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"firstName,omitempty" validate:"omitempty,max=50"`
	LastName  string `json:"lastName,omitempty" validate:"omitempty,max=50"`
	Phone     string `json:"phone,omitempty" validate:"omitempty,max=20"`
	RoleID    int64  `json:"roleId"`
	UserType  string `json:"userType" validate:"omitempty,oneof=INTERNAL EXTERNAL"`
}

// ResetPasswordRequest is the body of POST /auth/reset-password
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type tokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// AuthPayload is the token and user pair issued by login, 2FA verification
// and refresh.
type AuthPayload struct {
	AccessToken string `json:"accessToken"`
	User        *User  `json:"user"`
}

// loginResponse is the wire shape of /auth/login and /auth/verify-2fa
type loginResponse struct {
	AccessToken string `json:"accessToken"`
	User        *User  `json:"user"`
	MFARequired bool   `json:"mfaRequired"`
	SessionID   string `json:"sessionId"`
}

// result decides, once, which LoginResult the response represents
func (r *loginResponse) result() (LoginResult, error) {
	if r.MFARequired {
		if r.SessionID == "" {
			return nil, malformedResponseError("two-factor response without session identifier")
		}
		return NeedsVerification{SessionID: r.SessionID}, nil
	}
	if r.AccessToken == "" || r.User == nil {
		return nil, malformedResponseError("login response without access token or user")
	}
	return Authenticated{Token: r.AccessToken, User: r.User}, nil
}

// MessageResponse is the generic acknowledgement returned by the API
type MessageResponse struct {
	Message string `json:"message"`
}
