package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every error returned by this package matches exactly one of
// these with errors.Is.
var (
	// ErrValidation is returned when input is rejected before any network call,
	// or when the server rejects a request body.
	ErrValidation = errors.New("validation failed")
	// ErrAuthentication is returned for bad credentials and invalid 2FA codes
	ErrAuthentication = errors.New("authentication failed")
	// ErrSessionExpired is returned when the refresh cookie could not mint a new access token
	ErrSessionExpired = errors.New("session expired")
	// ErrTransport is returned when the API could not be reached
	ErrTransport = errors.New("transport error")
	// ErrServer is returned for any other unsuccessful API response
	ErrServer = errors.New("server error")
	// ErrNoPendingMFA is returned by Verify2FA when no two-factor session is known
	ErrNoPendingMFA = errors.New("no pending two-factor session")
	// ErrNoAccessToken is returned by TokenStore.Token when the store is empty
	ErrNoAccessToken = errors.New("no access token")
)

// APIError is a normalized failure of an API call. Message is safe to show
// to the user.
type APIError struct {
	Status  int    // HTTP status code, 0 for transport failures
	Message string // message from the server payload, or a generic one
	kind    error
	err     error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Status != 0 {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return e.kind.Error()
}

// Unwrap exposes both the error kind and the underlying cause.
func (e *APIError) Unwrap() []error {
	if e.err == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.err}
}

// Kind returns the sentinel describing this failure
func (e *APIError) Kind() error {
	return e.kind
}

// ValidationError reports input rejected on the client side. Fields maps the
// JSON field name to a message suitable for inline display.
type ValidationError struct {
	Fields  map[string]string
	Message string
	err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() []error {
	if e.err == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.err}
}

// kindForStatus maps an HTTP status to an error kind
func kindForStatus(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return ErrValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthentication
	default:
		return ErrServer
	}
}

func transportError(err error) *APIError {
	return &APIError{
		Message: "Unable to reach the server",
		kind:    ErrTransport,
		err:     err,
	}
}

func sessionExpiredError(err error) *APIError {
	return &APIError{
		Status:  http.StatusUnauthorized,
		Message: "Your session has expired. Please sign in again.",
		kind:    ErrSessionExpired,
		err:     err,
	}
}

func malformedResponseError(reason string) *APIError {
	return &APIError{
		Status:  http.StatusOK,
		kind:    ErrServer,
		err:     errors.New(reason),
	}
}

// normalizeError makes sure err carries a user-facing message. Server
// messages win; otherwise fallback is used. Validation errors and the
// session-expiry message are kept as they are.
func normalizeError(err error, fallback string) error {
	if err == nil {
		return nil
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return err
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return &APIError{Message: fallback, kind: ErrServer, err: err}
	}

	if apiErr.kind == ErrSessionExpired || apiErr.kind == ErrTransport {
		return apiErr
	}

	if apiErr.Message != "" {
		return apiErr
	}

	return &APIError{
		Status:  apiErr.Status,
		Message: fallback,
		kind:    apiErr.kind,
		err:     apiErr.err,
	}
}

// UserMessage returns a message that can be rendered to the user for any
// error returned by this package.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Message
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return "Something went wrong. Please try again."
}
