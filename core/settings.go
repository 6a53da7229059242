package core

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// UpdateProfileRequest is the body of PUT /users/profile. Empty fields are
// left unchanged by the server.
type UpdateProfileRequest struct {
	FirstName      string `json:"firstName,omitempty" validate:"omitempty,max=50"`
	LastName       string `json:"lastName,omitempty" validate:"omitempty,max=50"`
	Email          string `json:"email,omitempty" validate:"omitempty,email"`
	Phone          string `json:"phone,omitempty" validate:"omitempty,max=20"`
	DateOfBirth    string `json:"dateOfBirth,omitempty"`
	Gender         string `json:"gender,omitempty"`
	Address        string `json:"address,omitempty"`
	City           string `json:"city,omitempty"`
	State          string `json:"state,omitempty"`
	PostalCode     string `json:"postalCode,omitempty"`
	Country        string `json:"country,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// UpdatePasswordRequest is the body of PUT /users/password
type UpdatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

type UserPreferences struct {
	ID              int64  `json:"id,omitempty"`
	Language        string `json:"language,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
	DateFormat      string `json:"dateFormat,omitempty"`
	TimeFormat      string `json:"timeFormat,omitempty"`
	Theme           string `json:"theme,omitempty"`
	DefaultBranchID int64  `json:"defaultBranchId,omitempty"`
	CreatedAt       string `json:"createdAt,omitempty"`
	UpdatedAt       string `json:"updatedAt,omitempty"`
}

type NotificationSettings struct {
	ID int64 `json:"id,omitempty"`

	EmailPrescriptionReady bool `json:"emailPrescriptionReady"`
	EmailOrderUpdates      bool `json:"emailOrderUpdates"`
	EmailPromotions        bool `json:"emailPromotions"`
	EmailNewsletter        bool `json:"emailNewsletter"`
	EmailSecurityAlerts    bool `json:"emailSecurityAlerts"`

	SMSPrescriptionReady bool `json:"smsPrescriptionReady"`
	SMSOrderUpdates      bool `json:"smsOrderUpdates"`
	SMSPromotions        bool `json:"smsPromotions"`
	SMSSecurityAlerts    bool `json:"smsSecurityAlerts"`

	PushPrescriptionReady bool `json:"pushPrescriptionReady"`
	PushOrderUpdates      bool `json:"pushOrderUpdates"`
	PushPromotions        bool `json:"pushPromotions"`
	PushSecurityAlerts    bool `json:"pushSecurityAlerts"`

	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type PrivacySettings struct {
	ID                      int64  `json:"id,omitempty"`
	ShareDataWithPartners   bool   `json:"shareDataWithPartners"`
	MarketingCommunications bool   `json:"marketingCommunications"`
	ProfileVisibility       bool   `json:"profileVisibility"`
	ShowOnlineStatus        bool   `json:"showOnlineStatus"`
	CreatedAt               string `json:"createdAt,omitempty"`
	UpdatedAt               string `json:"updatedAt,omitempty"`
}

// UpdateProfile saves profile fields and replaces the stored user with the
// one returned by the API.
func (s *Session) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*User, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validate(req); err != nil {
		return nil, err
	}

	var user User
	if err := s.client.Do(ctx, http.MethodPut, "/users/profile", req, &user); err != nil {
		return nil, normalizeError(err, "Failed to update profile")
	}

	s.replaceUser(&user)
	slog.Info("Profile updated", "user_id", user.ID)
	return user.Clone(), nil
}

// ChangePassword changes the password of the signed-in user
func (s *Session) ChangePassword(ctx context.Context, req UpdatePasswordRequest) error {
	if err := s.validate(req); err != nil {
		return err
	}
	if err := s.checkPassword("newPassword", req.NewPassword); err != nil {
		return err
	}

	if err := s.client.Do(ctx, http.MethodPut, "/users/password", req, nil); err != nil {
		return normalizeError(err, "Failed to change password")
	}

	slog.Info("Password changed")
	return nil
}

// Settings is the typed client for the account settings endpoints. It keeps
// no state of its own.
type Settings struct {
	client *Client
}

// NewSettings creates a settings client on top of client
func NewSettings(client *Client) *Settings {
	return &Settings{client: client}
}

func (s *Settings) Preferences(ctx context.Context) (*UserPreferences, error) {
	var prefs UserPreferences
	if err := s.client.Do(ctx, http.MethodGet, "/users/preferences", nil, &prefs); err != nil {
		return nil, normalizeError(err, "Failed to load preferences")
	}
	return &prefs, nil
}

func (s *Settings) UpdatePreferences(ctx context.Context, prefs UserPreferences) (*UserPreferences, error) {
	var updated UserPreferences
	if err := s.client.Do(ctx, http.MethodPut, "/users/preferences", prefs, &updated); err != nil {
		return nil, normalizeError(err, "Failed to update preferences")
	}
	return &updated, nil
}

func (s *Settings) Notifications(ctx context.Context) (*NotificationSettings, error) {
	var settings NotificationSettings
	if err := s.client.Do(ctx, http.MethodGet, "/users/notifications", nil, &settings); err != nil {
		return nil, normalizeError(err, "Failed to load notification settings")
	}
	return &settings, nil
}

func (s *Settings) UpdateNotifications(ctx context.Context, settings NotificationSettings) (*NotificationSettings, error) {
	var updated NotificationSettings
	if err := s.client.Do(ctx, http.MethodPut, "/users/notifications", settings, &updated); err != nil {
		return nil, normalizeError(err, "Failed to update notification settings")
	}
	return &updated, nil
}

func (s *Settings) Privacy(ctx context.Context) (*PrivacySettings, error) {
	var settings PrivacySettings
	if err := s.client.Do(ctx, http.MethodGet, "/users/privacy", nil, &settings); err != nil {
		return nil, normalizeError(err, "Failed to load privacy settings")
	}
	return &settings, nil
}

func (s *Settings) UpdatePrivacy(ctx context.Context, settings PrivacySettings) (*PrivacySettings, error) {
	var updated PrivacySettings
	if err := s.client.Do(ctx, http.MethodPut, "/users/privacy", settings, &updated); err != nil {
		return nil, normalizeError(err, "Failed to update privacy settings")
	}
	return &updated, nil
}

// ExportData asks the server to prepare an export of the user's data
func (s *Settings) ExportData(ctx context.Context) (string, error) {
	var resp MessageResponse
	if err := s.client.Do(ctx, http.MethodPost, "/users/export-data", nil, &resp); err != nil {
		return "", normalizeError(err, "Failed to export data")
	}
	return resp.Message, nil
}

// DeleteAccount deletes the signed-in user's account. The caller is
// expected to log out afterwards.
func (s *Settings) DeleteAccount(ctx context.Context) (string, error) {
	var resp MessageResponse
	if err := s.client.Do(ctx, http.MethodDelete, "/users/account", nil, &resp); err != nil {
		return "", normalizeError(err, "Failed to delete account")
	}
	return resp.Message, nil
}
