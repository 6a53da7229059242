package core

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	upperPattern   = regexp.MustCompile(`[A-Z]`)
	lowerPattern   = regexp.MustCompile(`[a-z]`)
	numberPattern  = regexp.MustCompile(`[0-9]`)
	specialPattern = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// PasswordPolicy is checked on every password the user chooses
type PasswordPolicy struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireNumber  bool
	RequireSpecial bool
}

// DefaultPasswordPolicy returns the policy used by the API
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:      8,
		RequireUpper:   true,
		RequireLower:   true,
		RequireNumber:  true,
		RequireSpecial: false,
	}
}

// Password validation
func validatePasswordStrength(password string, policy PasswordPolicy) error {
	if len(password) < policy.MinLength {
		return fmt.Errorf("password must be at least %d characters long", policy.MinLength)
	}

	if policy.RequireUpper && !upperPattern.MatchString(password) {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}

	if policy.RequireLower && !lowerPattern.MatchString(password) {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}

	if policy.RequireNumber && !numberPattern.MatchString(password) {
		return fmt.Errorf("password must contain at least one number")
	}

	if policy.RequireSpecial && !specialPattern.MatchString(password) {
		return fmt.Errorf("password must contain at least one special character")
	}

	return nil
}

// newValidator reports fields by their JSON names
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// validateStruct runs the validator and converts its result into a
// *ValidationError.
func validateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("failed to validate request: %w", err)
	}

	fields := make(map[string]string, len(validationErrors))
	for _, fieldError := range validationErrors {
		if _, seen := fields[fieldError.Field()]; !seen {
			fields[fieldError.Field()] = fieldErrorMessage(fieldError)
		}
	}

	return &ValidationError{
		Fields:  fields,
		Message: formatValidationErrors(validationErrors),
	}
}

// passwordError wraps a password policy failure for field
func passwordError(field string, err error) *ValidationError {
	return &ValidationError{
		Fields:  map[string]string{field: err.Error()},
		Message: err.Error(),
	}
}

// Helper function to format validation errors
func formatValidationErrors(validationErrors validator.ValidationErrors) string {
	var errorMessages []string
	for _, fieldError := range validationErrors {
		errorMessages = append(errorMessages, fieldErrorMessage(fieldError))
	}
	return strings.Join(errorMessages, "; ")
}

func fieldErrorMessage(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldError.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fieldError.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", fieldError.Field(), fieldError.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", fieldError.Field(), fieldError.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters long", fieldError.Field(), fieldError.Param())
	case "numeric":
		return fmt.Sprintf("%s must contain only digits", fieldError.Field())
	case "eqfield":
		return fmt.Sprintf("%s must match %s", fieldError.Field(), lowerFirst(fieldError.Param()))
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fieldError.Field(), fieldError.Param())
	default:
		return fmt.Sprintf("%s is invalid", fieldError.Field())
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
