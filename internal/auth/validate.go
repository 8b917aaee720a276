package auth

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// ValidationError is a form-level rejection. Field names the offending input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

const specialChars = `!@#$%^&*(),.?":{}|<>`

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	upperRe    = regexp.MustCompile(`[A-Z]`)
	lowerRe    = regexp.MustCompile(`[a-z]`)
	digitRe    = regexp.MustCompile(`[0-9]`)
)

func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	switch {
	case n < 3:
		return &ValidationError{Field: "username", Message: "Username must be at least 3 characters long"}
	case n > 30:
		return &ValidationError{Field: "username", Message: "Username cannot be longer than 30 characters"}
	case !usernameRe.MatchString(username):
		return &ValidationError{Field: "username", Message: "Username can only contain letters, numbers, underscores, and hyphens"}
	}
	return nil
}

// ValidatePassword checks the registration policy and reports the first rule
// that fails.
func ValidatePassword(password string) error {
	switch {
	case utf8.RuneCountInString(password) < 8:
		return &ValidationError{Field: "password", Message: "Password must be at least 8 characters long"}
	case !upperRe.MatchString(password):
		return &ValidationError{Field: "password", Message: "Password must contain at least one uppercase letter"}
	case !lowerRe.MatchString(password):
		return &ValidationError{Field: "password", Message: "Password must contain at least one lowercase letter"}
	case !digitRe.MatchString(password):
		return &ValidationError{Field: "password", Message: "Password must contain at least one number"}
	case !strings.ContainsAny(password, specialChars):
		return &ValidationError{Field: "password", Message: "Password must contain at least one special character"}
	}
	return nil
}
