package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidCredentials covers every authentication failure cause.
	// Callers must not be able to tell an unknown email from a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailTaken is returned by Register when the email already has an account.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidToken covers missing, malformed, forged and expired tokens alike.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrUserNotFound is returned by the credential store for unknown identities.
	ErrUserNotFound = errors.New("user not found")
)

// LockedError signals that the identity is locked out until the given time.
type LockedError struct {
	Until time.Time
}

func (e LockedError) Error() string {
	return "account temporarily locked"
}

// RetryAfter reports the remaining lockout duration, never below one second.
func (e LockedError) RetryAfter(now time.Time) time.Duration {
	remaining := e.Until.Sub(now)
	if remaining < time.Second {
		remaining = time.Second
	}
	return remaining
}

// FieldError describes a single violated validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError carries every violated rule, not just the first one.
type ValidationError struct {
	Fields []FieldError
}

func (e ValidationError) Error() string {
	messages := make([]string, 0, len(e.Fields))
	for _, field := range e.Fields {
		messages = append(messages, fmt.Sprintf("%s: %s", field.Field, field.Message))
	}
	return "validation failed: " + strings.Join(messages, "; ")
}
