package auth

import (
	"fmt"
	"unicode"
)

// Policy is the password complexity policy applied at registration.
// Check reports every violated rule so clients can fix them all at once.
type Policy struct {
	MinLength     int
	MaxLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPolicy mirrors the signup requirements: 8+ characters with at least
// one uppercase letter, lowercase letter, digit and symbol. The upper bound
// stays within bcrypt's 72-byte input limit.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:     8,
		MaxLength:     72,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
	}
}

func (p Policy) Check(secret string) []FieldError {
	var violations []FieldError

	add := func(code, message string) {
		violations = append(violations, FieldError{Field: "password", Code: code, Message: message})
	}

	if len(secret) < p.MinLength {
		add("min_length", fmt.Sprintf("password must be at least %d characters", p.MinLength))
	}
	if p.MaxLength > 0 && len(secret) > p.MaxLength {
		add("max_length", fmt.Sprintf("password must be at most %d characters", p.MaxLength))
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range secret {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsSymbol(r) || unicode.IsPunct(r):
			hasSymbol = true
		}
	}

	if p.RequireUpper && !hasUpper {
		add("require_upper", "password must contain at least one uppercase letter")
	}
	if p.RequireLower && !hasLower {
		add("require_lower", "password must contain at least one lowercase letter")
	}
	if p.RequireDigit && !hasDigit {
		add("require_digit", "password must contain at least one number")
	}
	if p.RequireSymbol && !hasSymbol {
		add("require_symbol", "password must contain at least one special character")
	}

	return violations
}
