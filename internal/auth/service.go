package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var emailRegex = regexp.MustCompile(`^[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}$`)

// Service composes the hasher, lockout tracker, token issuer and credential
// store into the register, authenticate and authorize operations. All shared
// mutable state lives behind the Tracker; the service itself is safe for
// concurrent use.
type Service struct {
	store   Store
	hasher  Hasher
	policy  Policy
	tracker Tracker
	tokens  *TokenIssuer
	now     func() time.Time
}

func NewService(store Store, hasher Hasher, policy Policy, tracker Tracker, tokens *TokenIssuer) *Service {
	return &Service{
		store:   store,
		hasher:  hasher,
		policy:  policy,
		tracker: tracker,
		tokens:  tokens,
		now:     time.Now,
	}
}

// NormalizeEmail trims and lowercases an identity so lookups, lockout keys
// and the unique constraint all agree.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account and signs the user in. The password is hashed
// before it ever reaches the store; the plaintext is never persisted.
func (s *Service) Register(ctx context.Context, email, password string) (TokenResponse, error) {
	email = NormalizeEmail(email)

	var violations []FieldError
	if !emailRegex.MatchString(email) {
		violations = append(violations, FieldError{
			Field:   "email",
			Code:    "invalid_format",
			Message: "email address is not valid",
		})
	}
	violations = append(violations, s.policy.Check(password)...)
	if len(violations) > 0 {
		return TokenResponse{}, ValidationError{Fields: violations}
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return TokenResponse{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return TokenResponse{}, fmt.Errorf("generate user id: %w", err)
	}

	user := User{
		ID:           id.String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
		IsActive:     true,
	}
	if err := s.store.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return TokenResponse{}, ErrEmailTaken
		}
		return TokenResponse{}, fmt.Errorf("create user: %w", err)
	}

	return s.issue(user)
}

// Authenticate verifies credentials behind the lockout gate. An unknown email
// and a wrong password take the same path: both record a failure against the
// identity and both surface ErrInvalidCredentials, so callers cannot
// enumerate accounts.
func (s *Service) Authenticate(ctx context.Context, email, password string) (TokenResponse, error) {
	email = NormalizeEmail(email)
	password = strings.TrimSpace(password)

	if email == "" || password == "" {
		return TokenResponse{}, ErrInvalidCredentials
	}

	locked, until, err := s.tracker.IsLocked(ctx, email)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("check lockout: %w", err)
	}
	if locked {
		return TokenResponse{}, LockedError{Until: until}
	}

	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenResponse{}, s.recordFailure(ctx, email)
		}
		return TokenResponse{}, fmt.Errorf("look up user: %w", err)
	}

	if !user.IsActive || !s.hasher.Verify(password, user.PasswordHash) {
		return TokenResponse{}, s.recordFailure(ctx, email)
	}

	if err := s.tracker.Clear(ctx, email); err != nil {
		return TokenResponse{}, fmt.Errorf("clear lockout: %w", err)
	}

	loginAt := s.now().UTC()
	if err := s.store.TouchLastLogin(ctx, user.ID, loginAt); err != nil {
		return TokenResponse{}, fmt.Errorf("record login time: %w", err)
	}
	user.LastLoginAt = &loginAt

	return s.issue(user)
}

// Authorize validates a bearer token and returns its identity claims. It is
// the guard in front of every protected request.
func (s *Service) Authorize(token string) (Claims, error) {
	return s.tokens.Verify(token)
}

// CurrentUser resolves verified claims back to the stored account.
func (s *Service) CurrentUser(ctx context.Context, claims Claims) (UserSummary, error) {
	user, err := s.store.GetByEmail(ctx, NormalizeEmail(claims.Email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return UserSummary{}, ErrUserNotFound
		}
		return UserSummary{}, fmt.Errorf("look up current user: %w", err)
	}
	if !user.IsActive {
		return UserSummary{}, ErrUserNotFound
	}

	return user.Summary(), nil
}

// recordFailure registers a failed attempt and reports either the lock that
// just tripped or the uniform credential error.
func (s *Service) recordFailure(ctx context.Context, email string) error {
	lockedUntil, err := s.tracker.RecordFailure(ctx, email)
	if err != nil {
		return fmt.Errorf("record failed attempt: %w", err)
	}
	if lockedUntil != nil {
		return LockedError{Until: *lockedUntil}
	}
	return ErrInvalidCredentials
}

func (s *Service) issue(user User) (TokenResponse, error) {
	token, expiresIn, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
		User:        user.Summary(),
	}, nil
}
