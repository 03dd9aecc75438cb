package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type fakeStore struct {
	mu    sync.Mutex
	users map[string]User
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]User)}
}

func (s *fakeStore) GetByEmail(ctx context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (s *fakeStore) Create(ctx context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.Email]; exists {
		return ErrEmailTaken
	}
	s.users[user.Email] = user
	return nil
}

func (s *fakeStore) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for email, user := range s.users {
		if user.ID == userID {
			value := at.UTC()
			user.LastLoginAt = &value
			s.users[email] = user
			return nil
		}
	}
	return ErrUserNotFound
}

func newTestService(clock *fakeClock) (*Service, *fakeStore) {
	store := newFakeStore()
	tracker := NewMemoryTracker(5, 15*time.Minute, 15*time.Minute)
	tracker.now = clock.Now
	issuer := NewTokenIssuer(testSigningKey, 24*time.Hour)
	issuer.now = clock.Now

	service := NewService(store, NewHasher(bcrypt.MinCost), DefaultPolicy(), tracker, issuer)
	service.now = clock.Now

	return service, store
}

func TestRegisterThenDuplicateConflicts(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(newFakeClock())

	tokens, err := service.Register(ctx, "a@x.com", "Abc12345!")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if tokens.AccessToken == "" || tokens.User.Email != "a@x.com" {
		t.Fatalf("unexpected response: %+v", tokens)
	}

	_, err = service.Register(ctx, "a@x.com", "Abc12345!")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate register error = %v, want ErrEmailTaken", err)
	}
}

func TestRegisterNormalizesEmail(t *testing.T) {
	ctx := context.Background()
	service, store := newTestService(newFakeClock())

	if _, err := service.Register(ctx, "  A@X.com ", "Abc12345!"); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.users["a@x.com"]; !ok {
		t.Fatal("email was not normalized to lowercase")
	}

	if _, err := service.Authenticate(ctx, "A@X.COM", "Abc12345!"); err != nil {
		t.Fatalf("authenticate with differently-cased email: %v", err)
	}
}

func TestRegisterCollectsAllValidationErrors(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(newFakeClock())

	_, err := service.Register(ctx, "not-an-email", "short")
	var validationErr ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}

	fields := make(map[string]bool)
	for _, field := range validationErr.Fields {
		fields[field.Field] = true
	}
	if !fields["email"] || !fields["password"] {
		t.Fatalf("expected both email and password violations, got %+v", validationErr.Fields)
	}
	if len(validationErr.Fields) < 3 {
		t.Fatalf("expected every violated rule to be listed, got %+v", validationErr.Fields)
	}
}

func TestRegisterNeverStoresPlaintext(t *testing.T) {
	ctx := context.Background()
	service, store := newTestService(newFakeClock())

	if _, err := service.Register(ctx, "a@x.com", "Abc12345!"); err != nil {
		t.Fatal(err)
	}

	user := store.users["a@x.com"]
	if user.PasswordHash == "Abc12345!" {
		t.Fatal("plaintext password stored")
	}
	if user.PasswordHash == "" {
		t.Fatal("password hash missing")
	}
}

func TestAuthenticateUniformFailure(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(newFakeClock())

	if _, err := service.Register(ctx, "a@x.com", "Abc12345!"); err != nil {
		t.Fatal(err)
	}

	_, unknownErr := service.Authenticate(ctx, "nobody@x.com", "Abc12345!")
	_, wrongErr := service.Authenticate(ctx, "a@x.com", "Wrong12345!")

	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("errors = %v / %v, want ErrInvalidCredentials for both", unknownErr, wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("unknown-identity and wrong-password errors differ: %q vs %q", unknownErr, wrongErr)
	}
}

func TestAuthenticateLockoutScenario(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	service, _ := newTestService(clock)

	if _, err := service.Register(ctx, "a@x.com", "Abc12345!"); err != nil {
		t.Fatal(err)
	}

	// Four wrong passwords: still plain credential failures.
	for i := 0; i < 4; i++ {
		_, err := service.Authenticate(ctx, "a@x.com", "Wrong12345!")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d error = %v, want ErrInvalidCredentials", i+1, err)
		}
	}

	// The fifth failure trips the lock and reports it.
	_, err := service.Authenticate(ctx, "a@x.com", "Wrong12345!")
	var lockedErr LockedError
	if !errors.As(err, &lockedErr) {
		t.Fatalf("fifth attempt error = %v, want LockedError", err)
	}
	if !lockedErr.Until.After(clock.Now()) {
		t.Fatalf("lock expiry %v not in the future", lockedErr.Until)
	}

	// The correct password during lockout is still rejected.
	_, err = service.Authenticate(ctx, "a@x.com", "Abc12345!")
	if !errors.As(err, &lockedErr) {
		t.Fatalf("correct password during lockout error = %v, want LockedError", err)
	}

	// After the lock expires the correct password works again.
	clock.Advance(16 * time.Minute)
	if _, err := service.Authenticate(ctx, "a@x.com", "Abc12345!"); err != nil {
		t.Fatalf("authenticate after lock expiry: %v", err)
	}
}

func TestUnknownIdentityFailuresAreTracked(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(newFakeClock())

	for i := 0; i < 4; i++ {
		_, err := service.Authenticate(ctx, "ghost@x.com", "Wrong12345!")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d error = %v", i+1, err)
		}
	}

	_, err := service.Authenticate(ctx, "ghost@x.com", "Wrong12345!")
	var lockedErr LockedError
	if !errors.As(err, &lockedErr) {
		t.Fatalf("nonexistent identity never locks: %v", err)
	}
}

func TestSuccessClearsFailureCount(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(newFakeClock())

	if _, err := service.Register(ctx, "a@x.com", "Abc12345!"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 4; i++ {
		if _, err := service.Authenticate(ctx, "a@x.com", "Wrong12345!"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatal(err)
		}
	}

	if _, err := service.Authenticate(ctx, "a@x.com", "Abc12345!"); err != nil {
		t.Fatalf("authenticate before lock: %v", err)
	}

	// The success reset the count, so one more failure does not re-lock.
	_, err := service.Authenticate(ctx, "a@x.com", "Wrong12345!")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("single failure after success error = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticateUpdatesLastLogin(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	service, store := newTestService(clock)

	if _, err := service.Register(ctx, "a@x.com", "Abc12345!"); err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Hour)
	tokens, err := service.Authenticate(ctx, "a@x.com", "Abc12345!")
	if err != nil {
		t.Fatal(err)
	}

	stored := store.users["a@x.com"]
	if stored.LastLoginAt == nil || !stored.LastLoginAt.Equal(clock.Now().UTC()) {
		t.Fatalf("last login not recorded: %+v", stored.LastLoginAt)
	}
	if tokens.User.LastLoginAt == nil {
		t.Fatal("response missing last login")
	}
}

func TestAuthorizeRoundTrip(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(newFakeClock())

	tokens, err := service.Register(ctx, "a@x.com", "Abc12345!")
	if err != nil {
		t.Fatal(err)
	}

	claims, err := service.Authorize(tokens.AccessToken)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if claims.Email != "a@x.com" || claims.UserID != tokens.User.ID {
		t.Fatalf("claims = %+v, want the registered identity", claims)
	}

	if _, err := service.Authorize("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Authorize(garbage) = %v, want ErrInvalidToken", err)
	}
}

func TestInactiveUserCannotAuthenticate(t *testing.T) {
	ctx := context.Background()
	service, store := newTestService(newFakeClock())

	if _, err := service.Register(ctx, "a@x.com", "Abc12345!"); err != nil {
		t.Fatal(err)
	}

	user := store.users["a@x.com"]
	user.IsActive = false
	store.users["a@x.com"] = user

	_, err := service.Authenticate(ctx, "a@x.com", "Abc12345!")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("inactive user error = %v, want ErrInvalidCredentials", err)
	}
}
