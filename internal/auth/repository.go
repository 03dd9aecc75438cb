package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Store is the credential store the service reads and writes. It owns the
// users table; lockout counters live with the Tracker.
type Store interface {
	GetByEmail(ctx context.Context, email string) (User, error)
	Create(ctx context.Context, user User) error
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
}

const uniqueViolation = "23505"

// Repository implements Store over Postgres via the pgx stdlib driver.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (User, error) {
	var user User
	var lastLogin sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, last_login_at, is_active
		FROM users
		WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &lastLogin, &user.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user by email: %w", err)
	}
	if lastLogin.Valid {
		value := lastLogin.Time.UTC()
		user.LastLoginAt = &value
	}

	return user, nil
}

func (r *Repository) Create(ctx context.Context, user User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at, is_active)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Email, user.PasswordHash, user.CreatedAt, user.IsActive)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (r *Repository) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET last_login_at = $2
		WHERE id = $1
	`, userID, at.UTC())
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}

	return nil
}
