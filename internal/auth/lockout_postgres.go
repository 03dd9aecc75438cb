package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresTracker persists lockout state in the auth_login_attempts table so
// that multiple instances sharing one database enforce a single lockout.
// The window is tracked as a counter plus its last-update time: a row whose
// updated_at fell out of the window restarts the count.
type PostgresTracker struct {
	db           *sql.DB
	threshold    int
	window       time.Duration
	lockDuration time.Duration
	now          func() time.Time
}

func NewPostgresTracker(db *sql.DB, threshold int, window, lockDuration time.Duration) *PostgresTracker {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if window <= 0 {
		window = DefaultLockoutWindow
	}
	if lockDuration <= 0 {
		lockDuration = DefaultLockoutDuration
	}

	return &PostgresTracker{
		db:           db,
		threshold:    threshold,
		window:       window,
		lockDuration: lockDuration,
		now:          time.Now,
	}
}

func (t *PostgresTracker) IsLocked(ctx context.Context, identity string) (bool, time.Time, error) {
	var lockedUntil sql.NullTime
	err := t.db.QueryRowContext(ctx, `
		SELECT locked_until
		FROM auth_login_attempts
		WHERE email = $1
	`, identity).Scan(&lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, fmt.Errorf("query lockout state: %w", err)
	}

	if lockedUntil.Valid && t.now().UTC().Before(lockedUntil.Time) {
		return true, lockedUntil.Time.UTC(), nil
	}

	return false, time.Time{}, nil
}

func (t *PostgresTracker) RecordFailure(ctx context.Context, identity string) (*time.Time, error) {
	now := t.now().UTC()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin lockout tx: %w", err)
	}
	defer tx.Rollback()

	var failed int
	var lockedUntil sql.NullTime
	var updatedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT failed_attempts, locked_until, updated_at
		FROM auth_login_attempts
		WHERE email = $1
		FOR UPDATE
	`, identity).Scan(&failed, &lockedUntil, &updatedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lock attempt row: %w", err)
	}

	if lockedUntil.Valid && now.Before(lockedUntil.Time) {
		until := lockedUntil.Time.UTC()
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit lockout tx: %w", err)
		}
		return &until, nil
	}

	// Restart the count when the last failure fell out of the window.
	if !updatedAt.Valid || !updatedAt.Time.After(now.Add(-t.window)) {
		failed = 0
	}

	failed++
	var nextLock *time.Time
	var nextLockValue any
	if failed >= t.threshold {
		until := now.Add(t.lockDuration)
		nextLock = &until
		nextLockValue = until
		failed = 0
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO auth_login_attempts (email, failed_attempts, locked_until, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email)
		DO UPDATE SET
			failed_attempts = EXCLUDED.failed_attempts,
			locked_until = EXCLUDED.locked_until,
			updated_at = EXCLUDED.updated_at
	`, identity, failed, nextLockValue, now)
	if err != nil {
		return nil, fmt.Errorf("upsert failed attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lockout tx: %w", err)
	}

	return nextLock, nil
}

func (t *PostgresTracker) Clear(ctx context.Context, identity string) error {
	_, err := t.db.ExecContext(ctx, `
		DELETE FROM auth_login_attempts
		WHERE email = $1
	`, identity)
	if err != nil {
		return fmt.Errorf("clear failed attempts: %w", err)
	}

	return nil
}

// CleanupStale deletes attempt rows that are old and not under an active
// lock, in batches. Expired locks are already treated as absent, so this is
// housekeeping only.
func (t *PostgresTracker) CleanupStale(ctx context.Context, retention time.Duration, batchSize int) (int64, error) {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	cutoff := t.now().UTC().Add(-retention)

	res, err := t.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT email
			FROM auth_login_attempts
			WHERE updated_at < $1
			  AND (locked_until IS NULL OR locked_until < NOW())
			ORDER BY updated_at ASC
			LIMIT $2
		)
		DELETE FROM auth_login_attempts a
		USING stale
		WHERE a.email = stale.email
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale attempts: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale attempts rows affected: %w", err)
	}

	return affected, nil
}
