// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StudyShare Contributors

// Package postgres implements auth repositories on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/studyshare/studyshare/internal/auth"
)

// dbPool is the subset of pgxpool.Pool the repository needs. pgxmock's
// pool interface satisfies it, so the repository is unit-testable
// without a database.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AccountRepository implements auth.AccountRepository using PostgreSQL.
// The lockout counter mutations are single guarded statements, so
// concurrent attempts against the same account cannot undercount
// failures or double-clear an expired lock.
type AccountRepository struct {
	pool dbPool
}

// NewAccountRepository creates an AccountRepository.
func NewAccountRepository(pool dbPool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

const accountColumns = `id, email, password_hash, role, status,
		       failed_attempts, locked_until, last_login_at, last_logout_at,
		       email_verified_at, created_at, updated_at`

// Create stores a new account. A duplicate email surfaces as
// auth.ErrEmailTaken (wrapped).
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (
			id, email, password_hash, role, status,
			failed_attempts, locked_until, last_login_at, last_logout_at,
			email_verified_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		account.ID.String(),
		account.Email,
		account.PasswordHash,
		string(account.Role),
		string(account.Status),
		account.FailedAttempts,
		account.LockedUntil,
		account.LastLoginAt,
		account.LastLogoutAt,
		account.EmailVerifiedAt,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("ACCOUNT_EMAIL_TAKEN").
				With("email", account.Email).
				Wrap(auth.ErrEmailTaken)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			Wrap(err)
	}
	return nil
}

// GetByEmail retrieves an account by email (case-insensitive).
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = LOWER($1)
	`, email)

	account, err := r.scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_EMAIL_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}
	return account, nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id.String())

	account, err := r.scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ID_FAILED").
			With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// RecordFailure applies the failure increment as one atomic statement.
// The guard restricts the increment to active, currently-unlocked
// accounts; when the incremented counter reaches threshold the same
// statement sets locked_until. Returns applied=false when the guard
// filtered the row out (account missing, inactive, or already locked).
func (r *AccountRepository) RecordFailure(ctx context.Context, id ulid.ULID, threshold int, lockUntil time.Time) (int, *time.Time, bool, error) {
	var attempts int
	var lockedUntil *time.Time
	err := r.pool.QueryRow(ctx, `
		UPDATE accounts
		SET failed_attempts = failed_attempts + 1,
		    locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'active'
		  AND (locked_until IS NULL OR locked_until <= now())
		RETURNING failed_attempts, locked_until
	`, id.String(), threshold, lockUntil).Scan(&attempts, &lockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, oops.Code("ACCOUNT_RECORD_FAILURE_FAILED").
			With("operation", "increment failed attempts").
			With("id", id.String()).
			Wrap(err)
	}
	return attempts, lockedUntil, true, nil
}

// RecordSuccess resets the lockout counters and stamps last_login_at in
// one statement.
func (r *AccountRepository) RecordSuccess(ctx context.Context, id ulid.ULID, loginAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET failed_attempts = 0, locked_until = NULL, last_login_at = $2, updated_at = $2
		WHERE id = $1
	`, id.String(), loginAt)
	if err != nil {
		return oops.Code("ACCOUNT_RECORD_SUCCESS_FAILED").
			With("operation", "record login success").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// ClearExpiredLock resets the counters only while the lock is actually
// expired. Two racing attempts cannot both observe the stale lock and
// reset it after a new one was placed.
func (r *AccountRepository) ClearExpiredLock(ctx context.Context, id ulid.ULID, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET failed_attempts = 0, locked_until = NULL, updated_at = $2
		WHERE id = $1
		  AND locked_until IS NOT NULL
		  AND locked_until <= $2
	`, id.String(), now)
	if err != nil {
		return oops.Code("ACCOUNT_CLEAR_LOCK_FAILED").
			With("operation", "clear expired lock").
			With("id", id.String()).
			Wrap(err)
	}
	// Zero rows affected means another attempt already cleared it, or a
	// fresh lock was placed meanwhile. Both are fine.
	return nil
}

// UpdatePassword replaces only the password hash. Lockout counters are
// left alone on purpose.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`, id.String(), passwordHash)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdateStatus transitions the account lifecycle state.
func (r *AccountRepository) UpdateStatus(ctx context.Context, id ulid.ULID, status auth.Status) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts SET status = $2, updated_at = now()
		WHERE id = $1
	`, id.String(), string(status))
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_STATUS_FAILED").
			With("operation", "update status").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// MarkEmailVerified stamps email_verified_at and promotes a pending
// account to active in one statement.
func (r *AccountRepository) MarkEmailVerified(ctx context.Context, id ulid.ULID, verifiedAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET email_verified_at = $2,
		    status = CASE WHEN status = 'pending_verification' THEN 'active' ELSE status END,
		    updated_at = $2
		WHERE id = $1
	`, id.String(), verifiedAt)
	if err != nil {
		return oops.Code("ACCOUNT_VERIFY_EMAIL_FAILED").
			With("operation", "mark email verified").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// RecordLogout stamps last_logout_at.
func (r *AccountRepository) RecordLogout(ctx context.Context, id ulid.ULID, logoutAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts SET last_logout_at = $2, updated_at = $2
		WHERE id = $1
	`, id.String(), logoutAt)
	if err != nil {
		return oops.Code("ACCOUNT_RECORD_LOGOUT_FAILED").
			With("operation", "record logout").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanAccount scans a single row into an Account. Callers handle
// pgx.ErrNoRows themselves.
func (r *AccountRepository) scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		idStr           string
		email           string
		passwordHash    string
		role            string
		status          string
		failedAttempts  int
		lockedUntil     *time.Time
		lastLoginAt     *time.Time
		lastLogoutAt    *time.Time
		emailVerifiedAt *time.Time
		createdAt       time.Time
		updatedAt       time.Time
	)

	err := row.Scan(
		&idStr,
		&email,
		&passwordHash,
		&role,
		&status,
		&failedAttempts,
		&lockedUntil,
		&lastLoginAt,
		&lastLogoutAt,
		&emailVerifiedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").
			With("operation", "scan account").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").
			With("operation", "parse account id").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.Account{
		ID:              id,
		Email:           email,
		PasswordHash:    passwordHash,
		Role:            auth.Role(role),
		Status:          auth.Status(status),
		FailedAttempts:  failedAttempts,
		LockedUntil:     lockedUntil,
		LastLoginAt:     lastLoginAt,
		LastLogoutAt:    lastLogoutAt,
		EmailVerifiedAt: emailVerifiedAt,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)
