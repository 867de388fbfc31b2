// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StudyShare Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is the closed set of authorization roles.
type Role string

// Account roles.
const (
	RoleUser    Role = "user"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// Status is the closed set of account lifecycle states. Only active
// accounts may authenticate.
type Status string

// Account statuses.
const (
	StatusPendingVerification Status = "pending_verification"
	StatusActive              Status = "active"
	StatusInactive            Status = "inactive"
	StatusSuspended           Status = "suspended"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingVerification, StatusActive, StatusInactive, StatusSuspended:
		return true
	}
	return false
}

// emailRegex is deliberately loose; it rejects obvious garbage and
// leaves real validation to the verification email.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// MaxEmailLength bounds stored emails.
const MaxEmailLength = 254

// Account represents a durable credential record.
type Account struct {
	ID              ulid.ULID
	Email           string
	PasswordHash    string
	Role            Role
	Status          Status
	FailedAttempts  int
	LockedUntil     *time.Time
	LastLoginAt     *time.Time
	LastLogoutAt    *time.Time
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AccountView is the public projection of an Account. It is what login
// returns to callers and never includes the password hash.
type AccountView struct {
	ID            ulid.ULID  `json:"id"`
	Email         string     `json:"email"`
	Role          Role       `json:"role"`
	Status        Status     `json:"status"`
	EmailVerified bool       `json:"email_verified"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
}

// NormalizeEmail lowercases and trims an email address. All lookups and
// writes go through this so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail validates an already-normalized email address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("AUTH_INVALID_EMAIL").
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	if !emailRegex.MatchString(email) {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email is not a valid address")
	}
	return nil
}

// NewAccount creates a validated Account with a fresh ULID. The email
// is normalized, the role defaults to user and the status to
// pending_verification when left empty. The password hash must already
// be computed; this package never stores plaintext, even transiently.
func NewAccount(email, passwordHash string, role Role, status Status) (*Account, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return nil, oops.Code("AUTH_INVALID_ROLE").With("role", string(role)).Errorf("unknown role")
	}
	if status == "" {
		status = StatusPendingVerification
	}
	if !status.Valid() {
		return nil, oops.Code("AUTH_INVALID_STATUS").With("status", string(status)).Errorf("unknown status")
	}

	now := time.Now().UTC()
	return &Account{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsActive reports whether the account may authenticate.
func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}

// IsLocked reports whether the lockout window is currently active.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// View returns the public projection of the account.
func (a *Account) View() AccountView {
	return AccountView{
		ID:            a.ID,
		Email:         a.Email,
		Role:          a.Role,
		Status:        a.Status,
		EmailVerified: a.EmailVerifiedAt != nil,
		LastLoginAt:   a.LastLoginAt,
	}
}

// AccountRepository manages account persistence.
//
// RecordFailure, RecordSuccess and ClearExpiredLock are the only
// mutation paths for the lockout counters and must be implemented as
// single atomic statements: two concurrent failed logins may never both
// observe failed_attempts = N and write N+1.
type AccountRepository interface {
	// Create stores a new account. Returns ErrEmailTaken (wrapped) when
	// the email is already registered.
	Create(ctx context.Context, account *Account) error

	// GetByEmail retrieves an account by normalized email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// RecordFailure atomically increments failed_attempts and, when the
	// incremented value reaches threshold, sets locked_until to lockUntil.
	// The increment applies only while the account is active and not
	// already locked; otherwise the call is a no-op and applied=false.
	RecordFailure(ctx context.Context, id ulid.ULID, threshold int, lockUntil time.Time) (attempts int, lockedUntil *time.Time, applied bool, err error)

	// RecordSuccess atomically resets the lockout counters and stamps
	// last_login_at.
	RecordSuccess(ctx context.Context, id ulid.ULID, loginAt time.Time) error

	// ClearExpiredLock atomically resets failed_attempts and
	// locked_until, but only while the lock is actually expired. Safe to
	// race: at most one of two concurrent callers mutates the row.
	ClearExpiredLock(ctx context.Context, id ulid.ULID, now time.Time) error

	// UpdatePassword replaces the password hash. Lockout bookkeeping is
	// deliberately untouched.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// UpdateStatus transitions the account lifecycle state.
	UpdateStatus(ctx context.Context, id ulid.ULID, status Status) error

	// MarkEmailVerified stamps email_verified_at and promotes a
	// pending_verification account to active.
	MarkEmailVerified(ctx context.Context, id ulid.ULID, verifiedAt time.Time) error

	// RecordLogout stamps last_logout_at. Bookkeeping only; stateless
	// tokens remain valid until expiry.
	RecordLogout(ctx context.Context, id ulid.ULID, logoutAt time.Time) error
}
