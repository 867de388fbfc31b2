// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StudyShare Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/studyshare/studyshare/pkg/errutil"
)

// Login outcome labels reported to the metrics sink.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeLocked             = "locked"
	OutcomeInactive           = "inactive"
	OutcomeError              = "error"
)

// MetricsSink receives authentication events. Implementations must be
// safe for concurrent use. A nil sink disables recording.
type MetricsSink interface {
	// RecordLogin counts a login attempt by outcome label.
	RecordLogin(outcome string)

	// RecordLockout counts a lockout being triggered.
	RecordLockout()
}

// LoginResult is the successful outcome of a login: the public account
// view plus a fresh access/refresh token pair. The password hash is
// never part of this.
type LoginResult struct {
	Account      AccountView
	AccessToken  string
	RefreshToken string
}

// Service orchestrates credential verification, lockout bookkeeping and
// token issuance. It is the only component that mutates account rows.
type Service struct {
	accounts AccountRepository
	hasher   PasswordHasher
	policy   LockoutPolicy
	tokens   *TokenManager
	logger   *slog.Logger
	metrics  MetricsSink
	now      func() time.Time
}

// dummyPasswordHash is verified against when a login targets an unknown
// email, so response time does not reveal whether the account exists.
// It is a fake hash, not a credential; a password matching it is still
// rejected because the account lookup already failed.
//
//nolint:gosec // G101: intentionally fake hash for timing consistency.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// NewService creates a Service with the default logger.
func NewService(accounts AccountRepository, hasher PasswordHasher, policy LockoutPolicy, tokens *TokenManager) (*Service, error) {
	return NewServiceWithLogger(accounts, hasher, policy, tokens, slog.Default())
}

// NewServiceWithLogger creates a Service with an explicit logger.
func NewServiceWithLogger(accounts AccountRepository, hasher PasswordHasher, policy LockoutPolicy, tokens *TokenManager, logger *slog.Logger) (*Service, error) {
	if accounts == nil {
		return nil, oops.Errorf("accounts repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token manager is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Service{
		accounts: accounts,
		hasher:   hasher,
		policy:   policy,
		tokens:   tokens,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// WithMetrics attaches a metrics sink and returns the service.
func (s *Service) WithMetrics(m MetricsSink) *Service {
	s.metrics = m
	return s
}

// WithTimeFunc overrides the clock. Intended for tests.
func (s *Service) WithTimeFunc(f func() time.Time) *Service {
	s.now = f
	return s
}

// Login verifies credentials and, on success, returns the public
// account view with a fresh access/refresh token pair.
//
// Unknown email and wrong password both yield CodeInvalidCredentials;
// the caller cannot distinguish them. A locked account yields
// CodeAccountLocked before any password is attempted. Valid credentials
// against a non-active account yield CodeAccountInactive without
// touching the failure counters.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = NormalizeEmail(email)
	now := s.now()

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Burn a hash comparison anyway so unknown emails cost the
			// same as wrong passwords.
			_, _ = s.hasher.Verify(password, dummyPasswordHash) //nolint:errcheck // result is irrelevant
			s.recordLogin(OutcomeInvalidCredentials)
			return nil, oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
		}
		s.recordLogin(OutcomeError)
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}

	decision := s.policy.Evaluate(account, now)
	if decision.Locked {
		s.recordLogin(OutcomeLocked)
		return nil, oops.Code(CodeAccountLocked).
			With("locked_until", decision.Until).
			Errorf("account is temporarily locked")
	}
	if decision.ExpiredLock {
		// Lazy expiry: the stale lock resets the counters as part of
		// this attempt. The repository guards the reset so two racing
		// attempts cannot both clear and then double-count.
		if err := s.accounts.ClearExpiredLock(ctx, account.ID, now); err != nil {
			s.recordLogin(OutcomeError)
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "clear expired lock").
				Wrap(err)
		}
		account.FailedAttempts = 0
		account.LockedUntil = nil
	}

	valid, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		s.recordLogin(OutcomeError)
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(err)
	}
	if !valid {
		s.registerFailure(ctx, account, now)
		s.recordLogin(OutcomeInvalidCredentials)
		return nil, oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
	}

	if !account.IsActive() {
		// Correct password but the account cannot authenticate. No
		// failure bookkeeping for this case.
		s.recordLogin(OutcomeInactive)
		return nil, oops.Code(CodeAccountInactive).
			With("status", string(account.Status)).
			Errorf("account is not active")
	}

	if err := s.accounts.RecordSuccess(ctx, account.ID, now); err != nil {
		s.recordLogin(OutcomeError)
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "record success").
			Wrap(err)
	}
	account.FailedAttempts = 0
	account.LockedUntil = nil
	loginAt := now
	account.LastLoginAt = &loginAt

	accessToken, err := s.tokens.IssueAccessToken(account)
	if err != nil {
		s.recordLogin(OutcomeError)
		return nil, err
	}
	refreshToken, err := s.tokens.IssueRefreshToken(account)
	if err != nil {
		s.recordLogin(OutcomeError)
		return nil, err
	}

	s.logger.Info("login succeeded", "account_id", account.ID.String())
	s.recordLogin(OutcomeSuccess)

	return &LoginResult{
		Account:      account.View(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// registerFailure applies the atomic failure increment for a wrong
// password. Counters only move for unlocked, active accounts; the
// repository enforces that with a guarded single statement. Bookkeeping
// errors are logged, not surfaced: the caller still gets
// CodeInvalidCredentials.
func (s *Service) registerFailure(ctx context.Context, account *Account, now time.Time) {
	if !account.IsActive() {
		return
	}
	attempts, lockedUntil, applied, err := s.accounts.RecordFailure(ctx, account.ID, s.policy.Threshold, s.policy.LockUntil(now))
	if err != nil {
		errutil.LogError(s.logger, "failed to record login failure", err)
		return
	}
	if !applied {
		return
	}
	if lockedUntil != nil {
		s.logger.Warn("account locked after repeated failures",
			"account_id", account.ID.String(),
			"failed_attempts", attempts,
			"locked_until", *lockedUntil)
		if s.metrics != nil {
			s.metrics.RecordLockout()
		}
		return
	}
	s.logger.Info("login failure recorded",
		"account_id", account.ID.String(),
		"failed_attempts", attempts)
}

// Refresh verifies a refresh token and mints a new access token. The
// refresh token itself is not rotated; it stays valid until expiry.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.Verify(refreshToken, PurposeRefresh)
	if err != nil {
		return "", err
	}
	id, err := claims.ParseAccountID()
	if err != nil {
		return "", err
	}

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code(CodeAccountNotFound).
				With("account_id", id.String()).
				Errorf("account no longer exists")
		}
		return "", oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "get account by id").
			Wrap(err)
	}
	if !account.IsActive() {
		return "", oops.Code(CodeAccountInactive).
			With("status", string(account.Status)).
			Errorf("account is not active")
	}

	return s.tokens.IssueAccessToken(account)
}

// Logout stamps last_logout_at for the account. Because tokens are
// stateless this invalidates nothing; outstanding tokens remain usable
// until they expire. That is a documented contract limitation.
func (s *Service) Logout(ctx context.Context, accountID ulid.ULID) error {
	if err := s.accounts.RecordLogout(ctx, accountID, s.now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeAccountNotFound).
				With("account_id", accountID.String()).
				Wrap(err)
		}
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "record logout").
			Wrap(err)
	}
	s.logger.Info("logout recorded", "account_id", accountID.String())
	return nil
}

// Register creates a new account in pending_verification with the user
// role. A duplicate email yields CodeEmailTaken.
func (s *Service) Register(ctx context.Context, email, password string) (AccountView, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return AccountView{}, err
	}
	account, err := NewAccount(email, hash, RoleUser, StatusPendingVerification)
	if err != nil {
		return AccountView{}, err
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return AccountView{}, oops.Code(CodeEmailTaken).
				With("email", account.Email).
				Errorf("email is already registered")
		}
		return AccountView{}, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create account").
			Wrap(err)
	}
	s.logger.Info("account registered", "account_id", account.ID.String())
	return account.View(), nil
}

// VerifyEmail stamps email_verified_at and promotes the account out of
// pending_verification.
func (s *Service) VerifyEmail(ctx context.Context, accountID ulid.ULID) error {
	if err := s.accounts.MarkEmailVerified(ctx, accountID, s.now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeAccountNotFound).
				With("account_id", accountID.String()).
				Wrap(err)
		}
		return oops.Code("AUTH_VERIFY_EMAIL_FAILED").
			With("operation", "mark email verified").
			Wrap(err)
	}
	return nil
}

// ChangePassword rehashes after verifying the current password. Wrong
// current password yields CodeInvalidCredentials without lockout
// bookkeeping; the caller already holds a valid session.
func (s *Service) ChangePassword(ctx context.Context, accountID ulid.ULID, current, next string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeAccountNotFound).
				With("account_id", accountID.String()).
				Wrap(err)
		}
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "get account by id").
			Wrap(err)
	}

	valid, err := s.hasher.Verify(current, account.PasswordHash)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "verify current password").
			Wrap(err)
	}
	if !valid {
		return oops.Code(CodeInvalidCredentials).Errorf("current password is incorrect")
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, accountID, hash); err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "update password").
			Wrap(err)
	}
	s.logger.Info("password changed", "account_id", accountID.String())
	return nil
}

func (s *Service) recordLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordLogin(outcome)
	}
}
