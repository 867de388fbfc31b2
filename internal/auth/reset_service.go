// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StudyShare Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/studyshare/studyshare/pkg/errutil"
)

// ResetLinkDeliverer sends a password-reset token to an account's email
// out of band. Delivery is fire-and-forget from the caller's view:
// failures must never leak into the forgot-password response.
type ResetLinkDeliverer interface {
	DeliverResetLink(ctx context.Context, email, token string) error
}

// PasswordResetService handles the forgot-password and reset-password
// flows. Reset tokens are stateless JWTs: nothing is stored server
// side, and a token stays technically valid until its expiry even
// after use. That mirrors the "no token table" design; callers needing
// single-use semantics must add a deny-list.
type PasswordResetService struct {
	accounts  AccountRepository
	hasher    PasswordHasher
	tokens    *TokenManager
	deliverer ResetLinkDeliverer
	logger    *slog.Logger
}

// NewPasswordResetService creates a PasswordResetService with the
// default logger.
func NewPasswordResetService(accounts AccountRepository, hasher PasswordHasher, tokens *TokenManager, deliverer ResetLinkDeliverer) (*PasswordResetService, error) {
	return NewPasswordResetServiceWithLogger(accounts, hasher, tokens, deliverer, slog.Default())
}

// NewPasswordResetServiceWithLogger creates a PasswordResetService with
// an explicit logger.
func NewPasswordResetServiceWithLogger(accounts AccountRepository, hasher PasswordHasher, tokens *TokenManager, deliverer ResetLinkDeliverer, logger *slog.Logger) (*PasswordResetService, error) {
	if accounts == nil {
		return nil, oops.Errorf("accounts repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token manager is required")
	}
	if deliverer == nil {
		return nil, oops.Errorf("reset link deliverer is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &PasswordResetService{
		accounts:  accounts,
		hasher:    hasher,
		tokens:    tokens,
		deliverer: deliverer,
		logger:    logger,
	}, nil
}

// ForgotPassword issues a reset token for the account behind email, if
// one exists, and hands it to the deliverer. The response is identical
// whether or not the email is registered, so callers cannot enumerate
// accounts. Delivery failures are logged and swallowed for the same
// reason. Only store outages surface as errors.
func (s *PasswordResetService) ForgotPassword(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Same outcome as the found case. Nothing else happens.
			s.logger.Debug("password reset requested for unknown email")
			return nil
		}
		return oops.Code("AUTH_RESET_REQUEST_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}

	token, err := s.tokens.IssuePasswordResetToken(account.ID)
	if err != nil {
		return err
	}

	if err := s.deliverer.DeliverResetLink(ctx, account.Email, token); err != nil {
		errutil.LogError(s.logger, "reset link delivery failed", err)
	}
	s.logger.Info("password reset requested", "account_id", account.ID.String())
	return nil
}

// ResetPassword verifies a reset token and replaces the account's
// password hash. Lockout counters are deliberately untouched: a reset
// does not implicitly unlock an account, that stays a separate,
// explicit operation.
func (s *PasswordResetService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return ErrEmptyPassword
	}

	claims, err := s.tokens.Verify(token, PurposePasswordReset)
	if err != nil {
		return err
	}
	accountID, err := claims.ParseAccountID()
	if err != nil {
		return err
	}

	// Confirm the account still exists before paying for the hash.
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeAccountNotFound).
				With("account_id", accountID.String()).
				Errorf("account no longer exists")
		}
		return oops.Code("AUTH_RESET_FAILED").
			With("operation", "get account by id").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, accountID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeAccountNotFound).
				With("account_id", accountID.String()).
				Wrap(err)
		}
		return oops.Code("AUTH_RESET_FAILED").
			With("operation", "update password").
			Wrap(err)
	}

	s.logger.Info("password reset completed", "account_id", accountID.String())
	return nil
}
