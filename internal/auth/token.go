// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StudyShare Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenPurpose constrains which operation a token may be used for.
// A token issued for one purpose presented for another is rejected;
// this closes the cross-purpose replay hole of naive JWT setups where
// all tokens share a signature scheme.
type TokenPurpose string

// Token purposes.
const (
	PurposeAccess        TokenPurpose = "access"
	PurposeRefresh       TokenPurpose = "refresh"
	PurposePasswordReset TokenPurpose = "password_reset"
)

// Reference token lifetimes.
const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultResetTTL   = time.Hour
)

// Claims is the JWT claim set for all StudyShare tokens. Password-reset
// tokens carry only the account ID and purpose, minimizing the leaked
// surface if a reset link is intercepted.
type Claims struct {
	AccountID string       `json:"account_id"`
	Email     string       `json:"email,omitempty"`
	Role      Role         `json:"role,omitempty"`
	Purpose   TokenPurpose `json:"purpose"`
	jwt.RegisteredClaims
}

// ParseAccountID returns the account ID claim as a ULID.
func (c *Claims) ParseAccountID() (ulid.ULID, error) {
	id, err := ulid.Parse(c.AccountID)
	if err != nil {
		return ulid.ULID{}, oops.Code(CodeTokenInvalid).
			With("account_id", c.AccountID).
			Wrap(err)
	}
	return id, nil
}

// TokenConfig holds signing secrets and lifetimes. Secrets may differ
// per purpose (recommended) or be set to the same value; either way the
// purpose claim is enforced on verification.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	ResetSecret   []byte

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
}

// TokenManager mints and verifies stateless HS256 JWTs. Tokens are
// never persisted: there is no revocation before expiry.
type TokenManager struct {
	cfg TokenConfig

	// timeFunc is the clock used for issuance and expiry validation.
	// Overridable in tests.
	timeFunc func() time.Time
}

// NewTokenManager creates a TokenManager. All three secrets are
// required; zero lifetimes fall back to the defaults.
func NewTokenManager(cfg TokenConfig) (*TokenManager, error) {
	if len(cfg.AccessSecret) == 0 {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("access token secret is required")
	}
	if len(cfg.RefreshSecret) == 0 {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("refresh token secret is required")
	}
	if len(cfg.ResetSecret) == 0 {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("reset token secret is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = DefaultResetTTL
	}
	return &TokenManager{cfg: cfg, timeFunc: time.Now}, nil
}

// WithTimeFunc overrides the clock. Intended for tests.
func (m *TokenManager) WithTimeFunc(f func() time.Time) *TokenManager {
	m.timeFunc = f
	return m
}

// IssueAccessToken mints a short-lived token authorizing API calls.
func (m *TokenManager) IssueAccessToken(account *Account) (string, error) {
	return m.issue(Claims{
		AccountID: account.ID.String(),
		Email:     account.Email,
		Role:      account.Role,
		Purpose:   PurposeAccess,
	}, m.cfg.AccessTTL, m.cfg.AccessSecret)
}

// IssueRefreshToken mints a long-lived token used solely to obtain new
// access tokens.
func (m *TokenManager) IssueRefreshToken(account *Account) (string, error) {
	return m.issue(Claims{
		AccountID: account.ID.String(),
		Email:     account.Email,
		Role:      account.Role,
		Purpose:   PurposeRefresh,
	}, m.cfg.RefreshTTL, m.cfg.RefreshSecret)
}

// IssuePasswordResetToken mints a single-purpose token proving the
// holder received the reset link.
func (m *TokenManager) IssuePasswordResetToken(accountID ulid.ULID) (string, error) {
	return m.issue(Claims{
		AccountID: accountID.String(),
		Purpose:   PurposePasswordReset,
	}, m.cfg.ResetTTL, m.cfg.ResetSecret)
}

// Verify validates signature, expiry and claim shape, and enforces that
// the token was issued for the expected purpose. Signature and expiry
// failures carry CodeTokenInvalid; purpose mismatches carry
// CodeTokenWrongPurpose.
func (m *TokenManager) Verify(tokenString string, expected TokenPurpose) (*Claims, error) {
	if tokenString == "" {
		return nil, oops.Code(CodeTokenInvalid).Errorf("token cannot be empty")
	}
	secret, err := m.secretFor(expected)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.timeFunc),
	)
	if err != nil {
		return nil, oops.Code(CodeTokenInvalid).
			With("expected_purpose", string(expected)).
			Wrap(err)
	}
	if !token.Valid {
		return nil, oops.Code(CodeTokenInvalid).Errorf("token is not valid")
	}
	if claims.Purpose != expected {
		return nil, oops.Code(CodeTokenWrongPurpose).
			With("expected_purpose", string(expected)).
			With("token_purpose", string(claims.Purpose)).
			Errorf("token was issued for a different purpose")
	}
	return claims, nil
}

func (m *TokenManager) issue(claims Claims, ttl time.Duration, secret []byte) (string, error) {
	now := m.timeFunc()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        ulid.Make().String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", oops.Code("AUTH_TOKEN_SIGN_FAILED").
			With("purpose", string(claims.Purpose)).
			Wrap(err)
	}
	return signed, nil
}

func (m *TokenManager) secretFor(purpose TokenPurpose) ([]byte, error) {
	switch purpose {
	case PurposeAccess:
		return m.cfg.AccessSecret, nil
	case PurposeRefresh:
		return m.cfg.RefreshSecret, nil
	case PurposePasswordReset:
		return m.cfg.ResetSecret, nil
	}
	return nil, oops.Code(CodeTokenInvalid).
		With("purpose", string(purpose)).
		Errorf("unknown token purpose")
}
