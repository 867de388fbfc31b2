// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StudyShare Contributors

package auth

import "errors"

// ErrNotFound is returned by repositories when a requested account
// does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned by repositories when an insert would
// violate email uniqueness.
var ErrEmailTaken = errors.New("email already registered")

// Stable error codes attached to expected authentication failures.
// The routing layer dispatches on these to pick transport responses.
const (
	// CodeInvalidCredentials covers unknown email and wrong password;
	// the two are intentionally indistinguishable to the caller.
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"

	// CodeAccountLocked means the lockout window is active. No password
	// verification was attempted.
	CodeAccountLocked = "AUTH_ACCOUNT_LOCKED"

	// CodeAccountInactive means the credentials were valid but the
	// account status is not active.
	CodeAccountInactive = "AUTH_ACCOUNT_INACTIVE"

	// CodeTokenInvalid means the token signature is invalid or the
	// token has expired.
	CodeTokenInvalid = "AUTH_TOKEN_INVALID"

	// CodeTokenWrongPurpose means a structurally valid token was
	// presented for an operation it was not issued for.
	CodeTokenWrongPurpose = "AUTH_TOKEN_WRONG_PURPOSE"

	// CodeAccountNotFound means a token was valid but the referenced
	// account no longer exists.
	CodeAccountNotFound = "AUTH_ACCOUNT_NOT_FOUND"

	// CodeEmailTaken means registration failed because the email is
	// already in use.
	CodeEmailTaken = "AUTH_EMAIL_TAKEN"
)
