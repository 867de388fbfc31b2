// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StudyShare Contributors

// Package auth implements account authentication and session-token
// lifecycle management for StudyShare.
//
// # Domain Types
//
// Account is the durable credential record. Create one with NewAccount,
// which normalizes the email and validates required fields; direct
// struct initialization bypasses validation and may create invalid
// state. AccountView is the public projection handed back to callers
// and never carries the password hash.
//
// # Components
//
//   - PasswordHasher / BcryptHasher - salted, slow one-way hashing
//   - LockoutPolicy - pure decision logic over failure counters
//   - TokenManager - stateless JWT issuance and purpose-checked
//     verification (access, refresh, password_reset)
//   - Service - login, refresh, logout, registration, password change
//   - PasswordResetService - forgot-password and reset-password flows
//
// Tokens are never persisted. Validity is determined entirely by
// signature and expiry, so revocation before natural expiry is not
// possible; Logout is bookkeeping only. Callers that need hard
// revocation must layer a deny-list on top of this package.
//
// Expected failures are samber/oops errors carrying one of the Code*
// constants; callers dispatch on codes, not on error strings.
package auth
