// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StudyShare Contributors

package auth

import (
	"time"
)

// Default lockout configuration.
const (
	// DefaultLockoutThreshold is the failure count that triggers a lockout.
	DefaultLockoutThreshold = 5

	// DefaultLockoutCooldown is how long an account stays locked.
	DefaultLockoutCooldown = 30 * time.Minute
)

// LockoutPolicy decides whether a login attempt may proceed based on
// the account's failure counters. It is pure computation; persisting
// the resulting counter mutations is the repository's job and must be
// atomic (see AccountRepository).
type LockoutPolicy struct {
	// Threshold is the number of failures that triggers a lockout.
	Threshold int

	// Cooldown is how long the lock lasts once triggered.
	Cooldown time.Duration
}

// NewLockoutPolicy creates a policy, substituting defaults for zero values.
func NewLockoutPolicy(threshold int, cooldown time.Duration) LockoutPolicy {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultLockoutCooldown
	}
	return LockoutPolicy{Threshold: threshold, Cooldown: cooldown}
}

// LockoutDecision is the outcome of evaluating an account's lockout state.
type LockoutDecision struct {
	// Locked reports whether the attempt must be refused.
	Locked bool

	// Until is the lock expiry when Locked is true.
	Until time.Time

	// ExpiredLock reports that a past lock was found. The caller must
	// reset the counters through AccountRepository.ClearExpiredLock as
	// part of the same attempt; expiry is lazy, there is no sweeper.
	ExpiredLock bool
}

// Evaluate inspects the account's counters at the given instant.
// A locked_until in the past is equivalent to "not locked" and signals
// that the counters must be reset, not merely ignored.
func (p LockoutPolicy) Evaluate(account *Account, now time.Time) LockoutDecision {
	if account.LockedUntil == nil {
		return LockoutDecision{}
	}
	if now.Before(*account.LockedUntil) {
		return LockoutDecision{Locked: true, Until: *account.LockedUntil}
	}
	return LockoutDecision{ExpiredLock: true}
}

// LockUntil returns the lock expiry a failure at now would produce if
// it reached the threshold.
func (p LockoutPolicy) LockUntil(now time.Time) time.Time {
	return now.Add(p.Cooldown)
}

// Reaches reports whether the given failure count meets the threshold.
func (p LockoutPolicy) Reaches(attempts int) bool {
	return attempts >= p.Threshold
}
