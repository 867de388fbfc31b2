// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StudyShare Contributors

package auth_test

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/studyshare/studyshare/internal/auth"
)

// memoryAccountRepo is an in-memory AccountRepository that mirrors the
// guarded single-statement semantics of the postgres implementation.
// Individual operations can be forced to fail through errOn.
type memoryAccountRepo struct {
	mu       sync.Mutex
	accounts map[ulid.ULID]*auth.Account
	errOn    map[string]error

	failureCalls   int
	clearLockCalls int
}

func newMemoryAccountRepo(accounts ...*auth.Account) *memoryAccountRepo {
	r := &memoryAccountRepo{
		accounts: make(map[ulid.ULID]*auth.Account),
		errOn:    make(map[string]error),
	}
	for _, a := range accounts {
		copied := *a
		r.accounts[a.ID] = &copied
	}
	return r
}

func (r *memoryAccountRepo) failOn(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errOn[op] = err
}

// get returns the live stored account for assertions.
func (r *memoryAccountRepo) get(id ulid.ULID) *auth.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id]
}

func (r *memoryAccountRepo) Create(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errOn["Create"]; err != nil {
		return err
	}
	for _, existing := range r.accounts {
		if existing.Email == account.Email {
			return auth.ErrEmailTaken
		}
	}
	copied := *account
	r.accounts[account.ID] = &copied
	return nil
}

func (r *memoryAccountRepo) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errOn["GetByEmail"]; err != nil {
		return nil, err
	}
	for _, a := range r.accounts {
		if a.Email == email {
			copied := *a
			return &copied, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *memoryAccountRepo) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errOn["GetByID"]; err != nil {
		return nil, err
	}
	a, ok := r.accounts[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *memoryAccountRepo) RecordFailure(_ context.Context, id ulid.ULID, threshold int, lockUntil time.Time) (int, *time.Time, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failureCalls++
	if err := r.errOn["RecordFailure"]; err != nil {
		return 0, nil, false, err
	}
	a, ok := r.accounts[id]
	if !ok {
		return 0, nil, false, auth.ErrNotFound
	}
	// Guard mirrors the SQL: active and not currently locked.
	if a.Status != auth.StatusActive || a.LockedUntil != nil {
		return 0, nil, false, nil
	}
	a.FailedAttempts++
	if a.FailedAttempts >= threshold {
		until := lockUntil
		a.LockedUntil = &until
	}
	return a.FailedAttempts, a.LockedUntil, true, nil
}

func (r *memoryAccountRepo) RecordSuccess(_ context.Context, id ulid.ULID, loginAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errOn["RecordSuccess"]; err != nil {
		return err
	}
	a, ok := r.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.FailedAttempts = 0
	a.LockedUntil = nil
	at := loginAt
	a.LastLoginAt = &at
	return nil
}

func (r *memoryAccountRepo) ClearExpiredLock(_ context.Context, id ulid.ULID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLockCalls++
	if err := r.errOn["ClearExpiredLock"]; err != nil {
		return err
	}
	a, ok := r.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	if a.LockedUntil != nil && !now.Before(*a.LockedUntil) {
		a.FailedAttempts = 0
		a.LockedUntil = nil
	}
	return nil
}

func (r *memoryAccountRepo) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errOn["UpdatePassword"]; err != nil {
		return err
	}
	a, ok := r.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.PasswordHash = passwordHash
	return nil
}

func (r *memoryAccountRepo) UpdateStatus(_ context.Context, id ulid.ULID, status auth.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errOn["UpdateStatus"]; err != nil {
		return err
	}
	a, ok := r.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.Status = status
	return nil
}

func (r *memoryAccountRepo) MarkEmailVerified(_ context.Context, id ulid.ULID, verifiedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errOn["MarkEmailVerified"]; err != nil {
		return err
	}
	a, ok := r.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	at := verifiedAt
	a.EmailVerifiedAt = &at
	if a.Status == auth.StatusPendingVerification {
		a.Status = auth.StatusActive
	}
	return nil
}

func (r *memoryAccountRepo) RecordLogout(_ context.Context, id ulid.ULID, logoutAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errOn["RecordLogout"]; err != nil {
		return err
	}
	a, ok := r.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	at := logoutAt
	a.LastLogoutAt = &at
	return nil
}

var _ auth.AccountRepository = (*memoryAccountRepo)(nil)

// fakeHasher is a transparent PasswordHasher so unit tests avoid bcrypt
// cost. Hashes are "fake:" + password.
type fakeHasher struct {
	mu          sync.Mutex
	verifyCalls []string // hashes passed to Verify
	hashErr     error
	verifyErr   error
}

func (h *fakeHasher) Hash(password string) (string, error) {
	if h.hashErr != nil {
		return "", h.hashErr
	}
	if password == "" {
		return "", auth.ErrEmptyPassword
	}
	return "fake:" + password, nil
}

func (h *fakeHasher) Verify(password, hash string) (bool, error) {
	h.mu.Lock()
	h.verifyCalls = append(h.verifyCalls, hash)
	h.mu.Unlock()
	if h.verifyErr != nil {
		return false, h.verifyErr
	}
	return strings.TrimPrefix(hash, "fake:") == password && strings.HasPrefix(hash, "fake:"), nil
}

var _ auth.PasswordHasher = (*fakeHasher)(nil)

// stubMetrics records outcomes for assertions.
type stubMetrics struct {
	mu       sync.Mutex
	logins   map[string]int
	lockouts int
}

func newStubMetrics() *stubMetrics {
	return &stubMetrics{logins: make(map[string]int)}
}

func (m *stubMetrics) RecordLogin(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[outcome]++
}

func (m *stubMetrics) RecordLockout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockouts++
}

func (m *stubMetrics) loginCount(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logins[outcome]
}

func (m *stubMetrics) lockoutCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lockouts
}

// stubDeliverer captures delivered reset tokens.
type stubDeliverer struct {
	mu     sync.Mutex
	emails []string
	tokens []string
	err    error
}

func (d *stubDeliverer) DeliverResetLink(_ context.Context, email, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.emails = append(d.emails, email)
	d.tokens = append(d.tokens, token)
	return nil
}

func (d *stubDeliverer) delivered() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

func (d *stubDeliverer) lastToken() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.tokens) == 0 {
		return ""
	}
	return d.tokens[len(d.tokens)-1]
}

// newTestTokenManager builds a TokenManager with distinct per-purpose
// secrets and short lifetimes.
func newTestTokenManager(t interface{ Fatalf(string, ...any) }) *auth.TokenManager {
	tm, err := auth.NewTokenManager(auth.TokenConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		ResetSecret:   []byte("reset-secret"),
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
		ResetTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	return tm
}

// activeAccount builds an account fixture that can log in.
func activeAccount(email, password string) *auth.Account {
	account, err := auth.NewAccount(email, "fake:"+password, auth.RoleUser, auth.StatusActive)
	if err != nil {
		panic(err)
	}
	return account
}
