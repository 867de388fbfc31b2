// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StudyShare Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyshare/studyshare/internal/observability"
)

// fakeDB satisfies DB without a real database.
type fakeDB struct {
	pingErr error
	closed  bool
}

func (f *fakeDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("not implemented")
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func (f *fakeDB) Ping(context.Context) error { return f.pingErr }

func (f *fakeDB) Close() { f.closed = true }

// fakeObsServer satisfies ObservabilityServer. Closing errCh after
// Start makes runServe fall through its wait and shut down.
type fakeObsServer struct {
	metrics   *observability.Metrics
	errCh     chan error
	started   bool
	stopped   bool
	readiness observability.ReadinessChecker
}

func newFakeObsServer(rc observability.ReadinessChecker) *fakeObsServer {
	return &fakeObsServer{
		metrics:   observability.NewMetrics(prometheus.NewRegistry()),
		errCh:     make(chan error),
		readiness: rc,
	}
}

func (f *fakeObsServer) Start() (<-chan error, error) {
	f.started = true
	return f.errCh, nil
}

func (f *fakeObsServer) Stop(context.Context) error {
	f.stopped = true
	return nil
}

func (f *fakeObsServer) Addr() string { return "127.0.0.1:0" }

func (f *fakeObsServer) Metrics() *observability.Metrics { return f.metrics }

func writeServeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  url: postgres://db:5432/studyshare
tokens:
  secret: serve-test-secret
`), 0o600))
	return path
}

func newServeTestCmd() *cobra.Command {
	cmd := NewServeCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	return cmd
}

func TestRunServe_StartsAndStops(t *testing.T) {
	configFile = writeServeConfig(t)
	t.Cleanup(func() { configFile = "" })

	db := &fakeDB{}
	var obs *fakeObsServer
	deps := &ServeDeps{
		PoolFactory: func(context.Context, string) (DB, error) {
			return db, nil
		},
		ObservabilityServerFactory: func(_ string, rc observability.ReadinessChecker) ObservabilityServer {
			obs = newFakeObsServer(rc)
			return obs
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, newServeTestCmd(), false, deps)
	}()

	// Give the wiring a moment, then trigger shutdown.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for serve to stop")
	}

	assert.True(t, obs.started)
	assert.True(t, obs.stopped)
	assert.True(t, db.closed)
}

func TestRunServe_ReadinessFollowsDatabase(t *testing.T) {
	configFile = writeServeConfig(t)
	t.Cleanup(func() { configFile = "" })

	db := &fakeDB{}
	var obs *fakeObsServer
	deps := &ServeDeps{
		PoolFactory: func(context.Context, string) (DB, error) {
			return db, nil
		},
		ObservabilityServerFactory: func(_ string, rc observability.ReadinessChecker) ObservabilityServer {
			obs = newFakeObsServer(rc)
			return obs
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, newServeTestCmd(), false, deps)
	}()
	time.Sleep(50 * time.Millisecond)

	require.NotNil(t, obs)
	assert.True(t, obs.readiness(), "healthy pool should report ready")

	db.pingErr = errors.New("connection refused")
	assert.False(t, obs.readiness(), "failed ping should report not ready")

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for serve to stop")
	}
}

func TestRunServe_AutoMigrate(t *testing.T) {
	configFile = writeServeConfig(t)
	t.Cleanup(func() { configFile = "" })

	fake := &fakeMigrator{}
	db := &fakeDB{}
	deps := &ServeDeps{
		PoolFactory: func(context.Context, string) (DB, error) {
			return db, nil
		},
		MigratorFactory: func(string) (migratorIface, error) {
			return fake, nil
		},
		ObservabilityServerFactory: func(_ string, rc observability.ReadinessChecker) ObservabilityServer {
			return newFakeObsServer(rc)
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, newServeTestCmd(), true, deps)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for serve to stop")
	}

	assert.True(t, fake.upCalled)
	assert.True(t, fake.closed)
}

func TestRunServe_ConnectFailure(t *testing.T) {
	configFile = writeServeConfig(t)
	t.Cleanup(func() { configFile = "" })

	deps := &ServeDeps{
		PoolFactory: func(context.Context, string) (DB, error) {
			return nil, errors.New("connection refused")
		},
	}

	err := runServe(context.Background(), newServeTestCmd(), false, deps)
	assert.Error(t, err)
}

func TestRunServe_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  url: ''\n"), 0o600))
	configFile = path
	t.Cleanup(func() { configFile = "" })

	err := runServe(context.Background(), newServeTestCmd(), false, &ServeDeps{})
	assert.Error(t, err)
}
