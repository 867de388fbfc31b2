// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StudyShare Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/studyshare/studyshare/internal/auth"
	authpg "github.com/studyshare/studyshare/internal/auth/postgres"
	"github.com/studyshare/studyshare/internal/config"
	"github.com/studyshare/studyshare/internal/logging"
	"github.com/studyshare/studyshare/internal/notify"
	"github.com/studyshare/studyshare/internal/observability"
	"github.com/studyshare/studyshare/internal/store"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authentication service",
		Long: `Run the authentication service: connect to PostgreSQL, construct
the login, token and password-reset services, and expose metrics and
health probes until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			autoMigrate, _ := cmd.Flags().GetBool("auto-migrate")
			return runServe(cmd.Context(), cmd, autoMigrate, nil)
		},
	}

	cmd.Flags().Bool("auto-migrate", false, "apply pending migrations on startup")
	cmd.Flags().String("database.url", "", "PostgreSQL URL")
	cmd.Flags().String("observability.addr", "", "metrics/health HTTP address")
	cmd.Flags().String("log.format", "", "log format (json or text)")

	return cmd
}

// runServe wires the service together and blocks until a shutdown
// signal arrives. If deps is nil, default implementations are used.
func runServe(ctx context.Context, cmd *cobra.Command, autoMigrate bool, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.PoolFactory == nil {
		deps.PoolFactory = func(ctx context.Context, url string) (DB, error) {
			return store.Connect(ctx, url)
		}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = newMigrator
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, rc observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, rc)
		}
	}

	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("studyshare", version, cfg.Log.Format)

	slog.Info("starting authentication service",
		"observability_addr", cfg.Observability.Addr,
		"log_format", cfg.Log.Format,
	)

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	slog.Info("connected to database")

	if autoMigrate {
		if err := applyMigrations(deps.MigratorFactory, cfg.Database.URL); err != nil {
			return err
		}
		slog.Info("migrations applied")
	}

	accounts := authpg.NewAccountRepository(pool)
	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	policy := auth.NewLockoutPolicy(cfg.Auth.LockoutThreshold, cfg.Auth.LockoutCooldown)

	tokens, err := auth.NewTokenManager(cfg.TokenConfig())
	if err != nil {
		return err
	}

	var deliverer auth.ResetLinkDeliverer
	switch cfg.Mail.Provider {
	case "mailgun":
		deliverer = notify.NewMailgunDeliverer(cfg.Mail.Domain, cfg.Mail.APIKey, cfg.Mail.Sender, cfg.Mail.ResetBaseURL)
	default:
		deliverer = notify.NewLogDeliverer(slog.Default(), cfg.Mail.ResetBaseURL)
	}

	// The API gateway consumes these services; constructing them here
	// fails fast on bad configuration.
	authService, err := auth.NewService(accounts, hasher, policy, tokens)
	if err != nil {
		return err
	}
	if _, err := auth.NewPasswordResetService(accounts, hasher, tokens, deliverer); err != nil {
		return err
	}

	// Readiness follows the database: a pool that cannot ping means
	// logins will fail, so report not ready.
	readiness := func() bool {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pool.Ping(pingCtx) == nil
	}

	obsServer := deps.ObservabilityServerFactory(cfg.Observability.Addr, readiness)
	obsErrCh, err := obsServer.Start()
	if err != nil {
		return oops.With("operation", "start observability server").Wrap(err)
	}

	authService.WithMetrics(obsServer.Metrics())

	cmd.Println("Authentication service started")
	slog.Info("authentication service ready", "metrics_addr", obsServer.Addr())

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case err, ok := <-obsErrCh:
		if ok && err != nil {
			slog.Error("observability server failed", "error", err)
		}
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := obsServer.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping observability server", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func applyMigrations(factory func(string) (migratorIface, error), databaseURL string) error {
	m, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() { _ = m.Close() }()

	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	return nil
}
