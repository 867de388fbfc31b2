// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StudyShare Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the StudyShare CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "studyshare",
		Short: "StudyShare - account authentication service",
		Long: `StudyShare runs the authentication service for the StudyShare
platform: credential login with brute-force lockout, JWT access and
refresh tokens, and email-based password resets.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
