// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/queryhub/queryhub/internal/store"
)

// migrator wraps the methods used from store.Migrator.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

// newMigrator is replaced in tests.
var newMigrator = func(databaseURL string) (migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back and inspect the users, posts, comments and sessions schema.`,
	}

	var steps int
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m migrator) error {
				if steps > 0 {
					cmd.Printf("Applying %d migration(s)...\n", steps)
					if err := m.Steps(steps); err != nil {
						return err //nolint:wrapcheck // coded by store
					}
				} else {
					cmd.Println("Applying pending migrations...")
					if err := m.Up(); err != nil {
						return err //nolint:wrapcheck // coded by store
					}
				}
				return printVersion(cmd, m)
			})
		},
	}
	up.Flags().IntVar(&steps, "steps", 0, "apply at most this many migrations (0 = all)")

	var (
		downSteps int
		yes       bool
	)
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long: `Roll back migrations. Without --steps every migration is rolled back
and all data is dropped, which requires --yes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if downSteps <= 0 && !yes {
				return oops.Code("MIGRATION_CONFIRM_REQUIRED").
					Errorf("rolling back every migration drops all data; pass --yes to confirm")
			}
			return withMigrator(cmd, func(m migrator) error {
				if downSteps > 0 {
					cmd.Printf("Rolling back %d migration(s)...\n", downSteps)
					if err := m.Steps(-downSteps); err != nil {
						return err //nolint:wrapcheck // coded by store
					}
				} else {
					cmd.Println("Rolling back all migrations...")
					if err := m.Down(); err != nil {
						return err //nolint:wrapcheck // coded by store
					}
				}
				return printVersion(cmd, m)
			})
		},
	}
	down.Flags().IntVar(&downSteps, "steps", 0, "roll back this many migrations (0 = all)")
	down.Flags().BoolVar(&yes, "yes", false, "confirm rolling back every migration")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m migrator) error {
				return printStatus(cmd, m)
			})
		},
	}

	force := &cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long: `Set the recorded schema version without running any migration. Use it
only to clear a dirty state after repairing the database by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, func(m migrator) error {
				if err := m.Force(version); err != nil {
					return err //nolint:wrapcheck // coded by store
				}
				cmd.Printf("Forced version %d\n", version)
				return nil
			})
		},
	}

	cmd.AddCommand(up, down, status, force)
	return cmd
}

// withMigrator opens a migrator for the configured database, runs fn and
// closes it.
func withMigrator(cmd *cobra.Command, fn func(migrator) error) (err error) {
	databaseURL, err := getDatabaseURL(cmd)
	if err != nil {
		return err
	}
	m, err := newMigrator(databaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(m)
}

// getDatabaseURL returns the configured database URL, which is required.
func getDatabaseURL(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	if cfg.Database.URL == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("database url is required: set DATABASE_URL or database.url")
	}
	return cfg.Database.URL, nil
}

// parseForceVersion parses the VERSION argument of migrate force. Leading
// whitespace is skipped and parsing stops at the first non-digit.
func parseForceVersion(s string) (int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, oops.Code("INVALID_VERSION").Errorf("version is required")
	}
	var version int
	if _, err := fmt.Sscanf(trimmed, "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrap(err)
	}
	return version, nil
}

func printVersion(cmd *cobra.Command, m migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err //nolint:wrapcheck // coded by store
	}
	cmd.Printf("Schema version: %s\n", describeVersion(version, dirty))
	return nil
}

func describeVersion(version uint, dirty bool) string {
	if version == 0 {
		return "none"
	}
	name, err := store.MigrationName(version)
	if err != nil || name == "" {
		name = fmt.Sprintf("%06d", version)
	}
	if dirty {
		return name + " (dirty)"
	}
	return name
}

func printStatus(cmd *cobra.Command, m migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err //nolint:wrapcheck // coded by store
	}
	applied, err := m.AppliedMigrations()
	if err != nil {
		return err //nolint:wrapcheck // coded by store
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err //nolint:wrapcheck // coded by store
	}

	cmd.Printf("Schema version: %s\n", describeVersion(version, dirty))
	cmd.Printf("Applied: %d\n", len(applied))
	cmd.Printf("Pending: %d\n", len(pending))
	for _, v := range pending {
		cmd.Printf("  %s\n", describeVersion(v, false))
	}
	if dirty {
		cmd.Println("The last migration failed partway. Repair the database, then run: queryhub migrate force VERSION")
	}
	return nil
}
