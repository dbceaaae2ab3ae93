// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package store

import (
	"cmp"
	"embed"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	// Register pgx/v5 database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration is one embedded schema change.
type Migration struct {
	Version uint
	// Name is the file stem without direction, e.g. "000001_users".
	Name string
}

// catalog lists the embedded up migrations by ascending version.
var catalog = sync.OnceValues(func() ([]Migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, oops.Code("MIGRATION_READ_FAILED").With("operation", "read migrations dir").Wrap(err)
	}
	var out []Migration
	for _, entry := range entries {
		parsed, err := source.Parse(entry.Name())
		if err != nil {
			return nil, oops.Code("MIGRATION_READ_FAILED").With("file", entry.Name()).Wrap(err)
		}
		if parsed.Direction != source.Up {
			continue
		}
		out = append(out, Migration{
			Version: parsed.Version,
			Name:    strings.TrimSuffix(entry.Name(), ".up.sql"),
		})
	}
	slices.SortFunc(out, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
})

// Migrations returns the embedded migrations by ascending version.
func Migrations() ([]Migration, error) {
	ms, err := catalog()
	return slices.Clone(ms), err
}

// MigrationName returns the name of an embedded migration, or "" when there is
// none with that version.
func MigrationName(version uint) (string, error) {
	ms, err := catalog()
	if err != nil {
		return "", err
	}
	for _, m := range ms {
		if m.Version == version {
			return m.Name, nil
		}
	}
	return "", nil
}

// MigrateURL rewrites a postgres:// or postgresql:// URL to the pgx5://
// scheme the golang-migrate pgx/v5 driver registers. Other URLs are returned
// unchanged.
func MigrateURL(databaseURL string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(databaseURL, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}

// Migrator applies the embedded users, posts, comments and sessions schema.
type Migrator struct {
	m *migrate.Migrate
}

// NewMigrator opens a Migrator for a PostgreSQL connection string.
func NewMigrator(databaseURL string) (*Migrator, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").With("operation", "open embedded migrations").Wrap(err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, MigrateURL(databaseURL))
	if err != nil {
		_ = src.Close() //nolint:errcheck // the init error is the one to report
		return nil, oops.Code("MIGRATION_INIT_FAILED").With("operation", "connect migrator").Wrap(err)
	}
	return &Migrator{m: m}, nil
}

// settle treats "nothing to do" as success and codes anything else.
func settle(err error, code string) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return oops.Code(code).Wrap(err)
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	return settle(m.m.Up(), "MIGRATION_UP_FAILED")
}

// Down rolls back every migration, dropping all users, posts, comments and
// sessions.
func (m *Migrator) Down() error {
	return settle(m.m.Down(), "MIGRATION_DOWN_FAILED")
}

// Steps migrates n versions up, or -n versions down when n is negative.
func (m *Migrator) Steps(n int) error {
	return oops.With("steps", n).Wrap(settle(m.m.Steps(n), "MIGRATION_STEPS_FAILED"))
}

// Version returns the recorded schema version, 0 when nothing is applied.
// dirty reports that a migration failed partway and needs Force.
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, false, nil
	case err != nil:
		return 0, false, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}
	return version, dirty, nil
}

// Force records version as applied without running anything, clearing a
// dirty state after the database was repaired by hand.
func (m *Migrator) Force(version int) error {
	if version < 0 {
		return oops.Code("INVALID_VERSION").Errorf("version must be non-negative, got %d", version)
	}
	return oops.Code("MIGRATION_FORCE_FAILED").With("version", version).Wrap(m.m.Force(version))
}

// AppliedMigrations returns the embedded versions at or below the current one.
func (m *Migrator) AppliedMigrations() ([]uint, error) {
	applied, _, err := m.split("list applied migrations")
	return applied, err
}

// PendingMigrations returns the embedded versions Up would apply.
func (m *Migrator) PendingMigrations() ([]uint, error) {
	_, pending, err := m.split("list pending migrations")
	return pending, err
}

func (m *Migrator) split(operation string) (applied, pending []uint, err error) {
	current, _, err := m.Version()
	if err != nil {
		return nil, nil, oops.With("operation", operation).Wrap(err)
	}
	ms, err := catalog()
	if err != nil {
		return nil, nil, oops.With("operation", operation).Wrap(err)
	}
	applied, pending = splitAt(ms, current)
	return applied, pending, nil
}

// splitAt partitions ms into versions at or below current and those above it.
func splitAt(ms []Migration, current uint) (applied, pending []uint) {
	for _, mg := range ms {
		if mg.Version <= current {
			applied = append(applied, mg.Version)
		} else {
			pending = append(pending, mg.Version)
		}
	}
	return applied, pending
}

// Close releases the migration source and the database connection.
func (m *Migrator) Close() error {
	return oops.Code("MIGRATION_CLOSE_FAILED").Wrap(errors.Join(m.m.Close()))
}
