// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package main

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryhub/queryhub/pkg/errutil"
)

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErr     bool
		wantErrCode string
	}{
		{name: "valid integer", input: "3", wantVersion: 3},
		{name: "zero is valid", input: "0", wantVersion: 0},
		{name: "non-numeric returns error", input: "abc", wantErr: true, wantErrCode: "INVALID_VERSION"},
		{name: "float parses as integer (Sscanf stops at dot)", input: "1.5", wantVersion: 1},
		{name: "trailing chars are ignored", input: "3abc", wantVersion: 3},
		{name: "negative is valid", input: "-1", wantVersion: -1},
		{name: "empty string returns error", input: "", wantErr: true, wantErrCode: "INVALID_VERSION"},
		{name: "whitespace only returns error", input: "   ", wantErr: true, wantErrCode: "INVALID_VERSION"},
		{name: "leading whitespace is handled", input: "  42", wantVersion: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := parseForceVersion(tt.input)

			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantErrCode)
				assert.Equal(t, 0, version)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantVersion, version)
			}
		})
	}
}

func TestGetDatabaseURL(t *testing.T) {
	tests := []struct {
		name        string
		envValue    string
		setEnv      bool
		wantURL     string
		wantErrCode string
	}{
		{name: "returns error when DATABASE_URL not set", wantErrCode: "CONFIG_INVALID"},
		{name: "returns error when DATABASE_URL is empty", setEnv: true, wantErrCode: "CONFIG_INVALID"},
		{
			name:     "returns URL when DATABASE_URL is set",
			envValue: "postgres://localhost:5432/testdb",
			setEnv:   true,
			wantURL:  "postgres://localhost:5432/testdb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile = ""
			t.Setenv("XDG_CONFIG_HOME", t.TempDir())
			t.Setenv("DATABASE_URL", tt.envValue)
			if !tt.setEnv {
				require.NoError(t, os.Unsetenv("DATABASE_URL"))
			}

			url, err := getDatabaseURL(&cobra.Command{})

			if tt.wantErrCode != "" {
				errutil.AssertErrorCode(t, err, tt.wantErrCode)
				assert.Empty(t, url)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantURL, url)
			}
		})
	}
}

type fakeMigrator struct {
	version uint
	dirty   bool
	applied []uint
	pending []uint
	failUp  error

	calls  []string
	steps  []int
	forced []int
	closed bool
}

func (f *fakeMigrator) Up() error {
	f.calls = append(f.calls, "up")
	if f.failUp != nil {
		return f.failUp
	}
	f.version = 3
	return nil
}

func (f *fakeMigrator) Down() error {
	f.calls = append(f.calls, "down")
	f.version = 0
	return nil
}

func (f *fakeMigrator) Steps(n int) error {
	f.calls = append(f.calls, "steps")
	f.steps = append(f.steps, n)
	f.version = uint(int(f.version) + n)
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, f.dirty, nil }

func (f *fakeMigrator) Force(version int) error {
	f.forced = append(f.forced, version)
	return nil
}

func (f *fakeMigrator) PendingMigrations() ([]uint, error) { return f.pending, nil }
func (f *fakeMigrator) AppliedMigrations() ([]uint, error) { return f.applied, nil }

func (f *fakeMigrator) Close() error {
	f.closed = true
	return nil
}

// runMigrate executes the root command with a fake migrator installed.
func runMigrate(t *testing.T, fake *fakeMigrator, args ...string) (string, error) {
	t.Helper()
	configFile = ""
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/queryhub")

	orig := newMigrator
	t.Cleanup(func() { newMigrator = orig })
	var gotURL string
	newMigrator = func(databaseURL string) (migrator, error) {
		gotURL = databaseURL
		return fake, nil
	}

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"migrate"}, args...))
	err := cmd.Execute()
	if err == nil {
		assert.Equal(t, "postgres://localhost:5432/queryhub", gotURL)
	}
	return buf.String(), err
}

func TestMigrateUp(t *testing.T) {
	fake := &fakeMigrator{}
	out, err := runMigrate(t, fake, "up")
	require.NoError(t, err)
	assert.Equal(t, []string{"up"}, fake.calls)
	assert.True(t, fake.closed)
	assert.Contains(t, out, "Schema version: 000003_sessions")
}

func TestMigrateUp_Steps(t *testing.T) {
	fake := &fakeMigrator{}
	out, err := runMigrate(t, fake, "up", "--steps", "1")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, fake.steps)
	assert.Contains(t, out, "Schema version: 000001_users")
}

func TestMigrateUp_Error(t *testing.T) {
	fake := &fakeMigrator{failUp: errors.New("syntax error")}
	_, err := runMigrate(t, fake, "up")
	require.Error(t, err)
	assert.True(t, fake.closed)
}

func TestMigrateDown(t *testing.T) {
	t.Run("all requires confirmation", func(t *testing.T) {
		fake := &fakeMigrator{version: 3}
		_, err := runMigrate(t, fake, "down")
		errutil.AssertErrorCode(t, err, "MIGRATION_CONFIRM_REQUIRED")
		assert.Empty(t, fake.calls)
	})

	t.Run("all with yes", func(t *testing.T) {
		fake := &fakeMigrator{version: 3}
		out, err := runMigrate(t, fake, "down", "--yes")
		require.NoError(t, err)
		assert.Equal(t, []string{"down"}, fake.calls)
		assert.Contains(t, out, "Schema version: none")
	})

	t.Run("steps", func(t *testing.T) {
		fake := &fakeMigrator{version: 3}
		out, err := runMigrate(t, fake, "down", "--steps", "1")
		require.NoError(t, err)
		assert.Equal(t, []int{-1}, fake.steps)
		assert.Contains(t, out, "Schema version: 000002_posts_comments")
	})
}

func TestMigrateStatus(t *testing.T) {
	fake := &fakeMigrator{version: 2, dirty: true, applied: []uint{1, 2}, pending: []uint{3}}
	out, err := runMigrate(t, fake, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema version: 000002_posts_comments (dirty)")
	assert.Contains(t, out, "Applied: 2")
	assert.Contains(t, out, "Pending: 1")
	assert.Contains(t, out, "  000003_sessions")
	assert.Contains(t, out, "queryhub migrate force VERSION")
}

func TestMigrateForce(t *testing.T) {
	fake := &fakeMigrator{version: 2, dirty: true}
	out, err := runMigrate(t, fake, "force", "2")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, fake.forced)
	assert.Contains(t, out, "Forced version 2")

	_, err = runMigrate(t, &fakeMigrator{}, "force", "abc")
	errutil.AssertErrorCode(t, err, "INVALID_VERSION")
}

func TestMigrate_OpenFails(t *testing.T) {
	configFile = ""
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/queryhub")
	orig := newMigrator
	t.Cleanup(func() { newMigrator = orig })
	newMigrator = func(string) (migrator, error) { return nil, errors.New("dial tcp: connection refused") }

	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"migrate", "status"})
	errutil.AssertErrorCode(t, cmd.Execute(), "DB_CONNECT_FAILED")
}

func TestDescribeVersion(t *testing.T) {
	assert.Equal(t, "none", describeVersion(0, false))
	assert.Equal(t, "000001_users", describeVersion(1, false))
	assert.Equal(t, "000003_sessions (dirty)", describeVersion(3, true))
	assert.Equal(t, "000099", describeVersion(99, false))
}
