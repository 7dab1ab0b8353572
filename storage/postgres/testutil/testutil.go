// Package testutil provides helpers for tests that need a PostgreSQL database.
package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tokenvault/tokenvault/log"
	"github.com/tokenvault/tokenvault/storage/postgres"
)

// SkipIfShort skips tests that need a database when running with -short.
func SkipIfShort(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test in short mode")
	}
}

// ConnString returns the connection string of the CI test database.
func ConnString() string {
	return os.Getenv("CI_TEST_CONN_STRING")
}

// NewTestClient returns a postgres client used in CI tests.
func NewTestClient(t *testing.T) *postgres.Client {
	logger, err := log.NewLogger("postgres-test", os.Stdout, log.FmtJSON, log.LevelError)
	require.Nil(t, err, "log.NewLogger")

	client, err := postgres.NewClient(ConnString(), logger)
	require.Nil(t, err, "postgres.NewClient")
	return client
}

// MigrationsSource returns the file:// URL of the repository's migrations.
func MigrationsSource() string {
	_, file, _, _ := runtime.Caller(0)
	dir := filepath.Join(filepath.Dir(file), "..", "..", "migrations")
	return "file://" + filepath.ToSlash(dir)
}

// NewMigratedClient wipes the CI test database, applies all migrations and
// returns a client to it.
func NewMigratedClient(t *testing.T) *postgres.Client {
	client := NewTestClient(t)
	t.Cleanup(client.Close)
	require.NoError(t, client.Wipe(t.Context()), "wipe")
	require.NoError(t, postgres.Migrate(MigrationsSource(), ConnString(), log.NewNopLogger()), "migrate")
	return client
}
