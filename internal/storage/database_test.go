package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	pg := &Database{Driver: DriverPostgres}
	require.Equal(t,
		"SELECT * FROM noti_drawer WHERE sbn_key = $1 AND hash_key = $2",
		pg.Rebind("SELECT * FROM noti_drawer WHERE sbn_key = ? AND hash_key = ?"))

	lite := &Database{Driver: DriverSQLite}
	require.Equal(t, "DELETE FROM digests WHERE id = ?", lite.Rebind("DELETE FROM digests WHERE id = ?"))
}

func TestInitDatabase_SQLiteRunsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "notigpt.db")

	db, err := InitDatabase(DriverSQLite, path, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, table := range []string{"noti_drawer", "digests", "device_tokens"} {
		var name string
		err := db.QueryRowContext(context.Background(),
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		require.Equal(t, table, name)
	}

	// Running migrations twice is a no-op.
	require.NoError(t, RunMigrations(db.DB, DriverSQLite))
}

func TestInitDatabase_UnknownDriver(t *testing.T) {
	_, err := InitDatabase("mysql", "whatever", Options{})
	require.Error(t, err)
}
