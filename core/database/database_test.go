package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectSQLiteMemory(t *testing.T) {
	db, err := Connect(Config{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NotNil(t, db)

	assert.NoError(t, db.Exec("CREATE TABLE probe (id INTEGER PRIMARY KEY)").Error)
}

func TestConnectDefaultsToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := Connect(Config{Path: path})
	require.NoError(t, err)
	require.NotNil(t, db)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "sqlite cache file is created on open")
}

func TestConnectUnsupportedDriver(t *testing.T) {
	_, err := Connect(Config{Driver: "postgres"})
	assert.ErrorIs(t, err, ErrCacheUnavailable)
}
