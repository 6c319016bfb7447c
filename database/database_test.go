package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteAndCreateTables(t *testing.T) {
	db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "prices.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, CreateTables(db, DriverSQLite))
	require.NoError(t, CreateTables(db, DriverSQLite))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM observations`).Scan(&n))
	assert.Zero(t, n)
}

func TestOpenRejectsBadInput(t *testing.T) {
	_, err := Open(DriverPostgres, "")
	assert.Error(t, err)

	_, err = Open("mysql", "root@/prices")
	assert.ErrorContains(t, err, "unsupported")
}

func TestRebind(t *testing.T) {
	q := `SELECT * FROM observations WHERE site = $1 AND item = $2 LIMIT $10`
	assert.Equal(t, q, Rebind(DriverPostgres, q))
	assert.Equal(t, `SELECT * FROM observations WHERE site = ?1 AND item = ?2 LIMIT ?10`, Rebind(DriverSQLite, q))
}
