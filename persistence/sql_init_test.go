package persistence

import (
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitDBURL(t *testing.T) {
	driver, dsn, err := SplitDBURL("mysql://user:pw@tcp(db:3306)/cloud")
	require.NoError(t, err)
	assert.Equal(t, "mysql", driver)
	assert.Equal(t, "user:pw@tcp(db:3306)/cloud", dsn)

	_, _, err = SplitDBURL("nonsense")
	assert.Error(t, err)

	_, _, err = SplitDBURL("sqlite3://")
	assert.Error(t, err)
}

func TestRejectsUnknownDriver(t *testing.T) {
	_, err := CreateDBConnection("postgres://localhost/cloud")
	assert.Error(t, err)
}

func TestCreatesTablesOnOpen(t *testing.T) {
	url, dbPath := TestDBURL()
	defer ResetTestDB(dbPath)

	db, err := CreateDBConnection(url)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"blob_chunks", "blob_index"} {
		var count int
		err := db.Get(&count, "SELECT count(*) FROM "+table)
		assert.NoError(t, err, table)
		assert.Equal(t, 0, count)
	}

	// reopening an existing database is a no-op
	again, err := CreateDBConnection(url)
	require.NoError(t, err)
	again.Close()
}
