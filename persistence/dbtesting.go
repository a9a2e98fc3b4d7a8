package persistence

import (
	"os"
	"path/filepath"
)

// TestDBURL returns a sqlite db url in a fresh temporary directory, and the directory to remove afterwards
func TestDBURL() (string, string) {
	dbPath, err := os.MkdirTemp("", "cloud_test")
	if err != nil {
		panic(err)
	}
	return "sqlite3://" + filepath.Join(dbPath, "test.db"), dbPath
}

// ResetTestDB removes a test db created by TestDBURL
func ResetTestDB(dbPath string) {
	os.RemoveAll(dbPath)
}
