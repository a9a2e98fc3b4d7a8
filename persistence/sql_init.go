package persistence

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("logger", "persistence")

var tables = [...]string{`CREATE TABLE IF NOT EXISTS blob_chunks (
	blob_id varchar(64) NOT NULL,
	seq int NOT NULL,
	checksum bigint NOT NULL,
	written_at bigint NOT NULL,
	data MEDIUMBLOB NOT NULL,
	PRIMARY KEY (blob_id, seq));`,

	`CREATE TABLE IF NOT EXISTS blob_index (
	blob_id varchar(64) NOT NULL PRIMARY KEY,
	filename varchar(1024) NOT NULL,
	content_type varchar(255) NOT NULL,
	length bigint NOT NULL,
	chunk_size int NOT NULL,
	digest varchar(128) NOT NULL,
	metadata BLOB,
	uploaded_at bigint NOT NULL,
	insert_seq bigint NOT NULL);`,
}

// SplitDBURL splits a db url of the form driver://dsn
func SplitDBURL(dbURL string) (driver string, dsn string, err error) {
	parts := strings.SplitN(dbURL, "://", 2)
	if len(parts) != 2 || len(parts[1]) == 0 {
		return "", "", fmt.Errorf("invalid db url %q, expecting <driver>://<dsn>", dbURL)
	}
	return parts[0], parts[1], nil
}

// CreateDBConnection sets up a DB connection and ensures required tables exist
func CreateDBConnection(dbURL string) (*sqlx.DB, error) {
	driver, dsn, err := SplitDBURL(dbURL)
	if err != nil {
		return nil, err
	}
	switch driver {
	case "mysql", "sqlite3":
	default:
		return nil, fmt.Errorf("invalid db driver %s", driver)
	}

	if driver == "sqlite3" {
		path := dsn
		if i := strings.Index(path, "?"); i >= 0 {
			path = path[:i]
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
	}

	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		log.WithFields(logrus.Fields{"driver": driver}).WithError(err).Error("couldn't open db")
		return nil, err
	}

	sqlxDb := sqlx.NewDb(sqldb, driver)
	err = sqlxDb.Ping()
	if err != nil {
		log.WithFields(logrus.Fields{"driver": driver}).WithError(err).Error("couldn't ping db")
		sqlxDb.Close()
		return nil, err
	}

	sqlxDb.SetMaxIdleConns(256)
	switch driver {
	case "sqlite3":
		sqlxDb.SetMaxOpenConns(1)
	}
	for _, v := range tables {
		_, err = sqlxDb.Exec(v)
		if err != nil {
			sqlxDb.Close()
			return nil, fmt.Errorf("failed to create database table %s: %v", v, err)
		}
	}

	log.WithField("driver", driver).Info("Opened database")
	return sqlxDb, nil
}
