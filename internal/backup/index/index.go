// Package index keeps a tiny embedded-SQLite cross-check table of
// observation paths the backup store has written. The orphan sweep
// (internal/backup.Store.Sweep) uses it only to log a removed .bak file
// that was never recorded here; which files the sweep removes depends on
// the live observation list alone.
package index

import (
	"context"
	"database/sql"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/nxthongbk/datahub/internal/herr"
)

const schema = `
CREATE TABLE IF NOT EXISTS observation_backups (
	observation_path TEXT PRIMARY KEY,
	last_backup_unix INTEGER NOT NULL,
	record_count INTEGER NOT NULL
);`

// Index wraps a file-backed sqlite database tracking observation backups.
type Index struct {
	db *sql.DB
}

// Open opens (creating if needed) the index database at path.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, herr.Wrap(herr.IOError, err, "open backup index %s", path)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, herr.Wrap(herr.IOError, err, "create backup index schema")
	}
	return &Index{db: db}, nil
}

// Close releases the underlying database handle.
func (i *Index) Close() error {
	return i.db.Close()
}

// Record upserts the last-backup bookkeeping for an observation path,
// called after every successful write (internal/backup.Store.Write).
func (i *Index) Record(ctx context.Context, obsPath string, unixTime int64, recordCount int) error {
	_, err := i.db.ExecContext(ctx, `
		INSERT INTO observation_backups (observation_path, last_backup_unix, record_count)
		VALUES (?, ?, ?)
		ON CONFLICT(observation_path) DO UPDATE SET
			last_backup_unix = excluded.last_backup_unix,
			record_count = excluded.record_count`,
		obsPath, unixTime, recordCount)
	if err != nil {
		return herr.Wrap(herr.IOError, err, "record backup index entry for %s", obsPath)
	}
	return nil
}

// Forget removes an observation path's bookkeeping row, called on
// deletion or when an orphan sweep unlinks its file.
func (i *Index) Forget(ctx context.Context, obsPath string) error {
	if _, err := i.db.ExecContext(ctx, `DELETE FROM observation_backups WHERE observation_path = ?`, obsPath); err != nil {
		return herr.Wrap(herr.IOError, err, "forget backup index entry for %s", obsPath)
	}
	return nil
}

// Known returns every observation path the index has bookkeeping for,
// used by the sweep to tell recorded files from unrecognized ones in its
// log.
func (i *Index) Known(ctx context.Context) (map[string]bool, error) {
	rows, err := i.db.QueryContext(ctx, `SELECT observation_path FROM observation_backups`)
	if err != nil {
		return nil, herr.Wrap(herr.IOError, err, "query backup index")
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, herr.Wrap(herr.IOError, err, "scan backup index row")
		}
		out[path] = true
	}
	return out, rows.Err()
}
