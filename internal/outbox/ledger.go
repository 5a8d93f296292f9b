// Package outbox records files whose row was appended but whose deletion has
// not been confirmed, so a later run deletes them instead of appending again.
package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"certsheet/internal/models"
)

// Rows are keyed by models.FileRef.Key so that an S3 object replaced under the
// same key is not mistaken for the one already appended.
const schema = `
CREATE TABLE IF NOT EXISTS appended_files (
	file_key    TEXT PRIMARY KEY,
	file_id     TEXT NOT NULL,
	file_name   TEXT NOT NULL,
	run_id      TEXT NOT NULL,
	appended_at TIMESTAMP NOT NULL
)`

// Entry is one file awaiting deletion.
type Entry struct {
	FileKey    string    `db:"file_key"`
	FileID     string    `db:"file_id"`
	FileName   string    `db:"file_name"`
	RunID      string    `db:"run_id"`
	AppendedAt time.Time `db:"appended_at"`
}

// Ledger is a SQLite-backed outbox.
type Ledger struct {
	db *sqlx.DB
}

// Open opens (or creates) the ledger database at path.
func Open(ctx context.Context, path string) (*Ledger, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("connecting to ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Pending reports whether file was appended by an earlier run and not yet deleted.
func (l *Ledger) Pending(ctx context.Context, file models.FileRef) (bool, error) {
	var key string
	err := l.db.GetContext(ctx, &key, `SELECT file_key FROM appended_files WHERE file_key = ?`, file.Key())
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying ledger: %w", err)
	}
	return true, nil
}

// MarkAppended records that the row for file has been written.
func (l *Ledger) MarkAppended(ctx context.Context, file models.FileRef, runID string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO appended_files (file_key, file_id, file_name, run_id, appended_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(file_key) DO UPDATE SET run_id = excluded.run_id, appended_at = excluded.appended_at`,
		file.Key(), file.ID, file.Name, runID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording appended file: %w", err)
	}
	return nil
}

// Resolve removes the entry for file once it has been deleted.
func (l *Ledger) Resolve(ctx context.Context, file models.FileRef) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM appended_files WHERE file_key = ?`, file.Key()); err != nil {
		return fmt.Errorf("resolving ledger entry: %w", err)
	}
	return nil
}

// Entries lists every unresolved file, oldest first. An entry whose object was
// replaced in the source stays here until removed by hand.
func (l *Ledger) Entries(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := l.db.SelectContext(ctx, &entries,
		`SELECT file_key, file_id, file_name, run_id, appended_at FROM appended_files ORDER BY appended_at, file_key`)
	if err != nil {
		return nil, fmt.Errorf("listing ledger entries: %w", err)
	}
	return entries, nil
}
