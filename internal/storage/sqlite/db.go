// Package sqlite implements the conversation and memory stores on a single
// SQLite database file shared with the chat application.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "modernc.org/sqlite" // SQLite driver
)

// DefaultBusyTimeoutMs is how long a statement waits on a locked database
// before failing with SQLITE_BUSY.
const DefaultBusyTimeoutMs = 5000

// Open opens an existing database file. A missing file is an error: this
// server never creates the conversation database.
//
// The journal mode is left alone because the file belongs to another
// application.
func Open(ctx context.Context, path string, busyTimeoutMs int) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite: database path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: database file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("sqlite: database path %s is a directory", path)
	}
	if busyTimeoutMs <= 0 {
		busyTimeoutMs = DefaultBusyTimeoutMs
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// One connection serialises access, so the stores need no locking of
	// their own and PRAGMAs set below stay in effect.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMs)); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: set busy timeout: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return db, nil
}
