// Package duckdb manages the embedded databases the annotation bundles
// are stored in. Each datasource owns its table schema; this package
// provides the connection, bulk appending, and build metadata shared
// between them.
package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"

	goduckdb "github.com/marcboeker/go-duckdb"
	"go.uber.org/multierr"
)

// Store manages a DuckDB connection for one annotation bundle.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create bundle directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the on-disk location, or "" for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// Appender wraps DuckDB's bulk-append API, which loads rows far faster
// than building INSERT statements.
type Appender struct {
	conn *sql.Conn
	app  *goduckdb.Appender
}

// NewAppender opens an appender on the named table.
func (s *Store) NewAppender(table string) (*Appender, error) {
	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}

	var app *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		app, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", table)
		return err
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create appender: %w", err)
	}

	return &Appender{conn: conn, app: app}, nil
}

// AppendRow appends one row; columns must match the table definition.
func (a *Appender) AppendRow(args ...driver.Value) error {
	return a.app.AppendRow(args...)
}

// Flush pushes buffered rows into the table.
func (a *Appender) Flush() error {
	return a.app.Flush()
}

// Close flushes remaining rows and releases the connection.
func (a *Appender) Close() error {
	return multierr.Append(a.app.Close(), a.conn.Close())
}
