package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverLibSQL   = "libsql"
	DriverPostgres = "postgres"
)

// DefaultSQLitePath is where the sqlite backend keeps its file.
const DefaultSQLitePath = "data/matchups.db"

// Options selects and configures a backend.
type Options struct {
	Driver    string
	DSN       string // sqlite file path, libsql URL or postgres URL
	AuthToken string // libsql only
	ReadOnly  bool
}

// Open connects to the configured backend and, unless read-only, creates the schema.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Driver) {
	case "", DriverSQLite:
		return openSQLite(ctx, opts)
	case DriverLibSQL, "turso":
		return openLibSQL(ctx, opts)
	case DriverPostgres, "postgresql", "pgx":
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres: database url is required")
		}
		return openPostgres(ctx, opts.DSN, opts.ReadOnly)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
}

func openSQLite(ctx context.Context, opts Options) (Store, error) {
	path := opts.DSN
	if path == "" {
		path = DefaultSQLitePath
	}

	memory := path == ":memory:"
	if !memory && !opts.ReadOnly && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path, opts.ReadOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// Each connection to :memory: is its own database.
	if memory {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	s, err := newSQLStore(ctx, db, opts.ReadOnly)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func sqliteDSN(path string, readOnly bool) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	if readOnly {
		q.Set("mode", "ro")
	} else {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	return "file:" + path + "?" + q.Encode()
}

func openLibSQL(ctx context.Context, opts Options) (Store, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("libsql: database url is required")
	}
	connStr := opts.DSN
	if opts.AuthToken != "" {
		sep := "?"
		if strings.Contains(connStr, "?") {
			sep = "&"
		}
		connStr = fmt.Sprintf("%s%sauthToken=%s", connStr, sep, url.QueryEscape(opts.AuthToken))
	}

	db, err := sql.Open("libsql", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Turso: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping Turso: %w", err)
	}

	s, err := newSQLStore(ctx, db, opts.ReadOnly)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
