// Package persistence implements the positions/alerts/regime_alerts/
// provider_config repositories the core consumes, on top of
// a single SQLite database opened in WAL mode.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Profile selects the PRAGMA set applied at connection time.
type Profile string

const (
	ProfileLedger   Profile = "ledger"   // append-only alert history: maximum safety
	ProfileCache    Profile = "cache"    // bar cache: maximum speed
	ProfileStandard Profile = "standard" // positions, regime, provider config
)

// DB wraps the sqlite connection with the profile used to open it.
type DB struct {
	conn    *sql.DB
	path    string
	profile Profile
}

// Open opens (creating if necessary) a WAL-mode sqlite database at path
// with the PRAGMAs appropriate for profile, and applies the schema.
func Open(path string, profile Profile) (*DB, error) {
	if !strings.HasPrefix(path, "file:") {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		path = absPath
	}
	if profile == "" {
		profile = ProfileStandard
	}

	conn, err := sql.Open("sqlite", connectionString(path, profile))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1) // modernc.org/sqlite is a single-process driver; serialize writers
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{conn: conn, path: path, profile: profile}
	if err := db.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func connectionString(path string, profile Profile) string {
	cs := path + "?_pragma=journal_mode(WAL)"
	switch profile {
	case ProfileLedger:
		cs += "&_pragma=synchronous(FULL)"
		cs += "&_pragma=auto_vacuum(NONE)"
	case ProfileCache:
		cs += "&_pragma=synchronous(OFF)"
		cs += "&_pragma=auto_vacuum(FULL)"
		cs += "&_pragma=temp_store(MEMORY)"
	default:
		cs += "&_pragma=synchronous(NORMAL)"
		cs += "&_pragma=auto_vacuum(INCREMENTAL)"
		cs += "&_pragma=temp_store(MEMORY)"
	}
	cs += "&_pragma=foreign_keys(1)"
	cs += "&_pragma=busy_timeout(5000)"
	return cs
}

// Close closes the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

// Conn exposes the raw *sql.DB for repositories in this package.
func (db *DB) Conn() *sql.DB { return db.conn }

// HealthCheck pings and runs an integrity check; used by GET_STATUS.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	var result string
	if err := db.conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// WALCheckpoint forces a WAL checkpoint; used by the Maintenance thread.
func (db *DB) WALCheckpoint(mode string) error {
	if mode == "" {
		mode = "TRUNCATE"
	}
	_, err := db.conn.Exec(fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode))
	if err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

// WithTx runs fn inside a scoped session: begin, fn, commit-or-rollback,
// close — never shared across goroutines.
func WithTx(ctx context.Context, db *DB, fn func(*sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS positions (
	id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	portfolio TEXT NOT NULL,
	state REAL NOT NULL,
	data TEXT NOT NULL, -- JSON-encoded models.Position
	updated_at TEXT NOT NULL,
	UNIQUE(symbol, portfolio)
);
CREATE INDEX IF NOT EXISTS idx_positions_state ON positions(state);

CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	position_id TEXT,
	alert_type TEXT NOT NULL,
	subtype TEXT NOT NULL,
	priority INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	acknowledged INTEGER NOT NULL DEFAULT 0,
	acknowledged_at TEXT,
	data TEXT NOT NULL -- JSON-encoded models.Alert
);
CREATE INDEX IF NOT EXISTS idx_alerts_symbol_subtype ON alerts(symbol, subtype);
CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);

CREATE TABLE IF NOT EXISTS regime_alerts (
	date TEXT PRIMARY KEY, -- YYYY-MM-DD, one row per calendar day
	data TEXT NOT NULL -- JSON-encoded models.MarketRegimeAlert
);

CREATE TABLE IF NOT EXISTS provider_config (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	domain TEXT NOT NULL,
	priority INTEGER NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1,
	data TEXT NOT NULL -- JSON-encoded models.ProviderConfig
);
CREATE INDEX IF NOT EXISTS idx_provider_config_domain ON provider_config(domain, priority);

CREATE TABLE IF NOT EXISTS provider_credentials (
	provider_id TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (provider_id, key)
);
`

func (db *DB) migrate(ctx context.Context) error {
	return WithTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.Exec(schema)
		return err
	})
}
