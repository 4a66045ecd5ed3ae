package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// A single connection serialises writers, so every status transition
	// runs without SQLITE_BUSY and pragmas apply to the one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			merchant_transaction_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			payment_details TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			variant TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL,
			address TEXT NOT NULL,
			fulfillment_status TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at)`,

		`CREATE TABLE IF NOT EXISTS donations (
			id TEXT PRIMARY KEY,
			merchant_transaction_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			payment_details TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_donations_status ON donations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_donations_created_at ON donations(created_at)`,

		`CREATE TABLE IF NOT EXISTS totals (
			kind TEXT NOT NULL,
			currency TEXT NOT NULL,
			amount INTEGER NOT NULL,
			count INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (kind, currency)
		)`,

		`CREATE TABLE IF NOT EXISTS leaderboard (
			kind TEXT NOT NULL,
			currency TEXT NOT NULL,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			amount INTEGER NOT NULL,
			count INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (kind, currency, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_rank ON leaderboard(kind, currency, amount DESC)`,

		`CREATE TABLE IF NOT EXISTS callback_logs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			merchant_transaction_id TEXT,
			verified INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			payload TEXT NOT NULL,
			received_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_callback_logs_txn ON callback_logs(merchant_transaction_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}

	return nil
}

// Store is the SQLite implementation of the order/donation record store.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open initialises the database at path and wraps it in a Store.
func Open(path string) (*Store, error) {
	db, err := InitDB(path)
	if err != nil {
		return nil, err
	}
	return NewStore(db), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
