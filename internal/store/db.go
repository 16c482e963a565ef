// Package store persists units, contracts and the payment ledger. Queries
// are built with ent's dialect-aware SQL builder so the same code runs on
// SQLite (default, and tests) and Postgres.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/lib/pq"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a row changed between read and write.
	ErrConflict = errors.New("concurrent update")
	// ErrUnitUnavailable is returned when a unit already has a contract.
	ErrUnitUnavailable = errors.New("unit is not available")
)

const (
	tableUnits     = "units"
	tableContracts = "contracts"
	tablePayments  = "payment_entries"

	dateLayout = "2006-01-02"
	// Fixed width so that text ordering matches time ordering.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLStore implements the ledger storage on database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect string
	log     *zap.Logger
}

// New wraps an open database. dialectName is an ent dialect name
// (dialect.SQLite or dialect.Postgres).
func New(db *sql.DB, dialectName string, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{db: db, dialect: dialectName, log: logger}
}

// Open connects to the database named by kind ("sqlite" or "postgres").
func Open(ctx context.Context, kind, dsn string, logger *zap.Logger) (*SQLStore, error) {
	var (
		driverName  string
		dialectName string
	)
	switch kind {
	case "", "sqlite":
		driverName, dialectName = "sqlite", dialect.SQLite
	case "postgres":
		driverName, dialectName = "postgres", dialect.Postgres
	default:
		return nil, fmt.Errorf("unsupported database dialect %q", kind)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if dialectName == dialect.SQLite {
		// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling foreign keys: %w", err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return New(db, dialectName, logger), nil
}

// DB exposes the underlying handle, shared with the activity store.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Dialect returns the ent dialect name in use.
func (s *SQLStore) Dialect() string { return s.dialect }

// Close closes the database.
func (s *SQLStore) Close() error { return s.db.Close() }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS units (
		id          TEXT PRIMARY KEY,
		agency_id   TEXT NOT NULL,
		reference   TEXT NOT NULL,
		title       TEXT NOT NULL,
		status      TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL,
		created_by  TEXT NOT NULL,
		updated_by  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS contracts (
		id                 TEXT PRIMARY KEY,
		agency_id          TEXT NOT NULL,
		unit_id            TEXT NOT NULL REFERENCES units(id),
		tenant_name        TEXT NOT NULL,
		kind               TEXT NOT NULL,
		status             TEXT NOT NULL,
		start_date         TEXT NOT NULL,
		rent_end_date      TEXT,
		monthly_price      BIGINT NOT NULL,
		currency           TEXT NOT NULL,
		is_paid            BOOLEAN NOT NULL DEFAULT FALSE,
		paid_months        TEXT NOT NULL DEFAULT '[]',
		paid_months_count  INTEGER NOT NULL DEFAULT 0,
		terminated_on      TEXT,
		version            BIGINT NOT NULL DEFAULT 1,
		created_at         TEXT NOT NULL,
		updated_at         TEXT NOT NULL,
		created_by         TEXT NOT NULL,
		updated_by         TEXT NOT NULL,
		source             TEXT NOT NULL,
		correlation_id     TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contracts_agency_status ON contracts (agency_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_contracts_unit ON contracts (unit_id)`,
	`CREATE TABLE IF NOT EXISTS payment_entries (
		id               TEXT PRIMARY KEY,
		contract_id      TEXT NOT NULL REFERENCES contracts(id),
		method           TEXT NOT NULL,
		amount           BIGINT NOT NULL,
		currency         TEXT NOT NULL,
		paid_on          TEXT NOT NULL,
		months_count     INTEGER NOT NULL,
		months           TEXT NOT NULL,
		reference        TEXT NOT NULL DEFAULT '',
		idempotency_key  TEXT,
		created_at       TEXT NOT NULL,
		created_by       TEXT NOT NULL,
		source           TEXT NOT NULL,
		correlation_id   TEXT,
		UNIQUE (contract_id, idempotency_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_entries_contract ON payment_entries (contract_id, paid_on)`,
}

// Migrate creates the ledger tables when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating ledger schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.dialect)
}

// withTx runs fn in a transaction, rolling back on error.
func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatDate(*t), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func optionalDate(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// isUniqueViolation reports whether err is a unique constraint failure on
// either backend.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
