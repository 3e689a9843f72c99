package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// SQLiteStore is a SQLite-backed session history
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the history database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// - _journal_mode=WAL: extract/history may read while supervise writes
	// - _busy_timeout=10000: wait up to 10 seconds when the database is locked
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		log_path TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME NOT NULL,
		attempts INTEGER NOT NULL,
		crashes INTEGER NOT NULL,
		clean_exits INTEGER NOT NULL,
		spawn_failures INTEGER NOT NULL,
		initial_balance TEXT,
		final_balance TEXT,
		opportunities INTEGER NOT NULL DEFAULT 0,
		bundles_sent INTEGER NOT NULL DEFAULT 0,
		bundles_landed INTEGER NOT NULL DEFAULT 0,
		profit_sum TEXT,
		report TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Save inserts or replaces a session record
func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions
		(id, log_path, started_at, ended_at, attempts, crashes, clean_exits, spawn_failures,
		 initial_balance, final_balance, opportunities, bundles_sent, bundles_landed, profit_sum, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.SessionID, rec.LogPath, rec.StartedAt.UTC(), rec.EndedAt.UTC(),
		rec.Attempts, rec.Crashes, rec.CleanExits, rec.SpawnFailures,
		nullDecimal(rec.InitialBalance), nullDecimal(rec.FinalBalance),
		rec.Opportunities, rec.BundlesSent, rec.BundlesLanded, nullDecimal(rec.ProfitSum), rec.Report)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", rec.SessionID, err)
	}
	return nil
}

const selectColumns = `
	SELECT id, log_path, started_at, ended_at, attempts, crashes, clean_exits, spawn_failures,
	       initial_balance, final_balance, opportunities, bundles_sent, bundles_landed, profit_sum, report
	FROM sessions`

// Get retrieves a record by session ID
func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, sessionID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// List returns records newest first, at most limit (all if limit <= 0)
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*Record, error) {
	query := selectColumns + ` ORDER BY started_at DESC, id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec                       Record
		initial, final, profitSum sql.NullString
		report                    sql.NullString
	)
	err := row.Scan(&rec.SessionID, &rec.LogPath, &rec.StartedAt, &rec.EndedAt,
		&rec.Attempts, &rec.Crashes, &rec.CleanExits, &rec.SpawnFailures,
		&initial, &final, &rec.Opportunities, &rec.BundlesSent, &rec.BundlesLanded, &profitSum, &report)
	if err != nil {
		return nil, err
	}

	if rec.InitialBalance, err = parseNullDecimal(initial); err != nil {
		return nil, err
	}
	if rec.FinalBalance, err = parseNullDecimal(final); err != nil {
		return nil, err
	}
	if rec.ProfitSum, err = parseNullDecimal(profitSum); err != nil {
		return nil, err
	}
	rec.Report = report.String
	return &rec, nil
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal %q in history: %w", s.String, err)
	}
	return &d, nil
}
