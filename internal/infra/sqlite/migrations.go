package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dvloznov/statement-reconciler/internal/logger"
)

// Migration represents a database schema migration.
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

var allMigrations = []Migration{
	{Version: 1, Name: "statement_uploads", Up: migration001Uploads},
	{Version: 2, Name: "ledger_and_rates", Up: migration002LedgerAndRates},
	{Version: 3, Name: "statement_extractions", Up: migration003Extractions},
}

// runMigrations executes all pending migrations, each in its own transaction.
func (s *Store) runMigrations(ctx context.Context) error {
	log := logger.FromContext(ctx)

	if _, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, m := range allMigrations {
		if applied[m.Version] {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", m.Version, err)
		}
		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.Version, m.Name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}

		log.Debug().Int("version", m.Version).Str("name", m.Name).Msg("Applied migration")
	}
	return nil
}

func (s *Store) appliedMigrations(ctx context.Context) (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, q := range queries {
		if _, err := tx.Exec(q); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

func migration001Uploads(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE IF NOT EXISTS statement_uploads (
			upload_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			file_path TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			transactions_extracted INTEGER NOT NULL DEFAULT 0,
			transactions_matched INTEGER NOT NULL DEFAULT 0,
			transactions_new INTEGER NOT NULL DEFAULT 0,
			extraction_started_at TEXT,
			extraction_completed_at TEXT,
			extraction_error TEXT,
			extraction_log TEXT,
			statement_period_start TEXT,
			statement_period_end TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_statement_uploads_status
		 ON statement_uploads(status, created_at)`,
	})
}

func migration002LedgerAndRates(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			transaction_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			transaction_date TEXT NOT NULL,
			amount REAL NOT NULL,
			currency TEXT NOT NULL,
			vendor TEXT,
			raw_description TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_date
		 ON transactions(user_id, transaction_date)`,

		`CREATE TABLE IF NOT EXISTS exchange_rates (
			from_currency TEXT NOT NULL,
			to_currency TEXT NOT NULL,
			rate_date TEXT NOT NULL,
			rate REAL NOT NULL,
			PRIMARY KEY (from_currency, to_currency, rate_date)
		)`,
	})
}

func migration003Extractions(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE IF NOT EXISTS statement_extractions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			upload_id TEXT NOT NULL REFERENCES statement_uploads(upload_id),
			parser_used TEXT,
			page_count INTEGER,
			confidence REAL,
			statement_period_start TEXT,
			statement_period_end TEXT,
			warnings_json TEXT NOT NULL DEFAULT '[]',
			transactions_json TEXT NOT NULL DEFAULT '[]',
			suggestions_json TEXT NOT NULL DEFAULT '[]',
			log_json TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_statement_extractions_upload
		 ON statement_extractions(upload_id)`,
	})
}
