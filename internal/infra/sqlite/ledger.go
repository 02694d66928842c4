package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// InsertLedgerTransactions adds rows to the ledger, replacing rows with the same ID.
func (s *Store) InsertLedgerTransactions(ctx context.Context, txs []domain.LedgerTransaction) error {
	if len(txs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("InsertLedgerTransactions: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR REPLACE INTO transactions
	(transaction_id, user_id, transaction_date, amount, currency, vendor, raw_description)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("InsertLedgerTransactions: prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, t := range txs {
		if _, err := stmt.ExecContext(ctx, t.ID, t.UserID, t.TransactionDate.String(), t.Amount, t.Currency,
			nullString(t.Vendor), nullString(t.Description)); err != nil {
			return fmt.Errorf("InsertLedgerTransactions: %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("InsertLedgerTransactions: commit: %w", err)
	}
	return nil
}

// QueryLedgerTransactions returns the user's ledger rows dated within [from, to].
func (s *Store) QueryLedgerTransactions(ctx context.Context, userID string, from, to civil.Date) ([]domain.LedgerTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT transaction_id, user_id, transaction_date, amount, currency, vendor, raw_description
	FROM transactions
	WHERE user_id = ? AND transaction_date >= ? AND transaction_date <= ?
	ORDER BY transaction_date, transaction_id
	`, userID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("QueryLedgerTransactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.LedgerTransaction
	for rows.Next() {
		var (
			t            domain.LedgerTransaction
			date         string
			vendor, desc sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.UserID, &date, &t.Amount, &t.Currency, &vendor, &desc); err != nil {
			return nil, fmt.Errorf("QueryLedgerTransactions: scan: %w", err)
		}
		if t.TransactionDate, err = civil.ParseDate(date); err != nil {
			return nil, fmt.Errorf("QueryLedgerTransactions: %s: %w", t.ID, err)
		}
		t.Vendor = vendor.String
		t.Description = desc.String
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
