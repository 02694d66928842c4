package bigquery

import (
	"context"
	"fmt"
	"math/big"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// LedgerRow is the subset of the transactions table used for matching.
type LedgerRow struct {
	TransactionID   string     `bigquery:"transaction_id"`   // REQUIRED
	UserID          string     `bigquery:"user_id"`          // REQUIRED
	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED

	Amount   *big.Rat `bigquery:"amount"`   // REQUIRED NUMERIC
	Currency string   `bigquery:"currency"` // REQUIRED STRING

	Vendor         bigquery.NullString `bigquery:"vendor"`          // NULLABLE
	RawDescription bigquery.NullString `bigquery:"raw_description"` // NULLABLE
}

// ToDomain converts the row into a LedgerTransaction.
func (r *LedgerRow) ToDomain() domain.LedgerTransaction {
	var amount float64
	if r.Amount != nil {
		amount, _ = r.Amount.Float64()
	}
	return domain.LedgerTransaction{
		ID:              r.TransactionID,
		UserID:          r.UserID,
		TransactionDate: r.TransactionDate,
		Amount:          amount,
		Currency:        r.Currency,
		Vendor:          r.Vendor.StringVal,
		Description:     r.RawDescription.StringVal,
	}
}

// QueryLedgerTransactions returns the user's ledger rows dated within [from, to].
func (s *Store) QueryLedgerTransactions(ctx context.Context, userID string, from, to civil.Date) ([]domain.LedgerTransaction, error) {
	return QueryLedgerTransactionsWithClient(ctx, s.client, s.tables(), userID, from, to)
}

// QueryLedgerTransactionsWithClient reads ledger rows for one user and date range
// using the provided BigQuery client.
func QueryLedgerTransactionsWithClient(ctx context.Context, client *bigquery.Client, t Tables, userID string, from, to civil.Date) ([]domain.LedgerTransaction, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			transaction_id,
			user_id,
			transaction_date,
			amount,
			currency,
			vendor,
			raw_description
		FROM %s
		WHERE user_id = @user_id
		  AND transaction_date >= @start_date
		  AND transaction_date <= @end_date
		ORDER BY transaction_date, transaction_id
	`, t.Name(TransactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "start_date", Value: from},
		{Name: "end_date", Value: to},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryLedgerTransactions: query read: %w", err)
	}

	var rows []domain.LedgerTransaction
	for {
		var r LedgerRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryLedgerTransactions: iter next: %w", err)
		}
		rows = append(rows, r.ToDomain())
	}

	return rows, nil
}
