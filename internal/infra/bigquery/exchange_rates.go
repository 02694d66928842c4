package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/statement-reconciler/internal/currency"
)

// RateRow is one row of exchange_rates.
type RateRow struct {
	FromCurrency string     `bigquery:"from_currency"` // REQUIRED
	ToCurrency   string     `bigquery:"to_currency"`   // REQUIRED
	RateDate     civil.Date `bigquery:"rate_date"`     // REQUIRED
	Rate         float64    `bigquery:"rate"`          // REQUIRED FLOAT64
}

// FindExactRate returns the rate published for date, or nil.
func (s *Store) FindExactRate(ctx context.Context, from, to string, date civil.Date) (*currency.RateRecord, error) {
	return FindExactRateWithClient(ctx, s.client, s.tables(), from, to, date)
}

// FindExactRateWithClient returns the rate published for date, or nil.
func FindExactRateWithClient(ctx context.Context, client *bigquery.Client, t Tables, from, to string, date civil.Date) (*currency.RateRecord, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT from_currency, to_currency, rate_date, rate
		FROM %s
		WHERE from_currency = @from_currency
		  AND to_currency = @to_currency
		  AND rate_date = @rate_date
		LIMIT 1
	`, t.Name(ExchangeRatesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "from_currency", Value: from},
		{Name: "to_currency", Value: to},
		{Name: "rate_date", Value: date},
	}
	return readRate(ctx, q, "FindExactRate")
}

// FindNearestRate returns the rate closest to date within windowDays, or nil.
func (s *Store) FindNearestRate(ctx context.Context, from, to string, date civil.Date, windowDays int) (*currency.RateRecord, error) {
	return FindNearestRateWithClient(ctx, s.client, s.tables(), from, to, date, windowDays)
}

// FindNearestRateWithClient orders by distance from date; on a tie the earlier rate wins.
func FindNearestRateWithClient(ctx context.Context, client *bigquery.Client, t Tables, from, to string, date civil.Date, windowDays int) (*currency.RateRecord, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT from_currency, to_currency, rate_date, rate
		FROM %s
		WHERE from_currency = @from_currency
		  AND to_currency = @to_currency
		  AND rate_date BETWEEN DATE_SUB(@rate_date, INTERVAL @window DAY)
		                    AND DATE_ADD(@rate_date, INTERVAL @window DAY)
		ORDER BY ABS(DATE_DIFF(rate_date, @rate_date, DAY)) ASC, rate_date ASC
		LIMIT 1
	`, t.Name(ExchangeRatesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "from_currency", Value: from},
		{Name: "to_currency", Value: to},
		{Name: "rate_date", Value: date},
		{Name: "window", Value: int64(windowDays)},
	}
	return readRate(ctx, q, "FindNearestRate")
}

// UpsertRate stores a rate, replacing any rate already published for the same day.
func (s *Store) UpsertRate(ctx context.Context, from, to string, date civil.Date, rate float64) error {
	q := s.client.Query(fmt.Sprintf(`
		MERGE %s r
		USING (SELECT @from_currency AS from_currency, @to_currency AS to_currency, @rate_date AS rate_date, @rate AS rate) n
		ON r.from_currency = n.from_currency AND r.to_currency = n.to_currency AND r.rate_date = n.rate_date
		WHEN MATCHED THEN UPDATE SET rate = n.rate
		WHEN NOT MATCHED THEN INSERT (from_currency, to_currency, rate_date, rate)
		  VALUES (n.from_currency, n.to_currency, n.rate_date, n.rate)
	`, s.tables().Name(ExchangeRatesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "from_currency", Value: from},
		{Name: "to_currency", Value: to},
		{Name: "rate_date", Value: date},
		{Name: "rate", Value: rate},
	}
	_, err := runDML(ctx, q, "UpsertRate")
	return err
}

func readRate(ctx context.Context, q *bigquery.Query, op string) (*currency.RateRecord, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: reading query: %w", op, err)
	}

	var row RateRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: reading row: %w", op, err)
	}
	return &currency.RateRecord{Rate: row.Rate, Date: row.RateDate}, nil
}
