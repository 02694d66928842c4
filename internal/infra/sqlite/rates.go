package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/statement-reconciler/internal/currency"
)

// UpsertRate stores the rate for one currency pair and day.
func (s *Store) UpsertRate(ctx context.Context, from, to string, date civil.Date, rate float64) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO exchange_rates (from_currency, to_currency, rate_date, rate)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (from_currency, to_currency, rate_date) DO UPDATE SET rate = excluded.rate
	`, from, to, date.String(), rate)
	if err != nil {
		return fmt.Errorf("UpsertRate: %w", err)
	}
	return nil
}

// FindExactRate returns the rate for date, or nil.
func (s *Store) FindExactRate(ctx context.Context, from, to string, date civil.Date) (*currency.RateRecord, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT rate, rate_date FROM exchange_rates
	WHERE from_currency = ? AND to_currency = ? AND rate_date = ?
	`, from, to, date.String())
	rec, err := scanRate(row)
	if err != nil {
		return nil, fmt.Errorf("FindExactRate: %w", err)
	}
	return rec, nil
}

// FindNearestRate returns the closest rate within windowDays; ties prefer the earlier date.
func (s *Store) FindNearestRate(ctx context.Context, from, to string, date civil.Date, windowDays int) (*currency.RateRecord, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT rate, rate_date FROM exchange_rates
	WHERE from_currency = ? AND to_currency = ? AND rate_date BETWEEN ? AND ?
	ORDER BY ABS(julianday(rate_date) - julianday(?)) ASC, rate_date ASC
	LIMIT 1
	`, from, to, date.AddDays(-windowDays).String(), date.AddDays(windowDays).String(), date.String())
	rec, err := scanRate(row)
	if err != nil {
		return nil, fmt.Errorf("FindNearestRate: %w", err)
	}
	return rec, nil
}

func scanRate(row *sql.Row) (*currency.RateRecord, error) {
	var (
		rate float64
		date string
	)
	err := row.Scan(&rate, &date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d, err := civil.ParseDate(date)
	if err != nil {
		return nil, err
	}
	return &currency.RateRecord{Rate: rate, Date: d}, nil
}
