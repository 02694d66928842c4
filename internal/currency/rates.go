// Package currency converts amounts between currencies using historical exchange rates.
//
// Rates are read from a RateRepository. When no rate exists for the exact date the
// nearest rate inside a bounded window is used and flagged as approximate. A missing
// rate is reported as a nil result, never as an error; errors are reserved for
// repository faults.
package currency

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
)

// DefaultMaxDaysBack bounds the approximate-rate search in either direction.
const DefaultMaxDaysBack = 30

// RateRecord is a stored rate for one currency pair on one date.
type RateRecord struct {
	Rate float64
	Date civil.Date
}

// RateRepository is the read-only source of historical exchange rates.
// Both methods return (nil, nil) when nothing is found.
type RateRepository interface {
	// FindExactRate returns the rate recorded on date.
	FindExactRate(ctx context.Context, from, to string, date civil.Date) (*RateRecord, error)

	// FindNearestRate returns the rate closest to date within windowDays before or after it.
	// Ties prefer the earlier date.
	FindNearestRate(ctx context.Context, from, to string, date civil.Date, windowDays int) (*RateRecord, error)
}

// ExchangeRate is the rate chosen for a conversion.
// IsExact is false when Date differs from the requested date.
type ExchangeRate struct {
	Rate    float64    `json:"rate"`
	Date    civil.Date `json:"date"`
	IsExact bool       `json:"is_exact"`
}

type rateOptions struct {
	allowApproximate bool
	maxDaysBack      int
}

// RateOption adjusts GetExchangeRate.
type RateOption func(*rateOptions)

// WithAllowApproximate controls whether a nearby date may stand in for a missing exact rate.
func WithAllowApproximate(allow bool) RateOption {
	return func(o *rateOptions) { o.allowApproximate = allow }
}

// WithMaxDaysBack sets the approximate search window in days.
func WithMaxDaysBack(days int) RateOption {
	return func(o *rateOptions) { o.maxDaysBack = days }
}

func buildRateOptions(opts []RateOption) rateOptions {
	o := rateOptions{allowApproximate: true, maxDaysBack: DefaultMaxDaysBack}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxDaysBack < 0 {
		o.maxDaysBack = 0
	}
	return o
}

// GetExchangeRate finds the rate converting from into to on date.
// Identity pairs resolve to 1 without touching the repository.
func GetExchangeRate(ctx context.Context, repo RateRepository, from, to string, date civil.Date, opts ...RateOption) (*ExchangeRate, error) {
	from, to = normalizeCode(from), normalizeCode(to)
	if from == to {
		return &ExchangeRate{Rate: 1, Date: date, IsExact: true}, nil
	}

	o := buildRateOptions(opts)

	exact, err := repo.FindExactRate(ctx, from, to, date)
	if err != nil {
		return nil, fmt.Errorf("GetExchangeRate: exact %s/%s on %s: %w", from, to, date, err)
	}
	if exact != nil {
		return &ExchangeRate{Rate: exact.Rate, Date: exact.Date, IsExact: true}, nil
	}

	if !o.allowApproximate {
		return nil, nil
	}

	nearest, err := repo.FindNearestRate(ctx, from, to, date, o.maxDaysBack)
	if err != nil {
		return nil, fmt.Errorf("GetExchangeRate: nearest %s/%s around %s: %w", from, to, date, err)
	}
	if nearest == nil {
		return nil, nil
	}
	if abs(nearest.Date.DaysSince(date)) > o.maxDaysBack {
		return nil, nil
	}

	return &ExchangeRate{Rate: nearest.Rate, Date: nearest.Date, IsExact: nearest.Date == date}, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
