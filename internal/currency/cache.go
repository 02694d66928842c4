package currency

import (
	"context"

	"cloud.google.com/go/civil"
)

type rateKey struct {
	from string
	to   string
	date civil.Date
}

// RateCache memoises exchange-rate lookups for the lifetime of one batch.
// It is not safe for concurrent use and is meant to be discarded when the batch ends;
// rates are date-sensitive, so entries are never shared across batches.
type RateCache struct {
	repo    RateRepository
	opts    []RateOption
	entries map[rateKey]*ExchangeRate
	misses  int
}

// NewRateCache returns an empty cache over repo. opts apply to every lookup.
func NewRateCache(repo RateRepository, opts ...RateOption) *RateCache {
	return &RateCache{
		repo:    repo,
		opts:    opts,
		entries: make(map[rateKey]*ExchangeRate),
	}
}

// Rate returns the exchange rate for the key, consulting the repository only on first use.
// A "no rate" outcome is cached as well; errors are not.
func (c *RateCache) Rate(ctx context.Context, from, to string, date civil.Date) (*ExchangeRate, error) {
	key := rateKey{from: normalizeCode(from), to: normalizeCode(to), date: date}
	if rate, ok := c.entries[key]; ok {
		return rate, nil
	}

	c.misses++
	rate, err := GetExchangeRate(ctx, c.repo, key.from, key.to, date, c.opts...)
	if err != nil {
		return nil, err
	}
	c.entries[key] = rate
	return rate, nil
}

// Convert converts amount using the cached rate for its key.
func (c *RateCache) Convert(ctx context.Context, amount float64, from, to string, date civil.Date) (*ConversionResult, error) {
	rate, err := c.Rate(ctx, from, to, date)
	if err != nil {
		return nil, err
	}
	return newConversion(amount, from, to, date, rate), nil
}

// Len is the number of distinct keys seen.
func (c *RateCache) Len() int {
	return len(c.entries)
}

// Misses is the number of lookups that went past the cache.
func (c *RateCache) Misses() int {
	return c.misses
}

// Close drops every entry.
func (c *RateCache) Close() {
	c.entries = make(map[rateKey]*ExchangeRate)
}
