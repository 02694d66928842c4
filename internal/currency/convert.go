package currency

import (
	"context"

	"cloud.google.com/go/civil"
)

// ConversionResult describes one amount converted at a historical rate.
type ConversionResult struct {
	OriginalAmount  float64    `json:"original_amount"`
	FromCurrency    string     `json:"from_currency"`
	ToCurrency      string     `json:"to_currency"`
	ConvertedAmount float64    `json:"converted_amount"`
	Rate            float64    `json:"rate"`
	RateDate        civil.Date `json:"rate_date"`
	IsExactRate     bool       `json:"is_exact_rate"`
	RateDaysDiff    int        `json:"rate_days_diff"`
}

// ConversionRequest is one entry of a batch conversion.
type ConversionRequest struct {
	Amount       float64
	FromCurrency string
	ToCurrency   string
	Date         civil.Date
}

// ConvertAmount converts amount on date. A nil result means no usable rate exists;
// callers must treat that as "cannot reconcile", not as zero.
func ConvertAmount(ctx context.Context, repo RateRepository, amount float64, from, to string, date civil.Date) (*ConversionResult, error) {
	rate, err := GetExchangeRate(ctx, repo, from, to, date)
	if err != nil {
		return nil, err
	}
	return newConversion(amount, from, to, date, rate), nil
}

// ConvertAmountsBatch converts every request, querying the repository at most once
// per distinct (from, to, date). The result is keyed by request index; entries are
// nil where no rate was found.
func ConvertAmountsBatch(ctx context.Context, repo RateRepository, requests []ConversionRequest) (map[int]*ConversionResult, error) {
	cache := NewRateCache(repo)
	defer cache.Close()

	results := make(map[int]*ConversionResult, len(requests))
	for i, req := range requests {
		conv, err := cache.Convert(ctx, req.Amount, req.FromCurrency, req.ToCurrency, req.Date)
		if err != nil {
			return nil, err
		}
		results[i] = conv
	}
	return results, nil
}

func newConversion(amount float64, from, to string, date civil.Date, rate *ExchangeRate) *ConversionResult {
	if rate == nil {
		return nil
	}
	return &ConversionResult{
		OriginalAmount:  amount,
		FromCurrency:    normalizeCode(from),
		ToCurrency:      normalizeCode(to),
		ConvertedAmount: amount * rate.Rate,
		Rate:            rate.Rate,
		RateDate:        rate.Date,
		IsExactRate:     rate.IsExact,
		RateDaysDiff:    abs(date.DaysSince(rate.Date)),
	}
}
