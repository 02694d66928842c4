// Package matching reconciles extracted statement transactions against ledger transactions.
//
// Each candidate is scored on three signals (amount, date and vendor) and the scores
// are combined into a 0..100 composite, capped when a weak signal makes the
// combination untrustworthy. Candidates are then ranked into a Suggestion per
// extracted transaction.
package matching

import "github.com/dvloznov/statement-reconciler/internal/currency"

// Config holds matching parameters. Zero values fall back to DefaultConfig.
type Config struct {
	MinMatchScore       int
	DateToleranceDays   int
	MinVendorSimilarity int
	VendorAliases       map[string][]string
	RequireVendorMatch  bool
	RequireDateMatch    bool
	Weights             Weights

	MaxSuggestions         int
	AutoMatchThreshold     int
	ClearWinnerGap         int
	LowConfidenceThreshold int

	MaxRateDaysBack int
}

// DefaultConfig returns sensible defaults for statement reconciliation.
func DefaultConfig() Config {
	return Config{
		MinMatchScore:          MediumConfidenceThreshold,
		DateToleranceDays:      defaultMaxDaysDiff,
		MinVendorSimilarity:    defaultMinSimilarity,
		Weights:                DefaultWeights,
		MaxSuggestions:         3,
		AutoMatchThreshold:     HighConfidenceThreshold,
		ClearWinnerGap:         10,
		LowConfidenceThreshold: MediumConfidenceThreshold,
		MaxRateDaysBack:        currency.DefaultMaxDaysBack,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinMatchScore <= 0 {
		c.MinMatchScore = d.MinMatchScore
	}
	if c.DateToleranceDays <= 0 {
		c.DateToleranceDays = d.DateToleranceDays
	}
	if c.MinVendorSimilarity <= 0 {
		c.MinVendorSimilarity = d.MinVendorSimilarity
	}
	if c.Weights == (Weights{}) {
		c.Weights = d.Weights
	}
	if c.MaxSuggestions <= 0 {
		c.MaxSuggestions = d.MaxSuggestions
	}
	if c.AutoMatchThreshold <= 0 {
		c.AutoMatchThreshold = d.AutoMatchThreshold
	}
	if c.ClearWinnerGap <= 0 {
		c.ClearWinnerGap = d.ClearWinnerGap
	}
	if c.LowConfidenceThreshold <= 0 {
		c.LowConfidenceThreshold = d.LowConfidenceThreshold
	}
	if c.MaxRateDaysBack <= 0 {
		c.MaxRateDaysBack = d.MaxRateDaysBack
	}
	return c
}
