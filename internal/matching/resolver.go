package matching

import (
	"context"
	"fmt"

	"github.com/dvloznov/statement-reconciler/internal/currency"
	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/logger"
)

// ProgressFunc is told how many transactions have been resolved so far.
type ProgressFunc func(done, total int)

// Resolver picks the best ledger match for each extracted transaction.
type Resolver struct {
	rates currency.RateRepository
	cfg   Config
}

// NewResolver returns a Resolver. rates may be nil when no exchange-rate source is
// configured; cross-currency candidates then never match on amount.
func NewResolver(rates currency.RateRepository, cfg Config) *Resolver {
	return &Resolver{rates: rates, cfg: cfg.withDefaults()}
}

// ResolveAll returns one Suggestion per extracted transaction, in input order.
// A ledger transaction is consumed by the first extracted transaction it matches.
// Exchange rates are cached for the duration of the call only.
func (r *Resolver) ResolveAll(ctx context.Context, extracted []domain.ExtractedTransaction, ledger []domain.LedgerTransaction, progress ProgressFunc) ([]Suggestion, error) {
	log := logger.FromContext(ctx)

	var converter Converter
	var cache *currency.RateCache
	if r.rates != nil {
		cache = currency.NewRateCache(r.rates, currency.WithMaxDaysBack(r.cfg.MaxRateDaysBack))
		defer cache.Close()
		converter = cache
	}
	scorer := NewScorer(r.cfg, converter)

	used := make(map[string]bool)
	suggestions := make([]Suggestion, 0, len(extracted))

	for i, tx := range extracted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		scored := make([]MatchCandidate, 0, len(ledger))
		for _, candidate := range ledger {
			if used[candidate.ID] {
				continue
			}
			c, err := scorer.Score(ctx, tx, candidate)
			if err != nil {
				return nil, fmt.Errorf("ResolveAll: transaction %d: %w", i, err)
			}
			scored = append(scored, c)
		}

		s := Rank(tx, scored, r.cfg)
		if s.BestMatch != nil {
			used[s.BestMatch.Target.ID] = true
		}
		suggestions = append(suggestions, s)

		log.Debug().
			Int("index", i).
			Str("status", string(s.Status)).
			Int("confidence", s.Confidence).
			Str("matched_transaction_id", s.MatchedTransactionID()).
			Msg("Resolved transaction")

		if progress != nil {
			progress(i+1, len(extracted))
		}
	}

	if cache != nil {
		log.Debug().
			Int("rate_keys", cache.Len()).
			Int("rate_misses", cache.Misses()).
			Msg("Exchange rate cache stats")
	}

	return suggestions, nil
}
