package matching

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-reconciler/internal/currency"
	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRates struct {
	rate       *currency.RateRecord
	err        error
	exactCalls int
}

func (s *stubRates) FindExactRate(ctx context.Context, from, to string, date civil.Date) (*currency.RateRecord, error) {
	s.exactCalls++
	return s.rate, s.err
}

func (s *stubRates) FindNearestRate(ctx context.Context, from, to string, date civil.Date, windowDays int) (*currency.RateRecord, error) {
	return nil, s.err
}

func TestResolver_ResolveAll(t *testing.T) {
	ledger := []domain.LedgerTransaction{
		ledgerTx("coffee", "2024-01-15", "Starbucks", 4.5, "USD"),
		ledgerTx("groceries", "2024-01-16", "Whole Foods", 82.1, "USD"),
	}
	txs := []domain.ExtractedTransaction{
		extracted("2024-01-15", "POS STARBUCKS #221", -4.5, "USD"),
		extracted("2024-01-16", "WHOLE FOODS MARKET", -82.1, "USD"),
		extracted("2024-01-20", "NETFLIX.COM", -15.99, "USD"),
	}

	var progress [][2]int
	got, err := NewResolver(nil, DefaultConfig()).ResolveAll(context.Background(), txs, ledger, func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "coffee", got[0].MatchedTransactionID())
	assert.Equal(t, "groceries", got[1].MatchedTransactionID())
	assert.True(t, got[2].IsNew)
	assert.Equal(t, StatusNoMatch, got[2].Status)

	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)
}

func TestResolver_LedgerTransactionUsedOnce(t *testing.T) {
	ledger := []domain.LedgerTransaction{
		ledgerTx("coffee", "2024-01-15", "Starbucks", 4.5, "USD"),
	}
	txs := []domain.ExtractedTransaction{
		extracted("2024-01-15", "Starbucks", 4.5, "USD"),
		extracted("2024-01-15", "Starbucks", 4.5, "USD"),
	}

	got, err := NewResolver(nil, DefaultConfig()).ResolveAll(context.Background(), txs, ledger, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "coffee", got[0].MatchedTransactionID())
	assert.Equal(t, "", got[1].MatchedTransactionID())
	assert.True(t, got[1].IsNew)
}

func TestResolver_CrossCurrencyUsesOneLookupPerKey(t *testing.T) {
	rates := &stubRates{rate: &currency.RateRecord{Rate: 0.028169, Date: mustDate("2024-01-15")}}
	ledger := []domain.LedgerTransaction{
		ledgerTx("grab-1", "2024-01-15", "Grab", 100, "USD"),
		ledgerTx("grab-2", "2024-01-15", "Grab", 50, "USD"),
	}
	txs := []domain.ExtractedTransaction{
		extracted("2024-01-15", "GRAB*RIDE", 3550, "THB"),
		extracted("2024-01-15", "GRAB*FOOD", 1775, "THB"),
	}

	got, err := NewResolver(rates, DefaultConfig()).ResolveAll(context.Background(), txs, ledger, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "grab-1", got[0].MatchedTransactionID())
	require.NotNil(t, got[0].BestMatch.Conversion)
	assert.True(t, got[0].BestMatch.IsCrossCurrency)
	assert.Equal(t, "grab-2", got[1].MatchedTransactionID())
	assert.Equal(t, 1, rates.exactCalls)
}

func TestResolver_LogsRateCacheStats(t *testing.T) {
	var out bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&out))

	rates := &stubRates{rate: &currency.RateRecord{Rate: 0.028169, Date: mustDate("2024-01-15")}}
	ledger := []domain.LedgerTransaction{ledgerTx("grab-1", "2024-01-15", "Grab", 100, "USD")}
	txs := []domain.ExtractedTransaction{
		extracted("2024-01-15", "GRAB*RIDE", 3550, "THB"),
		extracted("2024-01-15", "GRAB*FOOD", 1775, "THB"),
	}

	_, err := NewResolver(rates, DefaultConfig()).ResolveAll(ctx, txs, ledger, nil)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Exchange rate cache stats")
	assert.Contains(t, out.String(), `"rate_keys":1`)
	assert.Contains(t, out.String(), `"rate_misses":1`)
}

func TestResolver_RateFailure(t *testing.T) {
	rates := &stubRates{err: errors.New("timeout")}
	ledger := []domain.LedgerTransaction{ledgerTx("grab-1", "2024-01-15", "Grab", 100, "USD")}
	txs := []domain.ExtractedTransaction{extracted("2024-01-15", "GRAB", 3550, "THB")}

	got, err := NewResolver(rates, DefaultConfig()).ResolveAll(context.Background(), txs, ledger, nil)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, rates.err)
}

func TestResolver_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewResolver(nil, DefaultConfig()).ResolveAll(ctx, []domain.ExtractedTransaction{extracted("2024-01-15", "x", 1, "USD")}, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
