package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func date(t *testing.T, s string) civil.Date {
	t.Helper()
	d, err := civil.ParseDate(s)
	require.NoError(t, err)
	return d
}

func seedUpload(t *testing.T, s *Store, id string) {
	t.Helper()
	require.NoError(t, s.CreateUpload(context.Background(), &domain.StatementUpload{
		ID:       id,
		UserID:   "user-1",
		Filename: "march.pdf",
		FilePath: "statements/march.pdf",
	}))
}

func TestMigrationsAreIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.runMigrations(context.Background()))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, len(allMigrations), count)
}

func TestCreateAndGetUpload(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedUpload(t, s, "up-1")

	u, err := s.GetUpload(ctx, "up-1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, domain.UploadStatusPending, u.Status)
	assert.Equal(t, "user-1", u.UserID)
	assert.Equal(t, "statements/march.pdf", u.FilePath)
	assert.Nil(t, u.ExtractionStartedAt)
	assert.Nil(t, u.PeriodStart)
	assert.False(t, u.CreatedAt.IsZero())

	missing, err := s.GetUpload(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestClaimUpload(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedUpload(t, s, "up-1")
	started := time.Date(2024, 3, 25, 10, 0, 0, 0, time.UTC)

	ok, err := s.ClaimUpload(ctx, "up-1", started, domain.UploadStatusPending, domain.UploadStatusFailed)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ClaimUpload(ctx, "up-1", started, domain.UploadStatusPending, domain.UploadStatusFailed)
	require.NoError(t, err)
	assert.False(t, ok, "a processing upload cannot be claimed again")

	u, err := s.GetUpload(ctx, "up-1")
	require.NoError(t, err)
	assert.Equal(t, domain.UploadStatusProcessing, u.Status)
	require.NotNil(t, u.ExtractionStartedAt)
	assert.True(t, started.Equal(*u.ExtractionStartedAt))

	ok, err = s.ClaimUpload(ctx, "missing", started, domain.UploadStatusPending)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaimUploadConcurrent(t *testing.T) {
	s := openTestStore(t)
	seedUpload(t, s, "up-1")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ClaimUpload(context.Background(), "up-1", time.Now(), domain.UploadStatusPending)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestClaimClearsPreviousFailure(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedUpload(t, s, "up-1")

	failed := domain.UploadStatusFailed
	msg := "Extraction failed: boom"
	done := time.Now()
	require.NoError(t, s.UpdateUpload(ctx, "up-1", domain.UploadPatch{
		Status:                &failed,
		ExtractionError:       &msg,
		ExtractionCompletedAt: &done,
	}))

	ok, err := s.ClaimUpload(ctx, "up-1", time.Now(), domain.UploadStatusFailed)
	require.NoError(t, err)
	require.True(t, ok)

	u, err := s.GetUpload(ctx, "up-1")
	require.NoError(t, err)
	assert.Empty(t, u.ExtractionError)
	assert.Nil(t, u.ExtractionCompletedAt)
}

func TestUpdateUpload(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedUpload(t, s, "up-1")

	completed := domain.UploadStatusCompleted
	extracted, matched, created := 3, 1, 2
	start, end := date(t, "2024-03-01"), date(t, "2024-03-31")
	log := []domain.ProcessingProgress{
		{Step: domain.StageDownloading, Percent: 10, Message: "Downloading PDF from storage"},
		{Step: domain.StageCompleted, Percent: 100, Message: "Processed 3 transactions: 1 matched, 2 new"},
	}

	require.NoError(t, s.UpdateUpload(ctx, "up-1", domain.UploadPatch{
		Status:                &completed,
		TransactionsExtracted: &extracted,
		TransactionsMatched:   &matched,
		TransactionsNew:       &created,
		ExtractionLog:         log,
		PeriodStart:           &start,
		PeriodEnd:             &end,
	}))

	u, err := s.GetUpload(ctx, "up-1")
	require.NoError(t, err)
	assert.Equal(t, domain.UploadStatusCompleted, u.Status)
	assert.Equal(t, 3, u.TransactionsExtracted)
	assert.Equal(t, 1, u.TransactionsMatched)
	assert.Equal(t, 2, u.TransactionsNew)
	assert.Equal(t, log, u.ExtractionLog)
	require.NotNil(t, u.PeriodStart)
	assert.Equal(t, start, *u.PeriodStart)
	assert.Equal(t, end, *u.PeriodEnd)

	// An empty patch is a no-op.
	require.NoError(t, s.UpdateUpload(ctx, "up-1", domain.UploadPatch{}))
}

func TestListUploadsByStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		seedUpload(t, s, id)
	}
	_, err := s.ClaimUpload(ctx, "b", time.Now(), domain.UploadStatusPending)
	require.NoError(t, err)

	pending, err := s.ListUploadsByStatus(ctx, domain.UploadStatusPending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].ID)
	assert.Equal(t, "c", pending[1].ID)

	limited, err := s.ListUploadsByStatus(ctx, domain.UploadStatusPending, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestQueryLedgerTransactions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertLedgerTransactions(ctx, []domain.LedgerTransaction{
		{ID: "t1", UserID: "user-1", TransactionDate: date(t, "2024-03-04"), Amount: 12.5, Currency: "USD", Vendor: "Starbucks"},
		{ID: "t2", UserID: "user-1", TransactionDate: date(t, "2024-03-20"), Amount: 80, Currency: "USD", Description: "AMAZON MKTPLACE"},
		{ID: "t3", UserID: "user-1", TransactionDate: date(t, "2024-04-02"), Amount: 5, Currency: "USD"},
		{ID: "t4", UserID: "user-2", TransactionDate: date(t, "2024-03-05"), Amount: 7, Currency: "USD"},
	}))

	got, err := s.QueryLedgerTransactions(ctx, "user-1", date(t, "2024-03-01"), date(t, "2024-03-31"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].ID)
	assert.Equal(t, "Starbucks", got[0].Vendor)
	assert.Equal(t, "AMAZON MKTPLACE", got[1].Description)
	assert.Empty(t, got[1].Vendor)
}

func TestRates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertRate(ctx, "THB", "USD", date(t, "2024-03-08"), 0.0280))
	require.NoError(t, s.UpsertRate(ctx, "THB", "USD", date(t, "2024-03-12"), 0.0290))
	require.NoError(t, s.UpsertRate(ctx, "THB", "USD", date(t, "2024-03-12"), 0.0295))

	exact, err := s.FindExactRate(ctx, "THB", "USD", date(t, "2024-03-12"))
	require.NoError(t, err)
	require.NotNil(t, exact)
	assert.InDelta(t, 0.0295, exact.Rate, 1e-9)

	none, err := s.FindExactRate(ctx, "THB", "USD", date(t, "2024-03-10"))
	require.NoError(t, err)
	assert.Nil(t, none)

	// 03-10 is two days from both rates; the earlier one wins.
	nearest, err := s.FindNearestRate(ctx, "THB", "USD", date(t, "2024-03-10"), 30)
	require.NoError(t, err)
	require.NotNil(t, nearest)
	assert.Equal(t, date(t, "2024-03-08"), nearest.Date)

	nearest, err = s.FindNearestRate(ctx, "THB", "USD", date(t, "2024-03-11"), 30)
	require.NoError(t, err)
	require.NotNil(t, nearest)
	assert.Equal(t, date(t, "2024-03-12"), nearest.Date)

	outside, err := s.FindNearestRate(ctx, "THB", "USD", date(t, "2024-06-01"), 30)
	require.NoError(t, err)
	assert.Nil(t, outside)
}

func TestSaveExtraction(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedUpload(t, s, "up-1")

	period := &domain.StatementPeriod{Start: date(t, "2024-03-01"), End: date(t, "2024-03-31")}
	rec := domain.ExtractionRecord{
		UploadID:   "up-1",
		ParserUsed: "chase",
		PageCount:  2,
		Confidence: 0.93,
		Period:     period,
		Transactions: []domain.ExtractedTransaction{
			{TransactionDate: date(t, "2024-03-05"), Description: "STARBUCKS #123", Amount: 12.5, Currency: "USD", Type: domain.TransactionTypeDebit},
		},
		Suggestions: []byte(`[{"status":"matched"}]`),
		Log:         []domain.ProcessingProgress{{Step: domain.StageSaving, Percent: 90, Message: "Saving results"}},
	}
	require.NoError(t, s.SaveExtraction(ctx, rec))

	got, err := s.LatestExtraction(ctx, "up-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "chase", got.ParserUsed)
	assert.Equal(t, 2, got.PageCount)
	assert.Equal(t, period, got.Period)
	assert.Equal(t, rec.Transactions, got.Transactions)
	assert.JSONEq(t, `[{"status":"matched"}]`, string(got.Suggestions))
	assert.Equal(t, rec.Log, got.Log)
	assert.Empty(t, got.Warnings)

	none, err := s.LatestExtraction(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSaveExtractionUnknownUpload(t *testing.T) {
	s := openTestStore(t)
	err := s.SaveExtraction(context.Background(), domain.ExtractionRecord{UploadID: "ghost"})
	assert.Error(t, err)
}
