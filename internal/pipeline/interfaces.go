package pipeline

import (
	"context"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/matching"
)

// DocumentStore fetches the raw bytes of an uploaded statement.
type DocumentStore interface {
	Download(ctx context.Context, path string) ([]byte, error)
}

// StatementExtractor turns statement bytes into transactions.
type StatementExtractor interface {
	Parse(ctx context.Context, pdf []byte, opts domain.ExtractOptions) (*domain.ExtractionResult, error)
}

// Persistence is the storage the pipeline needs for uploads and the ledger.
type Persistence interface {
	// GetUpload returns nil, nil when the upload does not exist.
	GetUpload(ctx context.Context, id string) (*domain.StatementUpload, error)

	// ClaimUpload moves an upload to processing only if its status is one of from.
	// It reports whether this caller won the claim.
	ClaimUpload(ctx context.Context, id string, startedAt time.Time, from ...domain.UploadStatus) (bool, error)

	UpdateUpload(ctx context.Context, id string, patch domain.UploadPatch) error

	QueryLedgerTransactions(ctx context.Context, userID string, from, to civil.Date) ([]domain.LedgerTransaction, error)

	SaveExtraction(ctx context.Context, record domain.ExtractionRecord) error
}

// MatchResolver reconciles extracted transactions against ledger rows.
type MatchResolver interface {
	ResolveAll(ctx context.Context, extracted []domain.ExtractedTransaction, ledger []domain.LedgerTransaction, progress matching.ProgressFunc) ([]matching.Suggestion, error)
}
