// Package pipeline turns an uploaded bank statement into extracted transactions
// and reconciliation suggestions, tracking progress on the upload record.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/logger"
	"github.com/dvloznov/statement-reconciler/internal/matching"
)

// Config tunes a Processor.
type Config struct {
	// MinConfidence rejects extractions the extractor is less sure about.
	MinConfidence float64

	// DateToleranceDays widens the ledger query on both sides of the statement period.
	DateToleranceDays int

	ProgressBuffer int
	FlushTimeout   time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DateToleranceDays: DefaultDateToleranceDays,
		ProgressBuffer:    DefaultProgressBuffer,
		FlushTimeout:      DefaultFlushTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.DateToleranceDays < 0 {
		c.DateToleranceDays = 0
	}
	if c.ProgressBuffer <= 0 {
		c.ProgressBuffer = DefaultProgressBuffer
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = DefaultFlushTimeout
	}
	return c
}

// ProcessOptions tunes a single run.
type ProcessOptions struct {
	OnProgress   ProgressFunc
	SkipMatching bool
	Parser       string
}

// ProcessingResult is the outcome of one run. Suggestions holds one entry per
// extracted transaction.
type ProcessingResult struct {
	Success               bool                        `json:"success"`
	UploadID              string                      `json:"upload_id"`
	TransactionsExtracted int                         `json:"transactions_extracted"`
	TransactionsMatched   int                         `json:"transactions_matched"`
	TransactionsNew       int                         `json:"transactions_new"`
	Suggestions           []matching.Suggestion       `json:"suggestions"`
	Period                *domain.StatementPeriod     `json:"period,omitempty"`
	ParserUsed            string                      `json:"parser_used,omitempty"`
	Log                   []domain.ProcessingProgress `json:"log"`
	Error                 string                      `json:"error,omitempty"`
}

// UploadStatusView is the processing state of an upload as shown to clients.
type UploadStatusView struct {
	Status domain.UploadStatus         `json:"status"`
	Log    []domain.ProcessingProgress `json:"log"`
	Error  string                      `json:"error,omitempty"`
}

// Processor runs the statement processing pipeline.
type Processor struct {
	store     Persistence
	docs      DocumentStore
	extractor StatementExtractor
	resolver  MatchResolver
	cfg       Config
	now       func() time.Time
}

// NewProcessor wires a Processor. resolver may be nil, in which case matching is skipped.
func NewProcessor(store Persistence, docs DocumentStore, extractor StatementExtractor, resolver MatchResolver, cfg Config) *Processor {
	return &Processor{
		store:     store,
		docs:      docs,
		extractor: extractor,
		resolver:  resolver,
		cfg:       cfg.withDefaults(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (p *Processor) pipeline() *Pipeline {
	return NewPipeline(
		&DownloadStep{Docs: p.docs},
		&ValidateStep{},
		&ExtractStep{Extractor: p.extractor, MinConfidence: p.cfg.MinConfidence},
		&MatchStep{Store: p.store, Resolver: p.resolver, DateToleranceDays: p.cfg.DateToleranceDays},
		&SaveStep{Store: p.store, Now: p.now},
	)
}

// Process runs the full pipeline for one upload. On failure the returned result
// carries the message and the error is a *StageError whose Kind is one of the
// package's Err values.
func (p *Processor) Process(ctx context.Context, uploadID string, opts ProcessOptions) (*ProcessingResult, error) {
	log := logger.FromContext(ctx).With().Str("upload_id", uploadID).Logger()
	ctx = logger.WithContext(ctx, log)

	result := &ProcessingResult{
		UploadID:    uploadID,
		Suggestions: []matching.Suggestion{},
		Log:         []domain.ProcessingProgress{},
	}

	upload, err := p.claim(ctx, uploadID)
	if err != nil {
		log.Warn().Err(err).Msg("Statement upload not claimed")
		result.Error = err.Error()
		return result, err
	}

	log.Info().Str("file_path", upload.FilePath).Msg("Processing statement")

	stream := newProgressStream(ctx, opts.OnProgress, p.cfg.ProgressBuffer, p.cfg.FlushTimeout)
	state := &PipelineState{Upload: upload, Options: opts, progress: stream}

	runErr := p.pipeline().Execute(ctx, state)
	stream.close()
	result.Log = stream.events()

	if runErr != nil {
		se := asStageError(domain.StageSaving, runErr)
		p.markFailed(ctx, uploadID, se, result.Log)
		result.Error = se.Msg
		return result, se
	}

	result.Success = true
	result.TransactionsExtracted = len(state.transactions())
	result.TransactionsMatched = state.Matched
	result.TransactionsNew = result.TransactionsExtracted - state.Matched
	result.Suggestions = state.Suggestions
	result.Period = state.Period
	result.ParserUsed = state.Extraction.ParserKey

	log.Info().
		Int("extracted", result.TransactionsExtracted).
		Int("matched", result.TransactionsMatched).
		Int("new", result.TransactionsNew).
		Msg("Statement processed")

	return result, nil
}

// claim loads the upload and atomically moves it to processing.
func (p *Processor) claim(ctx context.Context, uploadID string) (*domain.StatementUpload, error) {
	upload, err := p.store.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, stageErr(domain.StageFetch, ErrPersistence, err, "Failed to load statement upload: %v", err)
	}
	if upload == nil {
		return nil, stageErr(domain.StageFetch, ErrNotFound, nil, "Statement upload not found: %s", uploadID)
	}

	switch upload.Status {
	case domain.UploadStatusProcessing:
		return nil, stageErr(domain.StageFetch, ErrConflict, nil, "Statement is already being processed")
	case domain.UploadStatusCompleted:
		return nil, stageErr(domain.StageFetch, ErrConflict, nil, "Statement has already been processed")
	}

	startedAt := p.now()
	ok, err := p.store.ClaimUpload(ctx, uploadID, startedAt, domain.UploadStatusPending, domain.UploadStatusFailed)
	if err != nil {
		return nil, stageErr(domain.StageFetch, ErrPersistence, err, "Failed to claim statement upload: %v", err)
	}
	if !ok {
		return nil, stageErr(domain.StageFetch, ErrConflict, nil, "Statement is already being processed")
	}

	upload.Status = domain.UploadStatusProcessing
	upload.ExtractionStartedAt = &startedAt
	return upload, nil
}

// markFailed records a failed run. It uses a context detached from cancellation
// so a cancelled run still leaves the upload retryable.
func (p *Processor) markFailed(ctx context.Context, uploadID string, se *StageError, events []domain.ProcessingProgress) {
	status := domain.UploadStatusFailed
	msg := truncateError(se.Msg)
	completedAt := p.now()

	patch := domain.UploadPatch{
		Status:                &status,
		ExtractionError:       &msg,
		ExtractionCompletedAt: &completedAt,
		ExtractionLog:         events,
	}
	if patch.ExtractionLog == nil {
		patch.ExtractionLog = []domain.ProcessingProgress{}
	}

	if err := p.store.UpdateUpload(context.WithoutCancel(ctx), uploadID, patch); err != nil {
		log := logger.FromContext(ctx)
		log.Error().
			Err(err).
			Str("stage", string(se.Stage)).
			Msg("Failed to mark statement upload as failed")
	}
}

// GetStatus returns the processing state of an upload, or nil when it does not exist.
func (p *Processor) GetStatus(ctx context.Context, uploadID string) (*UploadStatusView, error) {
	upload, err := p.store.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("GetStatus: %w", err)
	}
	if upload == nil {
		return nil, nil
	}

	events := upload.ExtractionLog
	if events == nil {
		events = []domain.ProcessingProgress{}
	}
	return &UploadStatusView{
		Status: upload.Status,
		Log:    events,
		Error:  upload.ExtractionError,
	}, nil
}

// Retry reprocesses a failed upload. Uploads in any other state are left untouched.
func (p *Processor) Retry(ctx context.Context, uploadID string, opts ProcessOptions) (*ProcessingResult, error) {
	result := &ProcessingResult{
		UploadID:    uploadID,
		Suggestions: []matching.Suggestion{},
		Log:         []domain.ProcessingProgress{},
	}

	upload, err := p.store.GetUpload(ctx, uploadID)
	if err != nil {
		se := stageErr(domain.StageFetch, ErrPersistence, err, "Failed to load statement upload: %v", err)
		result.Error = se.Msg
		return result, se
	}
	if upload == nil {
		se := stageErr(domain.StageFetch, ErrNotFound, nil, "Statement upload not found: %s", uploadID)
		result.Error = se.Msg
		return result, se
	}
	if upload.Status != domain.UploadStatusFailed {
		se := stageErr(domain.StageFetch, ErrConflict, nil, "Cannot retry: status is '%s', expected 'failed'", upload.Status)
		result.Error = se.Msg
		return result, se
	}

	log := logger.FromContext(ctx)
	log.Info().Str("upload_id", uploadID).Msg("Retrying statement processing")
	return p.Process(ctx, uploadID, opts)
}
