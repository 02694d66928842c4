package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/logger"
	"github.com/dvloznov/statement-reconciler/internal/matching"
)

// PipelineStep represents a single stage of statement processing.
type PipelineStep interface {
	Stage() domain.Stage
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Upload      *domain.StatementUpload
	Options     ProcessOptions
	PDFBytes    []byte
	Extraction  *domain.ExtractionResult
	Period      *domain.StatementPeriod
	Suggestions []matching.Suggestion
	Matched     int

	progress *progressStream
}

func (s *PipelineState) report(step domain.Stage, percent int, format string, args ...any) {
	s.progress.publish(step, percent, fmt.Sprintf(format, args...))
}

func (s *PipelineState) transactions() []domain.ExtractedTransaction {
	if s.Extraction == nil {
		return nil
	}
	return s.Extraction.Transactions
}

// DownloadStep fetches the statement bytes from the document store.
type DownloadStep struct {
	Docs DocumentStore
}

func (s *DownloadStep) Stage() domain.Stage { return domain.StageDownloading }

func (s *DownloadStep) Execute(ctx context.Context, state *PipelineState) error {
	state.report(domain.StageDownloading, percentDownloading, "Downloading statement %s", state.Upload.Filename)

	data, err := s.Docs.Download(ctx, state.Upload.FilePath)
	if err != nil {
		return stageErr(domain.StageDownloading, ErrTransport, err, "Failed to download statement: %v", err)
	}
	state.PDFBytes = data
	return nil
}

// ValidateStep rejects files that are not PDFs before any model call is made.
type ValidateStep struct{}

func (s *ValidateStep) Stage() domain.Stage { return domain.StageValidating }

func (s *ValidateStep) Execute(ctx context.Context, state *PipelineState) error {
	state.report(domain.StageValidating, percentValidating, "Validating PDF (%d bytes)", len(state.PDFBytes))

	if !IsValidPDF(state.PDFBytes) {
		return stageErr(domain.StageValidating, ErrValidation, nil, "Invalid PDF file. The file does not appear to be a valid PDF.")
	}
	return nil
}

// ExtractStep runs the statement extractor and checks its verdict.
type ExtractStep struct {
	Extractor     StatementExtractor
	MinConfidence float64
}

func (s *ExtractStep) Stage() domain.Stage { return domain.StageExtracting }

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	state.report(domain.StageExtracting, percentExtracting, "Extracting transactions")

	result, err := s.Extractor.Parse(ctx, state.PDFBytes, domain.ExtractOptions{Parser: state.Options.Parser})
	if err != nil {
		return stageErr(domain.StageExtracting, ErrExtraction, err, "%s", err.Error())
	}
	if result == nil {
		return stageErr(domain.StageExtracting, ErrExtraction, nil, "Extractor returned no result")
	}
	if !result.Success {
		msg := strings.Join(result.Errors, "; ")
		if msg == "" {
			msg = "Failed to extract transactions from statement"
		}
		return stageErr(domain.StageExtracting, ErrExtraction, nil, "%s", msg)
	}
	if result.Confidence < s.MinConfidence {
		return stageErr(domain.StageExtracting, ErrExtraction, nil,
			"Extraction confidence %.2f is below the required %.2f", result.Confidence, s.MinConfidence)
	}

	state.Extraction = result
	state.Period = statementPeriod(result)
	state.report(domain.StageParsing, percentParsing, "Parsed %d transactions", len(result.Transactions))
	return nil
}

// MatchOutcome is the result of the matching stage. A non-nil Err means matching
// was abandoned and Suggestions treats every transaction as new.
type MatchOutcome struct {
	Summary     matching.Summary
	Suggestions []matching.Suggestion
	Err         error
}

// MatchStep reconciles extracted transactions against the ledger. It never fails the run.
type MatchStep struct {
	Store             Persistence
	Resolver          MatchResolver
	DateToleranceDays int
}

func (s *MatchStep) Stage() domain.Stage { return domain.StageMatching }

func (s *MatchStep) Execute(ctx context.Context, state *PipelineState) error {
	txs := state.transactions()

	if len(txs) == 0 {
		state.Suggestions = []matching.Suggestion{}
		return nil
	}
	if state.Options.SkipMatching || s.Resolver == nil {
		state.Suggestions = unmatched(txs, "Matching skipped")
		return nil
	}

	outcome := s.match(ctx, state)
	if outcome.Err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(outcome.Err).Msg("Matching failed, treating all transactions as new")
		state.report(domain.StageMatching, percentMatchingMax, "Matching failed: %v", outcome.Err)
	}

	state.Suggestions = outcome.Suggestions
	state.Matched = outcome.Summary.Matched
	return nil
}

func (s *MatchStep) match(ctx context.Context, state *PipelineState) MatchOutcome {
	txs := state.transactions()
	from, to := s.window(state.Period)

	ledger, err := s.Store.QueryLedgerTransactions(ctx, state.Upload.UserID, from, to)
	if err != nil {
		return degraded(txs, fmt.Errorf("query ledger: %w", err))
	}

	state.report(domain.StageMatching, percentMatching,
		"Matching %d transactions against %d ledger entries", len(txs), len(ledger))

	last := percentMatching
	progress := func(done, total int) {
		pct := percentMatching + done*(percentMatchingMax-percentMatching)/total
		if pct <= last && done != total {
			return
		}
		last = pct
		state.report(domain.StageMatching, pct, "Matched %d of %d transactions", done, total)
	}

	suggestions, err := s.Resolver.ResolveAll(ctx, txs, ledger, progress)
	if err != nil {
		return degraded(txs, err)
	}
	if len(suggestions) != len(txs) {
		return degraded(txs, fmt.Errorf("resolver returned %d suggestions for %d transactions", len(suggestions), len(txs)))
	}
	return MatchOutcome{Summary: matching.Summarize(suggestions), Suggestions: suggestions}
}

func (s *MatchStep) window(period *domain.StatementPeriod) (civil.Date, civil.Date) {
	// period is never nil here because there is at least one transaction.
	return period.Start.AddDays(-s.DateToleranceDays), period.End.AddDays(s.DateToleranceDays)
}

func degraded(txs []domain.ExtractedTransaction, err error) MatchOutcome {
	suggestions := unmatched(txs, "Matching unavailable")
	return MatchOutcome{Summary: matching.Summarize(suggestions), Suggestions: suggestions, Err: err}
}

func unmatched(txs []domain.ExtractedTransaction, reason string) []matching.Suggestion {
	out := make([]matching.Suggestion, len(txs))
	for i, tx := range txs {
		out[i] = matching.NewSuggestion(tx, reason)
	}
	return out
}

// SaveStep persists the extraction and marks the upload completed.
// The completed event is published only after the upload row is written.
type SaveStep struct {
	Store Persistence
	Now   func() time.Time
}

func (s *SaveStep) Stage() domain.Stage { return domain.StageSaving }

func (s *SaveStep) Execute(ctx context.Context, state *PipelineState) error {
	txs := state.transactions()
	state.report(domain.StageSaving, percentSaving, "Saving %d transactions", len(txs))

	suggestions, err := json.Marshal(state.Suggestions)
	if err != nil {
		return stageErr(domain.StageSaving, ErrPersistence, err, "Failed to encode suggestions: %v", err)
	}

	record := domain.ExtractionRecord{
		UploadID:     state.Upload.ID,
		ParserUsed:   state.Extraction.ParserKey,
		PageCount:    state.Extraction.PageCount,
		Confidence:   state.Extraction.Confidence,
		Period:       state.Period,
		Warnings:     state.Extraction.Warnings,
		Transactions: txs,
		Suggestions:  suggestions,
		Log:          state.progress.events(),
	}
	if err := s.Store.SaveExtraction(ctx, record); err != nil {
		return stageErr(domain.StageSaving, ErrPersistence, err, "Failed to save extraction: %v", err)
	}

	extracted := len(txs)
	matched := state.Matched
	created := extracted - matched
	completedAt := s.Now()
	status := domain.UploadStatusCompleted
	noError := ""

	completed := domain.ProcessingProgress{
		Step:    domain.StageCompleted,
		Percent: percentCompleted,
		Message: fmt.Sprintf("Processed %d transactions: %d matched, %d new", extracted, matched, created),
	}

	patch := domain.UploadPatch{
		Status:                &status,
		TransactionsExtracted: &extracted,
		TransactionsMatched:   &matched,
		TransactionsNew:       &created,
		ExtractionCompletedAt: &completedAt,
		ExtractionError:       &noError,
		ExtractionLog:         append(state.progress.events(), completed),
	}
	if state.Period != nil {
		patch.PeriodStart = &state.Period.Start
		patch.PeriodEnd = &state.Period.End
	}

	if err := s.Store.UpdateUpload(ctx, state.Upload.ID, patch); err != nil {
		return stageErr(domain.StageSaving, ErrPersistence, err, "Failed to update statement upload: %v", err)
	}

	state.progress.publish(completed.Step, completed.Percent, completed.Message)
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure.
// The returned error is always a *StageError.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			se := asStageError(step.Stage(), err)
			log.Error().
				Err(err).
				Int("step", i+1).
				Str("stage", string(se.Stage)).
				Msg("Pipeline step failed")
			return se
		}
	}
	return nil
}
