package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/statement-reconciler/internal/logger"
	"github.com/dvloznov/statement-reconciler/internal/pipeline"
)

// StatementProcessor is the part of *pipeline.Processor a job needs.
type StatementProcessor interface {
	Process(ctx context.Context, uploadID string, opts pipeline.ProcessOptions) (*pipeline.ProcessingResult, error)
	Retry(ctx context.Context, uploadID string, opts pipeline.ProcessOptions) (*pipeline.ProcessingResult, error)
}

// NewProcessStatementHandler returns a JobHandler that runs proc for each
// ProcessStatementJob. Only transport and persistence failures are retried;
// a retried run starts from the failed upload the previous attempt left behind.
func NewProcessStatementHandler(proc StatementProcessor) JobHandler {
	return func(ctx context.Context, job Job) error {
		j, ok := job.(*ProcessStatementJob)
		if !ok {
			return NoRetry(fmt.Errorf("unexpected job type: %T", job))
		}

		log := logger.FromContext(ctx).With().
			Str("job_id", j.JobID).
			Str("upload_id", j.UploadID).
			Int("attempt", j.RetryCount+1).
			Logger()
		ctx = logger.WithContext(ctx, log)

		log.Info().Bool("retry", j.Retry).Msg("Processing statement job")

		opts := pipeline.ProcessOptions{SkipMatching: j.SkipMatching, Parser: j.Parser}
		run := proc.Process
		if j.Retry && j.RetryCount == 0 {
			run = proc.Retry
		}

		result, err := run(ctx, j.UploadID, opts)
		if result != nil && result.Success {
			j.Result = &JobResult{
				TransactionsExtracted: result.TransactionsExtracted,
				TransactionsMatched:   result.TransactionsMatched,
				TransactionsNew:       result.TransactionsNew,
				ParserUsed:            result.ParserUsed,
			}
		}
		if err != nil {
			log.Error().Err(err).Msg("Statement job failed")
			if errors.Is(err, pipeline.ErrTransport) || errors.Is(err, pipeline.ErrPersistence) {
				return err
			}
			return NoRetry(err)
		}

		log.Info().Msg("Statement job completed")
		return nil
	}
}
