package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-reconciler/internal/pipeline"
)

type MockProcessor struct {
	ProcessFunc func(ctx context.Context, uploadID string, opts pipeline.ProcessOptions) (*pipeline.ProcessingResult, error)
	RetryFunc   func(ctx context.Context, uploadID string, opts pipeline.ProcessOptions) (*pipeline.ProcessingResult, error)
}

func (m *MockProcessor) Process(ctx context.Context, uploadID string, opts pipeline.ProcessOptions) (*pipeline.ProcessingResult, error) {
	return m.ProcessFunc(ctx, uploadID, opts)
}

func (m *MockProcessor) Retry(ctx context.Context, uploadID string, opts pipeline.ProcessOptions) (*pipeline.ProcessingResult, error) {
	return m.RetryFunc(ctx, uploadID, opts)
}

type otherJob struct{}

func (otherJob) GetID() string        { return "other" }
func (otherJob) GetType() JobType     { return "other" }
func (otherJob) GetStatus() JobStatus { return JobStatusPending }

func TestProcessStatementHandlerSuccess(t *testing.T) {
	var gotOpts pipeline.ProcessOptions
	proc := &MockProcessor{
		ProcessFunc: func(ctx context.Context, uploadID string, opts pipeline.ProcessOptions) (*pipeline.ProcessingResult, error) {
			gotOpts = opts
			return &pipeline.ProcessingResult{
				Success:               true,
				UploadID:              uploadID,
				TransactionsExtracted: 3,
				TransactionsMatched:   1,
				TransactionsNew:       2,
				ParserUsed:            "chase",
			}, nil
		},
	}

	job := &ProcessStatementJob{JobID: "j1", UploadID: "up-1", SkipMatching: true, Parser: "chase"}
	require.NoError(t, NewProcessStatementHandler(proc)(context.Background(), job))

	assert.True(t, gotOpts.SkipMatching)
	assert.Equal(t, "chase", gotOpts.Parser)
	require.NotNil(t, job.Result)
	assert.Equal(t, JobResult{TransactionsExtracted: 3, TransactionsMatched: 1, TransactionsNew: 2, ParserUsed: "chase"}, *job.Result)
}

func TestProcessStatementHandlerRetryPath(t *testing.T) {
	var calledRetry, calledProcess bool
	proc := &MockProcessor{
		ProcessFunc: func(ctx context.Context, uploadID string, opts pipeline.ProcessOptions) (*pipeline.ProcessingResult, error) {
			calledProcess = true
			return &pipeline.ProcessingResult{Success: true}, nil
		},
		RetryFunc: func(ctx context.Context, uploadID string, opts pipeline.ProcessOptions) (*pipeline.ProcessingResult, error) {
			calledRetry = true
			return &pipeline.ProcessingResult{Success: true}, nil
		},
	}
	handler := NewProcessStatementHandler(proc)

	require.NoError(t, handler(context.Background(), &ProcessStatementJob{UploadID: "up-1", Retry: true}))
	assert.True(t, calledRetry)
	assert.False(t, calledProcess)

	// A re-run after a transient failure goes through Process, since the
	// upload is failed again and already validated for retry.
	calledRetry = false
	require.NoError(t, handler(context.Background(), &ProcessStatementJob{UploadID: "up-1", Retry: true, RetryCount: 1}))
	assert.True(t, calledProcess)
	assert.False(t, calledRetry)
}

func TestProcessStatementHandlerClassifiesErrors(t *testing.T) {
	tests := []struct {
		name      string
		kind      error
		retryable bool
	}{
		{name: "transport", kind: pipeline.ErrTransport, retryable: true},
		{name: "persistence", kind: pipeline.ErrPersistence, retryable: true},
		{name: "validation", kind: pipeline.ErrValidation, retryable: false},
		{name: "extraction", kind: pipeline.ErrExtraction, retryable: false},
		{name: "conflict", kind: pipeline.ErrConflict, retryable: false},
		{name: "not found", kind: pipeline.ErrNotFound, retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &MockProcessor{
				ProcessFunc: func(ctx context.Context, uploadID string, opts pipeline.ProcessOptions) (*pipeline.ProcessingResult, error) {
					return &pipeline.ProcessingResult{UploadID: uploadID}, &pipeline.StageError{Kind: tt.kind, Msg: "failed"}
				},
			}
			job := &ProcessStatementJob{UploadID: "up-1"}

			err := NewProcessStatementHandler(proc)(context.Background(), job)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, tt.retryable, IsRetryable(err))
			assert.Nil(t, job.Result)
		})
	}
}

func TestProcessStatementHandlerRejectsOtherJobs(t *testing.T) {
	err := NewProcessStatementHandler(&MockProcessor{})(context.Background(), otherJob{})
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestNoRetry(t *testing.T) {
	assert.Nil(t, NoRetry(nil))
	assert.False(t, IsRetryable(nil))

	base := errors.New("boom")
	wrapped := fmt.Errorf("job j1: %w", NoRetry(base))
	assert.False(t, IsRetryable(wrapped))
	assert.ErrorIs(t, wrapped, base)
	assert.True(t, IsRetryable(base))
}
