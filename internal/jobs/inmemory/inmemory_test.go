package inmemory

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-reconciler/internal/jobs"
	"github.com/dvloznov/statement-reconciler/internal/logger"
)

// lockedBuffer is written by worker goroutines while the test reads it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startQueue(t *testing.T, opts Options, handler jobs.JobHandler) (*Queue, *Store) {
	t.Helper()
	store := NewStore()
	q := NewQueue(store, opts)
	require.NoError(t, q.Start(context.Background(), handler))
	t.Cleanup(func() { _ = q.Close() })
	return q, store
}

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.ProcessStatementJob {
	t.Helper()
	var got *jobs.ProcessStatementJob
	require.Eventually(t, func() bool {
		j, err := store.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		got = j
		return j.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestQueueCompletesJob(t *testing.T) {
	q, store := startQueue(t, Options{Workers: 2}, func(ctx context.Context, job jobs.Job) error {
		j := job.(*jobs.ProcessStatementJob)
		j.Result = &jobs.JobResult{TransactionsExtracted: 3}
		return nil
	})

	job := &jobs.ProcessStatementJob{UploadID: "up-1"}
	require.NoError(t, q.PublishProcessStatement(context.Background(), job))
	require.NotEmpty(t, job.JobID)

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, "up-1", got.UploadID)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.Result)
	assert.Equal(t, 3, got.Result.TransactionsExtracted)
	assert.Empty(t, got.Error)
}

func TestQueueRetriesRetryableErrors(t *testing.T) {
	var calls int32
	q, store := startQueue(t, Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond}, func(ctx context.Context, job jobs.Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("bigquery unavailable")
		}
		return nil
	})

	job := &jobs.ProcessStatementJob{UploadID: "up-1"}
	require.NoError(t, q.PublishProcessStatement(context.Background(), job))

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	q, store := startQueue(t, Options{Workers: 1, MaxRetries: 1, RetryBackoff: time.Millisecond}, func(ctx context.Context, job jobs.Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("still down")
	})

	job := &jobs.ProcessStatementJob{UploadID: "up-1"}
	require.NoError(t, q.PublishProcessStatement(context.Background(), job))

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, "still down", got.Error)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestQueueDoesNotRetryPermanentErrors(t *testing.T) {
	var calls int32
	q, store := startQueue(t, Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond}, func(ctx context.Context, job jobs.Job) error {
		atomic.AddInt32(&calls, 1)
		return jobs.NoRetry(errors.New("Statement has already been processed"))
	})

	job := &jobs.ProcessStatementJob{UploadID: "up-1"}
	require.NoError(t, q.PublishProcessStatement(context.Background(), job))

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, "Statement has already been processed", got.Error)
	assert.Equal(t, 0, got.RetryCount)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestQueueRecoversHandlerPanic(t *testing.T) {
	q, store := startQueue(t, Options{Workers: 1, MaxRetries: 3}, func(ctx context.Context, job jobs.Job) error {
		panic("boom")
	})

	job := &jobs.ProcessStatementJob{UploadID: "up-1"}
	require.NoError(t, q.PublishProcessStatement(context.Background(), job))

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, 0, got.RetryCount)
}

func TestQueueLogsHandlerPanicToContextLogger(t *testing.T) {
	out := &lockedBuffer{}
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(out))

	store := NewStore()
	q := NewQueue(store, Options{Workers: 1})
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		panic("boom")
	}))
	t.Cleanup(func() { _ = q.Close() })

	job := &jobs.ProcessStatementJob{UploadID: "up-1"}
	require.NoError(t, q.PublishProcessStatement(context.Background(), job))
	waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Job handler panicked")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), job.JobID)
}

func TestQueuePublishAfterStop(t *testing.T) {
	q := NewQueue(nil, Options{})
	require.NoError(t, q.Stop(context.Background()))
	require.NoError(t, q.Stop(context.Background()), "Stop is idempotent")

	err := q.PublishProcessStatement(context.Background(), &jobs.ProcessStatementJob{UploadID: "up-1"})
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.ErrorIs(t, q.Start(context.Background(), nil), ErrQueueClosed)
}

func TestQueueStopWaitsForInFlightJobs(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var finished int32

	q := NewQueue(nil, Options{Workers: 1})
	require.NoError(t, q.Start(context.Background(), func(ctx context.Context, job jobs.Job) error {
		close(started)
		<-release
		atomic.StoreInt32(&finished, 1)
		return nil
	}))
	require.NoError(t, q.PublishProcessStatement(context.Background(), &jobs.ProcessStatementJob{UploadID: "up-1"}))
	<-started

	stopped := make(chan error, 1)
	go func() { stopped <- q.Stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a job was running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-stopped)
	assert.Equal(t, int32(1), atomic.LoadInt32(&finished))
}

func TestStoreListJobs(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, tc := range []struct {
		id, upload string
		status     jobs.JobStatus
	}{
		{"j1", "up-1", jobs.JobStatusCompleted},
		{"j2", "up-2", jobs.JobStatusFailed},
		{"j3", "up-1", jobs.JobStatusFailed},
	} {
		require.NoError(t, store.SaveJob(ctx, &jobs.ProcessStatementJob{
			JobID:     tc.id,
			UploadID:  tc.upload,
			Status:    tc.status,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := store.ListJobs(ctx, jobs.JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "j1", all[0].JobID)
	assert.Equal(t, "j3", all[2].JobID)

	byUpload, err := store.ListJobs(ctx, jobs.JobFilter{UploadID: "up-1"})
	require.NoError(t, err)
	assert.Len(t, byUpload, 2)

	failed, err := store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusFailed, Limit: 1})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "j2", failed[0].JobID)

	paged, err := store.ListJobs(ctx, jobs.JobFilter{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, paged)
}

func TestStoreCopiesJobs(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	job := &jobs.ProcessStatementJob{JobID: "j1", Result: &jobs.JobResult{TransactionsNew: 1}}
	require.NoError(t, store.SaveJob(ctx, job))
	job.Result.TransactionsNew = 99

	got, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Result.TransactionsNew)

	_, err = store.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
	assert.ErrorIs(t, store.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, ""), jobs.ErrJobNotFound)
	assert.Error(t, store.SaveJob(ctx, &jobs.ProcessStatementJob{}))
}
