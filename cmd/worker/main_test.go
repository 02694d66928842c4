package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/jobs"
)

type fakeLister struct {
	uploads []*domain.StatementUpload
	err     error
}

func (f *fakeLister) ListUploadsByStatus(ctx context.Context, status domain.UploadStatus, limit int) ([]*domain.StatementUpload, error) {
	if status != domain.UploadStatusPending {
		return nil, errors.New("unexpected status")
	}
	return f.uploads, f.err
}

type fakePublisher struct {
	published []string
	err       error
}

func (f *fakePublisher) PublishProcessStatement(ctx context.Context, job *jobs.ProcessStatementJob) error {
	if f.err != nil {
		return f.err
	}
	job.JobID = "job-" + job.UploadID
	f.published = append(f.published, job.UploadID)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func uploads(ids ...string) []*domain.StatementUpload {
	out := make([]*domain.StatementUpload, 0, len(ids))
	for _, id := range ids {
		out = append(out, &domain.StatementUpload{ID: id, Status: domain.UploadStatusPending})
	}
	return out
}

func TestPoller_SkipsAlreadyQueued(t *testing.T) {
	lister := &fakeLister{uploads: uploads("u1", "u2")}
	pub := &fakePublisher{}
	p := &poller{store: lister, publisher: pub, queued: map[string]bool{}}

	n, err := p.poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = p.poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, []string{"u1", "u2"}, pub.published)
}

func TestPoller_ForgetsUploadsThatLeftPending(t *testing.T) {
	lister := &fakeLister{uploads: uploads("u1")}
	pub := &fakePublisher{}
	p := &poller{store: lister, publisher: pub, queued: map[string]bool{}}

	_, err := p.poll(context.Background())
	require.NoError(t, err)

	lister.uploads = nil
	_, err = p.poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, p.queued)

	// Back to pending after a reset, so it is published again.
	lister.uploads = uploads("u1")
	n, err := p.poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPoller_Errors(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		p := &poller{store: &fakeLister{err: errors.New("down")}, publisher: &fakePublisher{}, queued: map[string]bool{}}
		_, err := p.poll(context.Background())
		require.Error(t, err)
	})

	t.Run("publish", func(t *testing.T) {
		p := &poller{store: &fakeLister{uploads: uploads("u1")}, publisher: &fakePublisher{err: errors.New("full")}, queued: map[string]bool{}}
		n, err := p.poll(context.Background())
		require.Error(t, err)
		assert.Equal(t, 0, n)
		assert.Empty(t, p.queued)
	})
}

func TestProcessPending_ContinuesAfterFailure(t *testing.T) {
	lister := &fakeLister{uploads: uploads("u1", "u2", "u3")}

	var seen []string
	handler := func(ctx context.Context, job jobs.Job) error {
		j := job.(*jobs.ProcessStatementJob)
		seen = append(seen, j.UploadID)
		if j.UploadID == "u2" {
			return errors.New("extraction failed")
		}
		j.Result = &jobs.JobResult{TransactionsExtracted: 1}
		return nil
	}

	n, err := processPending(context.Background(), lister, handler, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"u1", "u2", "u3"}, seen)
}
