package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

const uploadColumns = `
			upload_id,
			user_id,
			filename,
			file_path,
			status,
			transactions_extracted,
			transactions_matched,
			transactions_new,
			extraction_started_at,
			extraction_completed_at,
			extraction_error,
			extraction_log,
			statement_period_start,
			statement_period_end,
			created_at`

// CreateUpload inserts a pending upload.
func (s *Store) CreateUpload(ctx context.Context, u *domain.StatementUpload) error {
	return CreateUploadWithClient(ctx, s.client, s.tables(), u)
}

// CreateUploadWithClient inserts a pending upload with a DML INSERT so the row
// is immediately visible to UPDATE statements (streaming inserts are not).
func CreateUploadWithClient(ctx context.Context, client *bigquery.Client, t Tables, u *domain.StatementUpload) error {
	q := client.Query(fmt.Sprintf(`
		INSERT %s (
			upload_id,
			user_id,
			filename,
			file_path,
			status,
			created_at
		)
		VALUES (
			@upload_id,
			@user_id,
			@filename,
			@file_path,
			@status,
			@created_at
		)
	`, t.Name(UploadsTable)))

	status := u.Status
	if status == "" {
		status = domain.UploadStatusPending
	}
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	q.Parameters = []bigquery.QueryParameter{
		{Name: "upload_id", Value: u.ID},
		{Name: "user_id", Value: u.UserID},
		{Name: "filename", Value: u.Filename},
		{Name: "file_path", Value: u.FilePath},
		{Name: "status", Value: string(status)},
		{Name: "created_at", Value: created},
	}

	if _, err := runDML(ctx, q, "CreateUpload"); err != nil {
		return err
	}
	return nil
}

// GetUpload returns nil, nil when no upload has the given id.
func (s *Store) GetUpload(ctx context.Context, id string) (*domain.StatementUpload, error) {
	return GetUploadWithClient(ctx, s.client, s.tables(), id)
}

// GetUploadWithClient reads one upload by id.
func GetUploadWithClient(ctx context.Context, client *bigquery.Client, t Tables, id string) (*domain.StatementUpload, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT%s
		FROM %s
		WHERE upload_id = @upload_id
		LIMIT 1
	`, uploadColumns, t.Name(UploadsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "upload_id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetUploadWithClient: reading query: %w", err)
	}

	var row UploadRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetUploadWithClient: reading row: %w", err)
	}
	return row.ToDomain()
}

// ClaimUpload moves an upload to processing if its status is in from.
func (s *Store) ClaimUpload(ctx context.Context, id string, startedAt time.Time, from ...domain.UploadStatus) (bool, error) {
	return ClaimUploadWithClient(ctx, s.client, s.tables(), id, startedAt, from...)
}

// ClaimUploadWithClient is a conditional UPDATE; the claim is won when it
// affected exactly one row. BigQuery serialises concurrent DML on a table, so
// two racing claims cannot both match.
func ClaimUploadWithClient(ctx context.Context, client *bigquery.Client, t Tables, id string, startedAt time.Time, from ...domain.UploadStatus) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	statuses := make([]string, len(from))
	for i, st := range from {
		statuses[i] = string(st)
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @processing,
		    extraction_started_at = @started_at,
		    extraction_completed_at = NULL,
		    extraction_error = NULL
		WHERE upload_id = @upload_id
		  AND status IN UNNEST(@from_statuses)
	`, t.Name(UploadsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "processing", Value: string(domain.UploadStatusProcessing)},
		{Name: "started_at", Value: startedAt},
		{Name: "upload_id", Value: id},
		{Name: "from_statuses", Value: statuses},
	}

	n, err := runDML(ctx, q, "ClaimUpload")
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateUpload applies a partial update.
func (s *Store) UpdateUpload(ctx context.Context, id string, patch domain.UploadPatch) error {
	return UpdateUploadWithClient(ctx, s.client, s.tables(), id, patch)
}

// UpdateUploadWithClient applies a partial update. An empty patch is a no-op.
func UpdateUploadWithClient(ctx context.Context, client *bigquery.Client, t Tables, id string, patch domain.UploadPatch) error {
	clause, params, err := buildUploadUpdate(patch)
	if err != nil {
		return err
	}
	if clause == "" {
		return nil
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET %s
		WHERE upload_id = @upload_id
	`, t.Name(UploadsTable), clause))
	q.Parameters = append(params, bigquery.QueryParameter{Name: "upload_id", Value: id})

	if _, err := runDML(ctx, q, "UpdateUpload"); err != nil {
		return err
	}
	return nil
}

// ListUploadsByStatus returns uploads in the given status, oldest first.
func (s *Store) ListUploadsByStatus(ctx context.Context, status domain.UploadStatus, limit int) ([]*domain.StatementUpload, error) {
	return ListUploadsByStatusWithClient(ctx, s.client, s.tables(), status, limit)
}

// ListUploadsByStatusWithClient lists uploads in status. A limit <= 0 means no limit.
func ListUploadsByStatusWithClient(ctx context.Context, client *bigquery.Client, t Tables, status domain.UploadStatus, limit int) ([]*domain.StatementUpload, error) {
	query := fmt.Sprintf(`
		SELECT%s
		FROM %s
		WHERE status = @status
		ORDER BY created_at ASC
	`, uploadColumns, t.Name(UploadsTable))
	params := []bigquery.QueryParameter{
		{Name: "status", Value: string(status)},
	}
	if limit > 0 {
		query += "\t\tLIMIT @limit\n"
		params = append(params, bigquery.QueryParameter{Name: "limit", Value: int64(limit)})
	}

	q := client.Query(query)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListUploadsByStatusWithClient: reading query: %w", err)
	}

	var uploads []*domain.StatementUpload
	for {
		var row UploadRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListUploadsByStatusWithClient: iterating: %w", err)
		}
		u, err := row.ToDomain()
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, nil
}
