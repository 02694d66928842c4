package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

const uploadColumns = `upload_id, user_id, filename, file_path, status,
	       transactions_extracted, transactions_matched, transactions_new,
	       extraction_started_at, extraction_completed_at, extraction_error, extraction_log,
	       statement_period_start, statement_period_end, created_at`

// CreateUpload inserts a new upload. An empty status is stored as pending.
func (s *Store) CreateUpload(ctx context.Context, u *domain.StatementUpload) error {
	status := u.Status
	if status == "" {
		status = domain.UploadStatusPending
	}
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO statement_uploads (upload_id, user_id, filename, file_path, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.UserID, u.Filename, u.FilePath, string(status), formatTime(created))
	if err != nil {
		return fmt.Errorf("CreateUpload: %w", err)
	}
	return nil
}

// GetUpload returns nil, nil when the upload does not exist.
func (s *Store) GetUpload(ctx context.Context, id string) (*domain.StatementUpload, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM statement_uploads WHERE upload_id = ?`, id)
	u, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetUpload: %w", err)
	}
	return u, nil
}

// ClaimUpload is a conditional update; it reports whether this call changed the row.
func (s *Store) ClaimUpload(ctx context.Context, id string, startedAt time.Time, from ...domain.UploadStatus) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	args := []interface{}{string(domain.UploadStatusProcessing), formatTime(startedAt), id}
	for _, st := range from {
		args = append(args, string(st))
	}

	res, err := s.db.ExecContext(ctx, `
	UPDATE statement_uploads
	SET status = ?, extraction_started_at = ?, extraction_completed_at = NULL, extraction_error = NULL
	WHERE upload_id = ? AND status IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return false, fmt.Errorf("ClaimUpload: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ClaimUpload: rows affected: %w", err)
	}
	return n == 1, nil
}

// UpdateUpload applies the non-nil fields of patch.
func (s *Store) UpdateUpload(ctx context.Context, id string, patch domain.UploadPatch) error {
	var (
		sets []string
		args []interface{}
	)
	set := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.TransactionsExtracted != nil {
		set("transactions_extracted", *patch.TransactionsExtracted)
	}
	if patch.TransactionsMatched != nil {
		set("transactions_matched", *patch.TransactionsMatched)
	}
	if patch.TransactionsNew != nil {
		set("transactions_new", *patch.TransactionsNew)
	}
	if patch.ExtractionStartedAt != nil {
		set("extraction_started_at", formatTime(*patch.ExtractionStartedAt))
	}
	if patch.ExtractionCompletedAt != nil {
		set("extraction_completed_at", formatTime(*patch.ExtractionCompletedAt))
	}
	if patch.ExtractionError != nil {
		if *patch.ExtractionError == "" {
			set("extraction_error", nil)
		} else {
			set("extraction_error", *patch.ExtractionError)
		}
	}
	if patch.ExtractionLog != nil {
		encoded, err := json.Marshal(patch.ExtractionLog)
		if err != nil {
			return fmt.Errorf("UpdateUpload: encoding log: %w", err)
		}
		set("extraction_log", string(encoded))
	}
	if patch.PeriodStart != nil {
		set("statement_period_start", patch.PeriodStart.String())
	}
	if patch.PeriodEnd != nil {
		set("statement_period_end", patch.PeriodEnd.String())
	}

	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	if _, err := s.db.ExecContext(ctx,
		`UPDATE statement_uploads SET `+strings.Join(sets, ", ")+` WHERE upload_id = ?`, args...); err != nil {
		return fmt.Errorf("UpdateUpload: %w", err)
	}
	return nil
}

// ListUploadsByStatus returns uploads in status, oldest first. A limit <= 0 means no limit.
func (s *Store) ListUploadsByStatus(ctx context.Context, status domain.UploadStatus, limit int) ([]*domain.StatementUpload, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT `+uploadColumns+`
	FROM statement_uploads
	WHERE status = ?
	ORDER BY created_at ASC, upload_id ASC
	LIMIT ?
	`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("ListUploadsByStatus: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var uploads []*domain.StatementUpload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("ListUploadsByStatus: %w", err)
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUpload(row scanner) (*domain.StatementUpload, error) {
	var (
		u                      domain.StatementUpload
		status                 string
		started, completed     sql.NullString
		extractionErr, logJSON sql.NullString
		periodStart, periodEnd sql.NullString
		created                string
	)
	if err := row.Scan(
		&u.ID, &u.UserID, &u.Filename, &u.FilePath, &status,
		&u.TransactionsExtracted, &u.TransactionsMatched, &u.TransactionsNew,
		&started, &completed, &extractionErr, &logJSON,
		&periodStart, &periodEnd, &created,
	); err != nil {
		return nil, err
	}

	u.Status = domain.UploadStatus(status)
	u.ExtractionError = extractionErr.String

	var err error
	if u.ExtractionStartedAt, err = parseNullTime(started); err != nil {
		return nil, fmt.Errorf("upload %s: extraction_started_at: %w", u.ID, err)
	}
	if u.ExtractionCompletedAt, err = parseNullTime(completed); err != nil {
		return nil, fmt.Errorf("upload %s: extraction_completed_at: %w", u.ID, err)
	}
	if u.PeriodStart, err = parseNullDate(periodStart); err != nil {
		return nil, fmt.Errorf("upload %s: statement_period_start: %w", u.ID, err)
	}
	if u.PeriodEnd, err = parseNullDate(periodEnd); err != nil {
		return nil, fmt.Errorf("upload %s: statement_period_end: %w", u.ID, err)
	}
	if u.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("upload %s: created_at: %w", u.ID, err)
	}
	if logJSON.Valid && logJSON.String != "" {
		if err := json.Unmarshal([]byte(logJSON.String), &u.ExtractionLog); err != nil {
			return nil, fmt.Errorf("upload %s: extraction_log: %w", u.ID, err)
		}
	}
	return &u, nil
}
