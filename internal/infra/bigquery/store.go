// Package bigquery persists statement uploads, the ledger and exchange rates in BigQuery.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/statement-reconciler/internal/currency"
	"github.com/dvloznov/statement-reconciler/internal/pipeline"
)

// Table names in the reconciler dataset.
const (
	UploadsTable       = "statement_uploads"
	ExtractionsTable   = "statement_extractions"
	TransactionsTable  = "transactions"
	ExchangeRatesTable = "exchange_rates"
)

var (
	_ pipeline.Persistence    = (*Store)(nil)
	_ currency.RateRepository = (*Store)(nil)
)

// Store holds a shared BigQuery client to avoid creating a new connection for
// each operation. Every method delegates to a *WithClient function.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewStore creates a client for projectID.
func NewStore(ctx context.Context, projectID, datasetID string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating client: %w", err)
	}
	return NewStoreWithClient(client, datasetID), nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client *bigquery.Client, datasetID string) *Store {
	return &Store{client: client, projectID: client.Project(), datasetID: datasetID}
}

// Close closes the BigQuery client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *Store) tables() Tables {
	return Tables{ProjectID: s.projectID, DatasetID: s.datasetID}
}

// Tables renders fully qualified table names.
type Tables struct {
	ProjectID string
	DatasetID string
}

// Name returns the backtick-quoted `project.dataset.table` reference.
func (t Tables) Name(table string) string {
	if t.ProjectID == "" {
		return fmt.Sprintf("`%s.%s`", t.DatasetID, table)
	}
	return fmt.Sprintf("`%s.%s.%s`", t.ProjectID, t.DatasetID, table)
}

// runDML runs a DML statement and returns the number of affected rows.
func runDML(ctx context.Context, q *bigquery.Query, op string) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: running query: %w", op, err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: waiting for job: %w", op, err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("%s: job error: %w", op, err)
	}
	return affectedRows(status), nil
}

// affectedRows reads NumDMLAffectedRows from a finished job.
func affectedRows(status *bigquery.JobStatus) int64 {
	if status == nil || status.Statistics == nil {
		return 0
	}
	qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics)
	if !ok || qs == nil {
		return 0
	}
	return qs.NumDMLAffectedRows
}
