// Package app wires configured backends into the statement processor.
// The api, worker and cli commands share it.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-reconciler/internal/config"
	"github.com/dvloznov/statement-reconciler/internal/currency"
	"github.com/dvloznov/statement-reconciler/internal/docstore"
	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/extractor"
	infraBQ "github.com/dvloznov/statement-reconciler/internal/infra/bigquery"
	"github.com/dvloznov/statement-reconciler/internal/infra/sqlite"
	"github.com/dvloznov/statement-reconciler/internal/logger"
	"github.com/dvloznov/statement-reconciler/internal/matching"
	"github.com/dvloznov/statement-reconciler/internal/pipeline"
)

// Store is everything the commands need from a persistence backend.
type Store interface {
	pipeline.Persistence
	currency.RateRepository

	CreateUpload(ctx context.Context, u *domain.StatementUpload) error
	ListUploadsByStatus(ctx context.Context, status domain.UploadStatus, limit int) ([]*domain.StatementUpload, error)
	LatestExtraction(ctx context.Context, uploadID string) (*domain.ExtractionRecord, error)
	UpsertRate(ctx context.Context, from, to string, date civil.Date, rate float64) error
	Close() error
}

var (
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*infraBQ.Store)(nil)
)

// Documents is a document store that may hold a client connection.
type Documents interface {
	docstore.Store
	Close() error
}

// OpenStore opens the configured persistence backend.
func OpenStore(ctx context.Context, cfg *config.Config) (Store, error) {
	log := logger.FromContext(ctx)

	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		log.Info().Str("path", cfg.Storage.SQLitePath).Msg("Opening SQLite store")
		s, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendBigQuery:
		log.Info().Str("project", cfg.GCP.ProjectID).Str("dataset", cfg.Storage.DatasetID).Msg("Opening BigQuery store")
		s, err := infraBQ.NewStore(ctx, cfg.GCP.ProjectID, cfg.Storage.DatasetID)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("OpenStore: unknown storage backend %q", cfg.Storage.Backend)
	}
}

type localDocuments struct {
	*docstore.LocalStore
}

func (localDocuments) Close() error { return nil }

// OpenDocuments opens the configured document store.
func OpenDocuments(ctx context.Context, cfg *config.Config) (Documents, error) {
	switch cfg.Documents.Backend {
	case config.BackendLocal:
		s, err := docstore.NewLocalStore(cfg.Documents.LocalRoot)
		if err != nil {
			return nil, err
		}
		return localDocuments{s}, nil
	case config.BackendGCS:
		s, err := docstore.NewGCSStore(ctx, cfg.Documents.Bucket, cfg.Documents.Prefix)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("OpenDocuments: unknown documents backend %q", cfg.Documents.Backend)
	}
}

// NewProcessor builds the Gemini extractor and matching resolver and returns the processor.
func NewProcessor(ctx context.Context, cfg *config.Config, store Store, docs docstore.Store) (*pipeline.Processor, error) {
	ext, err := extractor.NewGeminiExtractor(ctx, cfg.ExtractorOptions())
	if err != nil {
		return nil, err
	}
	return NewProcessorWithExtractor(cfg, store, docs, ext), nil
}

// NewProcessorWithExtractor is NewProcessor with a caller-supplied extractor.
func NewProcessorWithExtractor(cfg *config.Config, store Store, docs docstore.Store, ext pipeline.StatementExtractor) *pipeline.Processor {
	resolver := matching.NewResolver(store, cfg.MatchingOptions())
	return pipeline.NewProcessor(store, docs, ext, resolver, cfg.PipelineOptions())
}

// NewLogger builds the process logger from the logging section and makes it the default.
func NewLogger(cfg *config.Config) zerolog.Logger {
	log := logger.New(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logger.SetDefault(log)
	return log
}
