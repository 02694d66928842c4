// Package config loads the reconciler configuration.
//
// Configuration can be loaded from:
//  1. a YAML file, with ${VAR} references expanded from the environment
//  2. RECONCILER_* environment variables (fallback)
//
// Example usage:
//
//	cfg, err := config.LoadOrEnv(path)
//	store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dvloznov/statement-reconciler/internal/currency"
	"github.com/dvloznov/statement-reconciler/internal/extractor"
	"github.com/dvloznov/statement-reconciler/internal/matching"
	"github.com/dvloznov/statement-reconciler/internal/pipeline"
)

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendBigQuery = "bigquery"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
)

// Config represents the entire application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Documents DocumentsConfig `yaml:"documents"`
	GCP       GCPConfig       `yaml:"gcp"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Matching  MatchingConfig  `yaml:"matching"`
	Currency  CurrencyConfig  `yaml:"currency"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Notion    NotionConfig    `yaml:"notion"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	APIKey          string        `yaml:"api_key"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
	DatasetID  string `yaml:"dataset_id"`
}

// DocumentsConfig selects where statement PDFs live.
type DocumentsConfig struct {
	Backend   string `yaml:"backend"`
	LocalRoot string `yaml:"local_root"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

// GCPConfig holds Google Cloud settings shared by BigQuery, GCS and Vertex.
type GCPConfig struct {
	ProjectID string `yaml:"project_id"`
	Location  string `yaml:"location"`
}

// GeminiConfig holds extractor settings. An empty APIKey with a GCP project uses Vertex AI.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// MatchingConfig holds reconciliation thresholds.
type MatchingConfig struct {
	MinMatchScore       int                 `yaml:"min_match_score"`
	DateToleranceDays   int                 `yaml:"date_tolerance_days"`
	MinVendorSimilarity int                 `yaml:"min_vendor_similarity"`
	MaxSuggestions      int                 `yaml:"max_suggestions"`
	VendorAliases       map[string][]string `yaml:"vendor_aliases"`
}

// CurrencyConfig bounds the approximate exchange-rate search.
type CurrencyConfig struct {
	MaxDaysBack int `yaml:"max_days_back"`
}

// PipelineConfig tunes statement processing.
type PipelineConfig struct {
	MinConfidence  float64       `yaml:"min_confidence"`
	ProgressBuffer int           `yaml:"progress_buffer"`
	FlushTimeout   time.Duration `yaml:"flush_timeout"`
}

// JobsConfig sizes the background job queue.
type JobsConfig struct {
	Workers      int           `yaml:"workers"`
	QueueSize    int           `yaml:"queue_size"`
	MaxRetries   int           `yaml:"max_retries"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// NotionConfig holds review export settings.
type NotionConfig struct {
	Token      string `yaml:"token"`
	DatabaseID string `yaml:"database_id"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the config file, then applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${GEMINI_API_KEY})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:   getEnvInt("RECONCILER_PORT", 0),
			APIKey: getEnv("RECONCILER_API_KEY", ""),
		},
		Storage: StorageConfig{
			Backend:    getEnv("RECONCILER_STORAGE_BACKEND", ""),
			SQLitePath: getEnv("RECONCILER_SQLITE_PATH", ""),
			DatasetID:  getEnv("RECONCILER_BQ_DATASET", ""),
		},
		Documents: DocumentsConfig{
			Backend:   getEnv("RECONCILER_DOCUMENTS_BACKEND", ""),
			LocalRoot: getEnv("RECONCILER_DOCUMENTS_ROOT", ""),
			Bucket:    getEnv("RECONCILER_GCS_BUCKET", os.Getenv("GCS_BUCKET")),
			Prefix:    getEnv("RECONCILER_GCS_PREFIX", ""),
		},
		GCP: GCPConfig{
			ProjectID: getEnv("RECONCILER_GCP_PROJECT", os.Getenv("GOOGLE_CLOUD_PROJECT")),
			Location:  getEnv("RECONCILER_GCP_LOCATION", ""),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("RECONCILER_GEMINI_API_KEY", os.Getenv("GEMINI_API_KEY")),
			Model:  getEnv("RECONCILER_GEMINI_MODEL", ""),
		},
		Matching: MatchingConfig{
			MinMatchScore:     getEnvInt("RECONCILER_MIN_MATCH_SCORE", 0),
			DateToleranceDays: getEnvInt("RECONCILER_DATE_TOLERANCE_DAYS", 0),
		},
		Currency: CurrencyConfig{
			MaxDaysBack: getEnvInt("RECONCILER_RATE_MAX_DAYS_BACK", 0),
		},
		Pipeline: PipelineConfig{
			MinConfidence: getEnvFloat("RECONCILER_MIN_CONFIDENCE", 0),
		},
		Jobs: JobsConfig{
			Workers:    getEnvInt("RECONCILER_WORKERS", 0),
			MaxRetries: getEnvInt("RECONCILER_MAX_RETRIES", 0),
		},
		Notion: NotionConfig{
			Token:      getEnv("RECONCILER_NOTION_TOKEN", os.Getenv("NOTION_TOKEN")),
			DatabaseID: getEnv("RECONCILER_NOTION_DATABASE_ID", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("RECONCILER_LOG_LEVEL", ""),
			Format: getEnv("RECONCILER_LOG_FORMAT", ""),
		},
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrEnv loads path when it is set and exists, and falls back to environment variables otherwise.
func LoadOrEnv(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendSQLite
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "reconciler.db"
	}
	if c.Storage.DatasetID == "" {
		c.Storage.DatasetID = "reconciler"
	}
	if c.Documents.Backend == "" {
		c.Documents.Backend = BackendLocal
	}
	if c.Documents.LocalRoot == "" {
		c.Documents.LocalRoot = "statements"
	}
	if c.GCP.Location == "" {
		c.GCP.Location = "us-central1"
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = extractor.DefaultModelName
	}
	if c.Matching.MinMatchScore == 0 {
		c.Matching.MinMatchScore = matching.MediumConfidenceThreshold
	}
	if c.Matching.DateToleranceDays == 0 {
		c.Matching.DateToleranceDays = pipeline.DefaultDateToleranceDays
	}
	if c.Currency.MaxDaysBack == 0 {
		c.Currency.MaxDaysBack = currency.DefaultMaxDaysBack
	}
	if c.Pipeline.ProgressBuffer == 0 {
		c.Pipeline.ProgressBuffer = pipeline.DefaultProgressBuffer
	}
	if c.Pipeline.FlushTimeout == 0 {
		c.Pipeline.FlushTimeout = pipeline.DefaultFlushTimeout
	}
	if c.Jobs.Workers == 0 {
		c.Jobs.Workers = 5
	}
	if c.Jobs.QueueSize == 0 {
		c.Jobs.QueueSize = 100
	}
	if c.Jobs.PollInterval == 0 {
		c.Jobs.PollInterval = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case BackendSQLite:
	case BackendBigQuery:
		if c.GCP.ProjectID == "" {
			errs = append(errs, errors.New("gcp.project_id is required for the bigquery backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be %q or %q, got %q", BackendSQLite, BackendBigQuery, c.Storage.Backend))
	}

	switch c.Documents.Backend {
	case BackendLocal:
	case BackendGCS:
		if c.Documents.Bucket == "" {
			errs = append(errs, errors.New("documents.bucket is required for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("documents.backend must be %q or %q, got %q", BackendLocal, BackendGCS, c.Documents.Backend))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Pipeline.MinConfidence < 0 || c.Pipeline.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("pipeline.min_confidence must be within [0, 1], got %g", c.Pipeline.MinConfidence))
	}
	if c.Matching.MinMatchScore < 0 || c.Matching.MinMatchScore > 100 {
		errs = append(errs, fmt.Errorf("matching.min_match_score must be within [0, 100], got %d", c.Matching.MinMatchScore))
	}
	if c.Matching.DateToleranceDays < 0 {
		errs = append(errs, fmt.Errorf("matching.date_tolerance_days must not be negative, got %d", c.Matching.DateToleranceDays))
	}
	if c.Jobs.Workers < 0 || c.Jobs.MaxRetries < 0 {
		errs = append(errs, errors.New("jobs.workers and jobs.max_retries must not be negative"))
	}

	return errors.Join(errs...)
}

// MatchingOptions converts the matching section for matching.NewResolver.
func (c *Config) MatchingOptions() matching.Config {
	cfg := matching.DefaultConfig()
	cfg.MinMatchScore = c.Matching.MinMatchScore
	cfg.DateToleranceDays = c.Matching.DateToleranceDays
	cfg.MaxRateDaysBack = c.Currency.MaxDaysBack
	cfg.VendorAliases = c.Matching.VendorAliases
	if c.Matching.MinVendorSimilarity > 0 {
		cfg.MinVendorSimilarity = c.Matching.MinVendorSimilarity
	}
	if c.Matching.MaxSuggestions > 0 {
		cfg.MaxSuggestions = c.Matching.MaxSuggestions
	}
	return cfg
}

// PipelineOptions converts the pipeline section for pipeline.NewProcessor.
func (c *Config) PipelineOptions() pipeline.Config {
	return pipeline.Config{
		MinConfidence:     c.Pipeline.MinConfidence,
		DateToleranceDays: c.Matching.DateToleranceDays,
		ProgressBuffer:    c.Pipeline.ProgressBuffer,
		FlushTimeout:      c.Pipeline.FlushTimeout,
	}
}

// ExtractorOptions converts the Gemini and GCP sections for extractor.NewGeminiExtractor.
// A configured API key takes precedence over Vertex AI.
func (c *Config) ExtractorOptions() extractor.Config {
	cfg := extractor.Config{Model: c.Gemini.Model, APIKey: c.Gemini.APIKey}
	if cfg.APIKey == "" {
		cfg.Project = c.GCP.ProjectID
		cfg.Location = c.GCP.Location
	}
	return cfg
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f
		}
	}
	return fallback
}
