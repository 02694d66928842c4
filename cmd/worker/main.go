package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-reconciler/internal/app"
	"github.com/dvloznov/statement-reconciler/internal/config"
	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/jobs"
	"github.com/dvloznov/statement-reconciler/internal/jobs/inmemory"
	"github.com/dvloznov/statement-reconciler/internal/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("RECONCILER_CONFIG"), "Path to YAML config (defaults to RECONCILER_* env vars)")
	once := flag.Bool("once", false, "Process pending uploads sequentially and exit")
	flag.Parse()

	cfg, err := config.LoadOrEnv(*configPath)
	if err != nil {
		log := logger.New(logger.Options{})
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	log := app.NewLogger(cfg)
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer store.Close()

	docs, err := app.OpenDocuments(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open document store")
	}
	defer docs.Close()

	processor, err := app.NewProcessor(ctx, cfg, store, docs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create statement processor")
	}

	handler := jobs.NewProcessStatementHandler(processor)

	if *once {
		n, err := processPending(ctx, store, handler, cfg.Jobs.QueueSize)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to process pending uploads")
		}
		log.Info().Int("processed", n).Msg("Pending uploads processed")
		return
	}

	// In production, this would be replaced with Cloud Tasks or Pub/Sub
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(jobStore, inmemory.Options{
		BufferSize: cfg.Jobs.QueueSize,
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.MaxRetries,
	})

	log.Info().Int("workers", cfg.Jobs.Workers).Dur("poll_interval", cfg.Jobs.PollInterval).Msg("Starting worker service")

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	p := &poller{store: store, publisher: jobQueue, limit: cfg.Jobs.QueueSize, queued: map[string]bool{}}

	go p.run(ctx, cfg.Jobs.PollInterval)

	log.Info().Msg("Worker service started, waiting for uploads...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")
	shutdown(log, jobQueue, cfg.Server.ShutdownTimeout)
	cancel()

	log.Info().Msg("Worker service exited")
}

func shutdown(log zerolog.Logger, q *inmemory.Queue, timeout time.Duration) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop the queue and wait for in-flight jobs
	if err := q.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	if err := q.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}
}

// processPending runs handler for each pending upload in creation order.
// Job failures are logged and do not stop the run.
func processPending(ctx context.Context, store pendingLister, handler jobs.JobHandler, limit int) (int, error) {
	log := logger.FromContext(ctx)

	uploads, err := store.ListUploadsByStatus(ctx, domain.UploadStatusPending, limit)
	if err != nil {
		return 0, err
	}

	for _, u := range uploads {
		job := &jobs.ProcessStatementJob{JobID: uuid.New().String(), UploadID: u.ID, CreatedAt: time.Now()}
		if err := handler(ctx, job); err != nil {
			log.Error().Err(err).Str("upload_id", u.ID).Msg("Processing failed")
			continue
		}
		if job.Result != nil {
			log.Info().
				Str("upload_id", u.ID).
				Int("extracted", job.Result.TransactionsExtracted).
				Int("matched", job.Result.TransactionsMatched).
				Int("new", job.Result.TransactionsNew).
				Msg("Upload processed")
		}
	}
	return len(uploads), nil
}

// pendingLister is the slice of the store the poller reads.
type pendingLister interface {
	ListUploadsByStatus(ctx context.Context, status domain.UploadStatus, limit int) ([]*domain.StatementUpload, error)
}

// poller feeds pending uploads into the queue. An upload stays in queued
// until it leaves the pending state so slow workers are not handed it twice.
type poller struct {
	store     pendingLister
	publisher jobs.Publisher
	limit     int
	queued    map[string]bool
}

func (p *poller) run(ctx context.Context, interval time.Duration) {
	log := logger.FromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.poll(ctx); err != nil {
			log.Error().Err(err).Msg("Poll failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll enqueues every pending upload not already queued and returns how many it published.
func (p *poller) poll(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)

	uploads, err := p.store.ListUploadsByStatus(ctx, domain.UploadStatusPending, p.limit)
	if err != nil {
		return 0, err
	}

	pending := make(map[string]bool, len(uploads))
	published := 0
	for _, u := range uploads {
		pending[u.ID] = true
		if p.queued[u.ID] {
			continue
		}

		job := &jobs.ProcessStatementJob{UploadID: u.ID}
		if err := p.publisher.PublishProcessStatement(ctx, job); err != nil {
			return published, err
		}
		p.queued[u.ID] = true
		published++

		log.Info().Str("job_id", job.JobID).Str("upload_id", u.ID).Msg("Enqueued pending upload")
	}

	for id := range p.queued {
		if !pending[id] {
			delete(p.queued, id)
		}
	}
	return published, nil
}
