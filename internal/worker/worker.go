package worker

import (
	"context"
	"log/slog"
	"time"

	"elasticrag/internal/usecase"
)

const (
	jobTimeout     = 60 * time.Second
	initialBackoff = 1 * time.Second
	maxBackoff     = 5 * time.Minute
	queueCapacity  = 256
)

// IngestJob is one queued document ingestion.
type IngestJob struct {
	ID         string
	Username   string
	Collection string
	ModelID    string
	Input      usecase.AddDocumentInput
}

// Opener opens a collection handle for a queued job.
type Opener interface {
	Open(ctx context.Context, username, collection, modelID string, forceRecreate bool) (*usecase.Collection, error)
}

// IngestWorker drains a job queue serially, backing off exponentially after
// a transient failure so a down store is not hammered.
type IngestWorker struct {
	collections Opener
	logger      *slog.Logger
	jobs        chan IngestJob
	stopChan    chan struct{}
	done        chan struct{}
	backoff     time.Duration
}

func NewIngestWorker(collections Opener, logger *slog.Logger) *IngestWorker {
	return &IngestWorker{
		collections: collections,
		logger:      logger,
		jobs:        make(chan IngestJob, queueCapacity),
		stopChan:    make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Enqueue adds a job to the queue. Returns false when the queue is full.
func (w *IngestWorker) Enqueue(job IngestJob) bool {
	select {
	case w.jobs <- job:
		return true
	default:
		return false
	}
}

// QueueDepth reports the number of jobs waiting.
func (w *IngestWorker) QueueDepth() int {
	return len(w.jobs)
}

func (w *IngestWorker) Start() {
	w.logger.Info("ingest_worker_started")
	go w.run()
}

// Stop signals the worker and waits for the in-flight job to finish.
func (w *IngestWorker) Stop() {
	w.logger.Info("ingest_worker_stopping")
	close(w.stopChan)
	<-w.done
}

func (w *IngestWorker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stopChan:
			return
		case job := <-w.jobs:
			w.process(job)
			if w.backoff > 0 {
				select {
				case <-w.stopChan:
					return
				case <-time.After(w.backoff):
				}
			}
		}
	}
}

func (w *IngestWorker) process(job IngestJob) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	w.logger.Info("ingest_job_started",
		slog.String("job_id", job.ID),
		slog.String("username", job.Username),
		slog.String("collection", job.Collection),
	)

	err := w.ingest(ctx, job)
	if err != nil {
		w.backoff = w.nextBackoff(w.backoff)
		w.logger.Warn("ingest_job_failed",
			slog.String("job_id", job.ID),
			slog.Duration("backoff", w.backoff),
			slog.String("error", err.Error()),
		)
		return
	}
	w.backoff = 0
	w.logger.Info("ingest_job_completed", slog.String("job_id", job.ID))
}

func (w *IngestWorker) ingest(ctx context.Context, job IngestJob) error {
	coll, err := w.collections.Open(ctx, job.Username, job.Collection, job.ModelID, false)
	if err != nil {
		return err
	}
	_, err = coll.Add(ctx, job.Input)
	return err
}

func (w *IngestWorker) nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return initialBackoff
	}
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
