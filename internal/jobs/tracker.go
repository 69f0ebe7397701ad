package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/invoice-extractor/internal/invoice"
)

// Extractor produces an invoice from a stored document.
type Extractor interface {
	Extract(ctx context.Context, path string) (*invoice.Invoice, error)
}

// IDGenerator generates unique job IDs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// Tracker submits documents for background extraction and answers status
// queries.
type Tracker struct {
	store       Store
	extractor   Extractor
	idGenerator IDGenerator
	timeSource  TimeSource
	logger      *slog.Logger
	launch      func(task func())
	wg          sync.WaitGroup
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithIDGenerator replaces the uuid job id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(t *Tracker) {
		t.idGenerator = g
	}
}

// WithTimeSource replaces the system clock.
func WithTimeSource(ts TimeSource) Option {
	return func(t *Tracker) {
		t.timeSource = ts
	}
}

// WithLogger sets the logger for worker failures.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithLauncher replaces how workers are started. The default runs each one
// on its own goroutine.
func WithLauncher(launch func(task func())) Option {
	return func(t *Tracker) {
		t.launch = launch
	}
}

// NewTracker creates a Tracker.
func NewTracker(store Store, extractor Extractor, opts ...Option) *Tracker {
	t := &Tracker{
		store:       store,
		extractor:   extractor,
		idGenerator: uuidGenerator{},
		timeSource:  systemClock{},
		logger:      slog.Default(),
		launch:      func(task func()) { go task() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Submit records a pending job for documentPath and starts its worker. It
// returns as soon as the job record exists. The worker is not tied to ctx
// and runs to completion.
func (t *Tracker) Submit(ctx context.Context, documentPath string) (string, error) {
	job := &Job{
		ID:           t.idGenerator.Generate(),
		DocumentPath: documentPath,
		Status:       StatusPending,
		StartedAt:    t.timeSource.Now(),
	}
	if err := t.store.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("creating job: %w", err)
	}

	workerCtx := context.WithoutCancel(ctx)
	t.wg.Add(1)
	t.launch(func() {
		defer t.wg.Done()
		t.run(workerCtx, job)
	})

	t.logger.Info("Job submitted", "job_id", job.ID, "document", documentPath)
	return job.ID, nil
}

// Status returns the caller-facing view of a job. Unknown ids produce an
// error wrapping apperr.ErrNotFound.
func (t *Tracker) Status(ctx context.Context, id string) (*StatusReport, error) {
	job, err := t.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return job.Report(), nil
}

// Wait blocks until every started worker has finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// Shutdown waits for running workers until ctx is done.
func (t *Tracker) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for jobs: %w", ctx.Err())
	}
}

// run owns job for its whole lifetime.
func (t *Tracker) run(ctx context.Context, job *Job) {
	logger := t.logger.With("job_id", job.ID)

	job.Status = StatusProcessing
	if err := t.store.UpdateJob(ctx, job); err != nil {
		logger.Error("Error marking job processing", "error", err)
		t.fail(ctx, logger, job, fmt.Errorf("starting job: %w", err))
		return
	}

	inv, err := t.extract(ctx, job.DocumentPath)
	if err == nil && inv == nil {
		err = fmt.Errorf("extraction returned no invoice")
	}

	completed := t.timeSource.Now()
	job.CompletedAt = &completed
	if err == nil {
		job.Result, err = json.Marshal(inv)
		if err != nil {
			err = fmt.Errorf("encoding result: %w", err)
		}
	}
	if err != nil {
		job.Status = StatusError
		job.Error = err.Error()
		job.Result = nil
		logger.Error("Extraction failed", "error", err)
	} else {
		job.Status = StatusCompleted
		logger.Info("Extraction completed", "confidence", inv.Confidence, "line_items", len(inv.LineItems))
	}

	if err := t.store.UpdateJob(ctx, job); err != nil {
		logger.Error("Error recording job outcome", "status", job.Status, "error", err)
	}
}

// fail records a job that never reached extraction. The store already
// refused one write, so this is a best effort.
func (t *Tracker) fail(ctx context.Context, logger *slog.Logger, job *Job, cause error) {
	completed := t.timeSource.Now()
	job.Status = StatusError
	job.Error = cause.Error()
	job.Result = nil
	job.CompletedAt = &completed
	if err := t.store.UpdateJob(ctx, job); err != nil {
		logger.Error("Error recording job failure, job left pending", "error", err)
	}
}

// extract turns a panicking extractor into an ordinary failure so the job
// still reaches a terminal state.
func (t *Tracker) extract(ctx context.Context, path string) (inv *invoice.Invoice, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extraction panicked: %v", r)
		}
	}()
	return t.extractor.Extract(ctx, path)
}
