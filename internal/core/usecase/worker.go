package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/kirillkom/dokeep/internal/core/domain"
	"github.com/kirillkom/dokeep/internal/core/ports"
)

const DefaultPollInterval = 5 * time.Second

// WorkerObserver receives per-item worker telemetry.
type WorkerObserver interface {
	StartDocument()
	FinishDocument(outcome domain.ProcessOutcome, duration time.Duration)
	ObserveQueueLag(lag time.Duration)
}

// StatusWriter records a terminal status the processor could not write itself.
type StatusWriter interface {
	UpdateStatus(ctx context.Context, id int64, status domain.DocumentStatus, message string) error
}

type noopWorkerObserver struct{}

func (noopWorkerObserver) StartDocument()                                      {}
func (noopWorkerObserver) FinishDocument(domain.ProcessOutcome, time.Duration) {}
func (noopWorkerObserver) ObserveQueueLag(time.Duration)                       {}

// Worker drains the work queue one item at a time. An item leaves the queue
// once its document reached a terminal outcome, whatever that outcome was.
type Worker struct {
	queue        ports.WorkQueue
	processor    ports.DocumentProcessor
	sweeper      *StaleSweeper
	statuses     StatusWriter
	observer     WorkerObserver
	logger       *slog.Logger
	pollInterval time.Duration
	wake         chan struct{}
}

type WorkerOption func(*Worker)

func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

func WithWorkerObserver(o WorkerObserver) WorkerOption {
	return func(w *Worker) {
		if o != nil {
			w.observer = o
		}
	}
}

func WithStaleSweeper(s *StaleSweeper) WorkerOption {
	return func(w *Worker) { w.sweeper = s }
}

// WithStatusWriter lets the worker mark a document failed after a panic that
// escaped the processor. Without it such items stay queued.
func WithStatusWriter(s StatusWriter) WorkerOption {
	return func(w *Worker) { w.statuses = s }
}

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func NewWorker(queue ports.WorkQueue, processor ports.DocumentProcessor, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:        queue,
		processor:    processor,
		observer:     noopWorkerObserver{},
		logger:       slog.Default(),
		pollInterval: DefaultPollInterval,
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Wake requests an immediate poll. It never blocks.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker_started", "poll_interval", w.pollInterval.String())
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker_stopped")
			return nil
		case <-timer.C:
		case <-w.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		removed, err := w.PollOnce(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.Error("worker_poll_failed", "error", err)
		}
		if ctx.Err() != nil {
			w.logger.Info("worker_stopped")
			return nil
		}

		if removed > 0 {
			timer.Reset(0)
			continue
		}
		if w.sweeper != nil {
			if _, err := w.sweeper.Sweep(ctx); err != nil {
				w.logger.Warn("stale_sweep_failed", "error", err)
			}
		}
		timer.Reset(w.pollInterval)
	}
}

// PollOnce processes every item currently pending and reports how many were
// removed from the queue.
func (w *Worker) PollOnce(ctx context.Context) (int, error) {
	removed := 0
	for item, err := range w.queue.Pending(ctx) {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if err != nil {
			if errors.Is(err, domain.ErrMalformedQueueKey) {
				if w.discardMalformed(ctx, item, err) {
					removed++
				}
				continue
			}
			return removed, fmt.Errorf("list pending queue items: %w", err)
		}
		if w.handle(ctx, item) {
			removed++
		}
	}
	return removed, nil
}

func (w *Worker) discardMalformed(ctx context.Context, item domain.QueueItem, cause error) bool {
	w.logger.Error("queue_item_malformed", "key", item.Key, "error", cause)
	if err := w.queue.Remove(ctx, item); err != nil {
		w.logger.Error("queue_item_remove_failed", "key", item.Key, "error", err)
		return false
	}
	return true
}

// handle reports whether the item left the queue.
func (w *Worker) handle(ctx context.Context, item domain.QueueItem) bool {
	logger := w.logger.With("document_id", item.DocumentID, "key", item.Key)
	started := time.Now()
	if !item.EnqueuedAt.IsZero() {
		w.observer.ObserveQueueLag(started.Sub(item.EnqueuedAt))
	}
	w.observer.StartDocument()

	outcome, err := w.process(ctx, item)
	w.observer.FinishDocument(outcome, time.Since(started))

	if outcome == domain.OutcomeDeferred {
		logger.Warn("document_deferred", "error", err)
		return false
	}
	if err != nil {
		logger.Error("document_processing_failed", "outcome", string(outcome), "error", err)
	} else {
		logger.Info("document_processed", "outcome", string(outcome), "duration_ms", time.Since(started).Milliseconds())
	}

	if err := w.queue.Remove(ctx, item); err != nil {
		logger.Error("queue_item_remove_failed", "error", err)
		return false
	}
	return true
}

func (w *Worker) process(ctx context.Context, item domain.QueueItem) (outcome domain.ProcessOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in worker: %v", r)
			outcome = w.failAfterPanic(ctx, item.DocumentID, err)
		}
	}()

	data, err := w.queue.Read(ctx, item)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.OutcomeDiscarded, fmt.Errorf("read queue payload: %w", err)
		}
		return domain.OutcomeDeferred, fmt.Errorf("read queue payload: %w", err)
	}

	return w.processor.Process(ctx, domain.ExtractionInput{
		DocumentID: item.DocumentID,
		Extension:  item.Extension,
		Data:       data,
	})
}

// failAfterPanic keeps the row and the queue item consistent: the item only
// leaves the queue once the row is marked failed.
func (w *Worker) failAfterPanic(ctx context.Context, documentID int64, cause error) domain.ProcessOutcome {
	if w.statuses == nil {
		return domain.OutcomeDeferred
	}
	if err := w.statuses.UpdateStatus(ctx, documentID, domain.StatusFailed, cause.Error()); err != nil {
		w.logger.Error("mark_failed_status_failed", "document_id", documentID, "error", err, "cause", cause)
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			return domain.OutcomeSkipped
		}
		return domain.OutcomeDeferred
	}
	return domain.OutcomeFailed
}
