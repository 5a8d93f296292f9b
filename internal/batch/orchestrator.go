package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"certsheet/internal/models"
)

// Orchestrator defines the interface for executing one batch run.
type Orchestrator interface {
	Execute(ctx context.Context) (*Report, error)
}

// DefaultOrchestrator processes files one at a time with explicit dependencies.
// Concurrent Execute calls run one after the other.
type DefaultOrchestrator struct {
	mu sync.Mutex

	folderID  string
	source    Source
	extractor Extractor
	sink      Sink
	ledger    Ledger
	log       *slog.Logger
}

// Option configures a DefaultOrchestrator.
type Option func(*DefaultOrchestrator)

// WithLedger enables the outbox. Without it a file whose delete failed is
// appended again on the next run.
func WithLedger(l Ledger) Option {
	return func(o *DefaultOrchestrator) {
		o.ledger = l
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *DefaultOrchestrator) {
		o.log = log
	}
}

// NewOrchestrator creates a new DefaultOrchestrator instance.
func NewOrchestrator(folderID string, source Source, extractor Extractor, sink Sink, opts ...Option) *DefaultOrchestrator {
	o := &DefaultOrchestrator{
		folderID:  folderID,
		source:    source,
		extractor: extractor,
		sink:      sink,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute lists the folder and processes every file in listing order.
// Only a listing failure is returned as an error; per-file failures are
// recorded in the report and the run continues.
func (o *DefaultOrchestrator) Execute(ctx context.Context) (*Report, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	startTime := time.Now()
	runID := uuid.New().String()
	log := o.log.With(slog.String("run_id", runID))

	log.Info("Starting batch run", slog.String("folder_id", o.folderID))

	files, err := o.source.List(ctx, o.folderID)
	if err != nil {
		stepErr := &StepError{Stage: StageList, Err: err}
		log.Error("Error processing certificates", slog.String("error", stepErr.Error()))
		return nil, stepErr
	}

	report := &Report{
		RunID:    runID,
		FolderID: o.folderID,
		Listed:   len(files),
		Outcomes: make([]FileOutcome, 0, len(files)),
	}

	for _, file := range files {
		outcome := o.processFile(ctx, log, runID, file)
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.Status == StatusProcessed || outcome.Status == StatusReconciled {
			report.Processed++
		}
	}

	report.Duration = time.Since(startTime)
	log.Info(report.Message(),
		slog.Int("listed", report.Listed),
		slog.Int("processed", report.Processed),
		slog.Int("needs_reconciliation", len(report.NeedsReconciliation())),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

func (o *DefaultOrchestrator) processFile(ctx context.Context, log *slog.Logger, runID string, file models.FileRef) FileOutcome {
	log = log.With(slog.String("file_id", file.ID), slog.String("file_name", file.Name))

	fail := func(stage Stage, err error) FileOutcome {
		stepErr := &StepError{Stage: stage, File: file, Err: err}
		log.Error("Error processing certificate",
			slog.String("stage", string(stage)),
			slog.String("error", err.Error()),
		)
		return FileOutcome{File: file, Status: StatusFailed, Err: stepErr}
	}

	if o.ledger != nil {
		pending, err := o.ledger.Pending(ctx, file)
		if err != nil {
			return fail(StageReconcile, err)
		}
		if pending {
			return o.reconcile(ctx, log, file)
		}
	}

	image, err := o.source.Fetch(ctx, file)
	if err != nil {
		return fail(StageFetch, err)
	}

	ext, err := o.extractor.Extract(ctx, image)
	if err != nil {
		return fail(StageExtract, err)
	}
	if missing := ext.Missing(); len(missing) > 0 {
		log.Debug("Extraction missing fields", slog.Any("fields", missing))
	}

	if err := o.sink.Append(ctx, ext); err != nil {
		return fail(StageAppend, err)
	}

	if o.ledger != nil {
		if err := o.ledger.MarkAppended(ctx, file, runID); err != nil {
			log.Warn("Failed to record appended file", slog.String("error", err.Error()))
		}
	}

	if err := o.source.Delete(ctx, file); err != nil {
		stepErr := &StepError{Stage: StageDelete, File: file, Err: err}
		log.Error("Row appended but file not deleted",
			slog.String("stage", string(StageDelete)),
			slog.String("error", err.Error()),
		)
		return FileOutcome{File: file, Status: StatusNeedsReconciliation, Err: stepErr}
	}

	o.resolve(ctx, log, file)
	log.Info("Processed and deleted certificate")
	return FileOutcome{File: file, Status: StatusProcessed}
}

// reconcile deletes a file whose row an earlier run already appended.
func (o *DefaultOrchestrator) reconcile(ctx context.Context, log *slog.Logger, file models.FileRef) FileOutcome {
	log.Info("File already appended by an earlier run, deleting only")

	if err := o.source.Delete(ctx, file); err != nil {
		stepErr := &StepError{Stage: StageDelete, File: file, Err: err}
		log.Error("Reconciliation delete failed", slog.String("error", err.Error()))
		return FileOutcome{File: file, Status: StatusNeedsReconciliation, Err: stepErr}
	}

	o.resolve(ctx, log, file)
	return FileOutcome{File: file, Status: StatusReconciled}
}

func (o *DefaultOrchestrator) resolve(ctx context.Context, log *slog.Logger, file models.FileRef) {
	if o.ledger == nil {
		return
	}
	if err := o.ledger.Resolve(ctx, file); err != nil {
		log.Warn("Failed to resolve ledger entry", slog.String("error", err.Error()))
	}
}
