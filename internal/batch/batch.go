// Package batch runs one pass over a certificate folder: fetch, extract,
// append and delete each image in listing order.
package batch

import (
	"context"
	"fmt"
	"time"

	"certsheet/internal/models"
)

// Source lists, downloads and deletes certificate images.
type Source interface {
	List(ctx context.Context, folderID string) ([]models.FileRef, error)
	Fetch(ctx context.Context, file models.FileRef) ([]byte, error)
	Delete(ctx context.Context, file models.FileRef) error
}

// Extractor turns image bytes into extracted fields.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (models.Extraction, error)
}

// Sink receives one row per processed certificate.
type Sink interface {
	Append(ctx context.Context, ext models.Extraction) error
}

// Ledger remembers files whose row was appended but which were not yet deleted.
// Entries are matched on FileRef.Key, so a reused ID with new content is not pending.
type Ledger interface {
	Pending(ctx context.Context, file models.FileRef) (bool, error)
	MarkAppended(ctx context.Context, file models.FileRef, runID string) error
	Resolve(ctx context.Context, file models.FileRef) error
}

// Stage names the step a per-file failure happened in.
type Stage string

const (
	StageList      Stage = "list"
	StageFetch     Stage = "fetch"
	StageExtract   Stage = "extract"
	StageAppend    Stage = "append"
	StageDelete    Stage = "delete"
	StageReconcile Stage = "reconcile"
)

// StepError is a failure at one stage, for one file or for the listing.
type StepError struct {
	Stage Stage
	File  models.FileRef
	Err   error
}

func (e *StepError) Error() string {
	if e.File.ID == "" {
		return fmt.Sprintf("failed to %s files: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("failed to %s %s: %v", e.Stage, e.File.Name, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Status is the result of processing one file.
type Status string

const (
	// StatusProcessed means the row was appended and the file deleted.
	StatusProcessed Status = "processed"
	// StatusFailed means the file was left untouched in the source.
	StatusFailed Status = "failed"
	// StatusNeedsReconciliation means the row was appended but the file could not be deleted.
	StatusNeedsReconciliation Status = "needs_reconciliation"
	// StatusReconciled means an earlier run appended the row and this run deleted the file.
	StatusReconciled Status = "reconciled"
)

// FileOutcome records what happened to one listed file.
type FileOutcome struct {
	File   models.FileRef
	Status Status
	Err    error
}

// Report summarizes one batch run.
type Report struct {
	RunID     string
	FolderID  string
	Listed    int
	Processed int
	Outcomes  []FileOutcome
	Duration  time.Duration
}

// Message is the text shown to CLI and HTTP callers.
func (r *Report) Message() string {
	return fmt.Sprintf("Processed %d certificates", r.Processed)
}

// NeedsReconciliation returns the files whose row exists but whose source file remains.
func (r *Report) NeedsReconciliation() []FileOutcome {
	var out []FileOutcome
	for _, o := range r.Outcomes {
		if o.Status == StatusNeedsReconciliation {
			out = append(out, o)
		}
	}
	return out
}

// Failed returns the files that were skipped.
func (r *Report) Failed() []FileOutcome {
	var out []FileOutcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			out = append(out, o)
		}
	}
	return out
}
