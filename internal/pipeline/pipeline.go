// Package pipeline builds a ready-to-run batch orchestrator from configuration.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"certsheet/internal/batch"
	"certsheet/internal/config"
	"certsheet/internal/extract"
	"certsheet/internal/gapi"
	"certsheet/internal/outbox"
	"certsheet/internal/s3source"
	"certsheet/internal/xlsx"
)

// Pipeline holds the orchestrator and the resources it owns.
type Pipeline struct {
	Orchestrator batch.Orchestrator

	ledger  *outbox.Ledger
	closers []io.Closer
	log     *slog.Logger
}

// Build constructs every component named by cfg once. Callers must Close the
// returned pipeline. cfg must already be validated.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Pipeline, error) {
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{log: log}

	orch, err := p.build(ctx, cfg)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	p.Orchestrator = orch
	return p, nil
}

func (p *Pipeline) build(ctx context.Context, cfg *config.Config) (batch.Orchestrator, error) {
	var google *gapi.Client
	if cfg.NeedsGoogle() {
		creds, err := cfg.CredentialsJSON()
		if err != nil {
			return nil, err
		}
		google, err = gapi.NewClient(ctx, creds, p.log)
		if err != nil {
			p.log.Error("Failed to initialize Google services",
				slog.String("credentials", cfg.CredentialsSource()),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("%s: %w", cfg.CredentialsSource(), err)
		}
	}

	var source batch.Source
	switch cfg.Source.Kind {
	case config.SourceDrive:
		source = google
	case config.SourceS3:
		s3src, err := s3source.New(ctx, cfg.Source.S3, p.log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 source: %w", err)
		}
		source = s3src
	default:
		return nil, fmt.Errorf("unknown source kind: %q", cfg.Source.Kind)
	}

	var sink batch.Sink
	switch cfg.Sink.Kind {
	case config.SinkSheets:
		sink = google.Sheet(cfg.SpreadsheetID, cfg.SheetName)
	case config.SinkXLSX:
		sink = xlsx.New(cfg.Sink.XLSXPath, cfg.SheetName, p.log)
	default:
		return nil, fmt.Errorf("unknown sink kind: %q", cfg.Sink.Kind)
	}

	extractor, err := extract.New(ctx, cfg.Extractor, p.log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize extractor: %w", err)
	}
	if c, ok := extractor.(io.Closer); ok {
		p.closers = append(p.closers, c)
	}

	opts := []batch.Option{batch.WithLogger(p.log)}
	if cfg.LedgerPath != "" {
		ledger, err := outbox.Open(ctx, cfg.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		p.ledger = ledger
		p.closers = append(p.closers, ledger)
		opts = append(opts, batch.WithLedger(ledger))
	}

	p.log.Info("Pipeline ready",
		slog.String("source", cfg.Source.Kind),
		slog.String("sink", cfg.Sink.Kind),
		slog.String("provider", cfg.Extractor.Provider),
		slog.String("model", cfg.Extractor.Model),
		slog.Bool("ledger", cfg.LedgerPath != ""),
	)
	return batch.NewOrchestrator(cfg.FolderID, source, extractor, sink, opts...), nil
}

// Run executes one batch.
func (p *Pipeline) Run(ctx context.Context) (*batch.Report, error) {
	return p.Orchestrator.Execute(ctx)
}

// Unresolved lists files appended to the sheet but never deleted from the
// source. It returns nil when no ledger is configured.
func (p *Pipeline) Unresolved(ctx context.Context) ([]outbox.Entry, error) {
	if p.ledger == nil {
		return nil, nil
	}
	return p.ledger.Entries(ctx)
}

// Close releases the ledger and any extractor process.
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
