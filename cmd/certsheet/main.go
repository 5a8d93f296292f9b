package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"certsheet/internal/batch"
	"certsheet/internal/config"
	"certsheet/internal/outbox"
	"certsheet/internal/pipeline"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run performs one batch and prints the outcome. Batch and initialization
// errors are printed, not returned as a failing exit code; only bad flags are.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stdout, "Error processing certificates: %v\n", err)
		return 0
	}
	if err := config.ApplyFlags(cfg, "certsheet", args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	logger := config.NewLogger(cfg.Log, stderr)
	slog.SetDefault(logger)

	report, unresolved, err := process(ctx, cfg, logger)
	if err != nil {
		logger.Error("Error processing certificates", slog.String("error", err.Error()))
		fmt.Fprintf(stdout, "Error processing certificates: %v\n", err)
		return 0
	}

	printReport(stdout, report, unresolved)
	return 0
}

func printReport(w io.Writer, report *batch.Report, unresolved []outbox.Entry) {
	fmt.Fprintln(w, report.Message())
	for _, o := range report.NeedsReconciliation() {
		fmt.Fprintf(w, "Needs reconciliation: %s (%s): %v\n", o.File.Name, o.File.ID, o.Err)
	}
	for _, e := range unresolved {
		fmt.Fprintf(w, "Unresolved in ledger: %s (%s) appended by run %s at %s\n",
			e.FileName, e.FileID, e.RunID, e.AppendedAt.Format(time.RFC3339))
	}
}

// process runs one batch and then lists what the ledger still holds.
func process(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*batch.Report, []outbox.Entry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	p, err := pipeline.Build(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Error("failed to close pipeline", slog.String("error", err.Error()))
		}
	}()

	report, err := p.Run(ctx)
	if err != nil {
		return nil, nil, err
	}
	unresolved, err := p.Unresolved(ctx)
	if err != nil {
		logger.Error("failed to read ledger", slog.String("error", err.Error()))
	}
	return report, unresolved, nil
}
