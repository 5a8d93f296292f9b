package config

import (
	"flag"
	"fmt"
)

// ApplyFlags parses command-line flags on top of cfg. A flag that is not given
// keeps the value already loaded from the environment.
func ApplyFlags(cfg *Config, name string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	fs.StringVar(&cfg.FolderID, "folder-id", cfg.FolderID, "Drive folder ID (or S3 prefix) holding certificate images")
	fs.StringVar(&cfg.SpreadsheetID, "spreadsheet-id", cfg.SpreadsheetID, "Google spreadsheet ID rows are appended to")
	fs.StringVar(&cfg.SheetName, "sheet", cfg.SheetName, "Sheet name within the spreadsheet (default: Sheet1)")
	fs.StringVar(&cfg.Credentials, "credentials", cfg.Credentials, "Service account JSON, inline or as a file path")
	fs.StringVar(&cfg.Source.Kind, "source", cfg.Source.Kind, "Image source: drive or s3 (default: drive)")
	fs.StringVar(&cfg.Sink.Kind, "sink", cfg.Sink.Kind, "Row sink: sheets or xlsx (default: sheets)")
	fs.StringVar(&cfg.Sink.XLSXPath, "xlsx", cfg.Sink.XLSXPath, "Workbook path for the xlsx sink")
	fs.StringVar(&cfg.Extractor.Provider, "provider", cfg.Extractor.Provider, "Extraction provider: claude, gemini or copilot (default: claude)")
	fs.StringVar(&cfg.Extractor.Model, "model", cfg.Extractor.Model, "Model name for the extraction provider")
	fs.StringVar(&cfg.LedgerPath, "ledger", cfg.LedgerPath, "SQLite file for the reconciliation outbox (disabled when empty)")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level: debug, info, warn or error")

	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, "Usage:\n\n")
		fmt.Fprintf(out, "\t%s [flags]\n\n", name)
		fmt.Fprintf(out, "Every flag can also be set through the environment, e.g. FOLDER_ID, SPREADSHEET_ID,\n")
		fmt.Fprintf(out, "GOOGLE_APPLICATION_CREDENTIALS and ANTHROPIC_API_KEY.\n\n")
		fmt.Fprintf(out, "Flags:\n\n")
		fs.PrintDefaults()
	}

	return fs.Parse(args)
}
