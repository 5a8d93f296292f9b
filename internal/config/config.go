package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"certsheet/internal/gapi"
)

// ErrMissingField is wrapped by Validate for every required value left empty.
var ErrMissingField = errors.New("missing required field")

// Source kinds.
const (
	SourceDrive = "drive"
	SourceS3    = "s3"
)

// Sink kinds.
const (
	SinkSheets = "sheets"
	SinkXLSX   = "xlsx"
)

// Extractor providers.
const (
	ProviderClaude  = "claude"
	ProviderGemini  = "gemini"
	ProviderCopilot = "copilot"
)

// Config holds the runtime configuration for a batch run.
type Config struct {
	// FolderID is the Drive folder (or S3 key prefix) holding certificate images.
	FolderID string

	// SpreadsheetID is the target Google spreadsheet.
	SpreadsheetID string

	// SheetName is the tab rows are appended to.
	// Default is "Sheet1" if not specified.
	SheetName string

	// Credentials is the service account key, either inline JSON or a path to the JSON file.
	Credentials string

	Source    SourceConfig
	Sink      SinkConfig
	Extractor ExtractorConfig

	// LedgerPath enables the reconciliation outbox when set.
	LedgerPath string

	Server ServerConfig
	Log    LogConfig
}

// SourceConfig selects where certificate images are read from.
type SourceConfig struct {
	Kind string
	S3   S3Config
}

// S3Config holds settings for the S3 source.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// SinkConfig selects where extracted rows are written.
type SinkConfig struct {
	Kind     string
	XLSXPath string
}

// ExtractorConfig holds settings for the vision model call.
type ExtractorConfig struct {
	Provider    string
	APIKey      string
	Model       string
	Endpoint    string
	TimeoutSecs int
	MaxTokens   int

	// providerKeys holds per-provider keys (ANTHROPIC_API_KEY, GEMINI_API_KEY)
	// used when APIKey is empty.
	providerKeys map[string]string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

var defaultModels = map[string]string{
	ProviderClaude:  "claude-sonnet-4-20250514",
	ProviderGemini:  "gemini-2.0-flash",
	ProviderCopilot: "gpt-5-mini-high",
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.SheetName == "" {
		c.SheetName = "Sheet1"
	}
	if c.Source.Kind == "" {
		c.Source.Kind = SourceDrive
	}
	if c.Source.S3.Region == "" {
		c.Source.S3.Region = "us-east-1"
	}
	if c.Sink.Kind == "" {
		c.Sink.Kind = SinkSheets
	}
	if c.Extractor.Provider == "" {
		c.Extractor.Provider = ProviderClaude
	}
	if c.Extractor.APIKey == "" {
		c.Extractor.APIKey = c.Extractor.providerKeys[c.Extractor.Provider]
	}
	if c.Extractor.Model == "" {
		c.Extractor.Model = defaultModels[c.Extractor.Provider]
	}
	if c.Extractor.TimeoutSecs == 0 {
		c.Extractor.TimeoutSecs = 120
	}
	if c.Extractor.MaxTokens == 0 {
		c.Extractor.MaxTokens = 4096
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// NeedsGoogle reports whether the run talks to Drive or Sheets.
func (c *Config) NeedsGoogle() bool {
	return c.Source.Kind == SourceDrive || c.Sink.Kind == SinkSheets
}

// CredentialsSource describes where the service account key comes from, for error messages.
func (c *Config) CredentialsSource() string {
	value := strings.TrimSpace(c.Credentials)
	if strings.HasPrefix(value, "{") {
		return "inline credentials JSON"
	}
	return fmt.Sprintf("credentials file %s", value)
}

// CredentialsJSON returns the service account key. Inline JSON is returned as is,
// anything else is read as a file path.
func (c *Config) CredentialsJSON() ([]byte, error) {
	value := strings.TrimSpace(c.Credentials)
	if value == "" {
		return nil, fmt.Errorf("%w: credentials", ErrMissingField)
	}
	if strings.HasPrefix(value, "{") {
		return []byte(value), nil
	}

	info, err := os.Stat(value)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("credentials file not found: %s", value)
	}
	if err != nil {
		return nil, fmt.Errorf("error checking credentials file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("credentials path is a directory, expected a file: %s", value)
	}

	data, err := os.ReadFile(value)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	return data, nil
}

// Validate checks if the configuration is valid.
// It also applies default values for fields that are not set.
func (c *Config) Validate() error {
	c.ApplyDefaults()

	switch c.Source.Kind {
	case SourceDrive:
		if c.FolderID == "" {
			return fmt.Errorf("%w: folder_id", ErrMissingField)
		}
	case SourceS3:
		if c.Source.S3.Bucket == "" {
			return fmt.Errorf("%w: s3_bucket", ErrMissingField)
		}
	default:
		return fmt.Errorf("unknown source kind: %q", c.Source.Kind)
	}

	switch c.Sink.Kind {
	case SinkSheets:
		if c.SpreadsheetID == "" {
			return fmt.Errorf("%w: spreadsheet_id", ErrMissingField)
		}
	case SinkXLSX:
		if c.Sink.XLSXPath == "" {
			return fmt.Errorf("%w: xlsx_path", ErrMissingField)
		}
	default:
		return fmt.Errorf("unknown sink kind: %q", c.Sink.Kind)
	}

	switch c.Extractor.Provider {
	case ProviderClaude, ProviderGemini:
		if c.Extractor.APIKey == "" {
			return fmt.Errorf("%w: extractor_api_key", ErrMissingField)
		}
	case ProviderCopilot:
	default:
		return fmt.Errorf("unknown extractor provider: %q", c.Extractor.Provider)
	}

	if c.Extractor.TimeoutSecs < 0 {
		return errors.New("extractor_timeout_secs must not be negative")
	}
	if c.Extractor.MaxTokens < 0 {
		return errors.New("extractor_max_tokens must not be negative")
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unknown log format: %q", c.Log.Format)
	}

	if c.NeedsGoogle() {
		data, err := c.CredentialsJSON()
		if err != nil {
			return err
		}
		if err := gapi.ValidateCredentials(data); err != nil {
			return fmt.Errorf("%s: %w", c.CredentialsSource(), err)
		}
	}

	return nil
}
