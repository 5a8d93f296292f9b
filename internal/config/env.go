package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from the environment. Keys are looked up with the
// CERTSHEET_ prefix first; the plain names
// (FOLDER_ID, SPREADSHEET_ID, GOOGLE_APPLICATION_CREDENTIALS, ANTHROPIC_API_KEY)
// are honored as fallbacks. Load does not validate.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CERTSHEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("sheet_name", "Sheet1")
	v.SetDefault("source.kind", SourceDrive)
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("sink.kind", SinkSheets)
	v.SetDefault("extractor.provider", ProviderClaude)
	v.SetDefault("extractor.timeout_secs", 120)
	v.SetDefault("extractor.max_tokens", 4096)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	envBindings := map[string][]string{
		"folder_id":              {"CERTSHEET_FOLDER_ID", "FOLDER_ID"},
		"spreadsheet_id":         {"CERTSHEET_SPREADSHEET_ID", "SPREADSHEET_ID"},
		"sheet_name":             {"CERTSHEET_SHEET_NAME", "SHEET_NAME"},
		"credentials":            {"CERTSHEET_CREDENTIALS", "GOOGLE_APPLICATION_CREDENTIALS"},
		"source.kind":            {"CERTSHEET_SOURCE_KIND", "SOURCE_KIND"},
		"s3.bucket":              {"CERTSHEET_S3_BUCKET", "S3_BUCKET"},
		"s3.region":              {"CERTSHEET_S3_REGION", "S3_REGION"},
		"s3.endpoint":            {"CERTSHEET_S3_ENDPOINT", "S3_ENDPOINT"},
		"s3.access_key":          {"CERTSHEET_S3_ACCESS_KEY", "S3_ACCESS_KEY"},
		"s3.secret_key":          {"CERTSHEET_S3_SECRET_KEY", "S3_SECRET_KEY"},
		"sink.kind":              {"CERTSHEET_SINK_KIND", "SINK_KIND"},
		"sink.xlsx_path":         {"CERTSHEET_XLSX_PATH", "XLSX_PATH"},
		"extractor.provider":     {"CERTSHEET_EXTRACTOR_PROVIDER", "EXTRACTOR_PROVIDER"},
		"extractor.api_key":      {"CERTSHEET_EXTRACTOR_API_KEY", "EXTRACTOR_API_KEY"},
		"extractor.model":        {"CERTSHEET_EXTRACTOR_MODEL", "EXTRACTOR_MODEL"},
		"extractor.endpoint":     {"CERTSHEET_EXTRACTOR_ENDPOINT", "EXTRACTOR_ENDPOINT"},
		"extractor.timeout_secs": {"CERTSHEET_EXTRACTOR_TIMEOUT_SECS", "EXTRACTOR_TIMEOUT_SECS"},
		"extractor.max_tokens":   {"CERTSHEET_EXTRACTOR_MAX_TOKENS", "EXTRACTOR_MAX_TOKENS"},
		"anthropic_api_key":      {"CERTSHEET_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"},
		"gemini_api_key":         {"CERTSHEET_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"ledger_path":            {"CERTSHEET_LEDGER_PATH", "LEDGER_PATH"},
		"server.addr":            {"CERTSHEET_SERVER_ADDR", "SERVER_ADDR"},
		"log.level":              {"CERTSHEET_LOG_LEVEL", "LOG_LEVEL"},
		"log.format":             {"CERTSHEET_LOG_FORMAT", "LOG_FORMAT"},
	}
	for key, envs := range envBindings {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}

	cfg := &Config{
		FolderID:      v.GetString("folder_id"),
		SpreadsheetID: v.GetString("spreadsheet_id"),
		SheetName:     v.GetString("sheet_name"),
		Credentials:   v.GetString("credentials"),
		Source: SourceConfig{
			Kind: v.GetString("source.kind"),
			S3: S3Config{
				Bucket:    v.GetString("s3.bucket"),
				Region:    v.GetString("s3.region"),
				Endpoint:  v.GetString("s3.endpoint"),
				AccessKey: v.GetString("s3.access_key"),
				SecretKey: v.GetString("s3.secret_key"),
			},
		},
		Sink: SinkConfig{
			Kind:     v.GetString("sink.kind"),
			XLSXPath: v.GetString("sink.xlsx_path"),
		},
		Extractor: ExtractorConfig{
			Provider:    v.GetString("extractor.provider"),
			APIKey:      v.GetString("extractor.api_key"),
			Model:       v.GetString("extractor.model"),
			Endpoint:    v.GetString("extractor.endpoint"),
			TimeoutSecs: v.GetInt("extractor.timeout_secs"),
			MaxTokens:   v.GetInt("extractor.max_tokens"),
		},
		LedgerPath: v.GetString("ledger_path"),
		Server: ServerConfig{
			Addr: v.GetString("server.addr"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	cfg.Extractor.providerKeys = map[string]string{
		ProviderClaude: v.GetString("anthropic_api_key"),
		ProviderGemini: v.GetString("gemini_api_key"),
	}

	// Cloud Run and Cloud Functions set PORT.
	if port := os.Getenv("PORT"); port != "" && os.Getenv("CERTSHEET_SERVER_ADDR") == "" && os.Getenv("SERVER_ADDR") == "" {
		cfg.Server.Addr = ":" + port
	}

	return cfg, nil
}
