// Package gapi wraps the Google Drive and Sheets services used by a batch run.
package gapi

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Scopes requested for the service account. Cleanup deletes source files, so the
// full drive scope is needed; drive.readonly would reject every delete.
var Scopes = []string{
	drive.DriveScope,
	sheets.SpreadsheetsScope,
}

// Client holds the authenticated Google services.
type Client struct {
	Drive  *drive.Service
	Sheets *sheets.Service
	log    *slog.Logger
}

// NewClient creates Drive and Sheets services from a service account JSON key.
func NewClient(ctx context.Context, credentials []byte, log *slog.Logger) (*Client, error) {
	if err := ValidateCredentials(credentials); err != nil {
		return nil, fmt.Errorf("invalid service account credentials: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentials, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT config: %w", err)
	}

	// One HTTP client is shared by both services
	httpClient := config.Client(ctx)

	return NewClientWithOptions(ctx, log, option.WithHTTPClient(httpClient))
}

// NewClientWithOptions creates the services from explicit client options.
func NewClientWithOptions(ctx context.Context, log *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}

	driveService, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	sheetsService, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	log.Info("Google services initialized successfully")

	return &Client{
		Drive:  driveService,
		Sheets: sheetsService,
		log:    log,
	}, nil
}
