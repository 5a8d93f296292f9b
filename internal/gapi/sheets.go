package gapi

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/api/sheets/v4"

	"certsheet/internal/models"
)

// Sheet appends extraction rows to one sheet of a spreadsheet.
type Sheet struct {
	client        *Client
	spreadsheetID string
	sheetName     string
}

// Sheet returns an appender bound to the given spreadsheet and sheet name.
func (c *Client) Sheet(spreadsheetID, sheetName string) *Sheet {
	return &Sheet{client: c, spreadsheetID: spreadsheetID, sheetName: sheetName}
}

// Append writes ext as a new row after the existing data. Values are sent
// USER_ENTERED, so date-like text may be reformatted by Sheets.
func (s *Sheet) Append(ctx context.Context, ext models.Extraction) error {
	row := ext.Row()
	values := make([]interface{}, len(row))
	for i, v := range row {
		values[i] = v
	}

	body := &sheets.ValueRange{Values: [][]interface{}{values}}

	resp, err := s.client.Sheets.Spreadsheets.Values.
		Append(s.spreadsheetID, s.sheetName, body).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append row to %s: %w", s.sheetName, err)
	}

	attrs := []any{slog.String("spreadsheet_id", s.spreadsheetID), slog.String("sheet", s.sheetName)}
	if resp.Updates != nil {
		attrs = append(attrs, slog.String("updated_range", resp.Updates.UpdatedRange))
	}
	s.client.log.Info("Data appended to Google Sheet successfully", attrs...)
	return nil
}
