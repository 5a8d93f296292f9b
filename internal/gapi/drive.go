package gapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"certsheet/internal/models"
)

const listFields = "nextPageToken, files(id, name, mimeType, parents)"

// BuildImageQuery returns the Drive search query for image files directly inside folderID.
func BuildImageQuery(folderID string, mimeTypes []string) string {
	var types []string
	for _, mt := range mimeTypes {
		types = append(types, fmt.Sprintf("mimeType='%s'", escapeQueryValue(mt)))
	}
	return fmt.Sprintf("'%s' in parents and (%s) and trashed=false",
		escapeQueryValue(folderID),
		strings.Join(types, " or "),
	)
}

// escapeQueryValue escapes a value for use inside a single-quoted Drive query string.
func escapeQueryValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}

// MatchesImageFilter reports whether file is an accepted image inside folderID.
// Files reported without parents are trusted to match the folder query.
func MatchesImageFilter(file models.FileRef, folderID string) bool {
	if !models.IsImageMimeType(file.MimeType) {
		return false
	}
	if len(file.Parents) > 0 && !slices.Contains(file.Parents, folderID) {
		return false
	}
	return true
}

// List returns every JPEG or PNG file in folderID, following pagination.
func (c *Client) List(ctx context.Context, folderID string) ([]models.FileRef, error) {
	var files []models.FileRef
	pageToken := ""
	query := BuildImageQuery(folderID, models.ImageMimeTypes)

	for {
		req := c.Drive.Files.List().
			Q(query).
			Fields(listFields).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Context(ctx)

		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		resp, err := req.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list files: %w", err)
		}

		for _, f := range resp.Files {
			ref := models.FileRef{
				ID:       f.Id,
				Name:     f.Name,
				MimeType: f.MimeType,
				Parents:  f.Parents,
			}
			if !MatchesImageFilter(ref, folderID) {
				c.log.Debug("Skipping file outside filter",
					slog.String("file_id", ref.ID),
					slog.String("mime_type", ref.MimeType),
				)
				continue
			}
			files = append(files, ref)
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	c.log.Info("Listed folder", slog.String("folder_id", folderID), slog.Int("count", len(files)))
	return files, nil
}

// Fetch downloads the full content of file into memory.
func (c *Client) Fetch(ctx context.Context, file models.FileRef) ([]byte, error) {
	resp, err := c.Drive.Files.Get(file.ID).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", file.Name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", file.Name, err)
	}
	return data, nil
}

// Delete removes file from Drive.
func (c *Client) Delete(ctx context.Context, file models.FileRef) error {
	err := c.Drive.Files.Delete(file.ID).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to delete file %s: %w", file.Name, err)
	}
	return nil
}
