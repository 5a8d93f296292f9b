// Package extract sends certificate images to a vision model and decodes the
// structured reply into a models.Extraction.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"certsheet/internal/config"
	"certsheet/internal/models"
)

var (
	// ErrMalformedReply is returned when the model reply is not a usable JSON object.
	ErrMalformedReply = errors.New("malformed model reply")
	// ErrEmptyReply is returned when the model answered without any text.
	ErrEmptyReply = errors.New("empty model reply")
	// ErrEmptyImage is returned when Extract is called without image data.
	ErrEmptyImage = errors.New("image data is empty")
)

// Extractor turns one certificate image into its extracted fields.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (models.Extraction, error)
}

// APIError is a non-success HTTP answer from a model provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, truncate(e.Body, 500))
}

// New builds the extractor selected by cfg.Provider.
func New(ctx context.Context, cfg config.ExtractorConfig, log *slog.Logger) (Extractor, error) {
	if log == nil {
		log = slog.Default()
	}
	switch cfg.Provider {
	case config.ProviderClaude:
		return NewClaude(cfg, log)
	case config.ProviderGemini:
		return NewGemini(ctx, cfg, log)
	case config.ProviderCopilot:
		return NewCopilot(cfg, log)
	}
	return nil, fmt.Errorf("unknown extractor provider: %q", cfg.Provider)
}

var supportedMediaTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// MediaType sniffs the image format of data. Unrecognized content is sent as JPEG.
func MediaType(data []byte) string {
	mt := mimetype.Detect(data)
	for _, supported := range supportedMediaTypes {
		if mt.Is(supported) {
			return supported
		}
	}
	return "image/jpeg"
}

var replySchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	scalar := map[string]any{"type": []string{"string", "number", "boolean", "null"}}
	properties := make(map[string]any, len(models.Fields))
	for _, field := range models.Fields {
		properties[field] = scalar
	}
	schemaMap := map[string]any{
		"type":       "object",
		"properties": properties,
	}

	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("reply.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("reply.json")
})

// DecodeReply parses the model reply text. The reply must be a JSON object,
// optionally wrapped in a Markdown code fence. Known fields must be scalars;
// they are returned as strings, and null fields are left out so they default
// to models.NotSpecified. Keys outside models.Fields are dropped.
func DecodeReply(text string) (models.Extraction, error) {
	body := stripCodeFence(text)
	if body == "" {
		return nil, ErrEmptyReply
	}

	var raw any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v (raw: %s)", ErrMalformedReply, err, truncate(body, 200))
	}

	schema, err := replySchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	obj := raw.(map[string]any)
	ext := make(models.Extraction, len(models.Fields))
	for _, field := range models.Fields {
		switch v := obj[field].(type) {
		case string:
			ext[field] = v
		case float64:
			ext[field] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			ext[field] = strconv.FormatBool(v)
		}
	}
	return ext, nil
}

// stripCodeFence removes surrounding whitespace and a ```json ... ``` fence.
func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// logSection warns when the model picked a section outside the closed list.
func logSection(log *slog.Logger, ext models.Extraction) {
	section, ok := ext[models.FieldSection]
	if !ok || section == models.NotSpecified || models.IsKnownSection(section) {
		return
	}
	log.Warn("llm.extract.unknown_section", slog.String("section", section))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
