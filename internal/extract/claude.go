package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"certsheet/internal/config"
	"certsheet/internal/models"
)

const (
	claudeAPIURL     = "https://api.anthropic.com/v1/messages"
	claudeAPIVersion = "2023-06-01"
)

// Claude extracts certificate fields with the Anthropic Messages API.
type Claude struct {
	apiKey    string
	model     string
	endpoint  string
	maxTokens int
	prompt    string
	client    *http.Client
	log       *slog.Logger
}

// NewClaude creates a Claude extractor. cfg.Endpoint overrides the API URL.
func NewClaude(cfg config.ExtractorConfig, log *slog.Logger) (*Claude, error) {
	prompt, err := Prompt()
	if err != nil {
		return nil, err
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = claudeAPIURL
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	return &Claude{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		endpoint:  endpoint,
		maxTokens: maxTokens,
		prompt:    prompt,
		client:    &http.Client{Timeout: timeout},
		log:       log,
	}, nil
}

// claudeResponse models the parts of the Messages API response we read.
type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Extract sends the prompt and the base64 image in a single user turn.
func (c *Claude) Extract(ctx context.Context, image []byte) (models.Extraction, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}

	rid := uuid.New().String()
	start := time.Now()
	mediaType := MediaType(image)

	c.log.Info("llm.extract.start",
		slog.String("req_id", rid),
		slog.String("provider", config.ProviderClaude),
		slog.String("model", c.model),
		slog.String("media_type", mediaType),
		slog.Int("image_bytes", len(image)),
	)

	reqBody := map[string]interface{}{
		"model":      c.model,
		"max_tokens": c.maxTokens,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{
						"type": "text",
						"text": c.prompt,
					},
					{
						"type": "image",
						"source": map[string]interface{}{
							"type":       "base64",
							"media_type": mediaType,
							"data":       base64.StdEncoding.EncodeToString(image),
						},
					},
				},
			},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", claudeAPIVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Error("llm.extract.http_error",
			slog.String("req_id", rid),
			slog.String("error", err.Error()),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		)
		return nil, fmt.Errorf("calling anthropic API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Provider: config.ProviderClaude, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed claudeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}
	if parsed.StopReason == "max_tokens" {
		return nil, fmt.Errorf("%w: output truncated (stop_reason: max_tokens)", ErrMalformedReply)
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, ErrEmptyReply
	}

	ext, err := DecodeReply(text)
	if err != nil {
		c.log.Error("llm.extract.decode_error",
			slog.String("req_id", rid),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	logSection(c.log, ext)
	c.log.Info("llm.extract.done",
		slog.String("req_id", rid),
		slog.Int("fields", len(ext)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return ext, nil
}
