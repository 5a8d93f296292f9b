package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"certsheet/internal/config"
	"certsheet/internal/models"
)

// Gemini extracts certificate fields with the Gemini API.
type Gemini struct {
	client    *genai.Client
	model     string
	maxTokens int32
	timeout   time.Duration
	prompt    string
	log       *slog.Logger
}

// NewGemini creates a Gemini extractor. cfg.Endpoint overrides the API base URL.
func NewGemini(ctx context.Context, cfg config.ExtractorConfig, log *slog.Logger) (*Gemini, error) {
	prompt, err := Prompt()
	if err != nil {
		return nil, err
	}

	clientCfg := &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  cfg.APIKey,
	}
	if cfg.Endpoint != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Gemini{
		client:    client,
		model:     cfg.Model,
		maxTokens: int32(cfg.MaxTokens),
		timeout:   time.Duration(cfg.TimeoutSecs) * time.Second,
		prompt:    prompt,
		log:       log,
	}, nil
}

// Extract sends the prompt and the inline image as one user content.
func (g *Gemini) Extract(ctx context.Context, image []byte) (models.Extraction, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	mediaType := MediaType(image)
	g.log.Info("llm.extract.start",
		slog.String("provider", config.ProviderGemini),
		slog.String("model", g.model),
		slog.String("media_type", mediaType),
		slog.Int("image_bytes", len(image)),
	)

	parts := []*genai.Part{
		genai.NewPartFromText(g.prompt),
		genai.NewPartFromBytes(image, mediaType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	genCfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		CandidateCount:   1,
	}
	if g.maxTokens > 0 {
		genCfg.MaxOutputTokens = g.maxTokens
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, genCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return nil, ErrEmptyReply
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, ErrEmptyReply
	}

	// Long replies can arrive split across several text parts.
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, ErrEmptyReply
	}

	ext, err := DecodeReply(text.String())
	if err != nil {
		g.log.Error("llm.extract.decode_error", slog.String("error", err.Error()))
		return nil, err
	}

	logSection(g.log, ext)
	return ext, nil
}
