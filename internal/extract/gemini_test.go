package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certsheet/internal/config"
	"certsheet/internal/models"
)

// geminiRequest models the generateContent body fields the extractor sets.
type geminiRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text       string `json:"text"`
			InlineData *struct {
				MimeType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"inlineData"`
		} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string `json:"responseMimeType"`
		CandidateCount   int    `json:"candidateCount"`
		MaxOutputTokens  int    `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

func newTestGemini(t *testing.T, handler http.HandlerFunc) *Gemini {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := NewGemini(context.Background(), config.ExtractorConfig{
		Provider:    config.ProviderGemini,
		APIKey:      "gemini-key",
		Model:       "gemini-2.0-flash",
		Endpoint:    srv.URL + "/",
		MaxTokens:   2048,
		TimeoutSecs: 5,
	}, discardLogger())
	require.NoError(t, err)
	return g
}

func geminiReply(parts ...string) string {
	textParts := make([]map[string]string, 0, len(parts))
	for _, p := range parts {
		textParts = append(textParts, map[string]string{"text": p})
	}
	b, _ := json.Marshal(map[string]any{
		"candidates": []map[string]any{{
			"content":      map[string]any{"role": "model", "parts": textParts},
			"finishReason": "STOP",
		}},
	})
	return string(b)
}

func TestGemini_Extract(t *testing.T) {
	var (
		got  geminiRequest
		path string
	)
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "gemini-key", r.Header.Get("x-goog-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, geminiReply(`{"company_name":"Acme","section":"Leadership"}`))
	})

	ext, err := g.Extract(context.Background(), pngMagic)
	require.NoError(t, err)
	assert.Equal(t, "Acme", ext.Get(models.FieldCompanyName))
	assert.Equal(t, "Leadership", ext.Get(models.FieldSection))
	assert.Equal(t, models.NotSpecified, ext.Get(models.FieldDuration))

	assert.True(t, strings.HasSuffix(path, "/models/gemini-2.0-flash:generateContent"), "path %q", path)

	require.Len(t, got.Contents, 1)
	assert.Equal(t, "user", got.Contents[0].Role)
	require.Len(t, got.Contents[0].Parts, 2)

	prompt, err := Prompt()
	require.NoError(t, err)
	assert.Equal(t, prompt, got.Contents[0].Parts[0].Text)

	inline := got.Contents[0].Parts[1].InlineData
	require.NotNil(t, inline)
	assert.Equal(t, "image/png", inline.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pngMagic), inline.Data)

	assert.Equal(t, "application/json", got.GenerationConfig.ResponseMimeType)
	assert.Equal(t, 1, got.GenerationConfig.CandidateCount)
	assert.Equal(t, 2048, got.GenerationConfig.MaxOutputTokens)
}

func TestGemini_Extract_JoinsTextParts(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, geminiReply(`{"company_name":"Ac`, `me","location":"Remote"}`))
	})

	ext, err := g.Extract(context.Background(), jpegMagic)
	require.NoError(t, err)
	assert.Equal(t, "Acme", ext.Get(models.FieldCompanyName))
	assert.Equal(t, "Remote", ext.Get(models.FieldLocation))
}

func TestGemini_Extract_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantIs  error
		wantErr string
	}{
		{"No candidates", http.StatusOK, `{"candidates": []}`, ErrEmptyReply, ""},
		{"No parts", http.StatusOK, `{"candidates": [{"content": {"role": "model", "parts": []}}]}`, ErrEmptyReply, ""},
		{"Blank text", http.StatusOK, geminiReply("  "), ErrEmptyReply, ""},
		{"Prose reply", http.StatusOK, geminiReply("This image is not a certificate."), ErrMalformedReply, ""},
		{"Body is not JSON", http.StatusOK, `<html>gateway</html>`, nil, "failed to generate content"},
		{"Server error", http.StatusInternalServerError, `{"error": {"code": 500, "message": "boom", "status": "INTERNAL"}}`, nil, "failed to generate content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := g.Extract(context.Background(), jpegMagic)
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.True(t, errors.Is(err, tt.wantIs), "got %v", err)
			}
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestGemini_Extract_EmptyImage(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty image")
	})

	_, err := g.Extract(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyImage)
}
