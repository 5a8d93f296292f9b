package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certsheet/internal/config"
	"certsheet/internal/models"
)

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecodeReply(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    models.Extraction
		wantErr error
	}{
		{
			name:  "Plain object",
			reply: `{"transcription":"T","company_name":"Acme","position_held":"Intern","duration":"01/2020 - 06/2020","location":"Austin, TX","section":"Work Experience"}`,
			want: models.Extraction{
				"transcription": "T",
				"company_name":  "Acme",
				"position_held": "Intern",
				"duration":      "01/2020 - 06/2020",
				"location":      "Austin, TX",
				"section":       "Work Experience",
			},
		},
		{
			name:  "Code fence",
			reply: "```json\n{\"company_name\": \"Acme\"}\n```",
			want:  models.Extraction{"company_name": "Acme"},
		},
		{
			name:  "Bare fence with whitespace",
			reply: "  ```\n{\"location\": \"Remote\"}\n```  ",
			want:  models.Extraction{"location": "Remote"},
		},
		{
			name:  "Nulls dropped and unknown keys ignored",
			reply: `{"company_name": null, "duration": "2021", "extra": "x"}`,
			want:  models.Extraction{"duration": "2021"},
		},
		{
			name:  "Scalars coerced",
			reply: `{"duration": 2021, "location": true}`,
			want:  models.Extraction{"duration": "2021", "location": "true"},
		},
		{
			name:  "Empty string kept",
			reply: `{"position_held": ""}`,
			want:  models.Extraction{"position_held": ""},
		},
		{name: "Array field", reply: `{"company_name": ["a", "b"]}`, wantErr: ErrMalformedReply},
		{name: "Object field", reply: `{"section": {"name": "x"}}`, wantErr: ErrMalformedReply},
		{name: "Top-level array", reply: `[{"company_name": "Acme"}]`, wantErr: ErrMalformedReply},
		{name: "Prose", reply: `Here is the JSON you asked for`, wantErr: ErrMalformedReply},
		{name: "Empty", reply: "   ", wantErr: ErrEmptyReply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeReply(tt.reply)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DecodeReply() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeReply_MissingFieldsRenderAsNotSpecified(t *testing.T) {
	ext, err := DecodeReply(`{"company_name": "Acme"}`)
	require.NoError(t, err)
	row := ext.Row()
	assert.Equal(t, "Acme", row[0])
	for _, cell := range row[1:] {
		assert.Equal(t, models.NotSpecified, cell)
	}
}

func TestPrompt(t *testing.T) {
	prompt, err := Prompt()
	require.NoError(t, err)

	for _, section := range models.Sections {
		assert.Contains(t, prompt, "- "+section+"\n")
	}
	for _, field := range models.Fields {
		assert.Contains(t, prompt, `"`+field+`"`)
	}
	assert.Contains(t, prompt, `use "Not specified" as the value`)
	assert.Contains(t, prompt, "Respond ONLY with the JSON object.")
	assert.True(t, strings.HasSuffix(prompt, "Here is the certificate image to analyze:"))
}

func TestMediaType(t *testing.T) {
	assert.Equal(t, "image/png", MediaType(pngMagic))
	assert.Equal(t, "image/jpeg", MediaType(jpegMagic))
	assert.Equal(t, "image/jpeg", MediaType([]byte("plain text")))
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(context.Background(), config.ExtractorConfig{Provider: "nope"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown extractor provider")
}

type capturedRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content []struct {
			Type   string `json:"type"`
			Text   string `json:"text"`
			Source struct {
				Type      string `json:"type"`
				MediaType string `json:"media_type"`
				Data      string `json:"data"`
			} `json:"source"`
		} `json:"content"`
	} `json:"messages"`
}

func newTestClaude(t *testing.T, handler http.HandlerFunc) *Claude {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewClaude(config.ExtractorConfig{
		Provider:    config.ProviderClaude,
		APIKey:      "test-key",
		Model:       "test-model",
		Endpoint:    server.URL,
		TimeoutSecs: 5,
		MaxTokens:   1024,
	}, discardLogger())
	require.NoError(t, err)
	return c
}

func claudeReply(text, stopReason string) string {
	b, _ := json.Marshal(map[string]any{
		"content":     []map[string]string{{"type": "text", "text": text}},
		"stop_reason": stopReason,
	})
	return string(b)
}

func TestClaude_Extract(t *testing.T) {
	var got capturedRequest
	c := newTestClaude(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, claudeAPIVersion, r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, claudeReply("```json\n{\"company_name\":\"Acme\",\"section\":\"Awards\"}\n```", "end_turn"))
	})

	ext, err := c.Extract(context.Background(), pngMagic)
	require.NoError(t, err)
	assert.Equal(t, "Acme", ext.Get(models.FieldCompanyName))
	assert.Equal(t, "Awards", ext.Get(models.FieldSection))
	assert.Equal(t, models.NotSpecified, ext.Get(models.FieldLocation))

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 1024, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	require.Len(t, got.Messages[0].Content, 2)

	prompt, err := Prompt()
	require.NoError(t, err)
	assert.Equal(t, "text", got.Messages[0].Content[0].Type)
	assert.Equal(t, prompt, got.Messages[0].Content[0].Text)

	img := got.Messages[0].Content[1]
	assert.Equal(t, "image", img.Type)
	assert.Equal(t, "base64", img.Source.Type)
	assert.Equal(t, "image/png", img.Source.MediaType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pngMagic), img.Source.Data)
}

func TestClaude_Extract_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
		wantIs  error
	}{
		{"Server error", http.StatusInternalServerError, `{"error":"boom"}`, "status 500", nil},
		{"Rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, "status 429", nil},
		{"Prose reply", http.StatusOK, claudeReply("I cannot read this certificate.", "end_turn"), "", ErrMalformedReply},
		{"Truncated", http.StatusOK, claudeReply(`{"transcription": "long`, "max_tokens"), "max_tokens", ErrMalformedReply},
		{"No text block", http.StatusOK, `{"content": [], "stop_reason": "end_turn"}`, "", ErrEmptyReply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClaude(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.Extract(context.Background(), jpegMagic)
			require.Error(t, err)
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
			if tt.wantIs != nil {
				assert.True(t, errors.Is(err, tt.wantIs), "got %v", err)
			}
		})
	}
}

func TestClaude_Extract_APIErrorType(t *testing.T) {
	c := newTestClaude(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"bad key"}`)
	})

	_, err := c.Extract(context.Background(), jpegMagic)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, config.ProviderClaude, apiErr.Provider)
}

func TestClaude_Extract_EmptyImage(t *testing.T) {
	c := newTestClaude(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := c.Extract(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyImage)
}
