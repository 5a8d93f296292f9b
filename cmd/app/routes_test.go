package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"certsheet/cmd/app/types"
	"certsheet/internal/batch"
)

type countingOrchestrator struct {
	runs atomic.Int32
}

func (c *countingOrchestrator) Execute(context.Context) (*batch.Report, error) {
	c.runs.Add(1)
	return &batch.Report{Processed: 2}, nil
}

func TestNewRouter(t *testing.T) {
	tests := []struct {
		method   string
		path     string
		wantCode int
		wantRun  bool
	}{
		{http.MethodGet, "/", http.StatusOK, true},
		{http.MethodPost, "/", http.StatusOK, true},
		{http.MethodGet, "/api/v1/process", http.StatusOK, true},
		{http.MethodPost, "/api/v1/process", http.StatusOK, true},
		{http.MethodGet, "/api/v1/health", http.StatusOK, false},
		{http.MethodGet, "/favicon.ico", http.StatusNotFound, false},
		{http.MethodGet, "/robots.txt", http.StatusNotFound, false},
		{http.MethodGet, "/api/v1/helth", http.StatusNotFound, false},
		{http.MethodGet, "/api/v1/process/extra", http.StatusNotFound, false},
		{http.MethodDelete, "/api/v1/process", http.StatusMethodNotAllowed, false},
		{http.MethodPost, "/api/v1/health", http.StatusMethodNotAllowed, false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			orch := &countingOrchestrator{}
			router := newRouter(types.RouteConfig{
				Orchestrator: orch,
				Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
			})

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantRun {
				assert.Equal(t, int32(1), orch.runs.Load())
				assert.Equal(t, "Processed 2 certificates", rec.Body.String())
			} else {
				assert.Zero(t, orch.runs.Load())
			}
		})
	}
}
