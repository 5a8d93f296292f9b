package types

import (
	"log/slog"

	"certsheet/internal/batch"
)

// RouteConfig carries what the handlers need. InitErr is set when the
// pipeline could not be built at startup; every batch request then fails with it.
type RouteConfig struct {
	Orchestrator batch.Orchestrator
	InitErr      error
	Logger       *slog.Logger
}
