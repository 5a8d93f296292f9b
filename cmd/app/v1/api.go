package v1

import (
	"context"
	"log/slog"
	"net/http"

	"certsheet/cmd/app/core/middleware"
	"certsheet/cmd/app/types"
)

// ProcessCertificates runs one batch and answers with the processed count.
// The run is detached from the request context so a dropped client does not
// abort it halfway through a file.
func ProcessCertificates(rc types.RouteConfig) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.RequestID(r.Context())
		log := rc.Logger.With(slog.String("requestID", requestID))

		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			render(w, r, log, types.MethodNotAllowed())
			return
		}

		if rc.InitErr != nil {
			log.Error("Error processing certificates", slog.String("error", rc.InitErr.Error()))
			render(w, r, log, types.InternalError(rc.InitErr))
			return
		}

		report, err := rc.Orchestrator.Execute(context.WithoutCancel(r.Context()))
		if err != nil {
			log.Error("Error processing certificates", slog.String("error", err.Error()))
			render(w, r, log, types.InternalError(err))
			return
		}

		log.Info("batch executed successfully",
			slog.String("run_id", report.RunID),
			slog.Int("processed", report.Processed),
		)
		render(w, r, log, types.Success(report.Message()))
	}
}

// GetHealth reports that the server is up. It does not check the pipeline.
func GetHealth(w http.ResponseWriter, r *http.Request) {
	render(w, r, slog.Default(), types.Success("ok"))
}

func render(w http.ResponseWriter, r *http.Request, log *slog.Logger, resp *types.Response) {
	if err := resp.Render(w, r); err != nil {
		log.Error("error writing response", slog.String("error", err.Error()))
	}
}
