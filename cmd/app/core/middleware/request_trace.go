package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"certsheet/cmd/app/types"
)

type contextKey string

const requestIDKey contextKey = "requestID"

// RequestID returns the id assigned by RequestTrace, or "" outside a traced request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.NewRandom()
		if err != nil {
			if err := types.InternalError(err).Render(w, r); err != nil {
				slog.Error("Failed rendering internal error response due to failed UUID generation",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		w.Header().Set("X-Request-ID", id.String())
		ctx := context.WithValue(r.Context(), requestIDKey, id.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
