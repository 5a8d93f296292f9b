package main

import (
	"net/http"

	"certsheet/cmd/app/core/middleware"
	"certsheet/cmd/app/types"
	v1 "certsheet/cmd/app/v1"
)

// newRouter registers the batch routes on exact paths only. Any other path,
// such as /favicon.ico, gets a 404 and never starts a run.
func newRouter(rc types.RouteConfig) http.Handler {
	process := v1.ProcessCertificates(rc)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", process)
	mux.HandleFunc("POST /{$}", process)
	mux.HandleFunc("GET /api/v1/process", process)
	mux.HandleFunc("POST /api/v1/process", process)
	mux.HandleFunc("GET /api/v1/health", v1.GetHealth)
	return middleware.RequestTrace(mux)
}
