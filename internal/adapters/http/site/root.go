// Package site serves the embedded operator console and the API description.
package site

import (
	"context"
	"net/http"
)

// Register attaches the console routes to mux.
//
//	GET /              -> operator console
//	GET /openapi.yaml  -> API description
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.Handle("/", http.FileServer(FS()))
	mux.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(OpenAPI)
	})
}
