package site

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/index.html
var staticFS embed.FS

// OpenAPI is the embedded description of the kiosk HTTP API.
//
//go:embed static/openapi.yaml
var OpenAPI []byte

// FS returns the console files. Only index.html is exposed.
func FS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return http.FS(staticFS)
	}
	return http.FS(sub)
}
