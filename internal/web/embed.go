// Package web provides the embedded upload page and results viewer.
package web

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/labstack/echo/v4"
)

//go:embed dist/*
var staticFiles embed.FS

// GetFileSystem returns the embedded filesystem with the dist folder as root.
func GetFileSystem() (fs.FS, error) {
	return fs.Sub(staticFiles, "dist")
}

// RegisterStaticRoutes registers the pages with Echo: the upload form at /
// and the viewer at /jobs/:id, which polls /api/jobs/:id from the browser.
func RegisterStaticRoutes(e *echo.Echo) error {
	staticFS, err := GetFileSystem()
	if err != nil {
		return err
	}
	index, err := fs.ReadFile(staticFS, "index.html")
	if err != nil {
		return err
	}
	viewer, err := fs.ReadFile(staticFS, "jobs.html")
	if err != nil {
		return err
	}

	e.GET("/", func(c echo.Context) error {
		return c.HTMLBlob(http.StatusOK, index)
	})
	e.GET("/jobs/:id", func(c echo.Context) error {
		return c.HTMLBlob(http.StatusOK, viewer)
	})
	return nil
}

// HasEmbeddedFiles returns true if both pages are embedded.
func HasEmbeddedFiles() bool {
	staticFS, err := GetFileSystem()
	if err != nil {
		return false
	}
	for _, name := range []string{"index.html", "jobs.html"} {
		if _, err := fs.Stat(staticFS, name); err != nil {
			return false
		}
	}
	return true
}
