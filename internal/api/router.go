// Package api exposes the kiosk over HTTP: the public display endpoints, the
// admin API and the refresh WebSocket.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/infotafel/internal/api/middleware"
	"github.com/btouchard/infotafel/internal/auth"
	"github.com/btouchard/infotafel/internal/gallery"
	"github.com/btouchard/infotafel/internal/notify"
	"github.com/btouchard/infotafel/internal/weather"
)

// WeatherSource returns the report for a location. It never fails.
type WeatherSource interface {
	Get(ctx context.Context, loc weather.Location) *weather.Report
}

// Deps holds everything the router serves.
type Deps struct {
	Gallery     *gallery.Service
	Hub         *notify.Hub
	Weather     WeatherSource
	Verifier    middleware.Verifier
	RateLimiter *middleware.IPRateLimiter
	MCP         http.Handler // optional
	FrontendDir string
	MaxFileSize int64
}

// NewRouter builds the HTTP handler.
func NewRouter(d *Deps) http.Handler {
	h := &handlers{deps: d}

	r := chi.NewRouter()
	r.Use(middleware.SecurityHeaders)

	// Display client (public)
	r.Get("/", h.serveFrontendFile("index.html"))
	r.Get("/admin", h.serveFrontendFile("admin.html"))
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(filesOnly{http.Dir(d.FrontendDir)})))
	r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(filesOnly{http.Dir(d.Gallery.MediaDir())})))
	r.Get("/healthz", h.healthz)
	r.Get("/ws", h.websocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NoStore)

		r.Get("/state", h.state)
		r.Get("/weather", h.weather)

		// Admin (rate limited + shared password required)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(d.RateLimiter))
			r.Use(middleware.AdminAuth(d.Verifier, auth.HeaderName))

			r.Get("/config", h.getConfig)
			r.Put("/config", h.putConfig)

			r.Get("/folders", h.listFolders)
			r.Post("/folders", h.createFolder)
			r.Delete("/folders/{folderID}", h.deleteFolder)

			r.Get("/folders/{folderID}/images", h.listImages)
			r.Post("/folders/{folderID}/images", h.uploadImages)
			r.Delete("/folders/{folderID}/images/{imageID}", h.deleteImage)
		})
	})

	if d.MCP != nil {
		r.Group(func(r chi.Router) {
			r.Use(middleware.NoStore)
			r.Use(middleware.RateLimit(d.RateLimiter))
			r.Use(middleware.AdminAuth(d.Verifier, auth.HeaderName))
			r.Handle("/mcp", d.MCP)
		})
	}

	return r
}
