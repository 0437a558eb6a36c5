package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/btouchard/infotafel/internal/gallery"
)

var errMalformedUpload = errors.New("malformed upload")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// writeError maps service errors to status codes. Anything unexpected is
// logged and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, gallery.ErrFolderNotFound):
		writeDetail(w, http.StatusNotFound, "Folder not found")
	case errors.Is(err, gallery.ErrImageNotFound):
		writeDetail(w, http.StatusNotFound, "Image not found")
	case errors.Is(err, gallery.ErrNameRequired),
		errors.Is(err, gallery.ErrNoFiles),
		errors.Is(err, gallery.ErrTooManyFiles),
		errors.Is(err, gallery.ErrInvalidConfig),
		errors.Is(err, errMalformedUpload):
		writeDetail(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &maxBytes):
		writeDetail(w, http.StatusRequestEntityTooLarge, "request body too large")
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
	}
}
