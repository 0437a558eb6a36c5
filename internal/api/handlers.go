package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/infotafel/internal/display"
	"github.com/btouchard/infotafel/internal/notify"
	"github.com/btouchard/infotafel/internal/store"
	"github.com/btouchard/infotafel/internal/weather"
)

const maxJSONBody = 1 << 20

type handlers struct {
	deps *Deps
}

type stateResponse struct {
	Config     display.Config           `json:"config"`
	Folders    []store.Folder           `json:"folders"`
	Images     map[string][]store.Image `json:"images"`
	Weather    *weather.Report          `json:"weather"`
	ServerTime string                   `json:"server_time"`
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) state(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Gallery.Snapshot()
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := stateResponse{
		Config:     snap.Config,
		Folders:    snap.Folders,
		Images:     snap.Images,
		ServerTime: time.Now().Format(time.RFC3339),
	}
	if snap.Config.InfoBoxes.WeatherEnabled {
		resp.Weather = h.forecast(r.Context(), snap.Config)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) weather(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.deps.Gallery.Config()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.forecast(r.Context(), cfg))
}

func (h *handlers) forecast(ctx context.Context, cfg display.Config) *weather.Report {
	wc := cfg.InfoBoxes.Weather
	return h.deps.Weather.Get(ctx, weather.Location{Lat: wc.Lat, Lon: wc.Lon, Units: wc.Units})
}

// websocket upgrades the request and relays refresh hints until either side
// goes away.
func (h *handlers) websocket(w http.ResponseWriter, r *http.Request) {
	ws, err := notify.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	if err := h.deps.Hub.Serve(r.Context(), notify.NewWebSocketConn(ws)); err != nil {
		slog.Debug("display session ended", "error", err)
	}
}

// --- Config ---

func (h *handlers) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.deps.Gallery.Config()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *handlers) putConfig(w http.ResponseWriter, r *http.Request) {
	var patch map[string]json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&patch); err != nil || patch == nil {
		writeDetail(w, http.StatusBadRequest, "config must be an object")
		return
	}

	cfg, err := h.deps.Gallery.UpdateConfig(patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "config": cfg})
}

// --- Folders ---

func (h *handlers) listFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.deps.Gallery.Folders()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"folders": folders})
}

func (h *handlers) createFolder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	folder, err := h.deps.Gallery.CreateFolder(body.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "folder": folder})
}

func (h *handlers) deleteFolder(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Gallery.DeleteFolder(chi.URLParam(r, "folderID")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// --- Images ---

func (h *handlers) listImages(w http.ResponseWriter, r *http.Request) {
	images, err := h.deps.Gallery.Images(chi.URLParam(r, "folderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": images})
}

func (h *handlers) uploadImages(w http.ResponseWriter, r *http.Request) {
	// Every file may use its ceiling plus some room for part headers.
	maxBody := int64(h.deps.Gallery.MaxFiles()+1) * (h.deps.MaxFileSize + 64<<10)
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	mr, err := r.MultipartReader()
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "expected multipart/form-data")
		return
	}

	added, err := h.deps.Gallery.UploadStream(chi.URLParam(r, "folderID"), multipartUploads(mr, h.deps.MaxFileSize))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "added": added})
}

func (h *handlers) deleteImage(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Gallery.DeleteImage(chi.URLParam(r, "folderID"), chi.URLParam(r, "imageID")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
