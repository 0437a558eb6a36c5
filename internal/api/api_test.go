package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/infotafel/internal/api/middleware"
	"github.com/btouchard/infotafel/internal/auth"
	"github.com/btouchard/infotafel/internal/display"
	"github.com/btouchard/infotafel/internal/gallery"
	"github.com/btouchard/infotafel/internal/media"
	"github.com/btouchard/infotafel/internal/notify"
	"github.com/btouchard/infotafel/internal/store"
	"github.com/btouchard/infotafel/internal/weather"
)

const adminPassword = "kita-test"

type fakeWeather struct {
	calls atomic.Int32
}

func (f *fakeWeather) Get(ctx context.Context, loc weather.Location) *weather.Report {
	f.calls.Add(1)
	return &weather.Report{FetchedAt: "2026-10-15T08:00:00Z", Daily: []weather.Day{}}
}

type testServer struct {
	*httptest.Server
	hub      *notify.Hub
	weather  *fakeWeather
	mediaDir string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	frontend := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(frontend, "index.html"), []byte("<h1>kiosk</h1>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(frontend, "admin.html"), []byte("<h1>admin</h1>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(frontend, "kiosk.js"), []byte("console.log(1)"), 0644))

	hub := notify.NewHub(notify.DefaultQueueSize)
	mediaDir := t.TempDir()
	svc := gallery.NewService(st, media.NewPipeline(media.Options{}), hub, gallery.Options{
		MediaDir: mediaDir,
		MaxFiles: 4,
		Weather:  display.Weather{City: "Eichsfeld", Lat: 51.3, Lon: 10.3, Units: "metric"},
	})

	verifier, err := auth.NewVerifier(adminPassword, "")
	require.NoError(t, err)

	fw := &fakeWeather{}
	srv := httptest.NewServer(NewRouter(&Deps{
		Gallery:     svc,
		Hub:         hub,
		Weather:     fw,
		Verifier:    verifier,
		RateLimiter: middleware.NewIPRateLimiter(10000, 1000),
		FrontendDir: frontend,
		MaxFileSize: 1 << 20,
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testServer{Server: srv, hub: hub, weather: fw, mediaDir: mediaDir}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err)
	req.Header.Set(auth.HeaderName, adminPassword)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func (s *testServer) createFolder(t *testing.T, name string) string {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/api/folders", strings.NewReader(`{"name":"`+name+`"}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	folder := body["folder"].(map[string]any)
	return folder["id"].(string)
}

func multipartBody(t *testing.T, files map[string][]byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func dialWS(t *testing.T, s *testServer) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return s.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) notify.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var e notify.Event
	require.NoError(t, conn.ReadJSON(&e))
	return e
}

func TestRouter_Healthz(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestRouter_Frontend(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	for path, want := range map[string]string{
		"/":                "kiosk",
		"/admin":           "admin",
		"/static/kiosk.js": "console.log",
	} {
		resp, err := http.Get(s.URL + path)
		require.NoError(t, err)
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, string(raw), want, path)
	}

	resp, err := http.Get(s.URL + "/static/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no directory listing")
}

func TestRouter_Media_HidesDotFiles(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	dir := filepath.Join(s.mediaDir, "fotos")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("jpeg"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".ingest-123"), []byte("partial"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(s.mediaDir, ".hidden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.mediaDir, ".hidden", "b.jpg"), []byte("jpeg"), 0o644))

	for path, want := range map[string]int{
		"/media/fotos/a.jpg":       http.StatusOK,
		"/media/fotos/.ingest-123": http.StatusNotFound,
		"/media/.hidden/b.jpg":     http.StatusNotFound,
	} {
		resp, err := http.Get(s.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, path)
	}
}

func TestRouter_AdminRequiresPassword(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	for _, path := range []string{"/api/config", "/api/folders"} {
		resp, err := http.Get(s.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	req, _ := http.NewRequest(http.MethodGet, s.URL+"/api/config", nil)
	req.Header.Set(auth.HeaderName, "wrong")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRouter_State(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	resp, err := http.Get(s.URL + "/api/state")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var body struct {
		Config     display.Config           `json:"config"`
		Folders    []store.Folder           `json:"folders"`
		Images     map[string][]store.Image `json:"images"`
		Weather    *weather.Report          `json:"weather"`
		ServerTime string                   `json:"server_time"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "mint", body.Config.Theme)
	assert.NotNil(t, body.Folders)
	assert.NotNil(t, body.Weather)
	assert.NotEmpty(t, body.ServerTime)
}

func TestRouter_State_WeatherDisabled(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodPut, "/api/config",
		strings.NewReader(`{"info_boxes":{"weather_enabled":false}}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body := s.do(t, http.MethodGet, "/api/state", nil, "")
	assert.Contains(t, body, "weather")
	assert.Nil(t, body["weather"])
	assert.Equal(t, int32(0), s.weather.calls.Load())
}

func TestRouter_PutConfig(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodPut, "/api/config", strings.NewReader(`{"theme":"ocean","bogus":1}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "ocean", body["config"].(map[string]any)["theme"])
	assert.NotContains(t, body["config"], "bogus")

	resp, body = s.do(t, http.MethodPut, "/api/config", strings.NewReader(`["not","an","object"]`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "config must be an object", body["detail"])

	resp, _ = s.do(t, http.MethodPut, "/api/config", strings.NewReader(`{"info_boxes":{"ampel":{"status":"blue"}}}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_Folders(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodPost, "/api/folders", strings.NewReader(`{"name":"  "}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "name required", body["detail"])

	id := s.createFolder(t, "Herbst Fest")

	_, body = s.do(t, http.MethodGet, "/api/folders", nil, "")
	folders := body["folders"].([]any)
	require.Len(t, folders, 1)
	assert.Equal(t, "herbst-fest", folders[0].(map[string]any)["slug"])

	resp, _ = s.do(t, http.MethodDelete, "/api/folders/"+id, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = s.do(t, http.MethodDelete, "/api/folders/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Folder not found", body["detail"])
}

func TestRouter_UploadListAndDeleteImages(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	id := s.createFolder(t, "Bilder")

	body, ct := multipartBody(t, map[string][]byte{
		"one.png":   pngBytes(t, 30, 20),
		"two.png":   pngBytes(t, 20, 30),
		"three.png": pngBytes(t, 10, 10),
		"notes.txt": []byte("not an image"),
	})
	resp, out := s.do(t, http.MethodPost, "/api/folders/"+id+"/images", body, ct)
	require.Equal(t, http.StatusOK, resp.StatusCode, out)
	added := out["added"].([]any)
	require.Len(t, added, 3)

	_, out = s.do(t, http.MethodGet, "/api/folders/"+id+"/images", nil, "")
	require.Len(t, out["images"].([]any), 3)

	first := added[0].(map[string]any)
	resp, err := http.Get(s.URL + "/media/bilder/" + first["filename"].(string))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))

	resp, _ = s.do(t, http.MethodDelete, "/api/folders/"+id+"/images/"+first["id"].(string), nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NoFileExists(t, filepath.Join(s.mediaDir, "bilder", first["filename"].(string)))

	_, out = s.do(t, http.MethodGet, "/api/folders/"+id+"/images", nil, "")
	assert.Len(t, out["images"].([]any), 2)

	resp, out = s.do(t, http.MethodDelete, "/api/folders/"+id+"/images/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Image not found", out["detail"])
}

func TestRouter_Upload_OversizePartSkipped(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	id := s.createFolder(t, "Gross")

	body, ct := multipartBody(t, map[string][]byte{
		"huge.png":  bytes.Repeat([]byte{0x89}, 2<<20),
		"small.png": pngBytes(t, 5, 5),
	})
	resp, out := s.do(t, http.MethodPost, "/api/folders/"+id+"/images", body, ct)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, out["added"].([]any), 1)
}

func TestRouter_Upload_TooManyFiles(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	id := s.createFolder(t, "Viele")

	files := map[string][]byte{}
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		files[n+".png"] = pngBytes(t, 4, 4)
	}
	body, ct := multipartBody(t, files)
	resp, out := s.do(t, http.MethodPost, "/api/folders/"+id+"/images", body, ct)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, out["detail"], "too many files")

	entries, err := os.ReadDir(filepath.Join(s.mediaDir, "viele"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRouter_Upload_RequiresMultipart(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	id := s.createFolder(t, "Falsch")

	resp, _ := s.do(t, http.MethodPost, "/api/folders/"+id+"/images", strings.NewReader("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, ct := multipartBody(t, map[string][]byte{"a.png": pngBytes(t, 4, 4)})
	resp, _ = s.do(t, http.MethodPost, "/api/folders/unknown/images", body, ct)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_WebSocket_ReceivesRefreshHints(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	conn := dialWS(t, s)

	id := s.createFolder(t, "Live")
	assert.Equal(t, notify.Refresh(notify.ReasonFolders).Reason, readEvent(t, conn).Reason)

	body, ct := multipartBody(t, map[string][]byte{"a.png": pngBytes(t, 4, 4)})
	resp, _ := s.do(t, http.MethodPost, "/api/folders/"+id+"/images", body, ct)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	e := readEvent(t, conn)
	assert.Equal(t, notify.TypeRefresh, e.Type)
	assert.Equal(t, notify.ReasonImages, e.Reason)

	resp, _ = s.do(t, http.MethodPut, "/api/config", strings.NewReader(`{"theme":"sun"}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, notify.ReasonConfig, readEvent(t, conn).Reason)
}

func TestRouter_WebSocket_Keepalive(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	conn := dialWS(t, s)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(" Ping ")))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(msg))

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return s.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
