// Package gallery applies administrative mutations to folders, images and
// the display config. Each successful mutation persists one document and then
// broadcasts one refresh hint.
package gallery

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/btouchard/infotafel/internal/display"
	"github.com/btouchard/infotafel/internal/media"
	"github.com/btouchard/infotafel/internal/notify"
	"github.com/btouchard/infotafel/internal/store"
)

// DefaultMaxFiles is the per-batch upload limit when none is configured.
const DefaultMaxFiles = 30

var (
	ErrFolderNotFound = errors.New("folder not found")
	ErrImageNotFound  = errors.New("image not found")
	ErrNameRequired   = errors.New("name required")
	ErrNoFiles        = errors.New("no files uploaded")
	ErrTooManyFiles   = errors.New("too many files")
	ErrInvalidConfig  = errors.New("invalid config")

	// ErrBrokenFolder marks a stored folder whose slug cannot name a media
	// directory. Nothing on disk is touched for it.
	ErrBrokenFolder = errors.New("folder has an invalid slug")
)

// Broadcaster receives a refresh hint after every committed mutation.
type Broadcaster interface {
	Broadcast(e notify.Event)
}

// Options configures a Service.
type Options struct {
	MediaDir string          // root of the per-folder media directories
	MaxFiles int             // per upload batch
	Weather  display.Weather // default weather location of the display config
}

// Service serializes read-modify-write cycles on the stored documents.
type Service struct {
	mu       sync.Mutex
	store    store.Store
	pipeline *media.Pipeline
	events   Broadcaster
	mediaDir string
	maxFiles int
	weather  display.Weather
	now      func() time.Time
	newID    func() string
}

// NewService creates a Service.
func NewService(st store.Store, pipeline *media.Pipeline, events Broadcaster, opts Options) *Service {
	if opts.MaxFiles < 1 {
		opts.MaxFiles = DefaultMaxFiles
	}
	return &Service{
		store:    st,
		pipeline: pipeline,
		events:   events,
		mediaDir: opts.MediaDir,
		maxFiles: opts.MaxFiles,
		weather:  opts.Weather,
		now:      time.Now,
		newID:    media.NewID,
	}
}

// Snapshot is everything a display client needs to render.
type Snapshot struct {
	Config  display.Config           `json:"config"`
	Folders []store.Folder           `json:"folders"`
	Images  map[string][]store.Image `json:"images"`
}

// MaxFiles returns the per-batch upload limit.
func (s *Service) MaxFiles() int { return s.maxFiles }

// MediaDir returns the root media directory.
func (s *Service) MediaDir() string { return s.mediaDir }

// FolderDir returns the media directory of a folder. The slug must be one
// Slugify could have produced, so the result is always a direct child of the
// media root.
func (s *Service) FolderDir(f store.Folder) (string, error) {
	if f.Slug == "" || f.Slug != Slugify(f.Slug) {
		return "", fmt.Errorf("%w: folder %s slug %q", ErrBrokenFolder, f.ID, f.Slug)
	}
	return filepath.Join(s.mediaDir, f.Slug), nil
}

// --- Reads ---

// Snapshot returns the config, folders and image indexes in one locked read.
func (s *Service) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.store.LoadDisplayConfig(s.defaults())
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading config: %w", err)
	}
	folders, err := s.store.LoadFolders()
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading folders: %w", err)
	}
	images, err := s.store.LoadAllImages()
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading images: %w", err)
	}
	return Snapshot{Config: cfg, Folders: folders, Images: images}, nil
}

// Config returns the stored display config, or the defaults.
func (s *Service) Config() (display.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.store.LoadDisplayConfig(s.defaults())
	if err != nil {
		return display.Config{}, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// Folders returns all folders in creation order.
func (s *Service) Folders() ([]store.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folders, err := s.store.LoadFolders()
	if err != nil {
		return nil, fmt.Errorf("loading folders: %w", err)
	}
	return folders, nil
}

// Images returns the image index of a folder.
func (s *Service) Images(folderID string) ([]store.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, err := s.findFolder(folderID); err != nil {
		return nil, err
	}
	images, err := s.store.LoadImages(folderID)
	if err != nil {
		return nil, fmt.Errorf("loading images: %w", err)
	}
	return images, nil
}

// --- Config ---

// UpdateConfig replaces the known top-level sections present in patch.
func (s *Service) UpdateConfig(patch map[string]json.RawMessage) (display.Config, error) {
	return s.MutateConfig(func(cfg *display.Config) error {
		return cfg.Apply(patch, s.defaults())
	})
}

// MutateConfig loads the config, applies fn, validates and persists it.
func (s *Service) MutateConfig(fn func(cfg *display.Config) error) (display.Config, error) {
	s.mu.Lock()
	cfg, err := s.store.LoadDisplayConfig(s.defaults())
	if err != nil {
		s.mu.Unlock()
		return display.Config{}, fmt.Errorf("loading config: %w", err)
	}
	if err := fn(&cfg); err != nil {
		s.mu.Unlock()
		return display.Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		s.mu.Unlock()
		return display.Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := s.store.SaveDisplayConfig(cfg); err != nil {
		s.mu.Unlock()
		return display.Config{}, fmt.Errorf("saving config: %w", err)
	}
	s.mu.Unlock()

	slog.Info("display config updated")
	s.events.Broadcast(notify.Refresh(notify.ReasonConfig))
	return cfg, nil
}

// --- Folders ---

func (s *Service) CreateFolder(name string) (store.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Folder{}, ErrNameRequired
	}

	s.mu.Lock()
	folders, err := s.store.LoadFolders()
	if err != nil {
		s.mu.Unlock()
		return store.Folder{}, fmt.Errorf("loading folders: %w", err)
	}

	folder := store.Folder{
		ID:        s.newID(),
		Name:      name,
		Slug:      uniqueSlug(Slugify(name), folders),
		CreatedAt: s.now().UTC().Truncate(time.Second),
	}
	dir, err := s.FolderDir(folder)
	if err != nil {
		s.mu.Unlock()
		return store.Folder{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.mu.Unlock()
		return store.Folder{}, fmt.Errorf("creating folder directory: %w", err)
	}
	if err := s.store.SaveFolders(append(folders, folder)); err != nil {
		s.mu.Unlock()
		return store.Folder{}, fmt.Errorf("saving folders: %w", err)
	}
	s.mu.Unlock()

	slog.Info("folder created", "folder_id", folder.ID, "slug", folder.Slug)
	s.events.Broadcast(notify.Refresh(notify.ReasonFolders))
	return folder, nil
}

func (s *Service) DeleteFolder(folderID string) error {
	s.mu.Lock()
	folder, folders, err := s.findFolder(folderID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	remaining := slices.DeleteFunc(folders, func(f store.Folder) bool { return f.ID == folderID })
	if err := s.store.DeleteFolder(folderID, remaining); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("deleting folder: %w", err)
	}
	if dir, err := s.FolderDir(folder); err != nil {
		slog.Error("folder removed from index, media left in place", "folder_id", folderID, "error", err)
	} else if err := os.RemoveAll(dir); err != nil {
		slog.Warn("failed to remove folder directory", "folder_id", folderID, "error", err)
	}
	s.mu.Unlock()

	slog.Info("folder deleted", "folder_id", folderID)
	s.events.Broadcast(notify.Refresh(notify.ReasonFolders))
	return nil
}

// --- Images ---

// Upload ingests a batch of in-memory uploads. See UploadStream.
func (s *Service) Upload(folderID string, uploads []media.Upload) ([]store.Image, error) {
	return s.UploadStream(folderID, func(yield func(media.Upload, error) bool) {
		for _, up := range uploads {
			if !yield(up, nil) {
				return
			}
		}
	})
}

// UploadStream ingests uploads as the sequence yields them. Blobs the
// pipeline rejects are skipped. A sequence error, an I/O failure or more than
// MaxFiles items abort the batch and remove whatever it had written. The
// accepted images are appended to the folder index with a single write.
func (s *Service) UploadStream(folderID string, uploads iter.Seq2[media.Upload, error]) ([]store.Image, error) {
	s.mu.Lock()
	folder, _, err := s.findFolder(folderID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	dir, err := s.FolderDir(folder)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating folder directory: %w", err)
	}

	added := []store.Image{}
	abort := func(err error) ([]store.Image, error) {
		for _, img := range added {
			media.RemoveAssets(dir, img)
		}
		return nil, err
	}

	count := 0
	for up, err := range uploads {
		if err != nil {
			return abort(fmt.Errorf("reading upload: %w", err))
		}
		count++
		if count > s.maxFiles {
			return abort(fmt.Errorf("%w (max %d)", ErrTooManyFiles, s.maxFiles))
		}

		rec, err := s.pipeline.Ingest(dir, up.Data, up.Name)
		if errors.Is(err, media.ErrRejected) {
			slog.Debug("upload skipped", "folder_id", folderID, "name", up.Name, "reason", err)
			continue
		}
		if err != nil {
			return abort(fmt.Errorf("ingesting %s: %w", media.SafeFilename(up.Name), err))
		}
		added = append(added, *rec)
	}
	if count == 0 {
		return nil, ErrNoFiles
	}

	// Ingest ran unlocked, so the folder may have gone away meanwhile.
	s.mu.Lock()
	if _, _, err := s.findFolder(folderID); err != nil {
		s.mu.Unlock()
		return abort(err)
	}
	images, err := s.store.LoadImages(folderID)
	if err != nil {
		s.mu.Unlock()
		return abort(fmt.Errorf("loading images: %w", err))
	}
	if err := s.store.SaveImages(folderID, append(images, added...)); err != nil {
		s.mu.Unlock()
		return abort(fmt.Errorf("saving images: %w", err))
	}
	s.mu.Unlock()

	slog.Info("images uploaded", "folder_id", folderID, "added", len(added), "received", count)
	s.events.Broadcast(notify.Refresh(notify.ReasonImages))
	return added, nil
}

func (s *Service) DeleteImage(folderID, imageID string) error {
	s.mu.Lock()
	folder, _, err := s.findFolder(folderID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	images, err := s.store.LoadImages(folderID)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("loading images: %w", err)
	}
	idx := slices.IndexFunc(images, func(img store.Image) bool { return img.ID == imageID })
	if idx < 0 {
		s.mu.Unlock()
		return ErrImageNotFound
	}
	removed := images[idx]
	if err := s.store.SaveImages(folderID, slices.Delete(images, idx, idx+1)); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("saving images: %w", err)
	}
	if dir, err := s.FolderDir(folder); err != nil {
		slog.Error("image removed from index, files left in place", "image_id", imageID, "error", err)
	} else {
		media.RemoveAssets(dir, removed)
	}
	s.mu.Unlock()

	slog.Info("image deleted", "folder_id", folderID, "image_id", imageID)
	s.events.Broadcast(notify.Refresh(notify.ReasonImages))
	return nil
}

// --- Helpers ---

func (s *Service) defaults() display.Config {
	return display.Defaults(s.weather)
}

// findFolder must be called with s.mu held.
func (s *Service) findFolder(folderID string) (store.Folder, []store.Folder, error) {
	folders, err := s.store.LoadFolders()
	if err != nil {
		return store.Folder{}, nil, fmt.Errorf("loading folders: %w", err)
	}
	for _, f := range folders {
		if f.ID == folderID {
			return f, folders, nil
		}
	}
	return store.Folder{}, nil, ErrFolderNotFound
}

func uniqueSlug(base string, folders []store.Folder) string {
	used := make(map[string]bool, len(folders))
	for _, f := range folders {
		used[f.Slug] = true
	}
	slug := base
	for i := 2; used[slug]; i++ {
		slug = base + "-" + strconv.Itoa(i)
	}
	return slug
}
