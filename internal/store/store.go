package store

import (
	"time"

	"github.com/btouchard/infotafel/internal/display"
)

// Store is the persistence interface for Infotafel. Every method reads or
// replaces whole documents; a reader never observes a partially written one.
// Defined at the consumer side per Go conventions.
type Store interface {
	// Display config. The stored document is decoded over defaults, which
	// must be a fresh value owned by the caller.
	LoadDisplayConfig(defaults display.Config) (display.Config, error)
	SaveDisplayConfig(cfg display.Config) error

	// Folders
	LoadFolders() ([]Folder, error)
	SaveFolders(folders []Folder) error
	// DeleteFolder writes the remaining folder list and drops the folder's
	// image index in one transaction.
	DeleteFolder(folderID string, remaining []Folder) error

	// Per-folder image index
	LoadImages(folderID string) ([]Image, error)
	SaveImages(folderID string, images []Image) error
	LoadAllImages() (map[string][]Image, error)

	Close() error
}

// Folder groups images shown in the carousel.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Image is one ingested upload. Filename and Thumb are relative to the
// folder's media directory.
type Image struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	Thumb        string    `json:"thumb"`
	OriginalName string    `json:"original_name"`
	UploadedAt   time.Time `json:"uploaded_at"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
}
