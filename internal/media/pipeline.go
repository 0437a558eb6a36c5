// Package media turns uploaded blobs into display-ready JPEG assets and
// thumbnails.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/btouchard/infotafel/internal/store"
)

const tempPattern = ".ingest-*"

var (
	// ErrRejected marks an upload that was skipped. It is never a request
	// failure.
	ErrRejected    = errors.New("upload rejected")
	ErrTooLarge    = fmt.Errorf("%w: too large", ErrRejected)
	ErrUndecodable = fmt.Errorf("%w: not a decodable image", ErrRejected)
)

// Options bounds and tunes the pipeline. Zero fields take the defaults.
type Options struct {
	MaxBytes     int64 // per-blob ceiling, checked before decoding
	MaxPixels    int   // decoded pixel ceiling
	MaxEdge      int   // longer edge of the display asset
	ThumbEdge    int   // longer edge of the thumbnail
	Quality      int   // JPEG quality of the display asset
	ThumbQuality int   // JPEG quality of the thumbnail
}

// DefaultOptions returns the stock limits.
func DefaultOptions() Options {
	return Options{
		MaxBytes:     25 << 20,
		MaxPixels:    80_000_000,
		MaxEdge:      1920,
		ThumbEdge:    480,
		Quality:      85,
		ThumbQuality: 78,
	}
}

// Upload is one file of a batch upload.
type Upload struct {
	Name string
	Data []byte
}

// Pipeline ingests uploads. It holds no mutable state and is safe for
// concurrent use.
type Pipeline struct {
	opts  Options
	now   func() time.Time
	newID func() string
}

// NewPipeline creates a Pipeline.
func NewPipeline(opts Options) *Pipeline {
	def := DefaultOptions()
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = def.MaxBytes
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = def.MaxPixels
	}
	if opts.MaxEdge <= 0 {
		opts.MaxEdge = def.MaxEdge
	}
	if opts.ThumbEdge <= 0 {
		opts.ThumbEdge = def.ThumbEdge
	}
	if opts.Quality <= 0 {
		opts.Quality = def.Quality
	}
	if opts.ThumbQuality <= 0 {
		opts.ThumbQuality = def.ThumbQuality
	}
	return &Pipeline{opts: opts, now: time.Now, newID: NewID}
}

// Options returns the effective options.
func (p *Pipeline) Options() Options { return p.opts }

// Ingest decodes raw, writes the display asset and its thumbnail into dir
// and returns the record describing them. Blobs that are too large or not
// images yield an error wrapping ErrRejected and leave dir untouched.
func (p *Pipeline) Ingest(dir string, raw []byte, originalName string) (*store.Image, error) {
	if int64(len(raw)) > p.opts.MaxBytes {
		return nil, ErrTooLarge
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUndecodable)
	}
	if cfg.Width*cfg.Height > p.opts.MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d pixels", ErrTooLarge, cfg.Width, cfg.Height)
	}

	src, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	img := flatten(src)

	asset := imaging.Fit(img, p.opts.MaxEdge, p.opts.MaxEdge, imaging.Lanczos)
	thumb := imaging.Fit(img, p.opts.ThumbEdge, p.opts.ThumbEdge, imaging.Lanczos)

	id := p.newID()
	rec := &store.Image{
		ID:           id,
		Filename:     AssetName(id),
		Thumb:        ThumbName(id),
		OriginalName: SafeFilename(originalName),
		UploadedAt:   p.now().UTC().Truncate(time.Second),
		Width:        asset.Bounds().Dx(),
		Height:       asset.Bounds().Dy(),
	}

	if err := writeJPEG(dir, rec.Filename, asset, p.opts.Quality); err != nil {
		return nil, err
	}
	if err := writeJPEG(dir, rec.Thumb, thumb, p.opts.ThumbQuality); err != nil {
		removeQuietly(filepath.Join(dir, rec.Filename))
		return nil, err
	}

	return rec, nil
}

// RemoveAssets deletes an image's asset and thumbnail. Missing files are
// not an error. Names that are not plain file names inside dir are skipped.
func RemoveAssets(dir string, img store.Image) {
	for _, name := range []string{img.Filename, img.Thumb} {
		if !isPlainName(name) {
			if name != "" {
				slog.Warn("refusing to remove asset outside folder", "dir", dir, "name", name)
			}
			continue
		}
		removeQuietly(filepath.Join(dir, name))
	}
}

func isPlainName(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name
}

// flatten composes img onto an opaque white canvas, dropping alpha.
func flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// writeJPEG encodes img into a temp file inside dir and renames it into
// place once it is synced, so name is either absent or complete. The temp
// file never outlives the call.
func writeJPEG(dir, name string, img image.Image, quality int) (err error) {
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			removeQuietly(tmpPath)
		}
	}()

	if err = imaging.Encode(tmp, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", name, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err = os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("renaming %s: %w", name, err)
	}
	return nil
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to remove file", "path", path, "error", err)
	}
}
