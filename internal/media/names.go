package media

import (
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	assetExt    = ".jpg"
	thumbSuffix = "_thumb" + assetExt

	maxNameLen  = 120
	maxStemLen  = 100
	defaultName = "upload"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// NewID returns 32 lowercase hex characters from a random 128-bit UUID.
func NewID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// AssetName is the display asset file name for an image id.
func AssetName(id string) string { return id + assetExt }

// ThumbName is the thumbnail file name for an image id.
func ThumbName(id string) string { return id + thumbSuffix }

// SafeFilename reduces a client-supplied file name to its base name made of
// [A-Za-z0-9._-], at most 120 bytes long.
func SafeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" {
		base = ""
	}
	base = unsafeNameChars.ReplaceAllString(base, "_")

	if len(base) > maxNameLen {
		ext := filepath.Ext(base)
		stem := strings.TrimSuffix(base, ext)
		if len(stem) > maxStemLen {
			stem = stem[:maxStemLen]
		}
		base = stem + ext
		if len(base) > maxNameLen {
			base = base[:maxNameLen]
		}
	}

	if base == "" {
		return defaultName
	}
	return base
}
