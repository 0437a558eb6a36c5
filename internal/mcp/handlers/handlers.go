// Package handlers implements the MCP tools that let an assistant inspect and
// edit what the kiosk shows.
package handlers

import (
	"errors"
	"strings"

	"github.com/btouchard/infotafel/internal/display"
	"github.com/btouchard/infotafel/internal/gallery"
	"github.com/btouchard/infotafel/internal/store"
)

// Gallery is the subset of the gallery service the tools need.
type Gallery interface {
	Snapshot() (gallery.Snapshot, error)
	Folders() ([]store.Folder, error)
	MutateConfig(fn func(cfg *display.Config) error) (display.Config, error)
}

// Displays reports how many display clients are connected.
type Displays interface {
	Len() int
}

// stringSlice reads a JSON array of strings from tool arguments, skipping
// blank entries.
func stringSlice(v any) ([]string, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, true
}

func toolError(err error) string {
	if errors.Is(err, gallery.ErrInvalidConfig) {
		return err.Error()
	}
	return "Failed to update the display: " + err.Error()
}
