// Package display defines the document that drives what the kiosk shows:
// theme, layout, carousel, text panel, info boxes, ticker and events.
package display

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Config is the display configuration edited by administrators.
type Config struct {
	Theme       string      `json:"theme"`
	Layout      Layout      `json:"layout"`
	Carousel    Carousel    `json:"carousel"`
	TextPanel   TextPanel   `json:"text_panel"`
	InfoBoxes   InfoBoxes   `json:"info_boxes"`
	Ticker      Ticker      `json:"ticker"`
	Autorefresh Autorefresh `json:"autorefresh"`
	Events      Events      `json:"events"`
}

type Layout struct {
	ShowInfoColumn bool   `json:"show_info_column"`
	ShowTicker     bool   `json:"show_ticker"`
	Mode           string `json:"mode"` // "carousel" or "text"
}

type Carousel struct {
	IntervalSec int             `json:"interval_sec"`
	Folders     FolderSelection `json:"folders"`
	Shuffle     bool            `json:"shuffle"`
}

type TextPanel struct {
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
}

type InfoBoxes struct {
	WeatherEnabled bool        `json:"weather_enabled"`
	Weather        Weather     `json:"weather"`
	Ampel          Ampel       `json:"ampel"`
	Custom         []CustomBox `json:"custom"`
}

// Weather is the location the weather box reports for.
type Weather struct {
	City  string  `json:"city"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Units string  `json:"units"` // "metric" or "imperial"
}

// Ampel is the traffic-light status box.
type Ampel struct {
	Status  string `json:"status"` // green, yellow, red
	Label   string `json:"label"`
	Details string `json:"details"`
}

type CustomBox struct {
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
	Enabled  bool   `json:"enabled"`
}

type Ticker struct {
	Enabled bool     `json:"enabled"`
	Speed   int      `json:"speed"` // px/sec
	Items   []string `json:"items"`
}

type Autorefresh struct {
	PollFallbackSec int `json:"poll_fallback_sec"`
}

type Events struct {
	Enabled bool     `json:"enabled"`
	Title   string   `json:"title"`
	Items   []string `json:"items"`
}

// AmpelStatuses lists the accepted traffic-light values.
var AmpelStatuses = []string{"green", "yellow", "red"}

// Defaults returns a fresh default configuration. The weather location comes
// from the server configuration.
func Defaults(w Weather) Config {
	return Config{
		Theme: "mint",
		Layout: Layout{
			ShowInfoColumn: true,
			ShowTicker:     true,
			Mode:           "carousel",
		},
		Carousel: Carousel{
			IntervalSec: 10,
			Folders:     FolderSelection{All: true},
			Shuffle:     true,
		},
		TextPanel: TextPanel{
			Title:    "Willkommen!",
			Markdown: "### Kita-Infotafel\n\n- Infos für Eltern\n- Wetter & Ampel\n- Bilder & Erinnerungen\n",
		},
		InfoBoxes: InfoBoxes{
			WeatherEnabled: true,
			Weather:        w,
			Ampel: Ampel{
				Status:  "green",
				Label:   "Betreuung normal",
				Details: "Alles wie geplant.",
			},
			Custom: []CustomBox{
				{Title: "Hinweis", Markdown: "Bitte morgens bis **09:00** Uhr ankommen.", Enabled: true},
			},
		},
		Ticker: Ticker{
			Enabled: true,
			Speed:   70,
			Items: []string{
				"Heute: Turnhalle für die Sternchen-Gruppe",
				"Bitte Hausschuhe beschriften",
				"Nächste Woche: Fototag",
			},
		},
		Autorefresh: Autorefresh{PollFallbackSec: 30},
		Events: Events{
			Enabled: true,
			Title:   "Nächste Termine",
			Items:   []string{"24.12.2026 Weihnachtsfeier", "01.01.2027 Neujahr"},
		},
	}
}

// Apply replaces the top-level sections present in patch. Each section is
// decoded over its default so omitted fields keep default values. Unknown
// keys are ignored.
func (c *Config) Apply(patch map[string]json.RawMessage, defaults Config) error {
	sections := map[string]func(json.RawMessage) error{
		"theme":       func(raw json.RawMessage) error { return decodeInto(raw, defaults.Theme, &c.Theme) },
		"layout":      func(raw json.RawMessage) error { return decodeInto(raw, defaults.Layout, &c.Layout) },
		"carousel":    func(raw json.RawMessage) error { return decodeInto(raw, defaults.Carousel, &c.Carousel) },
		"text_panel":  func(raw json.RawMessage) error { return decodeInto(raw, defaults.TextPanel, &c.TextPanel) },
		"info_boxes":  func(raw json.RawMessage) error { return decodeInto(raw, defaults.InfoBoxes, &c.InfoBoxes) },
		"ticker":      func(raw json.RawMessage) error { return decodeInto(raw, defaults.Ticker, &c.Ticker) },
		"autorefresh": func(raw json.RawMessage) error { return decodeInto(raw, defaults.Autorefresh, &c.Autorefresh) },
		"events":      func(raw json.RawMessage) error { return decodeInto(raw, defaults.Events, &c.Events) },
	}

	for key, raw := range patch {
		apply, ok := sections[key]
		if !ok {
			continue
		}
		if err := apply(raw); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return c.Validate()
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	if !slices.Contains(AmpelStatuses, c.InfoBoxes.Ampel.Status) {
		return fmt.Errorf("info_boxes.ampel.status must be one of %v, got %q", AmpelStatuses, c.InfoBoxes.Ampel.Status)
	}
	switch c.InfoBoxes.Weather.Units {
	case "metric", "imperial":
	default:
		return fmt.Errorf("info_boxes.weather.units must be metric or imperial, got %q", c.InfoBoxes.Weather.Units)
	}
	return nil
}

func decodeInto[T any](raw json.RawMessage, def T, dst *T) error {
	v := def
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*dst = v
	return nil
}

// FolderSelection is either every folder ("all") or an explicit id list.
type FolderSelection struct {
	All bool
	IDs []string
}

// Includes reports whether the folder takes part in the carousel.
func (f FolderSelection) Includes(folderID string) bool {
	return f.All || slices.Contains(f.IDs, folderID)
}

func (f FolderSelection) MarshalJSON() ([]byte, error) {
	if f.All {
		return []byte(`"all"`), nil
	}
	ids := f.IDs
	if ids == nil {
		ids = []string{}
	}
	return json.Marshal(ids)
}

func (f *FolderSelection) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "all" {
			return fmt.Errorf("folder selection must be \"all\" or a list, got %q", s)
		}
		*f = FolderSelection{All: true}
		return nil
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("folder selection: %w", err)
	}
	*f = FolderSelection{IDs: ids}
	return nil
}
