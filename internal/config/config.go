package config

import (
	"path/filepath"
	"time"
)

// Config is the root configuration for Infotafel.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Data      DataConfig      `yaml:"data"`
	Uploads   UploadsConfig   `yaml:"uploads"`
	Weather   WeatherConfig   `yaml:"weather"`
	Hub       HubConfig       `yaml:"hub"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	FrontendDir string `yaml:"frontend_dir"`
}

type AuthConfig struct {
	AdminPassword     string `yaml:"admin_password"`
	AdminPasswordHash string `yaml:"admin_password_hash"`
}

type DataConfig struct {
	Dir string `yaml:"dir"`
}

// DatabasePath is the SQLite file holding the stored documents.
func (d DataConfig) DatabasePath() string { return filepath.Join(d.Dir, "infotafel.db") }

// MediaDir holds one subdirectory of images per folder.
func (d DataConfig) MediaDir() string { return filepath.Join(d.Dir, "media") }

type UploadsConfig struct {
	MaxFiles     int   `yaml:"max_files"`
	MaxFileSize  int64 `yaml:"max_file_size"`
	MaxEdge      int   `yaml:"max_edge"`
	ThumbEdge    int   `yaml:"thumb_edge"`
	Quality      int   `yaml:"quality"`
	ThumbQuality int   `yaml:"thumb_quality"`
}

type WeatherConfig struct {
	BaseURL string        `yaml:"base_url"`
	TTL     time.Duration `yaml:"ttl"`
	Timeout time.Duration `yaml:"timeout"`
	City    string        `yaml:"city"`
	Lat     float64       `yaml:"lat"`
	Lon     float64       `yaml:"lon"`
	Units   string        `yaml:"units"`
}

type HubConfig struct {
	QueueSize int `yaml:"queue_size"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			LogLevel:    "info",
			FrontendDir: "frontend",
		},
		Data: DataConfig{
			Dir: "/data",
		},
		Uploads: UploadsConfig{
			MaxFiles:     30,
			MaxFileSize:  25 << 20, // 25MB
			MaxEdge:      1920,
			ThumbEdge:    480,
			Quality:      85,
			ThumbQuality: 78,
		},
		Weather: WeatherConfig{
			BaseURL: "https://api.open-meteo.com",
			TTL:     30 * time.Minute,
			Timeout: 8 * time.Second,
			City:    "Eichsfeld",
			Lat:     51.3,
			Lon:     10.3,
			Units:   "metric",
		},
		Hub: HubConfig{
			QueueSize: 20,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 120,
			Burst:             30,
		},
	}
}
