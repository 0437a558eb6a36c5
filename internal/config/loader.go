package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// searchPaths returns the ordered list of config file locations to try.
func searchPaths() []string {
	paths := []string{
		"/etc/infotafel/infotafel.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "infotafel", "infotafel.yaml"))
	}

	paths = append(paths, "infotafel.yaml")

	if envPath := os.Getenv("INFOTAFEL_CONFIG"); envPath != "" {
		paths = append(paths, envPath)
	}

	return paths
}

// Load reads configuration from YAML files and environment variables.
// Files are loaded in order (each overrides the previous):
// /etc/infotafel/infotafel.yaml < ~/.config/infotafel/infotafel.yaml < ./infotafel.yaml < $INFOTAFEL_CONFIG
// A ./.env file, if present, seeds variables that are not already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Defaults()

	for _, path := range searchPaths() {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	return finish(cfg)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	cfg := Defaults()

	if err := loadFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables have higher priority than YAML config values.
func applyEnvOverrides(cfg *Config) error {
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.Data.Dir = dir
	}
	if pw := os.Getenv("ADMIN_PASSWORD"); pw != "" {
		cfg.Auth.AdminPassword = pw
	}
	if city := os.Getenv("DEFAULT_CITY"); city != "" {
		cfg.Weather.City = city
	}
	if err := floatEnv("DEFAULT_LAT", &cfg.Weather.Lat); err != nil {
		return err
	}
	return floatEnv("DEFAULT_LON", &cfg.Weather.Lon)
}

func floatEnv(name string, dst *float64) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("%s must be a number, got %q", name, raw)
	}
	*dst = v
	return nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config search paths
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	slog.Debug("loading config file", "path", path)

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level must be debug, info, warn or error, got %q", cfg.Server.LogLevel)
	}

	if cfg.Data.Dir == "" {
		return fmt.Errorf("data.dir must not be empty")
	}

	u := cfg.Uploads
	if u.MaxFiles < 1 {
		return fmt.Errorf("uploads.max_files must be at least 1")
	}
	if u.MaxFileSize < 1 {
		return fmt.Errorf("uploads.max_file_size must be at least 1")
	}
	if u.ThumbEdge < 1 || u.MaxEdge < u.ThumbEdge {
		return fmt.Errorf("uploads.max_edge (%d) must be >= uploads.thumb_edge (%d) >= 1", u.MaxEdge, u.ThumbEdge)
	}
	if u.Quality < 1 || u.Quality > 100 || u.ThumbQuality < 1 || u.ThumbQuality > 100 {
		return fmt.Errorf("uploads.quality and uploads.thumb_quality must be between 1 and 100")
	}

	if cfg.Weather.Units != "metric" && cfg.Weather.Units != "imperial" {
		return fmt.Errorf("weather.units must be metric or imperial, got %q", cfg.Weather.Units)
	}

	if cfg.Hub.QueueSize < 1 {
		return fmt.Errorf("hub.queue_size must be at least 1")
	}

	if cfg.RateLimit.RequestsPerMinute < 1 || cfg.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit.requests_per_minute and rate_limit.burst must be at least 1")
	}

	if h := cfg.Auth.AdminPasswordHash; h != "" {
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return fmt.Errorf("auth.admin_password_hash must be a bcrypt hash: %w", err)
		}
	}

	cfg.Data.Dir = ExpandHome(cfg.Data.Dir)
	cfg.Server.FrontendDir = ExpandHome(cfg.Server.FrontendDir)
	cfg.Server.LogFile = ExpandHome(cfg.Server.LogFile)

	return nil
}
