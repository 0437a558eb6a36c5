package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btouchard/infotafel/internal/api"
	"github.com/btouchard/infotafel/internal/api/middleware"
	"github.com/btouchard/infotafel/internal/auth"
	"github.com/btouchard/infotafel/internal/config"
	"github.com/btouchard/infotafel/internal/display"
	"github.com/btouchard/infotafel/internal/gallery"
	infomcp "github.com/btouchard/infotafel/internal/mcp"
	"github.com/btouchard/infotafel/internal/media"
	"github.com/btouchard/infotafel/internal/notify"
	"github.com/btouchard/infotafel/internal/store"
	"github.com/btouchard/infotafel/internal/weather"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "version":
		fmt.Printf("infotafel %s\n", version)
	case "check":
		cmdCheck(os.Args[2:])
	case "hash-password":
		cmdHashPassword(os.Args[2:])
	case "rotate-password":
		cmdRotatePassword(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: infotafel <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve            Start the Infotafel server\n")
	fmt.Fprintf(os.Stderr, "  check            Validate configuration\n")
	fmt.Fprintf(os.Stderr, "  hash-password    Print a bcrypt hash for auth.admin_password_hash\n")
	fmt.Fprintf(os.Stderr, "  rotate-password  Replace the generated admin password\n")
	fmt.Fprintf(os.Stderr, "  version          Print version\n")
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg)

	slog.Info("starting infotafel",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	_, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("configuration is valid")
}

func cmdHashPassword(args []string) {
	if len(args) != 1 || args[0] == "" {
		fmt.Fprintf(os.Stderr, "Usage: infotafel hash-password <password>\n")
		os.Exit(1)
	}

	hash, err := auth.HashPassword(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "hashing password: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

func cmdRotatePassword(args []string) {
	fs := flag.NewFlagSet("rotate-password", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	secret, err := auth.RotateSecret(cfg.Data.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rotating password: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(secret)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.Server.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlers := []slog.Handler{
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
	}

	if cfg.Server.LogFile != "" {
		f, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			slog.Warn("failed to open log file, using stdout only", "path", cfg.Server.LogFile, "error", err)
		} else {
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		}
	}

	logger := slog.New(slog.NewMultiHandler(handlers...))
	slog.SetDefault(logger)
}

// newVerifier prefers a configured hash, then a configured password, then
// the generated password kept in the data directory.
func newVerifier(cfg *config.Config) (*auth.Verifier, error) {
	if cfg.Auth.AdminPasswordHash != "" || cfg.Auth.AdminPassword != "" {
		return auth.NewVerifier(cfg.Auth.AdminPassword, cfg.Auth.AdminPasswordHash)
	}

	secret, created, err := auth.LoadOrCreateSecret(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("loading admin password: %w", err)
	}
	if created {
		slog.Warn("no admin password configured, generated one", "file", auth.SecretPath(cfg.Data.Dir))
	}
	return auth.NewVerifier(secret, "")
}

func run(ctx context.Context, cfg *config.Config) error {
	mediaDir := cfg.Data.MediaDir()
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return fmt.Errorf("creating media directory: %w", err)
	}

	// --- SQLite Store ---
	dbPath := cfg.Data.DatabasePath()
	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	slog.Info("database opened", "path", dbPath)

	// --- Admin Auth ---
	verifier, err := newVerifier(cfg)
	if err != nil {
		return err
	}

	// --- Notification Hub ---
	hub := notify.NewHub(cfg.Hub.QueueSize)

	// --- Gallery ---
	pipeline := media.NewPipeline(media.Options{
		MaxBytes:     cfg.Uploads.MaxFileSize,
		MaxEdge:      cfg.Uploads.MaxEdge,
		ThumbEdge:    cfg.Uploads.ThumbEdge,
		Quality:      cfg.Uploads.Quality,
		ThumbQuality: cfg.Uploads.ThumbQuality,
	})
	gal := gallery.NewService(db, pipeline, hub, gallery.Options{
		MediaDir: mediaDir,
		MaxFiles: cfg.Uploads.MaxFiles,
		Weather: display.Weather{
			City:  cfg.Weather.City,
			Lat:   cfg.Weather.Lat,
			Lon:   cfg.Weather.Lon,
			Units: cfg.Weather.Units,
		},
	})

	// --- Weather ---
	forecast := weather.NewCache(weather.NewClient(cfg.Weather.BaseURL, cfg.Weather.Timeout), cfg.Weather.TTL)

	// --- MCP Server ---
	mcpHTTP := infomcp.NewHTTPHandler(&infomcp.Deps{
		Gallery:  gal,
		Displays: hub,
		Version:  version,
	})

	// --- HTTP Router ---
	router := api.NewRouter(&api.Deps{
		Gallery:     gal,
		Hub:         hub,
		Weather:     forecast,
		Verifier:    verifier,
		RateLimiter: middleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst),
		MCP:         mcpHTTP,
		FrontendDir: cfg.Server.FrontendDir,
		MaxFileSize: cfg.Uploads.MaxFileSize,
	})

	// --- HTTP Server ---
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("infotafel is ready", "addr", addr, "media", mediaDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down", "displays", hub.Len(), "dropped_events", hub.Dropped())

	// WebSocket sessions are hijacked and ignored by Shutdown, so end them first.
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
