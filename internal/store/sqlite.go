package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/btouchard/infotafel/internal/display"
)

const timeFormat = time.RFC3339

const (
	keyConfig      = "config"
	keyFolders     = "folders"
	keyImagePrefix = "images/"
	corruptSuffix  = ".corrupt"
)

var migrations = []string{
	`CREATE TABLE documents (
		key        TEXT PRIMARY KEY,
		body       TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
}

// SQLiteStore implements Store on a single key/value documents table using
// modernc.org/sqlite (pure Go, zero CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
// The database file is created with 0600 permissions and its parent directory with 0700.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}

		// Pre-create the file with restrictive permissions if it doesn't exist
		if _, err := os.Stat(path); os.IsNotExist(err) {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
			if err != nil {
				return nil, fmt.Errorf("creating database file: %w", err)
			}
			_ = f.Close()
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		slog.Info("applying migration", "version", i+1)
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Display config ---

func (s *SQLiteStore) LoadDisplayConfig(defaults display.Config) (display.Config, error) {
	cfg := defaults
	found, err := load(s, keyConfig, &cfg)
	if err != nil {
		return defaults, err
	}
	if !found {
		return defaults, nil
	}
	return cfg, nil
}

func (s *SQLiteStore) SaveDisplayConfig(cfg display.Config) error {
	return s.save(s.db, keyConfig, cfg)
}

// --- Folders ---

func (s *SQLiteStore) LoadFolders() ([]Folder, error) {
	var doc struct {
		Folders []Folder `json:"folders"`
	}
	found, err := load(s, keyFolders, &doc)
	if err != nil {
		return nil, err
	}
	if !found || doc.Folders == nil {
		doc.Folders = []Folder{}
	}
	return doc.Folders, nil
}

func (s *SQLiteStore) SaveFolders(folders []Folder) error {
	return s.save(s.db, keyFolders, foldersDoc(folders))
}

func (s *SQLiteStore) DeleteFolder(folderID string, remaining []Folder) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.save(tx, keyFolders, foldersDoc(remaining)); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM documents WHERE key = ?", imagesKey(folderID)); err != nil {
		return fmt.Errorf("deleting image index: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing folder delete: %w", err)
	}
	return nil
}

// --- Images ---

func (s *SQLiteStore) LoadImages(folderID string) ([]Image, error) {
	var images []Image
	found, err := load(s, imagesKey(folderID), &images)
	if err != nil {
		return nil, err
	}
	if !found || images == nil {
		images = []Image{}
	}
	return images, nil
}

func (s *SQLiteStore) SaveImages(folderID string, images []Image) error {
	if images == nil {
		images = []Image{}
	}
	return s.save(s.db, imagesKey(folderID), images)
}

func (s *SQLiteStore) LoadAllImages() (map[string][]Image, error) {
	rows, err := s.db.Query("SELECT key, body FROM documents WHERE key LIKE ? AND key NOT LIKE ?",
		keyImagePrefix+"%", "%"+corruptSuffix)
	if err != nil {
		return nil, fmt.Errorf("listing image indexes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	all := make(map[string][]Image)
	for rows.Next() {
		var key, body string
		if err := rows.Scan(&key, &body); err != nil {
			return nil, fmt.Errorf("scanning image index: %w", err)
		}
		var images []Image
		if err := json.Unmarshal([]byte(body), &images); err != nil {
			slog.Warn("skipping unreadable image index", "key", key, "error", err)
			continue
		}
		if images == nil {
			images = []Image{}
		}
		all[strings.TrimPrefix(key, keyImagePrefix)] = images
	}
	return all, rows.Err()
}

// --- Helpers ---

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// load decodes the document stored under key over a copy of *v and assigns
// it only when decoding succeeds. A missing document reports found=false and
// leaves *v untouched. A document that no longer decodes, including one with
// mistyped fields, is copied aside under key+".corrupt" and treated as
// missing.
func load[T any](s *SQLiteStore, key string, v *T) (found bool, err error) {
	var body string
	err = s.db.QueryRow("SELECT body FROM documents WHERE key = ?", key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading document %s: %w", key, err)
	}

	// Decoding reuses slice backing arrays, so start from a deep copy to
	// keep *v intact when the document turns out to be unreadable.
	var decoded T
	base, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("copying defaults for %s: %w", key, err)
	}
	if err := json.Unmarshal(base, &decoded); err != nil {
		return false, fmt.Errorf("copying defaults for %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		slog.Warn("document corrupted, falling back to defaults", "key", key, "error", err)
		if _, bakErr := s.db.Exec(`INSERT OR REPLACE INTO documents (key, body, updated_at) VALUES (?, ?, ?)`,
			key+corruptSuffix, body, formatTime(time.Now())); bakErr != nil {
			slog.Warn("failed to keep corrupted document", "key", key, "error", bakErr)
		}
		return false, nil
	}
	*v = decoded
	return true, nil
}

func (s *SQLiteStore) save(ex execer, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding document %s: %w", key, err)
	}
	_, err = ex.Exec(`INSERT OR REPLACE INTO documents (key, body, updated_at) VALUES (?, ?, ?)`,
		key, string(body), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("writing document %s: %w", key, err)
	}
	return nil
}

func foldersDoc(folders []Folder) any {
	if folders == nil {
		folders = []Folder{}
	}
	return struct {
		Folders []Folder `json:"folders"`
	}{folders}
}

func imagesKey(folderID string) string {
	return keyImagePrefix + folderID
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeFormat)
}
