package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const secretFileName = "admin_password"

// SecretPath is where the generated admin password is kept.
func SecretPath(dataDir string) string {
	return filepath.Join(dataDir, secretFileName)
}

// LoadOrCreateSecret reads the generated admin password from dataDir, or
// creates and persists a new 128-bit hex-encoded one if the file is missing
// or empty. It is used when no password is configured.
func LoadOrCreateSecret(dataDir string) (secret string, created bool, err error) {
	path := SecretPath(dataDir)

	data, err := os.ReadFile(path)
	if err == nil {
		if s := strings.TrimSpace(string(data)); s != "" {
			return s, false, nil
		}
	}

	secret, err = generateSecret()
	if err != nil {
		return "", false, err
	}
	if err := writeSecret(dataDir, path, secret); err != nil {
		return "", false, err
	}
	return secret, true, nil
}

// RotateSecret replaces the generated admin password with a new one.
func RotateSecret(dataDir string) (string, error) {
	path := SecretPath(dataDir)

	secret, err := generateSecret()
	if err != nil {
		return "", err
	}
	if err := writeSecret(dataDir, path, secret); err != nil {
		return "", err
	}
	return secret, nil
}

func generateSecret() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func writeSecret(dataDir, path, secret string) error {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(secret+"\n"), 0600); err != nil {
		return fmt.Errorf("write secret: %w", err)
	}
	return nil
}
