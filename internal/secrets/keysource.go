package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/personapulse/personapulse/internal/config"
)

const (
	keyringService = "personapulse.vault"
	keyringUser    = "secret-key"
	keyFileName    = "vault.key"
)

// ResolveKey returns the vault key material for the given config.
// Priority: explicit config value → PERSONAPULSE_SECRET_KEY env → backend
// (keyring or key file, created on first use).
func ResolveKey(cfg config.VaultConfig) (string, error) {
	if k := strings.TrimSpace(cfg.Key); k != "" {
		return k, nil
	}
	if k := strings.TrimSpace(os.Getenv("PERSONAPULSE_SECRET_KEY")); k != "" {
		return k, nil
	}

	switch strings.ToLower(strings.TrimSpace(cfg.KeyBackend)) {
	case "keyring":
		return loadOrCreateKeyringKey()
	case "file":
		return loadOrCreateFileKey(cfg.KeyFile)
	default:
		if key, err := loadOrCreateKeyringKey(); err == nil {
			return key, nil
		}
		return loadOrCreateFileKey(cfg.KeyFile)
	}
}

func loadOrCreateKeyringKey() (string, error) {
	if val, err := keyring.Get(keyringService, keyringUser); err == nil {
		return strings.TrimSpace(val), nil
	}
	key, err := newRandomKey()
	if err != nil {
		return "", err
	}
	if err := keyring.Set(keyringService, keyringUser, key); err != nil {
		return "", fmt.Errorf("store vault key in keyring: %w", err)
	}
	return key, nil
}

func loadOrCreateFileKey(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		cfgPath, err := config.ConfigPath()
		if err != nil {
			return "", err
		}
		path = filepath.Join(filepath.Dir(cfgPath), keyFileName)
	}
	if data, err := os.ReadFile(path); err == nil {
		key := strings.TrimSpace(string(data))
		if key == "" {
			return "", fmt.Errorf("empty vault key file %s", path)
		}
		return key, nil
	} else if !os.IsNotExist(err) {
		return "", err
	}

	key, err := newRandomKey()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(key+"\n"), 0o600); err != nil {
		return "", err
	}
	return key, nil
}

func newRandomKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(raw), nil
}
