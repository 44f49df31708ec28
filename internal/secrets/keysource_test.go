package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/personapulse/personapulse/internal/config"
)

func TestResolveKey_ExplicitAndEnv(t *testing.T) {
	key, err := ResolveKey(config.VaultConfig{Key: "  explicit-key  "})
	if err != nil {
		t.Fatalf("ResolveKey: %v", err)
	}
	if key != "explicit-key" {
		t.Fatalf("got %q", key)
	}

	t.Setenv("PERSONAPULSE_SECRET_KEY", "env-key")
	key, err = ResolveKey(config.VaultConfig{})
	if err != nil {
		t.Fatalf("ResolveKey: %v", err)
	}
	if key != "env-key" {
		t.Fatalf("env key not used: %q", key)
	}

	// Explicit config still wins over the environment.
	key, err = ResolveKey(config.VaultConfig{Key: "explicit-key"})
	if err != nil {
		t.Fatalf("ResolveKey: %v", err)
	}
	if key != "explicit-key" {
		t.Fatalf("precedence wrong: %q", key)
	}
}

func TestResolveKey_FileBackendCreatesAndReuses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "vault.key")
	cfg := config.VaultConfig{KeyBackend: "file", KeyFile: path}

	first, err := ResolveKey(cfg)
	if err != nil {
		t.Fatalf("first ResolveKey: %v", err)
	}
	if first == "" {
		t.Fatal("empty generated key")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("key file not created: %v", err)
	}

	second, err := ResolveKey(cfg)
	if err != nil {
		t.Fatalf("second ResolveKey: %v", err)
	}
	if second != first {
		t.Fatal("key not stable across resolutions")
	}
}

func TestResolveKey_EmptyKeyFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.key")
	if err := os.WriteFile(path, []byte("\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ResolveKey(config.VaultConfig{KeyBackend: "file", KeyFile: path}); err == nil {
		t.Fatal("empty key file accepted")
	}
}
