package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("PERSONAPULSE_CONFIG", filepath.Join(t.TempDir(), "nope.json"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := DefaultConfig()
	if cfg.Gateway.Addr != def.Gateway.Addr || cfg.Generator.Model != def.Generator.Model {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoad_FileThenEnvOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
		"store": {"path": "/tmp/from-file.db"},
		"gateway": {"addr": ":9999"},
		"generator": {"model": "from-file-model"}
	}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PERSONAPULSE_CONFIG", path)
	t.Setenv("PERSONAPULSE_GENERATOR_MODEL", "from-env-model")
	t.Setenv("PERSONAPULSE_DISPATCHER_TICK_INTERVAL", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Path != "/tmp/from-file.db" || cfg.Gateway.Addr != ":9999" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	// Environment wins over the file.
	if cfg.Generator.Model != "from-env-model" {
		t.Fatalf("env override lost: %q", cfg.Generator.Model)
	}
	if cfg.Dispatcher.TickInterval != 30*time.Second {
		t.Fatalf("duration override lost: %v", cfg.Dispatcher.TickInterval)
	}
	// Untouched values keep their defaults.
	if cfg.Generator.MaxChars != DefaultConfig().Generator.MaxChars {
		t.Fatalf("default lost: %d", cfg.Generator.MaxChars)
	}
}

func TestLoad_RejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PERSONAPULSE_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Fatal("malformed config accepted")
	}
}

func TestSaveRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	t.Setenv("PERSONAPULSE_CONFIG", path)

	cfg := DefaultConfig()
	cfg.Store.Path = "/data/personas.db"
	if err := Save(&cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Store.Path != "/data/personas.db" {
		t.Fatalf("roundtrip lost store path: %q", got.Store.Path)
	}
}
