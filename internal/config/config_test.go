package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// =============================================================================
// UNIFIED CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "matchchat" {
		t.Errorf("expected Name=matchchat, got %s", cfg.Name)
	}
	if cfg.Assistant.Provider != "gemini" {
		t.Errorf("expected Provider=gemini, got %s", cfg.Assistant.Provider)
	}
	if got := cfg.GetDirectoryInterval(); got != 2*time.Second {
		t.Errorf("expected directory interval 2s, got %v", got)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	// Ensure no env vars interfere
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("MATCHCHAT_BACKEND_URL", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "matchchat.yaml")

	cfg := DefaultConfig()
	cfg.Backend.BaseURL = "https://chat.example.test/api"
	cfg.Polling.MessageInterval = "750ms"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Backend.BaseURL != "https://chat.example.test/api" {
		t.Errorf("expected BaseURL to round-trip, got %s", loaded.Backend.BaseURL)
	}
	if got := loaded.GetMessageInterval(); got != 750*time.Millisecond {
		t.Errorf("expected message interval 750ms, got %v", got)
	}
}

func TestConfig_LoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "matchchat" {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestConfig_LoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("polling: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfig_DurationFallbacks(t *testing.T) {
	cfg := &Config{}
	cfg.Polling.PresenceInterval = "soon"
	if got := cfg.GetPresenceInterval(); got != 1500*time.Millisecond {
		t.Errorf("expected fallback 1.5s, got %v", got)
	}
	if got := cfg.GetRequestTimeout(); got != 10*time.Second {
		t.Errorf("expected fallback 10s, got %v", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	cfg.Polling.DirectoryInterval = "8760h"
	if err := cfg.Validate(); err == nil {
		t.Error("expected a year-long directory interval to be rejected")
	}

	cfg = DefaultConfig()
	cfg.Assistant.Provider = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Error("expected invalid provider error")
	}

	cfg = DefaultConfig()
	cfg.Backend.BaseURL = " "
	if err := cfg.Validate(); err == nil {
		t.Error("expected missing base_url error")
	}
}
