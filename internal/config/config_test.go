// internal/config/config_test.go
package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoadFromBytes(t *testing.T) {
	yaml := `
name: test-extractor
extraction:
  limits:
    title_min: 3
    min_confidence: 0.6
  max_retries: 5
learning:
  auto_promote: true
storage:
  backend: memory
server:
  listen: ":9090"
`
	cfg, err := LoadFromBytes([]byte(yaml))
	if err != nil {
		t.Fatalf("LoadFromBytes failed: %v", err)
	}

	if cfg.Name != "test-extractor" {
		t.Errorf("name = %q", cfg.Name)
	}
	if cfg.Extraction.Limits.TitleMin != 3 {
		t.Errorf("title_min = %d, want 3", cfg.Extraction.Limits.TitleMin)
	}
	if cfg.Extraction.Limits.MinConfidence != 0.6 {
		t.Errorf("min_confidence = %v, want 0.6", cfg.Extraction.Limits.MinConfidence)
	}
	if cfg.Extraction.MaxRetries != 5 {
		t.Errorf("max_retries = %d, want 5", cfg.Extraction.MaxRetries)
	}
	if !cfg.Learning.AutoPromote {
		t.Error("auto_promote not parsed")
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("backend = %s", cfg.Storage.Backend)
	}
	if cfg.Server.Listen != ":9090" {
		t.Errorf("listen = %s", cfg.Server.Listen)
	}

	// Unset fields receive defaults.
	if cfg.Extraction.Limits.TitleMax != 200 {
		t.Errorf("title_max default = %d, want 200", cfg.Extraction.Limits.TitleMax)
	}
	if cfg.Learning.Thresholds.Promote != 0.75 {
		t.Errorf("promote default = %v, want 0.75", cfg.Learning.Thresholds.Promote)
	}
	if cfg.Storage.RetentionDays != 90 {
		t.Errorf("retention default = %d, want 90", cfg.Storage.RetentionDays)
	}
}

func TestLoadFromBytesEmpty(t *testing.T) {
	if _, err := LoadFromBytes(nil); err == nil {
		t.Error("empty configuration accepted")
	}
}

func TestEnvironmentExpansion(t *testing.T) {
	os.Setenv("CHARTEX_TEST_LISTEN", ":7070")
	defer os.Unsetenv("CHARTEX_TEST_LISTEN")

	yaml := `
name: env-test
storage:
  backend: memory
server:
  listen: "${CHARTEX_TEST_LISTEN}"
`
	cfg, err := LoadFromBytes([]byte(yaml))
	if err != nil {
		t.Fatalf("LoadFromBytes failed: %v", err)
	}
	if cfg.Server.Listen != ":7070" {
		t.Errorf("listen = %q, want expanded env value", cfg.Server.Listen)
	}
}

func TestEnvironmentExpansionMissingVarKept(t *testing.T) {
	yaml := `
name: env-test
description: "${CHARTEX_DEFINITELY_UNSET_VAR}"
storage:
  backend: memory
`
	cfg, err := LoadFromBytes([]byte(yaml))
	if err != nil {
		t.Fatalf("LoadFromBytes failed: %v", err)
	}
	if !strings.Contains(cfg.Description, "CHARTEX_DEFINITELY_UNSET_VAR") {
		t.Errorf("unset variable was replaced: %q", cfg.Description)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults valid", func(c *Config) {}, true},
		{"title min above max", func(c *Config) { c.Extraction.Limits.TitleMin = 300 }, false},
		{"artist min above max", func(c *Config) { c.Extraction.Limits.ArtistMin = 300 }, false},
		{"min confidence above one", func(c *Config) { c.Extraction.Limits.MinConfidence = 1.5 }, false},
		{"promote threshold above one", func(c *Config) { c.Learning.Thresholds.Promote = 2 }, false},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok && err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration invalid: %v", err)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("default backend = %s, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Extraction.MaxRetries != 3 {
		t.Errorf("default retries = %d, want 3", cfg.Extraction.MaxRetries)
	}
	if cfg.Extraction.AllowDiscovery == nil || !*cfg.Extraction.AllowDiscovery {
		t.Error("discovery not enabled by default")
	}
	if cfg.Fetch.Timeout != 30*time.Second {
		t.Errorf("default fetch timeout = %v", cfg.Fetch.Timeout)
	}
}

func TestOpenStoreMemory(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "memory"

	s, err := cfg.OpenStore()
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer s.Close()
	if s == nil {
		t.Fatal("OpenStore returned nil store")
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"

	cfg := Default()
	cfg.Name = "roundtrip"
	cfg.Storage.Backend = "memory"
	if err := SaveToFile(cfg, path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Name != "roundtrip" || loaded.Storage.Backend != "memory" {
		t.Errorf("round trip lost fields: %+v", loaded)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile("/no/such/config.yaml"); err == nil {
		t.Error("missing file accepted")
	}
}
