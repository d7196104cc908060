package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfigFrom: %v", err)
	}
	if cfg.Port != 8188 {
		t.Errorf("default port = %d, want 8188", cfg.Port)
	}
	if cfg.LogLevel == "" || cfg.DatabasePath == "" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfigFrom(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
port: 9999
log_level: DEBUG
database_path: ` + filepath.Join(dir, "assets.db") + `
roots:
  models:
    checkpoints:
      - ` + filepath.Join(dir, "ckpt") + `
  input:
    - ` + filepath.Join(dir, "in") + `
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom: %v", err)
	}
	if cfg.Port != 9999 || cfg.LogLevel != "DEBUG" {
		t.Errorf("parsed config = %+v", cfg)
	}
	if len(cfg.Roots.Models["checkpoints"]) != 1 {
		t.Errorf("models roots = %v", cfg.Roots.Models)
	}
}

func TestValidateRejectsRelativeRoots(t *testing.T) {
	cfg := &Config{Roots: Roots{Input: []string{"relative/path"}}}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Error("relative root path accepted")
	}
}

func TestLoadConfigFromRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: [not a number"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigFrom(path); err == nil {
		t.Error("malformed YAML accepted")
	}
}
