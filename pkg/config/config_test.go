package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("Expected default listen address, got %s", cfg.ListenAddr)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level, got %s", cfg.LogLevel)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout, got %s", cfg.ShutdownTimeout)
	}
	if cfg.DBPath != "" {
		t.Errorf("Expected in-memory store by default, got %s", cfg.DBPath)
	}
}

func TestFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("listen_addr: \":9999\"\nlog_level: debug\ndb_path: /var/lib/instrumentd/history.db\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("Expected file listen address, got %s", cfg.ListenAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected file log level, got %s", cfg.LogLevel)
	}
	if cfg.RateBurst != 40 {
		t.Errorf("Expected default burst to survive, got %d", cfg.RateBurst)
	}
}

func TestMissingFileRejected(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected an error for a missing config file")
	}
}
