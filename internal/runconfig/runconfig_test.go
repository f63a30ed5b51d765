package runconfig

import (
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.MaxFilesOpen != 500 {
		t.Errorf("expected default MaxFilesOpen 500, got %d", cfg.MaxFilesOpen)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default LogLevel info, got %q", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("expected default LogFormat text, got %q", cfg.LogFormat)
	}
	if cfg.WatchDebounceMS != 300 {
		t.Errorf("expected default WatchDebounceMS 300, got %d", cfg.WatchDebounceMS)
	}
}

func TestLoadMissingPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(cfg, Defaults()) {
		t.Errorf("expected defaults for empty path, got %+v", cfg)
	}
}

func TestLoadNonexistentFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(cfg, Defaults()) {
		t.Errorf("expected defaults for missing file, got %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "discdiff.toml")
	body := `
max_files_open = 50
log_level = "debug"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxFilesOpen != 50 {
		t.Errorf("expected MaxFilesOpen 50, got %d", cfg.MaxFilesOpen)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected LogLevel debug, got %q", cfg.LogLevel)
	}
	// Fields absent from the file keep their default.
	if cfg.LogFormat != "text" {
		t.Errorf("expected LogFormat to keep default text, got %q", cfg.LogFormat)
	}
}

func TestLoadMalformedFileErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "discdiff.toml")
	if err := os.WriteFile(path, []byte("not = [valid toml"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed TOML, got nil")
	}
}

func TestWatchReloadPicksUpChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "discdiff.toml")
	if err := os.WriteFile(path, []byte(`log_level = "info"`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	seen := make(chan Config, 1)
	w, err := WatchReload(path, log, func(cfg Config) {
		seen <- cfg
	})
	if err != nil {
		t.Fatalf("WatchReload failed: %v", err)
	}
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`log_level = "debug"`), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-seen:
		if cfg.LogLevel != "debug" {
			t.Errorf("expected reloaded LogLevel debug, got %q", cfg.LogLevel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload callback")
	}
}
