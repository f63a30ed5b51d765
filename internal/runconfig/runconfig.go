// Package runconfig is the differ's layered configuration (C9): built-in
// defaults, optionally overridden by a TOML file, in turn overridden by
// whatever CLI flags the caller parsed. Only non-structural fields
// (FD budget, log level/format) are eligible for the optional hot-reload
// (WatchReload) — roots and database paths are fixed for the life of a run,
// since changing the identity of what's being diffed mid-run has no
// well-defined semantics under the Coordinator's single-pass model.
package runconfig

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
)

// Config holds the subset of discdiff's operational settings that can come
// from a TOML file in addition to CLI flags.
type Config struct {
	MaxFilesOpen    int      `toml:"max_files_open"`
	LogLevel        string   `toml:"log_level"`
	LogFormat       string   `toml:"log_format"`
	LogPath         string   `toml:"log_path"`
	WatchDebounceMS int      `toml:"watch_debounce_ms"`
	RedactPaths     []string `toml:"redact_paths"`
}

// Defaults returns the built-in configuration (spec.md §6: default FD
// budget of 500).
func Defaults() Config {
	return Config{
		MaxFilesOpen:    500,
		LogLevel:        "info",
		LogFormat:       "text",
		LogPath:         "",
		WatchDebounceMS: 300,
		RedactPaths:     nil,
	}
}

// Load reads an optional TOML file layered over Defaults(). A missing file
// is not an error: discdiff runs fine with no config file at all.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("runconfig: read %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, fmt.Errorf("runconfig: parse %s: %w", path, err)
	}
	return cfg, nil
}

// reloadDebounce mirrors the config watcher's own debounce window: several
// writes in quick succession (an editor's save-via-rename, for instance)
// collapse into a single reload.
const reloadDebounce = 100 * time.Millisecond

// Watcher re-reads a TOML config file on every write and hands the result
// to onChange. Only non-structural fields are meant to be consumed this
// way — see the package doc.
type Watcher struct {
	path   string
	log    *slog.Logger
	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
}

// WatchReload starts watching path's parent directory and invokes onChange
// with the freshly parsed Config after every debounced write. It returns
// immediately; call Stop to tear the watch down. A parse failure is logged
// and the previous configuration is left in place.
func WatchReload(path string, log *slog.Logger, onChange func(Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("runconfig: create watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("runconfig: watch %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{path: path, log: log, fsw: fsw, cancel: cancel}
	go w.loop(ctx, onChange)
	return w, nil
}

func (w *Watcher) loop(ctx context.Context, onChange func(Config)) {
	var debounceTimer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(reloadDebounce, func() {
				cfg, err := Load(w.path)
				if err != nil {
					w.log.Warn("runconfig: reload failed, keeping prior config", "error", err)
					return
				}
				onChange(cfg)
			})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("runconfig: watcher error", "error", err)
		}
	}
}

// Stop ends the watch and releases the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	w.cancel()
	return w.fsw.Close()
}
