package config

import (
	"context"
	"crypto/sha256"
	"io"
	"log/slog"
	"os"
	"time"
)

// DefaultWatchInterval is how often the watcher polls the config file for
// changes when no interval is provided.
const DefaultWatchInterval = 5 * time.Second

// ChangeHandler is invoked with the freshly loaded configuration whenever the
// watched file changes and reloads successfully.
type ChangeHandler func(cfg *Config)

// Watcher polls a configuration file and invokes a handler when its content
// changes. Polling keeps the implementation portable; the interval is coarse
// because config changes are rare.
type Watcher struct {
	path     string
	interval time.Duration
	handler  ChangeHandler

	lastSum   [sha256.Size]byte
	lastMtime time.Time
}

// NewWatcher creates a watcher for path. An interval <= 0 falls back to
// [DefaultWatchInterval].
func NewWatcher(path string, interval time.Duration, handler ChangeHandler) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &Watcher{path: path, interval: interval, handler: handler}
}

// Run polls the file until ctx is cancelled. The first poll records the
// current state without firing the handler, so only subsequent edits trigger
// a reload.
func (w *Watcher) Run(ctx context.Context) {
	if sum, mtime, err := w.fingerprint(); err == nil {
		w.lastSum, w.lastMtime = sum, mtime
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	sum, mtime, err := w.fingerprint()
	if err != nil {
		slog.WarnContext(ctx, "config watch: stat failed", "path", w.path, "error", err)
		return
	}
	if sum == w.lastSum {
		// Touched but not edited.
		w.lastMtime = mtime
		return
	}
	w.lastSum, w.lastMtime = sum, mtime

	cfg, err := Load(w.path)
	if err != nil {
		slog.WarnContext(ctx, "config watch: reload failed, keeping previous config",
			"path", w.path, "error", err)
		return
	}
	slog.InfoContext(ctx, "config reloaded", "path", w.path)
	w.handler(cfg)
}

func (w *Watcher) fingerprint() ([sha256.Size]byte, time.Time, error) {
	var sum [sha256.Size]byte
	info, err := os.Stat(w.path)
	if err != nil {
		return sum, time.Time{}, err
	}
	f, err := os.Open(w.path)
	if err != nil {
		return sum, time.Time{}, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return sum, time.Time{}, err
	}
	copy(sum[:], h.Sum(nil))
	return sum, info.ModTime(), nil
}
