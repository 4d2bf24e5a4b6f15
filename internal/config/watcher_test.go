package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestWatcher_FiresOnChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "expertline.yaml")
	writeConfigFile(t, path, validYAML)

	changed := make(chan *Config, 1)
	w := NewWatcher(path, 10*time.Millisecond, func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Let the watcher record the initial fingerprint.
	time.Sleep(50 * time.Millisecond)

	updated := validYAML + "\n# trailing comment\n"
	writeConfigFile(t, path, updated)

	select {
	case cfg := <-changed:
		if cfg.Server.ListenAddr != ":9090" {
			t.Errorf("reloaded ListenAddr = %q", cfg.Server.ListenAddr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not fire after file change")
	}
}

func TestWatcher_IgnoresInvalidReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "expertline.yaml")
	writeConfigFile(t, path, validYAML)

	changed := make(chan *Config, 1)
	w := NewWatcher(path, 10*time.Millisecond, func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	writeConfigFile(t, path, "providers: [not, valid]")

	select {
	case cfg := <-changed:
		t.Errorf("handler fired for invalid config: %+v", cfg)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_InitialStateDoesNotFire(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "expertline.yaml")
	writeConfigFile(t, path, validYAML)

	changed := make(chan *Config, 1)
	w := NewWatcher(path, 10*time.Millisecond, func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	select {
	case <-changed:
		t.Error("handler fired without any file change")
	default:
	}
}
