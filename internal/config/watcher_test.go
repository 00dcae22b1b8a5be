// ABOUTME: Tests for the config file watcher
// ABOUTME: Covers reload on change, hash-based deduplication, and bad-config rejection

package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

const validConfig = `
database:
  path: "./test.db"
models:
  - key: "basic"
    name: "Basic"
    default: true
logging:
  level: "%s"
`

type reloadSink struct {
	mu      sync.Mutex
	configs []*Config
}

func (r *reloadSink) add(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs = append(r.configs, cfg)
}

func (r *reloadSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.configs)
}

func (r *reloadSink) last() *Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.configs) == 0 {
		return nil
	}
	return r.configs[len(r.configs)-1]
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func startWatcher(t *testing.T, path string, sink *reloadSink) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := NewWatcher(path, sink.add, logger)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(func() { w.Stop() })
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeFile(t, configPath, sprintfConfig("info"))

	sink := &reloadSink{}
	startWatcher(t, configPath, sink)

	writeFile(t, configPath, sprintfConfig("debug"))

	if !waitFor(t, 2*time.Second, func() bool { return sink.count() >= 1 }) {
		t.Fatal("watcher never delivered the reloaded config")
	}
	if got := sink.last().Logging.Level; got != "debug" {
		t.Errorf("reloaded Logging.Level = %q, want %q", got, "debug")
	}
}

func TestWatcher_IgnoresUnchangedContent(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := sprintfConfig("info")
	writeFile(t, configPath, content)

	sink := &reloadSink{}
	startWatcher(t, configPath, sink)

	// Rewriting identical bytes must not trigger a reload.
	writeFile(t, configPath, content)

	time.Sleep(300 * time.Millisecond)
	if n := sink.count(); n != 0 {
		t.Errorf("reload count = %d, want 0 for unchanged content", n)
	}
}

func TestWatcher_KeepsOldConfigOnBadReload(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeFile(t, configPath, sprintfConfig("info"))

	sink := &reloadSink{}
	startWatcher(t, configPath, sink)

	// A broken edit is rejected without a callback.
	writeFile(t, configPath, "database:\n  path ")
	time.Sleep(300 * time.Millisecond)
	if n := sink.count(); n != 0 {
		t.Fatalf("reload count = %d, want 0 after broken edit", n)
	}

	// Fixing the file delivers the reload.
	writeFile(t, configPath, sprintfConfig("warn"))
	if !waitFor(t, 2*time.Second, func() bool { return sink.count() >= 1 }) {
		t.Fatal("watcher never recovered after broken edit")
	}
	if got := sink.last().Logging.Level; got != "warn" {
		t.Errorf("reloaded Logging.Level = %q, want %q", got, "warn")
	}
}

func sprintfConfig(level string) string {
	return fmt.Sprintf(validConfig, level)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
