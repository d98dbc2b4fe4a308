package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Scheduler.MaxConcurrent != 5 {
		t.Errorf("max_concurrent = %d, want 5", cfg.Scheduler.MaxConcurrent)
	}
	if cfg.Scheduler.MaxRetries != 3 {
		t.Errorf("max_retries = %d, want 3", cfg.Scheduler.MaxRetries)
	}
	if cfg.Scheduler.TickInterval != 500*time.Millisecond {
		t.Errorf("tick_interval = %s, want 500ms", cfg.Scheduler.TickInterval)
	}
	if cfg.Latency.High != 5*time.Second || cfg.Latency.Medium != 15*time.Second || cfg.Latency.Low != 30*time.Second {
		t.Errorf("latency ceilings = %s/%s/%s, want 5s/15s/30s", cfg.Latency.High, cfg.Latency.Medium, cfg.Latency.Low)
	}
	if cfg.Archive.Enabled {
		t.Error("archive should default to disabled")
	}
}

func TestLatencyCeiling(t *testing.T) {
	l := LatencyConfig{High: 5 * time.Second, Medium: 15 * time.Second, Low: 30 * time.Second}

	tests := []struct {
		priority string
		want     time.Duration
	}{
		{"high", 5 * time.Second},
		{"medium", 15 * time.Second},
		{"low", 30 * time.Second},
		{"unknown", 15 * time.Second}, // unknown priorities use the medium ceiling
	}
	for _, tt := range tests {
		if got := l.Ceiling(tt.priority); got != tt.want {
			t.Errorf("Ceiling(%q) = %s, want %s", tt.priority, got, tt.want)
		}
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
scheduler:
  max_concurrent: 2
  tick_interval: 50ms
latency:
  high: 1s
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Scheduler.MaxConcurrent != 2 {
		t.Errorf("max_concurrent = %d, want 2", cfg.Scheduler.MaxConcurrent)
	}
	if cfg.Scheduler.TickInterval != 50*time.Millisecond {
		t.Errorf("tick_interval = %s, want 50ms", cfg.Scheduler.TickInterval)
	}
	if cfg.Latency.High != time.Second {
		t.Errorf("latency.high = %s, want 1s", cfg.Latency.High)
	}
	// Untouched keys keep their defaults.
	if cfg.Scheduler.MaxRetries != 3 {
		t.Errorf("max_retries = %d, want default 3", cfg.Scheduler.MaxRetries)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file should error")
	}
}
