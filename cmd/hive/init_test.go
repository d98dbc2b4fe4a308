package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ShayCichocki/hive/internal/catalog"
	"github.com/ShayCichocki/hive/internal/config"
)

func TestSeedTemplateParses(t *testing.T) {
	seed, err := catalog.ParseSeed([]byte(seedTemplate))
	if err != nil {
		t.Fatalf("ParseSeed: %v", err)
	}
	if len(seed.Workers) != 3 {
		t.Errorf("template declares %d workers, want 3", len(seed.Workers))
	}

	entries := seed.Entries()
	c := catalog.New()
	for _, e := range entries {
		if err := c.Register(e); err != nil {
			t.Errorf("register %s: %v", e.Key(), err)
		}
	}
	if c.Len() != len(entries) {
		t.Errorf("catalog has %d entries, want %d", c.Len(), len(entries))
	}
}

func TestConfigTemplateLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Scheduler.MaxConcurrent != 5 || cfg.Scheduler.MaxRetries != 3 {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
}
