package catalog

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/hive/pkg/models"
)

// SeedFile is the YAML document declaring workers and the capabilities they
// advertise. It is loaded at startup and re-loaded by the watcher; because
// registration is an idempotent upsert, re-loading doubles as the periodic
// metric-update path.
type SeedFile struct {
	Workers []SeedWorker `yaml:"workers"`
}

// SeedWorker declares one worker and its capability entries.
type SeedWorker struct {
	// AgentID identifies the worker.
	AgentID string `yaml:"agent_id"`
	// Style is the worker's reasoning style (react, strategic, analytical, validation).
	Style string `yaml:"style,omitempty"`
	// Capabilities lists the advertised entries.
	Capabilities []SeedCapability `yaml:"capabilities"`
}

// SeedCapability declares one capability's attributes.
type SeedCapability struct {
	Name             string   `yaml:"name"`
	Description      string   `yaml:"description,omitempty"`
	SecurityLevel    string   `yaml:"security_level"`
	EstimatedLatency int      `yaml:"estimated_latency_ms"`
	SuccessRate      float64  `yaml:"success_rate"`
	CurrentLoad      float64  `yaml:"current_load,omitempty"`
	Cost             float64  `yaml:"cost,omitempty"`
	Dependencies     []string `yaml:"dependencies,omitempty"`
}

// ParseSeed parses a capability seed document.
func ParseSeed(data []byte) (*SeedFile, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse capability seed: %w", err)
	}
	for i, w := range seed.Workers {
		if w.AgentID == "" {
			return nil, fmt.Errorf("parse capability seed: worker %d has no agent_id", i)
		}
		for _, c := range w.Capabilities {
			if c.Name == "" {
				return nil, fmt.Errorf("parse capability seed: worker %s has a capability with no name", w.AgentID)
			}
		}
	}
	return &seed, nil
}

// LoadSeed reads and parses a capability seed file.
func LoadSeed(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capability seed %s: %w", path, err)
	}
	return ParseSeed(data)
}

// Entries flattens the seed into capability entries ready for registration.
func (s *SeedFile) Entries() []models.Capability {
	var entries []models.Capability
	for _, w := range s.Workers {
		for _, c := range w.Capabilities {
			entries = append(entries, models.Capability{
				AgentID:          w.AgentID,
				Name:             c.Name,
				Description:      c.Description,
				SecurityLevel:    models.SecurityLevel(c.SecurityLevel),
				EstimatedLatency: time.Duration(c.EstimatedLatency) * time.Millisecond,
				SuccessRate:      c.SuccessRate,
				CurrentLoad:      c.CurrentLoad,
				Cost:             c.Cost,
				Dependencies:     c.Dependencies,
			})
		}
	}
	return entries
}

// RegisterSeed loads a seed file and registers every entry in the catalog.
// Returns the number of entries registered.
func RegisterSeed(c *Catalog, path string) (int, error) {
	seed, err := LoadSeed(path)
	if err != nil {
		return 0, err
	}
	entries := seed.Entries()
	for _, e := range entries {
		if err := c.Register(e); err != nil {
			return 0, fmt.Errorf("register %s: %w", e.Key(), err)
		}
	}
	return len(entries), nil
}
