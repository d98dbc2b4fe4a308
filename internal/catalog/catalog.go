// Package catalog maintains the registry of worker capabilities with live
// performance metrics and ranks candidate workers for a task.
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ShayCichocki/hive/pkg/models"
)

// Scoring weights. Success rate dominates; load and latency refine the
// ordering; the security component rewards headroom above the floor.
const (
	weightSuccess  = 0.5
	weightLoad     = 0.2
	weightLatency  = 0.2
	weightSecurity = 0.1
)

// Catalog is the thread-safe registry of advertised capabilities, keyed by
// (agentID, capability name).
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]models.Capability
}

// New creates an empty Catalog.
func New() *Catalog {
	return &Catalog{entries: make(map[string]models.Capability)}
}

// Register upserts a capability entry. Re-registering the same
// (agentID, name) pair overwrites the attributes, which is also the path
// for periodic metric updates. Rates and load are clamped to [0,1].
func (c *Catalog) Register(entry models.Capability) error {
	if entry.AgentID == "" || entry.Name == "" {
		return fmt.Errorf("register capability: agent id and name are required")
	}

	entry.SuccessRate = clamp01(entry.SuccessRate)
	entry.CurrentLoad = clamp01(entry.CurrentLoad)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Key()] = entry
	return nil
}

// Get returns the entry for (agentID, name), if registered.
func (c *Catalog) Get(agentID, name string) (models.Capability, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[agentID+"/"+name]
	return entry, ok
}

// AdjustLoad shifts the current load of (agentID, name) by delta, clamped to
// [0,1]. Unknown entries are ignored.
func (c *Catalog) AdjustLoad(agentID, name string, delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := agentID + "/" + name
	entry, ok := c.entries[key]
	if !ok {
		return
	}
	entry.CurrentLoad = clamp01(entry.CurrentLoad + delta)
	c.entries[key] = entry
}

// RecordOutcome folds one execution outcome into the success rate of
// (agentID, name) using an exponential moving average.
func (c *Catalog) RecordOutcome(agentID, name string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := agentID + "/" + name
	entry, ok := c.entries[key]
	if !ok {
		return
	}
	observed := 0.0
	if success {
		observed = 1.0
	}
	const alpha = 0.2
	entry.SuccessRate = clamp01(entry.SuccessRate*(1-alpha) + observed*alpha)
	c.entries[key] = entry
}

// Len returns the number of registered entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Agents returns the distinct agent IDs present in the catalog.
func (c *Catalog) Agents() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{})
	var ids []string
	for _, e := range c.entries {
		if _, ok := seen[e.AgentID]; !ok {
			seen[e.AgentID] = struct{}{}
			ids = append(ids, e.AgentID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Names returns the distinct capability names present in the catalog.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{})
	var names []string
	for _, e := range c.entries {
		if _, ok := seen[e.Name]; !ok {
			seen[e.Name] = struct{}{}
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)
	return names
}

// FindBestAgents ranks agents able to satisfy the whole requirement,
// highest score first. An agent qualifies only if it advertises every
// required capability, each at or above the security floor and at or below
// the latency ceiling; violators are excluded, not down-ranked. Ties break
// by lowest current load, then lowest cost. The result is empty, never an
// error, when nothing qualifies.
func (c *Catalog) FindBestAgents(req models.TaskRequirement) []models.AgentCapabilityMatch {
	if len(req.Capabilities) == 0 {
		return nil
	}

	c.mu.RLock()
	byAgent := make(map[string]map[string]models.Capability)
	for _, e := range c.entries {
		caps, ok := byAgent[e.AgentID]
		if !ok {
			caps = make(map[string]models.Capability)
			byAgent[e.AgentID] = caps
		}
		caps[e.Name] = e
	}
	c.mu.RUnlock()

	var matches []models.AgentCapabilityMatch
	for agentID, caps := range byAgent {
		match, ok := c.scoreAgent(agentID, caps, req)
		if ok {
			matches = append(matches, match)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Capability.CurrentLoad != matches[j].Capability.CurrentLoad {
			return matches[i].Capability.CurrentLoad < matches[j].Capability.CurrentLoad
		}
		return matches[i].Capability.Cost < matches[j].Capability.Cost
	})
	return matches
}

// scoreAgent scores one agent against the full requirement. The returned
// match carries the entry for the first required capability.
func (c *Catalog) scoreAgent(agentID string, caps map[string]models.Capability, req models.TaskRequirement) (models.AgentCapabilityMatch, bool) {
	var total float64
	var reasons []string

	for _, name := range req.Capabilities {
		entry, ok := caps[name]
		if !ok {
			return models.AgentCapabilityMatch{}, false
		}
		if !entry.SecurityLevel.Meets(req.MinSecurity) {
			return models.AgentCapabilityMatch{}, false
		}
		if req.MaxLatency > 0 && entry.EstimatedLatency > req.MaxLatency {
			return models.AgentCapabilityMatch{}, false
		}

		latencyScore := 1.0
		if req.MaxLatency > 0 {
			latencyScore = clamp01(1 - float64(entry.EstimatedLatency)/float64(req.MaxLatency))
		}
		// Security headroom above the floor earns the remainder of the
		// security component; sitting exactly on the floor is penalized
		// relative to exceeding it.
		margin := entry.SecurityLevel.Rank() - req.MinSecurity.Rank()
		securityScore := clamp01(0.7 + 0.15*float64(margin))

		score := weightSuccess*entry.SuccessRate +
			weightLoad*(1-entry.CurrentLoad) +
			weightLatency*latencyScore +
			weightSecurity*securityScore
		total += score

		reasons = append(reasons, fmt.Sprintf(
			"%s: success=%.2f load=%.2f latency=%s", name, entry.SuccessRate, entry.CurrentLoad, entry.EstimatedLatency))
	}

	primary := caps[req.Capabilities[0]]
	return models.AgentCapabilityMatch{
		AgentID:    agentID,
		Capability: primary,
		Score:      clamp01(total / float64(len(req.Capabilities))),
		Reasoning:  fmt.Sprintf("agent %s: %s", agentID, strings.Join(reasons, "; ")),
	}, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
