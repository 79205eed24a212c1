// Package packs provides the region/track pack registry: named bundles of
// scoring weights, tone defaults, and eligibility rules keyed by region and
// career track. Packs are static content embedded at compile time; callers
// resolve a pack once and pass it explicitly into each generation call.
package packs

import (
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/martin/jobpilot/internal/types"
)

//go:embed *.json
var packFiles embed.FS

// EligibilityRule is one region-specific eligibility or work-authorization
// rule the scorer passes to the completion call.
type EligibilityRule struct {
	RuleID   string  `json:"rule_id"`
	Title    string  `json:"title"`
	Guidance string  `json:"guidance"`
	Penalty  float64 `json:"penalty"`
}

// Pack is a resolved region/track bundle.
type Pack struct {
	Key         string                            `json:"key"`
	Region      string                            `json:"region"`
	Track       string                            `json:"track"`
	Weights     map[types.RequirementType]float64 `json:"weights"`
	DefaultTone types.Tone                        `json:"default_tone"`
	Rules       []EligibilityRule                 `json:"eligibility_rules"`
}

// weightTolerance bounds float drift when checking that a weight vector sums
// to 1.0.
const weightTolerance = 1e-6

// Validate checks the pack for structural problems: every requirement group
// must carry a weight, the vector must sum to 1.0, and the default tone must
// be part of the closed vocabulary.
func (p *Pack) Validate() error {
	var sum float64
	for _, rt := range types.AllRequirementTypes {
		w, ok := p.Weights[rt]
		if !ok {
			return fmt.Errorf("pack %s: missing weight for group %q", p.Key, rt)
		}
		if w < 0 {
			return fmt.Errorf("pack %s: negative weight for group %q", p.Key, rt)
		}
		sum += w
	}
	if len(p.Weights) != len(types.AllRequirementTypes) {
		return fmt.Errorf("pack %s: weight vector has %d entries, want %d",
			p.Key, len(p.Weights), len(types.AllRequirementTypes))
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("pack %s: weights sum to %.6f, want 1.0", p.Key, sum)
	}
	if !p.DefaultTone.Valid() {
		return fmt.Errorf("pack %s: invalid default tone %q", p.Key, p.DefaultTone)
	}
	return nil
}

// Registry holds every embedded pack, loaded once.
type Registry struct {
	packs map[string]*Pack
}

var (
	loadOnce sync.Once
	loaded   *Registry
	loadErr  error
)

// Load parses and validates every embedded pack. The result is cached; the
// embedded content cannot change at runtime.
func Load() (*Registry, error) {
	loadOnce.Do(func() {
		loaded, loadErr = loadAll()
	})
	return loaded, loadErr
}

func loadAll() (*Registry, error) {
	entries, err := packFiles.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded packs: %w", err)
	}

	reg := &Registry{packs: make(map[string]*Pack)}
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := packFiles.ReadFile(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read pack %s: %w", entry.Name(), err)
		}
		var p Pack
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse pack %s: %w", entry.Name(), err)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, exists := reg.packs[p.Key]; exists {
			return nil, fmt.Errorf("duplicate pack key %q", p.Key)
		}
		reg.packs[p.Key] = &p
	}

	if len(reg.packs) == 0 {
		return nil, fmt.Errorf("no packs embedded")
	}
	return reg, nil
}

// Key builds the canonical pack key for a region and track.
func Key(region, track string) string {
	return strings.ToLower(strings.TrimSpace(region)) + "-" + strings.ToLower(strings.TrimSpace(track))
}

// Get resolves a pack by region and track.
func (r *Registry) Get(region, track string) (*Pack, error) {
	key := Key(region, track)
	p, ok := r.packs[key]
	if !ok {
		return nil, fmt.Errorf("no pack registered for %q", key)
	}
	return p, nil
}

// fallbackKey is used when a region/track combination has no pack.
const fallbackKey = "us-early"

// GetOrDefault resolves a pack, falling back to the us-early pack for
// unknown region/track combinations.
func (r *Registry) GetOrDefault(region, track string) *Pack {
	if p, err := r.Get(region, track); err == nil {
		return p
	}
	p, _ := r.GetByKey(fallbackKey)
	return p
}

// GetByKey resolves a pack by its canonical key.
func (r *Registry) GetByKey(key string) (*Pack, error) {
	p, ok := r.packs[key]
	if !ok {
		return nil, fmt.Errorf("no pack registered for %q", key)
	}
	return p, nil
}

// Keys returns every registered pack key in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.packs))
	for k := range r.packs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
