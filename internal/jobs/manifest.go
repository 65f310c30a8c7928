// Package jobs runs many level pipelines from a YAML manifest with bounded
// concurrency, memory-tier admission and per-job retry.
package jobs

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/crosswalk-cli/internal/allocation"
	"github.com/sells-group/crosswalk-cli/internal/geoid"
	"github.com/sells-group/crosswalk-cli/internal/pipeline"
)

// Memory tiers and the semaphore slots each one holds while running.
const (
	TierStandard = "standard"
	TierLarge    = "large"
)

var tierSlots = map[string]int64{
	TierStandard: 1,
	TierLarge:    2,
}

// Manifest lists the jobs of one submission. Lookup, Context and BadValues
// apply to every job that does not set its own.
type Manifest struct {
	Lookup    string `yaml:"lookup"`
	Context   string `yaml:"context"`
	BadValues string `yaml:"bad_values"`
	Jobs      []Job  `yaml:"jobs"`
}

// Job is one level pipeline.
type Job struct {
	Name       string `yaml:"name"`
	Level      string `yaml:"level"`
	Geocorr    string `yaml:"geocorr"`
	Crosswalk  string `yaml:"crosswalk"`
	Weights    string `yaml:"weights"`
	Bypass     string `yaml:"bypass"`
	Input      string `yaml:"input"`
	Output     string `yaml:"output"`
	BadValues  string `yaml:"bad_values"`
	Lookup     string `yaml:"lookup"`
	MemoryTier string `yaml:"memory_tier"`
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "jobs: read %s", path)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates a manifest document. Missing memory
// tiers are filled in: block-group jobs default to the large tier.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "jobs: parse manifest")
	}
	if len(m.Jobs) == 0 {
		return nil, eris.New("jobs: manifest has no jobs")
	}

	seen := make(map[string]bool, len(m.Jobs))
	for i := range m.Jobs {
		j := &m.Jobs[i]
		if j.Name == "" {
			return nil, eris.Errorf("jobs: job %d has no name", i+1)
		}
		if seen[j.Name] {
			return nil, eris.Errorf("jobs: duplicate job name %q", j.Name)
		}
		seen[j.Name] = true

		level, err := geoid.ParseLevel(j.Level)
		if err != nil {
			return nil, eris.Wrapf(err, "jobs: job %s", j.Name)
		}
		if err := allocation.CheckLevel(level); err != nil {
			return nil, eris.Wrapf(err, "jobs: job %s", j.Name)
		}
		j.Level = level.String()

		if j.Input == "" || j.Output == "" {
			return nil, eris.Errorf("jobs: job %s needs input and output", j.Name)
		}
		if j.Weights == "" && (j.Geocorr == "" || j.Crosswalk == "") {
			return nil, eris.Errorf("jobs: job %s needs weights or both geocorr and crosswalk", j.Name)
		}

		j.MemoryTier = strings.ToLower(strings.TrimSpace(j.MemoryTier))
		if j.MemoryTier == "" {
			j.MemoryTier = TierStandard
			if level == geoid.BlockGroups {
				j.MemoryTier = TierLarge
			}
		}
		if _, ok := tierSlots[j.MemoryTier]; !ok {
			return nil, eris.Errorf("jobs: job %s: unknown memory tier %q", j.Name, j.MemoryTier)
		}
	}
	return &m, nil
}

// Config merges the job into base, which carries the settings shared by
// every job (schema, vintages, bypass years, pass-through year).
func (j Job) Config(m *Manifest, base pipeline.Config) pipeline.Config {
	cfg := base
	cfg.Level = geoid.Level(j.Level)
	cfg.Geocorr = j.Geocorr
	cfg.Crosswalk = j.Crosswalk
	cfg.Weights = j.Weights
	cfg.Bypass = j.Bypass
	cfg.Input = j.Input
	cfg.Output = j.Output
	cfg.BadValues = firstNonEmpty(j.BadValues, m.BadValues)
	cfg.Lookup = firstNonEmpty(j.Lookup, m.Lookup)
	cfg.Context = m.Context
	return cfg
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
