// Package pipeline chains the reallocation stages for one geography level:
// allocation factors, crosswalk weights, reallocation, duplicate
// recombination, derived percentages and display-metadata resolution.
package pipeline

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/allocation"
	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/dedupe"
	"github.com/sells-group/crosswalk-cli/internal/derive"
	"github.com/sells-group/crosswalk-cli/internal/fetcher"
	"github.com/sells-group/crosswalk-cli/internal/geoid"
	"github.com/sells-group/crosswalk-cli/internal/names"
	"github.com/sells-group/crosswalk-cli/internal/realloc"
	"github.com/sells-group/crosswalk-cli/internal/schema"
	"github.com/sells-group/crosswalk-cli/internal/store"
	"github.com/sells-group/crosswalk-cli/internal/table"
)

// Config describes one level's inputs and outputs. Paths accept CSV, XLSX
// or ZIP files; Input and Output accept "-" for stdin and stdout.
type Config struct {
	Level geoid.Level

	// Geocorr holds raw block populations or prebuilt allocation factors.
	Geocorr string
	// Crosswalk is the block-to-block correspondence.
	Crosswalk string
	// Weights, when set, is a prebuilt weight file and Geocorr and
	// Crosswalk are not read.
	Weights string

	Input     string
	Output    string
	BadValues string

	// Bypass names a rename file applied one-to-one to BypassYears.
	Bypass          string
	BypassFrom      string
	BypassTo        string
	BypassYears     []int
	PassThroughFrom int

	// Lookup and Context feed display-metadata resolution. Names are always
	// formatted; parent locations are synthesized only from a lookup.
	Lookup  string
	Context string

	Schema       *schema.Schema
	MaxGroupSize int

	SourceVintage int
	TargetVintage int
}

// PhaseResult records the outcome of one stage.
type PhaseResult struct {
	Name     string
	Duration int64
	Metadata map[string]any
}

// Result summarizes a run.
type Result struct {
	Level            geoid.Level
	Phases           []PhaseResult
	WeightsFromCache bool
	BadValues        int
	Renamed          int
	Realloc          realloc.Stats
	Dedupe           dedupe.Stats
	Derive           derive.Stats
	Names            names.Stats
	Rows             int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCache stores derived weights and reuses them on later runs.
func WithCache(c store.WeightCache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// Pipeline runs the reallocation stages.
type Pipeline struct {
	cache store.WeightCache
}

// New creates a Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes every stage for cfg and writes the final table to
// cfg.Output.
func (p *Pipeline) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := allocation.CheckLevel(cfg.Level); err != nil {
		return nil, eris.Wrap(err, "pipeline: level")
	}
	if cfg.Output == "" {
		return nil, eris.New("pipeline: output path is required")
	}
	if cfg.Schema == nil {
		cfg.Schema = schema.Default()
	}
	if err := cfg.Schema.Validate(); err != nil {
		return nil, eris.Wrap(err, "pipeline: schema")
	}

	log := zap.L().With(zap.String("component", "pipeline"), zap.String("level", cfg.Level.String()))
	log.Info("pipeline: starting")

	result := &Result{Level: cfg.Level}
	trackPhase := func(name string, fn func() (map[string]any, error)) error {
		start := time.Now()
		meta, err := fn()
		duration := time.Since(start).Milliseconds()
		result.Phases = append(result.Phases, PhaseResult{Name: name, Duration: duration, Metadata: meta})
		if err != nil {
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
				zap.Error(err),
			)
			return err
		}
		log.Info("pipeline: phase complete",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
		)
		return nil
	}

	// ===== Phase 1: Weights =====
	var weights []crosswalk.Weight
	err := trackPhase("1_weights", func() (map[string]any, error) {
		w, fromCache, err := p.weights(ctx, cfg)
		if err != nil {
			return nil, err
		}
		weights = w
		result.WeightsFromCache = fromCache
		return map[string]any{"weights": len(w), "from_cache": fromCache}, nil
	})
	if err != nil {
		return result, err
	}

	// ===== Phase 2: Read and clean statistics =====
	var stats *table.Table
	err = trackPhase("2_input", func() (map[string]any, error) {
		t, err := table.ReadFile(ctx, cfg.Input, table.WithNumericColumns(cfg.Schema.Numeric))
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: read input")
		}
		if cfg.BadValues != "" {
			bad, err := realloc.ReadBadValues(ctx, cfg.BadValues)
			if err != nil {
				return nil, eris.Wrap(err, "pipeline: read bad values")
			}
			result.BadValues = realloc.RemoveValues(t, bad)
		}
		stats = t
		return map[string]any{
			"records":    t.Len(),
			"bad_values": result.BadValues,
		}, nil
	})
	if err != nil {
		return result, err
	}

	// ===== Phase 3: Reallocate =====
	var reallocated *realloc.Result
	err = trackPhase("3_reallocate", func() (map[string]any, error) {
		opts := []realloc.Option{
			realloc.WithSchema(cfg.Schema),
			realloc.WithPassThroughFrom(cfg.PassThroughFrom),
			realloc.WithCorrections(crosswalk.CountyCorrections()),
		}
		if cfg.Bypass != "" {
			renames, err := crosswalk.ReadRenames(ctx, cfg.Bypass, cfg.BypassFrom, cfg.BypassTo)
			if err != nil {
				return nil, eris.Wrap(err, "pipeline: read bypass renames")
			}
			opts = append(opts, realloc.WithBypass(realloc.Bypass{Years: cfg.BypassYears, Renames: renames}))
		}
		res, err := realloc.New(weights, opts...).Reallocate(stats)
		if err != nil {
			return nil, err
		}
		reallocated = res
		result.Realloc = res.Stats
		result.Renamed = res.Stats.Corrected
		return map[string]any{
			"weighted":       res.Stats.Weighted,
			"unmatched":      res.Stats.Unmatched,
			"passed_through": res.Stats.PassedThrough,
			"bypassed":       res.Stats.Bypassed,
			"corrected":      res.Stats.Corrected,
			"output":         res.Stats.Output,
		}, nil
	})
	if err != nil {
		return result, err
	}

	// ===== Phase 4: Recombine duplicates =====
	var final *table.Table
	err = trackPhase("4_dedupe", func() (map[string]any, error) {
		t, st, err := dedupe.New(
			dedupe.WithSchema(cfg.Schema),
			dedupe.WithMaxGroupSize(cfg.MaxGroupSize),
		).Resolve(reallocated.Table)
		if err != nil {
			return nil, err
		}
		final = t
		result.Dedupe = st
		return map[string]any{"keys": st.Keys, "merged": st.Merged, "dropped_rows": st.DroppedRows}, nil
	})
	if err != nil {
		return result, err
	}

	// ===== Phase 5: Derived percentages =====
	err = trackPhase("5_derive", func() (map[string]any, error) {
		t, st, err := derive.New(cfg.Schema).Apply(final)
		if err != nil {
			return nil, err
		}
		final = t
		result.Derive = st
		return map[string]any{"derived": st.Derived, "zero_denominators": st.ZeroDenominators}, nil
	})
	if err != nil {
		return result, err
	}

	// ===== Phase 6: Names =====
	err = trackPhase("6_names", func() (map[string]any, error) {
		st, err := p.resolveNames(ctx, cfg, final, reallocated.Context)
		if err != nil {
			return nil, err
		}
		result.Names = st
		return map[string]any{"records": st.Records, "parents_synthesized": st.ParentSynthesized}, nil
	})
	if err != nil {
		return result, err
	}

	// ===== Phase 7: Write =====
	err = trackPhase("7_write", func() (map[string]any, error) {
		if err := writeTable(cfg.Output, final); err != nil {
			return nil, err
		}
		result.Rows = final.Len()
		return map[string]any{"rows": final.Len(), "output": cfg.Output}, nil
	})
	if err != nil {
		return result, err
	}

	log.Info("pipeline: complete", zap.Int("rows", result.Rows))
	return result, nil
}

// weights loads prebuilt weights, a cached set, or derives them from the
// geocorr and crosswalk files.
func (p *Pipeline) weights(ctx context.Context, cfg Config) ([]crosswalk.Weight, bool, error) {
	if cfg.Weights != "" {
		w, err := crosswalk.ReadWeights(ctx, cfg.Weights)
		return w, false, err
	}

	key := store.SetKey{Level: cfg.Level, SourceVintage: cfg.SourceVintage, TargetVintage: cfg.TargetVintage}
	if p.cache != nil && cfg.Geocorr != "" && cfg.Crosswalk != "" {
		fp, err := store.Fingerprint(cfg.Geocorr, cfg.Crosswalk)
		if err != nil {
			return nil, false, eris.Wrap(err, "pipeline: fingerprint correspondence files")
		}
		key.Fingerprint = fp
	}
	if p.cache != nil {
		w, info, err := p.cache.Get(ctx, key)
		switch {
		case err == nil:
			zap.L().Debug("pipeline: weights from cache", zap.String("set_id", info.ID))
			return w, true, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, false, eris.Wrap(err, "pipeline: read weight cache")
		}
	}

	if cfg.Geocorr == "" || cfg.Crosswalk == "" {
		return nil, false, eris.New("pipeline: geocorr and crosswalk paths are required to derive weights")
	}
	factors, err := ReadFactors(ctx, cfg.Level, cfg.Geocorr)
	if err != nil {
		return nil, false, err
	}
	edges, err := crosswalk.ReadEdges(ctx, cfg.Crosswalk)
	if err != nil {
		return nil, false, err
	}
	w, err := crosswalk.Derive(cfg.Level, edges, factors)
	if err != nil {
		return nil, false, err
	}

	if p.cache != nil {
		if _, err := p.cache.Put(ctx, key, w); err != nil {
			zap.L().Warn("pipeline: failed to cache weights", zap.Error(err))
		}
	}
	return w, false, nil
}

// ReadFactors reads allocation factors from path. A file of raw block
// populations is converted with allocation.Build; a factor file is used as
// is.
func ReadFactors(ctx context.Context, l geoid.Level, path string) ([]allocation.Factor, error) {
	header, rows, err := fetcher.ReadRows(ctx, path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read %s", path)
	}
	if allocation.IsFactorHeader(header) {
		return allocation.ParseFactors(header, rows)
	}
	blocks, err := allocation.ParseGeocorr(header, rows)
	if err != nil {
		return nil, err
	}
	return allocation.Build(l, blocks)
}

func (p *Pipeline) resolveNames(ctx context.Context, cfg Config, t *table.Table, derived map[string]table.Context) (names.Stats, error) {
	var lookup *names.Lookup
	if cfg.Lookup != "" {
		l, err := names.ReadLookup(ctx, cfg.Lookup)
		if err != nil {
			return names.Stats{}, err
		}
		lookup = l
	}

	merged := make(map[string]table.Context, len(derived))
	for id, c := range derived {
		merged[id] = c
	}
	if cfg.Context != "" {
		extra, err := names.ReadContext(ctx, cfg.Context)
		if err != nil {
			return names.Stats{}, err
		}
		for id, c := range extra {
			if _, ok := merged[id]; !ok {
				merged[id] = c
			}
		}
	}
	r := names.NewResolver(cfg.Level, lookup)
	if lookup == nil {
		return r.Names(t, merged), nil
	}
	return r.Resolve(t, merged)
}

func writeTable(path string, t *table.Table) error {
	if path == "-" {
		return table.WriteCSV(os.Stdout, t)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "pipeline: create %s", path)
	}
	if err := table.WriteCSV(f, t); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "pipeline: close %s", path)
}
