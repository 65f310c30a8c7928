// Package crosswalk derives aggregate-level reallocation weights from a
// block correspondence and block allocation factors.
package crosswalk

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/allocation"
	"github.com/sells-group/crosswalk-cli/internal/geoid"
	"github.com/sells-group/crosswalk-cli/internal/table"
)

// Edge is one block-to-block correspondence with the share of the source
// block's population assigned to the target block.
type Edge struct {
	Source  string
	Target  string
	Overlap float64
}

// Weight maps a source aggregate onto a target aggregate. CountWeight is the
// fraction of the source's additive quantities moved to the target;
// RateWeight is the source's share of the target's incoming population.
type Weight struct {
	Source      string
	Target      string
	CountWeight float64
	RateWeight  float64
}

type pair struct{ source, target string }

// Derive computes count and rate weights at level l. Edges whose source block
// has no allocation factor contribute zero weight and are reported as join
// misses; edges with malformed block ids are skipped.
func Derive(l geoid.Level, edges []Edge, factors []allocation.Factor) ([]Weight, error) {
	if err := allocation.CheckLevel(l); err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("component", "crosswalk"), zap.String("level", l.String()))

	idx := allocation.Index(factors)
	stats := table.JoinStats{Label: "allocation factors <- block crosswalk"}

	var order []pair
	counts := make(map[pair]float64)
	contrib := make(map[pair]float64)
	incoming := make(map[string]float64)
	var malformed int

	for _, e := range edges {
		src, err1 := geoid.Truncate(e.Source, l)
		tgt, err2 := geoid.Truncate(e.Target, l)
		if err1 != nil || err2 != nil || geoid.Validate(e.Source, geoid.Blocks) != nil || geoid.Validate(e.Target, geoid.Blocks) != nil {
			malformed++
			continue
		}

		f, ok := idx[e.Source]
		stats.Add(e.Source, ok)

		p := pair{source: src, target: tgt}
		if _, seen := counts[p]; !seen {
			order = append(order, p)
		}
		counts[p] += e.Overlap * f.Afact
		moved := e.Overlap * f.Population
		contrib[p] += moved
		incoming[tgt] += moved
	}
	stats.Log(log)
	if malformed > 0 {
		log.Warn("skipped correspondence edges with malformed block ids", zap.Int("edges", malformed))
	}

	out := make([]Weight, 0, len(order))
	var zeroTargets int
	for _, p := range order {
		w := Weight{Source: p.source, Target: p.target, CountWeight: counts[p]}
		if total := incoming[p.target]; total != 0 {
			w.RateWeight = contrib[p] / total
		}
		out = append(out, w)
	}
	for _, total := range incoming {
		if total == 0 {
			zeroTargets++
		}
	}
	if zeroTargets > 0 {
		log.Warn("targets with zero incoming population, rate weights set to 0", zap.Int("targets", zeroTargets))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})

	log.Info("crosswalk weights derived", zap.Int("edges", len(edges)), zap.Int("pairs", len(out)))
	return out, nil
}

// BySource groups weights by source aggregate, preserving order.
func BySource(weights []Weight) map[string][]Weight {
	out := make(map[string][]Weight)
	for _, w := range weights {
		out[w.Source] = append(out[w.Source], w)
	}
	return out
}
