// Package allocation computes allocation factors: each fine-grained unit's
// share of its aggregate's reference-year population.
package allocation

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/geoid"
)

// ErrUnsupportedLevel is returned for levels that have no allocation factors.
var ErrUnsupportedLevel = eris.New("allocation: unsupported geography level")

// BlockPopulation is the reference-year population of one census block.
type BlockPopulation struct {
	BlockID    string
	Population float64
}

// Factor is a block's share of its aggregate's population.
type Factor struct {
	BlockID     string
	AggregateID string
	Population  float64
	Afact       float64
}

// Supported reports whether allocation factors can be built for l.
func Supported(l geoid.Level) bool {
	return l == geoid.Tracts || l == geoid.BlockGroups
}

// CheckLevel returns ErrUnsupportedLevel for levels other than tracts and
// block groups.
func CheckLevel(l geoid.Level) error {
	if !Supported(l) {
		return eris.Wrapf(ErrUnsupportedLevel, "level %q (want %s or %s)", l, geoid.Tracts, geoid.BlockGroups)
	}
	return nil
}

// Build groups blocks by their aggregate at level l and divides each block's
// population by the aggregate total. Members of zero-population aggregates
// get an afact of 0. Output is ordered by block id.
func Build(l geoid.Level, blocks []BlockPopulation) ([]Factor, error) {
	if err := CheckLevel(l); err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("component", "allocation"), zap.String("level", l.String()))

	out := make([]Factor, 0, len(blocks))
	totals := make(map[string]float64)
	for _, b := range blocks {
		if err := geoid.Validate(b.BlockID, geoid.Blocks); err != nil {
			return nil, err
		}
		agg, err := geoid.Truncate(b.BlockID, l)
		if err != nil {
			return nil, err
		}
		totals[agg] += b.Population
		out = append(out, Factor{BlockID: b.BlockID, AggregateID: agg, Population: b.Population})
	}

	for i := range out {
		if total := totals[out[i].AggregateID]; total != 0 {
			out[i].Afact = out[i].Population / total
		}
	}

	var zeroAggregates int
	for _, total := range totals {
		if total == 0 {
			zeroAggregates++
		}
	}
	if zeroAggregates > 0 {
		log.Warn("zero-population aggregates, allocation factors set to 0",
			zap.Int("aggregates", zeroAggregates),
		)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].BlockID < out[j].BlockID })

	log.Info("allocation factors built",
		zap.Int("blocks", len(out)),
		zap.Int("aggregates", len(totals)),
	)
	return out, nil
}

// Index maps block id to its factor for join lookups.
func Index(factors []Factor) map[string]Factor {
	idx := make(map[string]Factor, len(factors))
	for _, f := range factors {
		idx[f.BlockID] = f
	}
	return idx
}
