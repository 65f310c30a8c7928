package tiger

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crosswalk-cli/internal/allocation"
	"github.com/sells-group/crosswalk-cli/internal/fetcher"
)

// LoadOptions configures a block population load.
type LoadOptions struct {
	States      []string // State abbreviations or FIPS codes; empty = all 50 + DC
	TempDir     string   // Download directory
	Concurrency int      // Parallel state downloads (default 3)

	// URL builds the download URL for a state. Default BlockPopulationURL.
	URL func(stateFIPS string) string
}

// LoadBlockPopulations downloads and reads the block population shapefile of
// every requested state, returning blocks sorted by identifier.
func LoadBlockPopulations(ctx context.Context, f fetcher.Fetcher, opts LoadOptions) ([]allocation.BlockPopulation, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.TempDir == "" {
		opts.TempDir = "/tmp/tiger"
	}
	if opts.URL == nil {
		opts.URL = BlockPopulationURL
	}

	// Pre-validate all states before starting any work.
	states, err := ResolveStates(opts.States)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "tiger.loader"))
	results := make([][]allocation.BlockPopulation, len(states))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, fips := range states {
		g.Go(func() error {
			shpPath, err := Download(gCtx, f, opts.URL(fips), filepath.Join(opts.TempDir, fips))
			if err != nil {
				return eris.Wrapf(err, "tiger: state %s", fips)
			}
			blocks, err := ReadBlockPopulations(shpPath)
			if err != nil {
				return err
			}
			results[i] = blocks
			log.Info("state blocks loaded", zap.String("state", fips), zap.Int("blocks", len(blocks)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []allocation.BlockPopulation
	for _, r := range results {
		out = append(out, r...)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].BlockID < out[b].BlockID })
	return out, nil
}
