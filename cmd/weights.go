package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/pipeline"
	"github.com/sells-group/crosswalk-cli/internal/store"
)

var (
	weightsOutput string
	weightsCache  bool
)

var weightsCmd = &cobra.Command{
	Use:   "weights <geography-level> <afacts-or-geocorr-file> <block-crosswalk-file>",
	Short: "Derive aggregate crosswalk weights",
	Long: `Joins block allocation factors to a block-to-block crosswalk (GEOID00, GEOID10,
WEIGHT) and writes count and rate weights per source and target aggregate.
With --cache the derived set is also stored in the local weight cache.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		level, err := parseLevel(args[0])
		if err != nil {
			return err
		}

		factors, err := pipeline.ReadFactors(ctx, level, args[1])
		if err != nil {
			return err
		}
		edges, err := crosswalk.ReadEdges(ctx, args[2])
		if err != nil {
			return err
		}
		weights, err := crosswalk.Derive(level, edges, factors)
		if err != nil {
			return eris.Wrap(err, "weights")
		}

		if weightsCache {
			st, err := openCache(ctx, "")
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			key := cacheKey(level)
			if key.Fingerprint, err = store.Fingerprint(args[1], args[2]); err != nil {
				return err
			}
			info, err := st.Put(ctx, key, weights)
			if err != nil {
				return err
			}
			zap.L().Info("weights cached", zap.String("set_id", info.ID), zap.Int("rows", info.RowCount))
		}

		w, closeFn, err := createOutput(weightsOutput, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if err := crosswalk.WriteWeights(w, weights); err != nil {
			closeFn() //nolint:errcheck
			return err
		}
		return closeFn()
	},
}

func init() {
	weightsCmd.Flags().StringVarP(&weightsOutput, "output", "o", "-", "output file (default stdout)")
	weightsCmd.Flags().BoolVar(&weightsCache, "cache", false, "store the derived weights in the local cache")
	rootCmd.AddCommand(weightsCmd)
}
