package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/geoid"
	"github.com/sells-group/crosswalk-cli/internal/realloc"
	"github.com/sells-group/crosswalk-cli/internal/store"
	"github.com/sells-group/crosswalk-cli/internal/table"
)

var (
	reallocBypass      string
	reallocBypassFrom  string
	reallocBypassTo    string
	reallocBypassYears string
	reallocBadValues   string
	reallocPassThrough int
	reallocSchema      string
)

var reallocateCmd = &cobra.Command{
	Use:   "reallocate <geography-level> [weights-file]",
	Short: "Move statistics onto target-vintage geography",
	Long: `Reads yearly statistics on stdin and writes them on stdout expressed in
target-vintage geography. COUNT and BASE columns are scaled by count weight,
RATE columns are averaged by rate weight. Years from --pass-through-from on
are copied unchanged; records listed in --bypass are renamed one-to-one for
the bypass years instead of weighted. Without a weights file the cached set
for the level is used.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		level, err := parseLevel(args[0])
		if err != nil {
			return err
		}
		s, err := loadSchema(reallocSchema)
		if err != nil {
			return err
		}

		var weights []crosswalk.Weight
		if len(args) == 2 {
			weights, err = crosswalk.ReadWeights(ctx, args[1])
		} else {
			weights, err = cachedWeights(cmd, level)
		}
		if err != nil {
			return err
		}

		opts := []realloc.Option{
			realloc.WithSchema(s),
			realloc.WithCorrections(crosswalk.CountyCorrections()),
		}
		passThrough := cfg.Realloc.PassThroughFrom
		if cmd.Flags().Changed("pass-through-from") {
			passThrough = reallocPassThrough
		}
		opts = append(opts, realloc.WithPassThroughFrom(passThrough))

		if reallocBypass != "" {
			renames, err := crosswalk.ReadRenames(ctx, reallocBypass, reallocBypassFrom, reallocBypassTo)
			if err != nil {
				return err
			}
			years := cfg.Realloc.BypassYears
			if reallocBypassYears != "" {
				if years, err = parseYears(reallocBypassYears); err != nil {
					return err
				}
			}
			opts = append(opts, realloc.WithBypass(realloc.Bypass{Years: years, Renames: renames}))
		}

		in, err := table.ReadFile(ctx, "-", table.WithNumericColumns(s.Numeric))
		if err != nil {
			return err
		}
		if reallocBadValues != "" {
			bad, err := realloc.ReadBadValues(ctx, reallocBadValues)
			if err != nil {
				return err
			}
			realloc.RemoveValues(in, bad)
		}

		res, err := realloc.New(weights, opts...).Reallocate(in)
		if err != nil {
			return err
		}
		return table.WriteCSV(cmd.OutOrStdout(), res.Table)
	},
}

// cachedWeights reads the cached weight set for level.
func cachedWeights(cmd *cobra.Command, level geoid.Level) ([]crosswalk.Weight, error) {
	ctx := cmd.Context()
	st, err := openCache(ctx, "")
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck
	weights, _, err := st.Get(ctx, cacheKey(level))
	return weights, err
}

// cacheKey selects the latest cached set for level whatever inputs it was
// derived from.
func cacheKey(level geoid.Level) store.SetKey {
	return store.SetKey{Level: level, SourceVintage: cfg.Vintage.Source, TargetVintage: cfg.Vintage.Target}
}

func init() {
	f := reallocateCmd.Flags()
	f.StringVar(&reallocBypass, "bypass", "", "rename file for the one-to-one bypass path")
	f.StringVar(&reallocBypassFrom, "bypass-from", "GEOID00", "source column of the bypass file")
	f.StringVar(&reallocBypassTo, "bypass-to", "GEOID10", "target column of the bypass file")
	f.StringVar(&reallocBypassYears, "bypass-years", "", "years routed through the bypass, e.g. 2005-2009 (default: from config)")
	f.StringVar(&reallocBadValues, "bad-values", "", "GEOID,year,value list of statistics to null before weighting")
	f.IntVar(&reallocPassThrough, "pass-through-from", 0, "first year already in target geography; 0 disables (default: from config)")
	f.StringVar(&reallocSchema, "schema", "", "column classification YAML (default: built-in)")
	rootCmd.AddCommand(reallocateCmd)
}
