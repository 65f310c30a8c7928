package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crosswalk-cli/internal/pipeline"
)

var pipelineFlags struct {
	geocorr     string
	crosswalk   string
	weights     string
	input       string
	output      string
	badValues   string
	lookup      string
	context     string
	bypass      string
	bypassFrom  string
	bypassTo    string
	bypassYears string
	schema      string
	passThrough int
	maxGroup    int
	useCache    bool
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline <geography-level>",
	Short: "Run every stage for one level",
	Long: `Builds allocation factors and weights (or reuses cached or prebuilt weights),
reallocates the input statistics, recombines duplicates, resolves names and
writes the result.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		level, err := parseLevel(args[0])
		if err != nil {
			return err
		}
		pc, err := basePipelineConfig(cmd)
		if err != nil {
			return err
		}
		f := pipelineFlags
		pc.Level = level
		pc.Geocorr, pc.Crosswalk, pc.Weights = f.geocorr, f.crosswalk, f.weights
		pc.Input, pc.Output = f.input, f.output
		pc.BadValues, pc.Lookup, pc.Context = f.badValues, f.lookup, f.context
		pc.Bypass, pc.BypassFrom, pc.BypassTo = f.bypass, f.bypassFrom, f.bypassTo

		var opts []pipeline.Option
		if f.useCache {
			st, err := openCache(ctx, "")
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			opts = append(opts, pipeline.WithCache(st))
		}

		res, err := pipeline.New(opts...).Run(ctx, pc)
		if err != nil {
			return eris.Wrap(err, "pipeline")
		}
		if pc.Output != "-" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows written to %s\n", level, res.Rows, pc.Output)
		}
		return nil
	},
}

// basePipelineConfig fills the settings shared by the pipeline and submit
// commands from config and flags.
func basePipelineConfig(cmd *cobra.Command) (pipeline.Config, error) {
	f := pipelineFlags
	s, err := loadSchema(f.schema)
	if err != nil {
		return pipeline.Config{}, err
	}
	pc := pipeline.Config{
		Schema:          s,
		BypassFrom:      f.bypassFrom,
		BypassTo:        f.bypassTo,
		BypassYears:     cfg.Realloc.BypassYears,
		PassThroughFrom: cfg.Realloc.PassThroughFrom,
		MaxGroupSize:    cfg.Dedupe.MaxGroupSize,
		SourceVintage:   cfg.Vintage.Source,
		TargetVintage:   cfg.Vintage.Target,
	}
	if f.bypassYears != "" {
		if pc.BypassYears, err = parseYears(f.bypassYears); err != nil {
			return pipeline.Config{}, err
		}
	}
	if cmd.Flags().Changed("pass-through-from") {
		pc.PassThroughFrom = f.passThrough
	}
	if cmd.Flags().Changed("max-group-size") {
		pc.MaxGroupSize = f.maxGroup
	}
	return pc, nil
}

func init() {
	f := pipelineCmd.Flags()
	f.StringVar(&pipelineFlags.geocorr, "geocorr", "", "block populations or allocation factors")
	f.StringVar(&pipelineFlags.crosswalk, "crosswalk", "", "block-to-block crosswalk")
	f.StringVar(&pipelineFlags.weights, "weights", "", "prebuilt weight file (skips --geocorr and --crosswalk)")
	f.StringVarP(&pipelineFlags.input, "input", "i", "-", "statistics to reallocate (default stdin)")
	f.StringVarP(&pipelineFlags.output, "output", "o", "-", "output file (default stdout)")
	f.StringVar(&pipelineFlags.badValues, "bad-values", "", "GEOID,year,value list of statistics to null")
	f.StringVar(&pipelineFlags.lookup, "lookup", "", "state and county names (GEOID,name)")
	f.StringVar(&pipelineFlags.context, "context", "", "file of GEOID,name,parent-location")
	f.BoolVar(&pipelineFlags.useCache, "cache", false, "read and store weights in the local cache")
	addSharedPipelineFlags(pipelineCmd)
	rootCmd.AddCommand(pipelineCmd)
}

// addSharedPipelineFlags registers the flags read by basePipelineConfig.
func addSharedPipelineFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&pipelineFlags.bypass, "bypass", "", "rename file for the one-to-one bypass path")
	f.StringVar(&pipelineFlags.bypassFrom, "bypass-from", "GEOID00", "source column of the bypass file")
	f.StringVar(&pipelineFlags.bypassTo, "bypass-to", "GEOID10", "target column of the bypass file")
	f.StringVar(&pipelineFlags.bypassYears, "bypass-years", "", "years routed through the bypass (default: from config)")
	f.StringVar(&pipelineFlags.schema, "schema", "", "column classification YAML (default: built-in)")
	f.IntVar(&pipelineFlags.passThrough, "pass-through-from", 0, "first year already in target geography (default: from config)")
	f.IntVar(&pipelineFlags.maxGroup, "max-group-size", 0, "duplicate rows kept per key; 0 keeps all (default: from config)")
}
