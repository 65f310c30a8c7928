package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/crosswalk-cli/internal/dedupe"
	"github.com/sells-group/crosswalk-cli/internal/table"
)

var (
	dedupeMaxGroup int
	dedupeSchema   string
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Recombine rows sharing a GEOID and year",
	Long: `Reads statistics on stdin and writes exactly one row per (GEOID, year) on
stdout. COUNT and BASE columns are summed; RATE columns are averaged weighted
by their base.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := loadSchema(dedupeSchema)
		if err != nil {
			return err
		}
		maxGroup := cfg.Dedupe.MaxGroupSize
		if cmd.Flags().Changed("max-group-size") {
			maxGroup = dedupeMaxGroup
		}

		in, err := table.ReadFile(cmd.Context(), "-", table.WithNumericColumns(s.Numeric))
		if err != nil {
			return err
		}
		out, _, err := dedupe.New(dedupe.WithSchema(s), dedupe.WithMaxGroupSize(maxGroup)).Resolve(in)
		if err != nil {
			return err
		}
		return table.WriteCSV(cmd.OutOrStdout(), out)
	},
}

func init() {
	dedupeCmd.Flags().IntVar(&dedupeMaxGroup, "max-group-size", 0, "keep at most this many rows per key, heaviest first; 0 keeps all (default: from config)")
	dedupeCmd.Flags().StringVar(&dedupeSchema, "schema", "", "column classification YAML (default: built-in)")
	rootCmd.AddCommand(dedupeCmd)
}
