package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/crosswalk-cli/internal/names"
	"github.com/sells-group/crosswalk-cli/internal/table"
)

var namesContext string

var namesCmd = &cobra.Command{
	Use:   "names <geography-level> [lookup-file]",
	Short: "Assign display names and parent locations",
	Long: `Reads statistics on stdin and writes them on stdout with a formatted name and
a parent-location label. Parents are kept from the record, then taken from
--context, then synthesized from the state and county names in the lookup
file (GEOID,name).`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		level, err := parseLevel(args[0])
		if err != nil {
			return err
		}

		var lookup *names.Lookup
		if len(args) == 2 {
			if lookup, err = names.ReadLookup(ctx, args[1]); err != nil {
				return err
			}
		}
		var known map[string]table.Context
		if namesContext != "" {
			if known, err = names.ReadContext(ctx, namesContext); err != nil {
				return err
			}
		}

		t, err := table.ReadFile(ctx, "-")
		if err != nil {
			return err
		}
		if _, err := names.NewResolver(level, lookup).Resolve(t, known); err != nil {
			return err
		}
		return table.WriteCSV(cmd.OutOrStdout(), t)
	},
}

func init() {
	namesCmd.Flags().StringVar(&namesContext, "context", "", "file of GEOID,name,parent-location used before the lookup")
	rootCmd.AddCommand(namesCmd)
}
