package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/crosswalk-cli/internal/derive"
	"github.com/sells-group/crosswalk-cli/internal/table"
)

var deriveSchema string

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Compute published percentages from recombined counts",
	Long: `Reads statistics on stdin, adds the derived percentages declared by the
schema and writes the published column layout on stdout. A null or zero
denominator gives 0.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := loadSchema(deriveSchema)
		if err != nil {
			return err
		}
		in, err := table.ReadFile(cmd.Context(), "-", table.WithNumericColumns(s.Numeric))
		if err != nil {
			return err
		}
		out, _, err := derive.New(s).Apply(in)
		if err != nil {
			return err
		}
		return table.WriteCSV(cmd.OutOrStdout(), out)
	},
}

func init() {
	deriveCmd.Flags().StringVar(&deriveSchema, "schema", "", "column classification YAML (default: built-in)")
	rootCmd.AddCommand(deriveCmd)
}
