package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crosswalk-cli/internal/allocation"
)

var afactsOutput string

var afactsCmd = &cobra.Command{
	Use:   "afacts <geography-level> <geocorr-file>",
	Short: "Build block allocation factors",
	Long: `Reads block populations from a geocorr export (county, tract, block, pop2k) and
writes each block's share of its tract or block-group population as
GEOID,GEOID00,pop2k,afact.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseLevel(args[0])
		if err != nil {
			return err
		}
		if err := allocation.CheckLevel(level); err != nil {
			return err
		}

		blocks, err := allocation.ReadGeocorr(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		factors, err := allocation.Build(level, blocks)
		if err != nil {
			return eris.Wrap(err, "afacts")
		}

		w, closeFn, err := createOutput(afactsOutput, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if err := allocation.WriteFactors(w, factors); err != nil {
			closeFn() //nolint:errcheck
			return err
		}
		return closeFn()
	},
}

func init() {
	afactsCmd.Flags().StringVarP(&afactsOutput, "output", "o", "-", "output file (default stdout)")
	rootCmd.AddCommand(afactsCmd)
}
