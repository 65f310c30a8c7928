package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
)

var cachePath string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local weight cache",
}

var cachePutCmd = &cobra.Command{
	Use:   "put <geography-level> <weights-file>",
	Short: "Store a weight file under the configured vintage pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		level, err := parseLevel(args[0])
		if err != nil {
			return err
		}
		weights, err := crosswalk.ReadWeights(ctx, args[1])
		if err != nil {
			return err
		}

		st, err := openCache(ctx, cachePath)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		info, err := st.Put(ctx, cacheKey(level), weights)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored %s weights for %s (set %s)\n",
			humanize.Comma(int64(info.RowCount)), level, info.ID)
		return nil
	},
}

var cacheGetCmd = &cobra.Command{
	Use:   "get <geography-level>",
	Short: "Write the cached weights of a level to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		level, err := parseLevel(args[0])
		if err != nil {
			return err
		}
		st, err := openCache(ctx, cachePath)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		weights, _, err := st.Get(ctx, cacheKey(level))
		if err != nil {
			return err
		}
		return crosswalk.WriteWeights(cmd.OutOrStdout(), weights)
	},
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached weight sets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openCache(ctx, cachePath)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sets, err := st.List(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(sets) == 0 {
			fmt.Fprintln(out, "No weight sets cached yet")
			return nil
		}

		fmt.Fprintf(out, "%-36s %-13s %-9s %12s %s\n", "ID", "Level", "Vintages", "Rows", "Created")
		fmt.Fprintln(out, strings.Repeat("-", 90))
		for _, s := range sets {
			fmt.Fprintf(out, "%-36s %-13s %4d-%4d %12s %s\n",
				s.ID, s.Key.Level, s.Key.SourceVintage, s.Key.TargetVintage,
				humanize.Comma(int64(s.RowCount)), humanize.Time(s.CreatedAt))
		}
		return nil
	},
}

func init() {
	cacheCmd.PersistentFlags().StringVar(&cachePath, "cache-path", "", "SQLite cache file (default: from config)")
	cacheCmd.AddCommand(cachePutCmd, cacheGetCmd, cacheListCmd)
	rootCmd.AddCommand(cacheCmd)
}
