package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/db"
	"github.com/sells-group/crosswalk-cli/internal/table"
)

var (
	loadTable     string
	loadBatchSize int
	loadAppend    bool
)

var loadCmd = &cobra.Command{
	Use:   "load [statistics-file]",
	Short: "Load reallocated statistics into Postgres",
	Long: `Upserts a statistics table (stdin by default) into the long-format
<table>(geoid, year, variable, value, name, parent_location), creating the
table if needed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.RequireDatabaseURL(); err != nil {
			return err
		}
		path := "-"
		if len(args) == 1 {
			path = args[0]
		}
		t, err := table.ReadFile(ctx, path)
		if err != nil {
			return err
		}

		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		tableName := loadTable
		if tableName == "" {
			tableName = cfg.Store.Table
		}
		if err := db.Migrate(ctx, pool, tableName); err != nil {
			return eris.Wrap(err, "load: migrate")
		}

		n, err := db.LoadStatistics(ctx, pool, t, db.LoadOptions{
			Table:     tableName,
			BatchSize: loadBatchSize,
			Append:    loadAppend,
		})
		if err != nil {
			return err
		}
		zap.L().Info("statistics loaded", zap.String("table", tableName), zap.Int64("rows", n))
		fmt.Fprintf(cmd.OutOrStdout(), "%s rows loaded into %s\n", humanize.Comma(n), tableName)
		return nil
	},
}

func init() {
	loadCmd.Flags().StringVar(&loadTable, "table", "", "target table (default: from config)")
	loadCmd.Flags().IntVar(&loadBatchSize, "batch-size", 0, "rows per transaction (default 50,000)")
	loadCmd.Flags().BoolVar(&loadAppend, "append", false, "COPY without conflict handling")
	rootCmd.AddCommand(loadCmd)
}
