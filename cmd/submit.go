package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/crosswalk-cli/internal/jobs"
	"github.com/sells-group/crosswalk-cli/internal/pipeline"
)

var submitUseCache bool

var submitCmd = &cobra.Command{
	Use:   "submit <manifest.yaml>",
	Short: "Run every job of a manifest",
	Long: `Runs the level pipelines listed in a YAML manifest with bounded concurrency.
Block-group jobs hold two memory slots, others one. Each job is retried up to
jobs.max_attempts times; the invalidation webhook is called only after every
job succeeded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m, err := jobs.LoadManifest(args[0])
		if err != nil {
			return err
		}
		base, err := basePipelineConfig(cmd)
		if err != nil {
			return err
		}

		var popts []pipeline.Option
		if submitUseCache {
			st, err := openCache(ctx, "")
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			popts = append(popts, pipeline.WithCache(st))
		}
		p := pipeline.New(popts...)

		var inv jobs.Invalidator = jobs.NopInvalidator{}
		if cfg.Jobs.InvalidateURL != "" {
			inv = jobs.NewWebhookInvalidator(cfg.Jobs.InvalidateURL, cfg.Jobs.InvalidatePath)
		}

		runner := jobs.NewRunner(p.Run,
			jobs.WithConcurrency(cfg.Jobs.Concurrency),
			jobs.WithMaxAttempts(cfg.Jobs.MaxAttempts),
			jobs.WithMemorySlots(cfg.Jobs.MemorySlots),
			jobs.WithBackoff(5*time.Second),
			jobs.WithInvalidator(inv),
		)
		summary, err := runner.Run(ctx, m, base)
		if summary != nil {
			fmt.Fprintln(cmd.OutOrStdout(), summary.Report())
		}
		return err
	},
}

func init() {
	submitCmd.Flags().BoolVar(&submitUseCache, "cache", false, "read and store weights in the local cache")
	addSharedPipelineFlags(submitCmd)
	rootCmd.AddCommand(submitCmd)
}
