package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crosswalk-cli/internal/allocation"
	"github.com/sells-group/crosswalk-cli/internal/fetcher"
	"github.com/sells-group/crosswalk-cli/internal/resilience"
	"github.com/sells-group/crosswalk-cli/internal/tiger"
)

var downloadCmd = &cobra.Command{
	Use:   "download <url> [dest]",
	Short: "Download a correspondence or population file over HTTP or FTP",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dest := filepath.Base(args[0])
		if len(args) == 2 {
			dest = args[1]
		}
		n, err := newFetcher().DownloadToFile(ctx, args[0], dest)
		if err != nil {
			return eris.Wrap(err, "download")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", dest, humanize.Bytes(uint64(n)))
		return nil
	},
}

var (
	blocksStates      string
	blocksTempDir     string
	blocksConcurrency int
	blocksOutput      string
)

var downloadBlocksCmd = &cobra.Command{
	Use:   "blocks <geography-level>",
	Short: "Build allocation factors from TIGER block population shapefiles",
	Long: `Downloads the 2010 TIGER/Line tabulation block population shapefile of each
state, reads block populations from its attribute table and writes allocation
factors for the level.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		level, err := parseLevel(args[0])
		if err != nil {
			return err
		}
		if err := allocation.CheckLevel(level); err != nil {
			return err
		}

		blocks, err := tiger.LoadBlockPopulations(ctx, newFetcher(), tiger.LoadOptions{
			States:      splitAndTrim(blocksStates),
			TempDir:     blocksTempDir,
			Concurrency: blocksConcurrency,
		})
		if err != nil {
			return err
		}
		factors, err := allocation.Build(level, blocks)
		if err != nil {
			return err
		}

		w, closeFn, err := createOutput(blocksOutput, cmd.OutOrStdout())
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

// newFetcher builds the HTTP and FTP downloader from config.
func newFetcher() *fetcher.Multi {
	timeout := time.Duration(cfg.Fetch.TimeoutSecs) * time.Second
	return &fetcher.Multi{
		HTTP: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  cfg.Fetch.UserAgent,
			Timeout:    timeout,
			RatePerSec: cfg.Fetch.RatePerSec,
			Retry:      resilience.DefaultRetryConfig(),
		}),
		FTP: fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout}),
	}
}

func init() {
	f := downloadBlocksCmd.Flags()
	f.StringVar(&blocksStates, "states", "", "comma-separated state abbreviations or FIPS codes (default: all 50 + DC)")
	f.StringVar(&blocksTempDir, "temp-dir", "", "download directory (default /tmp/tiger)")
	f.IntVar(&blocksConcurrency, "concurrency", 3, "parallel state downloads")
	f.StringVarP(&blocksOutput, "output", "o", "-", "output file (default stdout)")
	downloadCmd.AddCommand(downloadBlocksCmd)
	rootCmd.AddCommand(downloadCmd)
}
