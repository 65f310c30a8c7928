package main

import (
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/geoid"
	"github.com/sells-group/crosswalk-cli/internal/resilience"
	"github.com/sells-group/crosswalk-cli/internal/table"
	"github.com/sells-group/crosswalk-cli/internal/tiger"
	"github.com/sells-group/crosswalk-cli/pkg/census"
)

var fetchFlags struct {
	year         int
	dataset      string
	variables    string
	years        string
	states       string
	schema       string
	lookupOutput string
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <geography-level>",
	Short: "Download statistics from the Census data API",
	Long: `Fetches one dataset vintage for every geography of a level and writes it as a
statistics table on stdout. Variable codes are renamed through the schema's
variables table; tracts and block groups are fetched county by county.
--years replicates the single vintage into each listed year.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		level, err := parseLevel(args[0])
		if err != nil {
			return err
		}
		if err := cfg.RequireCensusKey(); err != nil {
			return err
		}
		s, err := loadSchema(fetchFlags.schema)
		if err != nil {
			return err
		}

		years := []int{fetchFlags.year}
		if fetchFlags.years != "" {
			if years, err = parseYears(fetchFlags.years); err != nil {
				return err
			}
		}
		variables := s.VariableCodes()
		if fetchFlags.variables != "" {
			variables = splitAndTrim(fetchFlags.variables)
		}
		if len(variables) == 0 {
			return eris.New("fetch: no variables requested and the schema defines none")
		}

		client := census.NewClient(cfg.Census.Key,
			census.WithBaseURL(cfg.Census.BaseURL),
			census.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Census.TimeoutSecs) * time.Second}),
			census.WithRetry(resilience.FixedRetryConfig(cfg.Census.MaxAttempts, time.Duration(cfg.Census.BackoffSecs)*time.Second)),
			census.WithRateLimit(cfg.Census.RatePerSec),
		)
		f := census.NewFetcher(client)

		var counties []string
		if level == geoid.Tracts || level == geoid.BlockGroups || fetchFlags.lookupOutput != "" {
			lookup, err := f.Lookup(ctx, fetchFlags.year, fetchFlags.dataset)
			if err != nil {
				return eris.Wrap(err, "fetch: state and county names")
			}
			if fetchFlags.lookupOutput != "" {
				w, closeFn, err := createOutput(fetchFlags.lookupOutput, cmd.OutOrStdout())
				if err != nil {
					return err
				}
				if err := lookup.WriteCSV(w); err != nil {
					closeFn() //nolint:errcheck
					return err
				}
				if err := closeFn(); err != nil {
					return err
				}
			}
			if counties, err = filterCounties(census.CountyCodes(lookup), fetchFlags.states); err != nil {
				return err
			}
		}

		rows, err := f.Fetch(ctx, level, census.Query{
			Year:      fetchFlags.year,
			Dataset:   fetchFlags.dataset,
			Variables: variables,
		}, counties)
		if err != nil {
			return eris.Wrap(err, "fetch")
		}
		t, err := census.ToTable(level, rows, s, years)
		if err != nil {
			return err
		}
		zap.L().Info("fetched statistics",
			zap.String("level", level.String()),
			zap.Int("geographies", len(rows)),
			zap.Int("records", t.Len()),
		)
		return table.WriteCSV(cmd.OutOrStdout(), t)
	},
}

// filterCounties keeps the counties of the listed states; an empty list
// keeps every county.
func filterCounties(counties []string, states string) ([]string, error) {
	if states == "" {
		return counties, nil
	}
	fips, err := tiger.ResolveStates(splitAndTrim(states))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, c := range counties {
		for _, s := range fips {
			if strings.HasPrefix(c, s) {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func init() {
	f := fetchCmd.Flags()
	f.IntVar(&fetchFlags.year, "year", 2000, "dataset vintage")
	f.StringVar(&fetchFlags.dataset, "dataset", census.DatasetSF1, "dataset path, e.g. dec/sf1, dec/sf3, acs/acs5")
	f.StringVar(&fetchFlags.variables, "variables", "", "comma-separated variable codes (default: schema variables)")
	f.StringVar(&fetchFlags.years, "years", "", "years to assign the vintage to, e.g. 2005-2009 (default: --year)")
	f.StringVar(&fetchFlags.states, "states", "", "comma-separated state abbreviations or FIPS codes for tract and block-group fetches")
	f.StringVar(&fetchFlags.schema, "schema", "", "column classification YAML (default: built-in)")
	f.StringVar(&fetchFlags.lookupOutput, "lookup-output", "", "also write state and county names (GEOID,name) to this file")
	rootCmd.AddCommand(fetchCmd)
}
