package db

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/table"
)

const defaultBatchSize = 50_000

// StatisticColumns are the long-format columns written for every value.
var StatisticColumns = []string{"geoid", "year", "variable", "value", "name", "parent_location"}

// StatisticKeys identify one loaded value.
var StatisticKeys = []string{"geoid", "year", "variable"}

// LoadOptions configures a statistics load.
type LoadOptions struct {
	Table     string // target table, default "demographics"
	BatchSize int    // rows per transaction, default 50,000
	Append    bool   // COPY without conflict handling into an empty table
}

// Migrate creates the long-format statistics table if it does not exist.
func Migrate(ctx context.Context, pool Pool, tableName string) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	geoid           TEXT NOT NULL,
	year            INTEGER NOT NULL,
	variable        TEXT NOT NULL,
	value           DOUBLE PRECISION,
	name            TEXT,
	parent_location TEXT,
	loaded_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (geoid, year, variable)
)`, sanitizeTable(tableName))
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return eris.Wrapf(err, "db: migrate %s", tableName)
	}
	return nil
}

// LongRows flattens a statistics table into one row per (GEOID, year,
// variable). Null values load as SQL NULL.
func LongRows(t *table.Table) [][]any {
	rows := make([][]any, 0, t.Len()*len(t.Columns))
	for _, r := range t.Records {
		for _, c := range t.Columns {
			var value any
			if v := r.Get(c); v.Valid {
				value = v.Float
			}
			rows = append(rows, []any{r.GEOID, r.Year, c, value, r.Name, r.ParentLocation})
		}
	}
	return rows
}

// LoadStatistics writes t to Postgres in batches and returns the number of
// rows inserted or updated.
func LoadStatistics(ctx context.Context, pool Pool, t *table.Table, opts LoadOptions) (int64, error) {
	if opts.Table == "" {
		opts.Table = "demographics"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	log := zap.L().With(zap.String("component", "db.load"), zap.String("table", opts.Table))

	rows := LongRows(t)
	var total int64
	for start := 0; start < len(rows); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(rows))
		batch := rows[start:end]

		var n int64
		var err error
		if opts.Append {
			n, err = CopyFrom(ctx, pool, opts.Table, StatisticColumns, batch)
		} else {
			n, err = BulkUpsert(ctx, pool, UpsertConfig{
				Table:        opts.Table,
				Columns:      StatisticColumns,
				ConflictKeys: StatisticKeys,
			}, batch)
		}
		if err != nil {
			return total, eris.Wrapf(err, "db: load batch at row %d", start)
		}
		total += n
		log.Debug("batch loaded", zap.Int("start", start), zap.Int64("rows", n))
	}

	log.Info("statistics loaded", zap.Int("records", t.Len()), zap.Int64("rows", total))
	return total, nil
}
