// Package dedupe recombines rows that share a (GEOID, year) key into a single
// row. Additive columns are summed and rate columns are averaged by their
// base column.
package dedupe

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/schema"
	"github.com/sells-group/crosswalk-cli/internal/table"
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithSchema sets the column classification.
func WithSchema(s *schema.Schema) Option {
	return func(r *Resolver) { r.schema = s }
}

// WithMaxGroupSize caps the rows recombined per key. Groups larger than n
// keep their n heaviest rows by base value. Zero means no cap.
func WithMaxGroupSize(n int) Option {
	return func(r *Resolver) { r.maxGroupSize = n }
}

// Resolver merges duplicate keys.
type Resolver struct {
	schema       *schema.Schema
	maxGroupSize int
	log          *zap.Logger
}

// New returns a Resolver using the built-in schema unless overridden.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		schema: schema.Default(),
		log:    zap.L().With(zap.String("component", "dedupe")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stats summarizes a resolve pass.
type Stats struct {
	Keys          int
	Merged        int
	DroppedRows   int
	NullRates     int
	MeanFallbacks int
}

// Resolve returns a table with exactly one row per key, in first-seen key
// order. Singleton keys pass through unchanged.
func (r *Resolver) Resolve(in *table.Table) (*table.Table, Stats, error) {
	var stats Stats
	if err := r.schema.Validate(); err != nil {
		return nil, stats, err
	}
	var numeric []string
	for _, c := range in.Columns {
		if r.schema.Numeric(c) {
			numeric = append(numeric, c)
		}
	}
	if err := in.CheckNumeric(numeric); err != nil {
		return nil, stats, eris.Wrap(err, "dedupe: input")
	}

	var order []table.Key
	groups := make(map[table.Key][]table.Record)
	for _, rec := range in.Records {
		k := rec.Key()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], rec)
	}

	out := table.New(in.Columns...)
	for _, k := range order {
		rows := groups[k]
		if len(rows) == 1 {
			out.Append(rows[0].Clone())
			continue
		}
		stats.Merged++
		if r.maxGroupSize > 0 && len(rows) > r.maxGroupSize {
			kept := r.trim(rows)
			dropped := len(rows) - len(kept)
			stats.DroppedRows += dropped
			r.log.Warn("dropped excess duplicate rows",
				zap.String("geoid", k.GEOID),
				zap.Int("year", k.Year),
				zap.Int("rows", len(rows)),
				zap.Int("dropped", dropped),
			)
			rows = kept
		}
		out.Append(r.merge(k, rows, in.Columns, &stats))
	}
	stats.Keys = out.Len()

	r.log.Info("duplicates resolved",
		zap.Int("input", in.Len()),
		zap.Int("keys", stats.Keys),
		zap.Int("merged", stats.Merged),
		zap.Int("dropped_rows", stats.DroppedRows),
		zap.Int("null_rates", stats.NullRates),
		zap.Int("mean_fallbacks", stats.MeanFallbacks),
	)
	return out, stats, nil
}

// trim keeps the maxGroupSize rows with the largest default base value.
// Ties keep the earlier row. Kept rows retain their original order.
func (r *Resolver) trim(rows []table.Record) []table.Record {
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	weight := func(i int) float64 {
		v := rows[i].Get(r.schema.DefaultBase)
		if !v.Valid {
			return -1
		}
		return v.Float
	}
	sort.SliceStable(idx, func(a, b int) bool { return weight(idx[a]) > weight(idx[b]) })
	keep := idx[:r.maxGroupSize]
	sort.Ints(keep)

	out := make([]table.Record, 0, len(keep))
	for _, i := range keep {
		out = append(out, rows[i])
	}
	return out
}

func (r *Resolver) merge(k table.Key, rows []table.Record, columns []string, stats *Stats) table.Record {
	out := table.Record{GEOID: k.GEOID, Year: k.Year, Values: make(map[string]table.Value, len(columns))}
	for _, rec := range rows {
		if out.Name == "" {
			out.Name = rec.Name
		}
		if out.ParentLocation == "" {
			out.ParentLocation = rec.ParentLocation
		}
	}

	// Rates read the group's bases before they are summed.
	for _, c := range columns {
		switch r.schema.KindOf(c) {
		case schema.Count, schema.Base:
			out.Values[c] = sum(rows, c)
		case schema.Rate:
			out.Values[c] = r.weightedRate(k, rows, c, stats)
		default:
			out.Values[c] = firstValid(rows, c)
		}
	}
	return out
}

func (r *Resolver) weightedRate(k table.Key, rows []table.Record, c string, stats *Stats) table.Value {
	base := r.schema.BaseOf(c)
	var num, den float64
	var rates []float64
	for _, rec := range rows {
		v := rec.Get(c)
		if !v.Valid {
			stats.NullRates++
			continue
		}
		rates = append(rates, v.Float)
		b := rec.Get(base)
		if !b.Valid {
			continue
		}
		num += v.Float * b.Float
		den += b.Float
	}
	if len(rates) == 0 {
		return table.Null()
	}
	if den != 0 {
		return table.Of(num / den)
	}

	if identical(rates) {
		return table.Of(rates[0])
	}
	var total float64
	for _, v := range rates {
		total += v
	}
	stats.MeanFallbacks++
	r.log.Warn("no usable base for conflicting rates, using arithmetic mean",
		zap.String("geoid", k.GEOID),
		zap.Int("year", k.Year),
		zap.String("column", c),
		zap.String("base", base),
		zap.Float64s("values", rates),
	)
	return table.Of(total / float64(len(rates)))
}

func sum(rows []table.Record, c string) table.Value {
	var total float64
	var valid bool
	for _, rec := range rows {
		if v := rec.Get(c); v.Valid {
			total += v.Float
			valid = true
		}
	}
	if !valid {
		return table.Null()
	}
	return table.Of(total)
}

func firstValid(rows []table.Record, c string) table.Value {
	for _, rec := range rows {
		if v := rec.Get(c); !v.IsNull() {
			return v
		}
	}
	return table.Null()
}

func identical(vs []float64) bool {
	for _, v := range vs[1:] {
		if v != vs[0] {
			return false
		}
	}
	return true
}
