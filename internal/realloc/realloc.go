// Package realloc applies crosswalk weights to yearly statistics, moving them
// from source-vintage geography onto target-vintage geography.
package realloc

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/geoid"
	"github.com/sells-group/crosswalk-cli/internal/schema"
	"github.com/sells-group/crosswalk-cli/internal/table"
)

// Bypass routes records of the listed years whose GEOID appears in Renames
// around the weighting step. Those records are renamed one-to-one instead.
type Bypass struct {
	Years   []int
	Renames *crosswalk.RenameTable
}

func (b *Bypass) applies(r table.Record) bool {
	if b == nil || b.Renames.Len() == 0 {
		return false
	}
	for _, y := range b.Years {
		if y == r.Year {
			return b.Renames.Has(r.GEOID)
		}
	}
	return false
}

// Option configures a Reallocator.
type Option func(*Reallocator)

// WithSchema sets the column classification. The built-in schema is used
// otherwise.
func WithSchema(s *schema.Schema) Option {
	return func(r *Reallocator) { r.schema = s }
}

// WithBypass enables the explicit one-to-one rename path.
func WithBypass(b Bypass) Option {
	return func(r *Reallocator) { r.bypass = &b }
}

// WithPassThroughFrom carries records from year onward unchanged; they are
// already expressed in target geography. Zero disables pass-through.
func WithPassThroughFrom(year int) Option {
	return func(r *Reallocator) { r.passThroughFrom = year }
}

// WithCorrections renames target-vintage identifiers on carried records.
// Weighted records already land on target identifiers, so corrections apply
// to pass-through and bypass rows only.
func WithCorrections(renames *crosswalk.RenameTable) Option {
	return func(r *Reallocator) { r.corrections = renames }
}

// Reallocator moves statistics across a geography vintage change.
type Reallocator struct {
	bySource        map[string][]crosswalk.Weight
	schema          *schema.Schema
	bypass          *Bypass
	corrections     *crosswalk.RenameTable
	passThroughFrom int
	log             *zap.Logger
}

// New builds a Reallocator from crosswalk weights.
func New(weights []crosswalk.Weight, opts ...Option) *Reallocator {
	r := &Reallocator{
		bySource: crosswalk.BySource(weights),
		schema:   schema.Default(),
		log:      zap.L().With(zap.String("component", "realloc")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stats counts how records were routed.
type Stats struct {
	Weighted      int
	Unmatched     int
	PassedThrough int
	Bypassed      int
	Corrected     int
	ZeroFilled    int
	Output        int
}

// Result is the reallocated table plus the context derived along the way.
type Result struct {
	Table   *table.Table
	Context map[string]table.Context
	Stats   Stats
}

type accumulator struct {
	sums   map[string]float64
	valid  map[string]bool
	weight map[string]float64 // RATE only: sum of rate weights of non-null contributions
}

// Reallocate applies the weights to every record. COUNT and BASE columns are
// scaled by count weight and summed; RATE columns are averaged by rate
// weight over non-null contributions; OTHER columns are dropped. Output rows
// are sorted by GEOID then year and may still contain duplicate keys where a
// weighted row and a pass-through or bypass row coincide.
func (r *Reallocator) Reallocate(in *table.Table) (*Result, error) {
	if err := r.schema.Validate(); err != nil {
		return nil, err
	}
	columns, dropped := r.outputColumns(in.Columns)
	if len(dropped) > 0 {
		r.log.Warn("unclassified or other columns are not reallocated and were dropped", zap.Strings("columns", dropped))
	}
	if err := in.CheckNumeric(columns); err != nil {
		return nil, eris.Wrap(err, "realloc: input")
	}

	res := &Result{Context: make(map[string]table.Context)}
	stats := table.JoinStats{Label: "weights <- data"}

	var order []table.Key
	accs := make(map[table.Key]*accumulator)
	var carried []table.Record

	for _, rec := range in.Records {
		switch {
		case r.passThroughFrom > 0 && rec.Year >= r.passThroughFrom:
			carried = append(carried, rec.Clone())
			res.Stats.PassedThrough++
			continue
		case r.bypass.applies(rec):
			carried = append(carried, r.rename(rec))
			res.Stats.Bypassed++
			continue
		}

		weights := r.bySource[rec.GEOID]
		stats.Add(rec.GEOID, len(weights) > 0)
		if len(weights) == 0 {
			res.Stats.Unmatched++
			continue
		}
		res.Stats.Weighted++

		for _, w := range weights {
			key := table.Key{GEOID: w.Target, Year: rec.Year}
			acc, ok := accs[key]
			if !ok {
				acc = &accumulator{sums: map[string]float64{}, valid: map[string]bool{}, weight: map[string]float64{}}
				accs[key] = acc
				order = append(order, key)
			}
			r.accumulate(acc, rec, w, columns)

			if _, seen := res.Context[w.Target]; !seen && hasContext(rec) && geoid.County(rec.GEOID) == geoid.County(w.Target) {
				res.Context[w.Target] = table.Context{Name: rec.Name, ParentLocation: rec.ParentLocation}
			}
		}
	}
	stats.Log(r.log)

	out := table.New(columns...)
	for _, key := range order {
		rec, zeroFilled := r.finish(key, accs[key], columns)
		res.Stats.ZeroFilled += zeroFilled
		out.Append(rec)
	}
	if res.Stats.ZeroFilled > 0 {
		r.log.Warn("rate columns with zero total rate weight were zero-filled", zap.Int("values", res.Stats.ZeroFilled))
	}

	if r.corrections.Len() > 0 {
		ct := &table.Table{Records: carried}
		res.Stats.Corrected = ApplyRenames(ct, r.corrections)
		carried = ct.Records
	}
	for _, rec := range carried {
		if _, seen := res.Context[rec.GEOID]; !seen && hasContext(rec) {
			res.Context[rec.GEOID] = table.Context{Name: rec.Name, ParentLocation: rec.ParentLocation}
		}
	}
	out.Append(carried...)

	applyContext(out, res.Context)
	out.Sort()

	res.Table = out
	res.Stats.Output = out.Len()
	r.log.Info("reallocation complete",
		zap.Int("weighted", res.Stats.Weighted),
		zap.Int("unmatched", res.Stats.Unmatched),
		zap.Int("passed_through", res.Stats.PassedThrough),
		zap.Int("bypassed", res.Stats.Bypassed),
		zap.Int("corrected", res.Stats.Corrected),
		zap.Int("output", res.Stats.Output),
	)
	return res, nil
}

func (r *Reallocator) outputColumns(in []string) (keep, dropped []string) {
	for _, c := range in {
		if r.schema.KindOf(c) == schema.Other {
			dropped = append(dropped, c)
			continue
		}
		keep = append(keep, c)
	}
	return keep, dropped
}

func (r *Reallocator) accumulate(acc *accumulator, rec table.Record, w crosswalk.Weight, columns []string) {
	for _, c := range columns {
		v := rec.Get(c)
		if !v.Valid {
			continue
		}
		switch r.schema.KindOf(c) {
		case schema.Count, schema.Base:
			acc.sums[c] += v.Float * w.CountWeight
		case schema.Rate:
			acc.sums[c] += v.Float * w.RateWeight
			acc.weight[c] += w.RateWeight
		}
		acc.valid[c] = true
	}
}

func (r *Reallocator) finish(key table.Key, acc *accumulator, columns []string) (table.Record, int) {
	rec := table.Record{GEOID: key.GEOID, Year: key.Year, Values: make(map[string]table.Value, len(columns))}
	var zeroFilled int
	for _, c := range columns {
		if !acc.valid[c] {
			rec.Values[c] = table.Null()
			continue
		}
		if r.schema.KindOf(c) != schema.Rate {
			rec.Values[c] = table.Of(acc.sums[c])
			continue
		}
		if acc.weight[c] == 0 {
			rec.Values[c] = table.Of(0)
			zeroFilled++
			continue
		}
		rec.Values[c] = table.Of(acc.sums[c] / acc.weight[c])
	}
	return rec, zeroFilled
}

// rename applies the bypass rename. Context is cleared unless the rename
// supplies it, because the old name describes the old geography.
func (r *Reallocator) rename(rec table.Record) table.Record {
	out := rec.Clone()
	ren, _ := r.bypass.Renames.Lookup(rec.GEOID)
	out.GEOID = ren.To
	out.Name = ren.Name
	out.ParentLocation = ren.ParentLocation
	return out
}

func hasContext(r table.Record) bool {
	return r.Name != "" || r.ParentLocation != ""
}

func applyContext(t *table.Table, ctx map[string]table.Context) {
	for i := range t.Records {
		c, ok := ctx[t.Records[i].GEOID]
		if !ok {
			continue
		}
		if t.Records[i].Name == "" {
			t.Records[i].Name = c.Name
		}
		if t.Records[i].ParentLocation == "" {
			t.Records[i].ParentLocation = c.ParentLocation
		}
	}
}
