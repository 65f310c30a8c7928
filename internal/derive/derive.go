// Package derive computes published percentages from recombined counts and
// projects a table onto the published column layout.
package derive

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/schema"
	"github.com/sells-group/crosswalk-cli/internal/table"
)

// Stats summarizes a derive pass.
type Stats struct {
	Records          int
	Derived          int
	Missing          []string
	ZeroDenominators int
}

// Deriver applies a schema's derived columns and output layout.
type Deriver struct {
	schema *schema.Schema
	log    *zap.Logger
}

// New returns a Deriver for s.
func New(s *schema.Schema) *Deriver {
	return &Deriver{
		schema: s,
		log:    zap.L().With(zap.String("component", "derive")),
	}
}

// Apply returns a copy of in with every derived column computed. A derived
// value is Numerator / Denominator * Factor. A null or non-positive
// denominator gives 0 and a null numerator gives null. Derived columns whose
// inputs are absent from the table are null throughout. When the schema
// declares an output layout the table is projected onto it, and numbers are
// rounded when it declares a precision.
func (d *Deriver) Apply(in *table.Table) (*table.Table, Stats, error) {
	var stats Stats
	if err := d.schema.Validate(); err != nil {
		return nil, stats, err
	}

	out := table.New(in.Columns...)
	for _, rec := range in.Records {
		out.Append(rec.Clone())
	}

	for _, def := range d.schema.Derived {
		den := def.Denominator
		if !in.HasColumn(den) && def.Fallback != "" {
			den = def.Fallback
		}
		if !out.HasColumn(def.Name) {
			out.Columns = append(out.Columns, def.Name)
		}
		if !in.HasColumn(def.Numerator) || !in.HasColumn(den) {
			stats.Missing = append(stats.Missing, def.Name)
			for i := range out.Records {
				out.Records[i].Values[def.Name] = table.Null()
			}
			continue
		}
		if err := in.CheckNumeric([]string{def.Numerator, den}); err != nil {
			return nil, stats, eris.Wrapf(err, "derive: %s", def.Name)
		}

		stats.Derived++
		for i := range out.Records {
			rec := &out.Records[i]
			n, dv := rec.Get(def.Numerator), rec.Get(den)
			switch {
			case !dv.Valid || dv.Float <= 0:
				rec.Values[def.Name] = table.Of(0)
				stats.ZeroDenominators++
			case !n.Valid:
				rec.Values[def.Name] = table.Null()
			default:
				rec.Values[def.Name] = table.Of(n.Float / dv.Float * def.Factor())
			}
		}
	}
	if len(stats.Missing) > 0 {
		d.log.Warn("derived columns without inputs are null", zap.Strings("columns", stats.Missing))
	}

	if len(d.schema.Output) > 0 {
		project(out, d.schema.Output)
	}
	if d.schema.Round != nil {
		round(out, *d.schema.Round)
	}

	stats.Records = out.Len()
	d.log.Info("derived columns computed",
		zap.Int("records", stats.Records),
		zap.Int("derived", stats.Derived),
		zap.Int("zero_denominators", stats.ZeroDenominators),
	)
	return out, stats, nil
}

// project keeps exactly columns, in order. Columns the table lacks are null.
func project(t *table.Table, columns []string) {
	keep := make(map[string]bool, len(columns))
	for _, c := range columns {
		keep[c] = true
	}
	for i := range t.Records {
		vals := make(map[string]table.Value, len(columns))
		for c, v := range t.Records[i].Values {
			if keep[c] {
				vals[c] = v
			}
		}
		t.Records[i].Values = vals
	}
	t.Columns = append([]string(nil), columns...)
}

// round rounds half to even, matching the published files.
func round(t *table.Table, places int) {
	p := math.Pow(10, float64(places))
	for i := range t.Records {
		for c, v := range t.Records[i].Values {
			if v.Valid {
				t.Records[i].Values[c] = table.Of(math.RoundToEven(v.Float*p) / p)
			}
		}
	}
}
