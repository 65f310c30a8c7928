package census

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crosswalk-cli/internal/geoid"
	"github.com/sells-group/crosswalk-cli/internal/names"
	"github.com/sells-group/crosswalk-cli/internal/schema"
	"github.com/sells-group/crosswalk-cli/internal/table"
)

// ExcludedState is never fetched; Puerto Rico is outside the published data.
const ExcludedState = "72"

// annotationFloor is the largest of the negative sentinel values the API
// writes in place of a missing estimate (-222222222, -666666666, ...).
const annotationFloor = -222222222

// concurrentCounties bounds in-flight requests when a level is fetched
// county by county.
const concurrentCounties = 4

// Clause returns the for/in geography clause that selects every unit of
// level within a state and county. State and county may be empty for levels
// that are fetched nationally.
func Clause(level geoid.Level, state, county string) (forClause, inClause string, err error) {
	switch level {
	case geoid.States:
		return "state:*", "", nil
	case geoid.Counties:
		return "county:*", "state:*", nil
	case geoid.Cities:
		return "place:*", "state:*", nil
	case geoid.Tracts, geoid.BlockGroups:
		if state == "" || county == "" {
			return "", "", eris.Errorf("census: %s require a state and county", level)
		}
		unit := "tract:*"
		if level == geoid.BlockGroups {
			unit = "block group:*"
		}
		return unit, "state:" + state + " county:" + county, nil
	default:
		return "", "", eris.Errorf("census: level %s cannot be fetched", level)
	}
}

// ComposeGEOID builds the zero-padded identifier of a result row.
func ComposeGEOID(level geoid.Level, r Row) string {
	state := geoid.Pad(r["state"], geoid.StateWidth)
	switch level {
	case geoid.States:
		return state
	case geoid.Counties:
		return geoid.CombineCounty(r["state"], r["county"])
	case geoid.Cities:
		return state + geoid.Pad(r["place"], 5)
	case geoid.Tracts:
		return geoid.CombineCounty(r["state"], r["county"]) + geoid.Pad(r["tract"], geoid.TractWidth)
	case geoid.BlockGroups:
		return geoid.CombineCounty(r["state"], r["county"]) + geoid.Pad(r["tract"], geoid.TractWidth) + r["block group"]
	}
	return ""
}

// Fetcher pulls one dataset for a whole geography level.
type Fetcher struct {
	client Client
	log    *zap.Logger
}

// NewFetcher wraps a client.
func NewFetcher(c Client) *Fetcher {
	return &Fetcher{client: c, log: zap.L().With(zap.String("component", "census"))}
}

// Lookup fetches state and county names for year and dataset.
func (f *Fetcher) Lookup(ctx context.Context, year int, dataset string) (*names.Lookup, error) {
	stateRows, err := f.client.Get(ctx, Query{Year: year, Dataset: dataset, Variables: []string{"NAME"}, For: "state:*"})
	if err != nil {
		return nil, err
	}
	countyRows, err := f.client.Get(ctx, Query{Year: year, Dataset: dataset, Variables: []string{"NAME"}, For: "county:*", In: "state:*"})
	if err != nil {
		return nil, err
	}

	states := make(map[string]string, len(stateRows))
	for _, r := range stateRows {
		if r["state"] != ExcludedState {
			states[r["state"]] = r["NAME"]
		}
	}
	counties := make(map[string]string, len(countyRows))
	for _, r := range countyRows {
		if r["state"] != ExcludedState {
			counties[geoid.CombineCounty(r["state"], r["county"])] = r["NAME"]
		}
	}
	return names.NewLookup(states, counties), nil
}

// Fetch returns every row of level for the query's year, dataset and
// variables. Tracts and block groups are fetched county by county over the
// given five-digit county codes.
func (f *Fetcher) Fetch(ctx context.Context, level geoid.Level, q Query, counties []string) ([]Row, error) {
	if level != geoid.Tracts && level != geoid.BlockGroups {
		forClause, inClause, err := Clause(level, "", "")
		if err != nil {
			return nil, err
		}
		q.For, q.In = forClause, inClause
		return f.client.Get(ctx, q)
	}

	for _, c := range counties {
		if len(c) != geoid.Counties.Len() {
			return nil, eris.Errorf("census: county %q must be %d digits", c, geoid.Counties.Len())
		}
	}

	results := make([][]Row, len(counties))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrentCounties)
	for i, c := range counties {
		g.Go(func() error {
			forClause, inClause, err := Clause(level, c[:geoid.StateWidth], c[geoid.StateWidth:])
			if err != nil {
				return err
			}
			cq := q
			cq.For, cq.In = forClause, inClause
			rows, err := f.client.Get(gctx, cq)
			if err != nil {
				return err
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Row
	for _, rows := range results {
		out = append(out, rows...)
	}
	f.log.Info("fetched level",
		zap.String("level", level.String()),
		zap.Int("year", q.Year),
		zap.Int("counties", len(counties)),
		zap.Int("rows", len(out)),
	)
	return out, nil
}

// CountyCodes returns the sorted county codes in l outside the excluded state.
func CountyCodes(l *names.Lookup) []string {
	var out []string
	for _, c := range l.Counties() {
		if geoid.State(c) != ExcludedState {
			out = append(out, c)
		}
	}
	return out
}

// ToTable converts API rows into a statistics table, renaming variable codes
// through s and replicating every row into each of years. Rows in the
// excluded state are dropped and annotation sentinels become null.
func ToTable(level geoid.Level, rows []Row, s *schema.Schema, years []int) (*table.Table, error) {
	if len(years) == 0 {
		return nil, eris.New("census: no years to assign")
	}
	geoKeys := map[string]bool{"state": true, "county": true, "place": true, "tract": true, "block group": true}

	colSet := make(map[string]bool)
	var columns []string
	for _, r := range rows {
		for code := range r {
			name := s.Rename(code)
			if geoKeys[code] || name == table.ColName || colSet[name] {
				continue
			}
			colSet[name] = true
			columns = append(columns, name)
		}
	}
	sort.Strings(columns)

	base := make([]table.Record, 0, len(rows))
	for _, r := range rows {
		if r["state"] == ExcludedState {
			continue
		}
		id := ComposeGEOID(level, r)
		if err := geoid.Validate(id, level); err != nil {
			return nil, eris.Wrap(err, "census: compose GEOID")
		}
		rec := table.Record{GEOID: id, Values: make(map[string]table.Value, len(columns))}
		for code, raw := range r {
			if geoKeys[code] {
				continue
			}
			name := s.Rename(code)
			if name == table.ColName {
				rec.Name = strings.TrimSpace(raw)
				continue
			}
			v, err := table.ParseValue(raw)
			if err != nil {
				return nil, eris.Wrapf(err, "census: %s %s", id, code)
			}
			if v.Valid && v.Float <= annotationFloor {
				v = table.Null()
			}
			rec.Values[name] = v
		}
		base = append(base, rec)
	}

	out := table.New(columns...)
	for _, y := range years {
		for _, rec := range base {
			c := rec.Clone()
			c.Year = y
			out.Append(c)
		}
	}
	return out, nil
}

// YearRange returns the years from first to last inclusive.
func YearRange(first, last int) []int {
	var out []int
	for y := first; y <= last; y++ {
		out = append(out, y)
	}
	return out
}
