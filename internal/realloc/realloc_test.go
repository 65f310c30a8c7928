package realloc

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/fetcher"
	"github.com/sells-group/crosswalk-cli/internal/schema"
	"github.com/sells-group/crosswalk-cli/internal/table"
)

func testSchema() *schema.Schema {
	return &schema.Schema{
		DefaultBase: "population",
		Columns: map[string]schema.Column{
			"population": {Kind: schema.Base},
			"renters":    {Kind: schema.Count},
			"income":     {Kind: schema.Rate},
			"notes":      {Kind: schema.Other},
		},
	}
}

func rec(id string, year int, vals map[string]float64) table.Record {
	r := table.Record{GEOID: id, Year: year, Values: map[string]table.Value{}}
	for k, v := range vals {
		r.Values[k] = table.Of(v)
	}
	return r
}

func find(t *testing.T, tbl *table.Table, id string, year int) table.Record {
	t.Helper()
	for _, r := range tbl.Records {
		if r.GEOID == id && r.Year == year {
			return r
		}
	}
	t.Fatalf("no record for %s/%d", id, year)
	return table.Record{}
}

func TestReallocateSplit(t *testing.T) {
	weights := []crosswalk.Weight{
		{Source: "01001020100", Target: "01001020101", CountWeight: 0.6, RateWeight: 1},
		{Source: "01001020100", Target: "01001020102", CountWeight: 0.4, RateWeight: 1},
	}
	in := table.New("population", "income")
	in.Append(rec("01001020100", 2000, map[string]float64{"population": 100, "income": 50}))

	res, err := New(weights, WithSchema(testSchema())).Reallocate(in)
	require.NoError(t, err)
	require.Equal(t, 2, res.Table.Len())

	t1 := find(t, res.Table, "01001020101", 2000)
	t2 := find(t, res.Table, "01001020102", 2000)
	assert.InDelta(t, 60, t1.Get("population").Float, 1e-9)
	assert.InDelta(t, 40, t2.Get("population").Float, 1e-9)
	assert.InDelta(t, 50, t1.Get("income").Float, 1e-9)
	assert.InDelta(t, 50, t2.Get("income").Float, 1e-9)
	assert.Equal(t, 1, res.Stats.Weighted)
}

func TestReallocateMergeRates(t *testing.T) {
	weights := []crosswalk.Weight{
		{Source: "01001020100", Target: "01001029900", CountWeight: 1, RateWeight: 0.25},
		{Source: "01001020200", Target: "01001029900", CountWeight: 1, RateWeight: 0.75},
	}
	in := table.New("population", "income")
	in.Append(
		rec("01001020100", 2003, map[string]float64{"population": 100, "income": 40000}),
		rec("01001020200", 2003, map[string]float64{"population": 300, "income": 60000}),
	)

	res, err := New(weights, WithSchema(testSchema())).Reallocate(in)
	require.NoError(t, err)
	require.Equal(t, 1, res.Table.Len())

	r := res.Table.Records[0]
	assert.InDelta(t, 400, r.Get("population").Float, 1e-9)
	assert.InDelta(t, 55000, r.Get("income").Float, 1e-9)
}

func TestReallocateConservesCounts(t *testing.T) {
	weights := []crosswalk.Weight{
		{Source: "A0000000001", Target: "A0000000010", CountWeight: 0.2, RateWeight: 0.1},
		{Source: "A0000000001", Target: "A0000000011", CountWeight: 0.8, RateWeight: 0.5},
		{Source: "A0000000002", Target: "A0000000010", CountWeight: 0.7, RateWeight: 0.9},
		{Source: "A0000000002", Target: "A0000000011", CountWeight: 0.3, RateWeight: 0.5},
	}
	in := table.New("population", "renters")
	for _, year := range []int{2000, 2001} {
		in.Append(
			rec("A0000000001", year, map[string]float64{"population": 1234, "renters": 99}),
			rec("A0000000002", year, map[string]float64{"population": 4321, "renters": 17}),
		)
	}

	res, err := New(weights, WithSchema(testSchema())).Reallocate(in)
	require.NoError(t, err)

	for _, year := range []int{2000, 2001} {
		for _, col := range []string{"population", "renters"} {
			assert.InDelta(t, in.Total(col, year), res.Table.Total(col, year), 1e-6, "%s %d", col, year)
		}
	}
}

func TestReallocateIdentityIsIdempotent(t *testing.T) {
	in := table.New("population", "renters", "income")
	in.Append(
		rec("01001020100", 2000, map[string]float64{"population": 1000, "renters": 120, "income": 41000}),
		rec("01001020200", 2000, map[string]float64{"population": 2500, "renters": 800, "income": 38000.25}),
		rec("01001020200", 2004, map[string]float64{"population": 2600, "renters": 810, "income": 39000}),
	)
	var weights []crosswalk.Weight
	for _, id := range []string{"01001020100", "01001020200"} {
		weights = append(weights, crosswalk.Weight{Source: id, Target: id, CountWeight: 1, RateWeight: 1})
	}

	res, err := New(weights, WithSchema(testSchema())).Reallocate(in)
	require.NoError(t, err)
	require.Equal(t, in.Len(), res.Table.Len())

	for _, want := range in.Records {
		got := find(t, res.Table, want.GEOID, want.Year)
		for _, c := range in.Columns {
			assert.Equal(t, want.Get(c), got.Get(c), "%s %d %s", want.GEOID, want.Year, c)
		}
	}
}

func TestReallocateNulls(t *testing.T) {
	weights := []crosswalk.Weight{
		{Source: "S1", Target: "T1", CountWeight: 1, RateWeight: 0.4},
		{Source: "S2", Target: "T1", CountWeight: 1, RateWeight: 0.6},
		{Source: "S3", Target: "T2", CountWeight: 1, RateWeight: 1},
	}
	in := table.New("population", "income")
	in.Append(
		rec("S1", 2000, map[string]float64{"population": 40, "income": 10}),
		table.Record{GEOID: "S2", Year: 2000, Values: map[string]table.Value{"population": table.Of(60), "income": table.Null()}},
		table.Record{GEOID: "S3", Year: 2000, Values: map[string]table.Value{"population": table.Null(), "income": table.Null()}},
	)

	res, err := New(weights, WithSchema(testSchema())).Reallocate(in)
	require.NoError(t, err)

	t1 := find(t, res.Table, "T1", 2000)
	assert.InDelta(t, 100, t1.Get("population").Float, 1e-9)
	// The null source is excluded from the weighted average rather than read as 0.
	assert.InDelta(t, 10, t1.Get("income").Float, 1e-9)

	t2 := find(t, res.Table, "T2", 2000)
	assert.False(t, t2.Get("population").Valid)
	assert.False(t, t2.Get("income").Valid)
}

func TestReallocateZeroRateWeight(t *testing.T) {
	weights := []crosswalk.Weight{{Source: "S1", Target: "T1", CountWeight: 0, RateWeight: 0}}
	in := table.New("population", "income")
	in.Append(rec("S1", 2000, map[string]float64{"population": 10, "income": 5}))

	res, err := New(weights, WithSchema(testSchema())).Reallocate(in)
	require.NoError(t, err)

	r := res.Table.Records[0]
	assert.Equal(t, table.Of(0), r.Get("income"))
	assert.Equal(t, table.Of(0), r.Get("population"))
	assert.Equal(t, 1, res.Stats.ZeroFilled)
}

func TestReallocatePassThrough(t *testing.T) {
	weights := []crosswalk.Weight{{Source: "01001020100", Target: "01001020150", CountWeight: 1, RateWeight: 1}}
	in := table.New("population")
	in.Append(
		rec("01001020100", 2009, map[string]float64{"population": 10}),
		rec("01001020150", 2010, map[string]float64{"population": 12}),
	)
	in.Records[1].Name = "201.50"

	res, err := New(weights, WithSchema(testSchema()), WithPassThroughFrom(2010)).Reallocate(in)
	require.NoError(t, err)
	require.Equal(t, 2, res.Table.Len())

	assert.Equal(t, table.Key{GEOID: "01001020150", Year: 2009}, res.Table.Records[0].Key())
	assert.Equal(t, table.Of(12), res.Table.Records[1].Get("population"))
	assert.Equal(t, 1, res.Stats.PassedThrough)
	// Pass-through context fills the weighted row of the same target.
	assert.Equal(t, "201.50", res.Table.Records[0].Name)
}

func TestReallocateBypass(t *testing.T) {
	weights := []crosswalk.Weight{
		{Source: "12086009101", Target: "12086009107", CountWeight: 0.5, RateWeight: 1},
		{Source: "12086009101", Target: "12086009108", CountWeight: 0.5, RateWeight: 1},
	}
	renames := crosswalk.NewRenameTable(map[string]crosswalk.Rename{"12086009101": {To: "12086009107"}})

	in := table.New("population")
	in.Append(
		rec("12086009101", 2000, map[string]float64{"population": 100}),
		rec("12086009101", 2007, map[string]float64{"population": 80}),
	)
	in.Records[1].Name = "91.01"

	r := New(weights, WithSchema(testSchema()), WithBypass(Bypass{Years: []int{2005, 2006, 2007, 2008, 2009}, Renames: renames}))
	res, err := r.Reallocate(in)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.Bypassed)
	assert.Equal(t, 1, res.Stats.Weighted)
	require.Equal(t, 3, res.Table.Len())

	bypassed := find(t, res.Table, "12086009107", 2007)
	assert.Equal(t, table.Of(80), bypassed.Get("population"))
	assert.Empty(t, bypassed.Name, "old-geography name is not carried across a rename")

	assert.InDelta(t, 50, find(t, res.Table, "12086009108", 2000).Get("population").Float, 1e-9)
}

func TestReallocateWithoutBypassWeightsEverything(t *testing.T) {
	weights := []crosswalk.Weight{{Source: "12086009101", Target: "12086009107", CountWeight: 1, RateWeight: 1}}
	in := table.New("population")
	in.Append(rec("12086009101", 2007, map[string]float64{"population": 80}))

	res, err := New(weights, WithSchema(testSchema())).Reallocate(in)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Stats.Bypassed)
	assert.Equal(t, 1, res.Stats.Weighted)
}

func TestReallocateDropsOtherAndUnmatched(t *testing.T) {
	weights := []crosswalk.Weight{{Source: "S1", Target: "T1", CountWeight: 1, RateWeight: 1}}
	in := table.New("population", "notes", "mystery")
	in.Append(
		rec("S1", 2000, map[string]float64{"population": 5, "notes": 1, "mystery": 2}),
		rec("S9", 2000, map[string]float64{"population": 7}),
	)

	res, err := New(weights, WithSchema(testSchema())).Reallocate(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"population"}, res.Table.Columns)
	assert.Equal(t, 1, res.Table.Len())
	assert.Equal(t, 1, res.Stats.Unmatched)
}

func TestReallocateContext(t *testing.T) {
	weights := []crosswalk.Weight{
		{Source: "02201000100", Target: "02198000100", CountWeight: 1, RateWeight: 1},
		{Source: "01001020100", Target: "01001020100", CountWeight: 1, RateWeight: 1},
	}
	in := table.New("population")
	in.Append(
		rec("02201000100", 2000, map[string]float64{"population": 1}),
		rec("01001020100", 2000, map[string]float64{"population": 2}),
	)
	in.Records[0].ParentLocation = "Prince of Wales-Outer Ketchikan Census Area, Alaska"
	in.Records[1].ParentLocation = "Autauga County, Alabama"

	res, err := New(weights, WithSchema(testSchema())).Reallocate(in)
	require.NoError(t, err)

	_, crossCounty := res.Context["02198000100"]
	assert.False(t, crossCounty, "context is not taken across a county change")
	assert.Equal(t, "Autauga County, Alabama", res.Context["01001020100"].ParentLocation)
	assert.Equal(t, "Autauga County, Alabama", find(t, res.Table, "01001020100", 2000).ParentLocation)
}

func TestReallocateInvalidSchema(t *testing.T) {
	bad := &schema.Schema{Columns: map[string]schema.Column{"income": {Kind: schema.Rate}}}
	_, err := New(nil, WithSchema(bad)).Reallocate(table.New())
	require.Error(t, err)
}

func TestRemoveValues(t *testing.T) {
	header, rows, err := fetcher.ReadCSV(context.Background(), strings.NewReader("GEOID,year,value\nS1,2000,income\nS1,2000,absent\nS2,2001,income\n"))
	require.NoError(t, err)
	bad, err := ParseBadValues(header, rows)
	require.NoError(t, err)
	require.Len(t, bad, 3)

	in := table.New("population", "income")
	in.Append(
		rec("S1", 2000, map[string]float64{"population": 5, "income": 10}),
		rec("S1", 2001, map[string]float64{"population": 5, "income": 10}),
	)

	assert.Equal(t, 1, RemoveValues(in, bad))
	assert.False(t, in.Records[0].Get("income").Valid)
	assert.True(t, in.Records[1].Get("income").Valid)
	assert.Equal(t, 0, RemoveValues(in, nil))

	_, err = ParseBadValues([]string{"GEOID", "year", "value"}, [][]string{{"S1", "20x", "income"}})
	require.Error(t, err)
}

func TestApplyRenames(t *testing.T) {
	in := table.New("population")
	in.Append(
		table.Record{GEOID: "02201", Year: 2000, Name: "old", ParentLocation: "Alaska"},
		table.Record{GEOID: "02201000100", Year: 2000, Name: "1", ParentLocation: "old county"},
		table.Record{GEOID: "01001", Year: 2000, Name: "Autauga County"},
	)

	n := ApplyRenames(in, crosswalk.CountyCorrections())
	assert.Equal(t, 2, n)
	assert.Equal(t, "02198", in.Records[0].GEOID)
	assert.Equal(t, "Prince of Wales-Hyder Census Area", in.Records[0].Name)
	assert.Equal(t, "02198000100", in.Records[1].GEOID)
	assert.Equal(t, "1", in.Records[1].Name)
	assert.Equal(t, "Prince of Wales-Hyder Census Area, Alaska", in.Records[1].ParentLocation)
	assert.Equal(t, "01001", in.Records[2].GEOID)

	assert.Equal(t, 0, ApplyRenames(in, nil))
}

func TestReallocateCorrectsCarriedRecordsOnly(t *testing.T) {
	weights := []crosswalk.Weight{
		{Source: "02201000100", Target: "02198000100", CountWeight: 1, RateWeight: 1},
	}
	in := table.New("population")
	in.Append(
		rec("02201000100", 2000, map[string]float64{"population": 100}),
		rec("02201000200", 2012, map[string]float64{"population": 7}),
	)

	res, err := New(weights,
		WithSchema(testSchema()),
		WithPassThroughFrom(2010),
		WithCorrections(crosswalk.CountyCorrections()),
	).Reallocate(in)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Weighted)
	assert.Equal(t, 0, res.Stats.Unmatched)
	assert.Equal(t, 1, res.Stats.Corrected)

	assert.Equal(t, table.Of(100), find(t, res.Table, "02198000100", 2000).Get("population"))
	carried := find(t, res.Table, "02198000200", 2012)
	assert.Equal(t, table.Of(7), carried.Get("population"))
	assert.Equal(t, "Prince of Wales-Hyder Census Area, Alaska", carried.ParentLocation)
}

func TestReallocateRejectsTextInNumericColumns(t *testing.T) {
	in := table.New("population", "notes")
	r := rec("S1", 2000, nil)
	r.Values["population"] = table.Text("lots")
	r.Values["notes"] = table.Text("carried")
	in.Append(r)

	_, err := New(nil, WithSchema(testSchema())).Reallocate(in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not numeric")
}
