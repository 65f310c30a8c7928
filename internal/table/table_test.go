package table

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const sampleCSV = `GEOID,year,name,parent-location,population,median-household-income
01001020100,2000,201,"Autauga County, Alabama",1000,42000.5
01001020200,2000,202,"Autauga County, Alabama",NA,
01001020200,2001,202,"Autauga County, Alabama",2100,nan
`

func TestReadCSV(t *testing.T) {
	tbl, err := ReadCSV(context.Background(), strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, []string{"population", "median-household-income"}, tbl.Columns)
	require.Equal(t, 3, tbl.Len())

	r := tbl.Records[0]
	assert.Equal(t, "01001020100", r.GEOID)
	assert.Equal(t, 2000, r.Year)
	assert.Equal(t, "201", r.Name)
	assert.Equal(t, "Autauga County, Alabama", r.ParentLocation)
	assert.Equal(t, Of(1000), r.Get("population"))
	assert.InDelta(t, 42000.5, r.Get("median-household-income").Float, 1e-9)

	assert.False(t, tbl.Records[1].Get("population").Valid)
	assert.False(t, tbl.Records[1].Get("median-household-income").Valid)
	assert.False(t, tbl.Records[2].Get("median-household-income").Valid)
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		msg   string
	}{
		{"missing GEOID", "year,population\n2000,1\n", `"GEOID"`},
		{"missing year", "GEOID,population\n01,1\n", `"year"`},
		{"bad year", "GEOID,year\n01,20x0\n", "invalid year"},
		{"empty GEOID", "GEOID,year\n,2000\n", "empty GEOID"},
		{"non numeric", "GEOID,year,population\n01,2000,lots\n", "not numeric"},
	}
	numeric := WithNumericColumns(func(c string) bool { return c == "population" })
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(context.Background(), strings.NewReader(tt.input), numeric)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestReadCSVTextColumns(t *testing.T) {
	const input = "GEOID,year,name,parent-location,population,usps,code\n" +
		"36061000100,2000,Tract 1,New York County,100,NY,001\n" +
		"36061000200,2000,Tract 2,New York County,,,\n"

	tbl, err := ReadCSV(context.Background(), strings.NewReader(input),
		WithNumericColumns(func(c string) bool { return c == "population" }))
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())

	r := tbl.Records[0]
	assert.Equal(t, Of(100), r.Get("population"))
	assert.Equal(t, Text("NY"), r.Get("usps"))
	assert.True(t, r.Get("usps").IsText())
	assert.Equal(t, Text("001"), r.Get("code"))
	assert.True(t, tbl.Records[1].Get("usps").IsNull())

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "36061000100,Tract 1,New York County,2000,100,NY,001", lines[1])
	assert.Equal(t, "36061000200,Tract 2,New York County,2000,,,", lines[2])

	err = tbl.CheckNumeric([]string{"population", "usps"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"NY" is not numeric`)
	assert.NoError(t, tbl.CheckNumeric([]string{"population"}))
}

func TestReadCSVWithoutNumericColumns(t *testing.T) {
	tbl, err := ReadCSV(context.Background(), strings.NewReader("GEOID,year,population,usps\n36061,2000,5,NY\n"))
	require.NoError(t, err)
	assert.Equal(t, Of(5), tbl.Records[0].Get("population"))
	assert.Equal(t, Text("NY"), tbl.Records[0].Get("usps"))
}

func TestReadCSVFloatYear(t *testing.T) {
	tbl, err := ReadCSV(context.Background(), strings.NewReader("GEOID,year\n01,2005.0\n"))
	require.NoError(t, err)
	assert.Equal(t, 2005, tbl.Records[0].Year)
}

func TestWriteCSVRoundTrip(t *testing.T) {
	tbl, err := ReadCSV(context.Background(), strings.NewReader(sampleCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "GEOID,name,parent-location,year,population,median-household-income", lines[0])
	assert.Equal(t, `01001020100,201,"Autauga County, Alabama",2000,1000,42000.5`, lines[1])
	assert.Equal(t, `01001020200,202,"Autauga County, Alabama",2000,,`, lines[2])

	again, err := ReadCSV(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, tbl.Records, again.Records)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	tbl, err := ReadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Len())
}

func TestValueHelpers(t *testing.T) {
	assert.False(t, Of(math.NaN()).Valid)
	assert.Equal(t, "", FormatValue(Null()))
	assert.Equal(t, "0.25", FormatValue(Of(0.25)))

	v, err := ParseValue(" NULL ")
	require.NoError(t, err)
	assert.False(t, v.Valid)
}

func TestTableHelpers(t *testing.T) {
	tbl := New("population")
	tbl.Append(
		Record{GEOID: "02", Year: 2001, Values: map[string]Value{"population": Of(5)}},
		Record{GEOID: "01", Year: 2001, Values: map[string]Value{"population": Of(3)}},
		Record{GEOID: "01", Year: 2000, Values: map[string]Value{"population": Null()}},
	)
	tbl.Sort()

	assert.Equal(t, Key{GEOID: "01", Year: 2000}, tbl.Records[0].Key())
	assert.Equal(t, Key{GEOID: "02", Year: 2001}, tbl.Records[2].Key())
	assert.InDelta(t, 8, tbl.Total("population", 2001), 1e-9)
	assert.Equal(t, []int{2000, 2001}, tbl.Years())
	assert.True(t, tbl.HasColumn("population"))
	assert.False(t, tbl.HasColumn("rent-burden"))

	c := tbl.Records[1].Clone()
	c.Values["population"] = Of(99)
	assert.Equal(t, Of(3), tbl.Records[1].Get("population"))
}

func TestJoinStats(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core)

	var s JoinStats
	s.Label = "weights <- data"
	s.Add("01001020100", true)
	s.Add("01001020200", true)
	s.Add("01001020300", true)
	s.Add("01001029999", false)
	s.Log(log)

	assert.InDelta(t, 75, s.Percent(), 1e-9)
	entries := logs.FilterMessage("join incomplete").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].ContextMap()["matched"])

	complete := JoinStats{Label: "empty"}
	complete.Log(log)
	assert.InDelta(t, 100, complete.Percent(), 1e-9)
	assert.Equal(t, 1, logs.FilterMessage("join complete").Len())
}
