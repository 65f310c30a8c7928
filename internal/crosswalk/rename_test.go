package crosswalk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crosswalk-cli/internal/fetcher"
)

func TestRenameTableExact(t *testing.T) {
	rt := NewRenameTable(map[string]Rename{"01001020100": {To: "01001020150"}})

	assert.Equal(t, 1, rt.Len())
	assert.True(t, rt.Has("01001020100"))
	assert.False(t, rt.Has("010010201001"))
	assert.Equal(t, "01001020150", rt.Apply("01001020100"))
	assert.Equal(t, "01001020200", rt.Apply("01001020200"))
}

func TestRenameTableNil(t *testing.T) {
	var rt *RenameTable
	assert.Equal(t, 0, rt.Len())
	assert.False(t, rt.Has("01"))
	assert.Equal(t, "01", rt.Apply("01"))
	assert.Nil(t, rt.Keys())
}

func TestCountyCorrections(t *testing.T) {
	rt := CountyCorrections()
	assert.Equal(t, []string{"02158", "02201", "02232", "02280", "46102"}, rt.Keys())

	county, ok := rt.Lookup("46102")
	require.True(t, ok)
	assert.Equal(t, Rename{To: "46113", Name: "Shannon County", ParentLocation: "South Dakota"}, county)

	tract, ok := rt.Lookup("46102940500")
	require.True(t, ok)
	assert.Equal(t, "46113940500", tract.To)
	assert.Equal(t, "Shannon County, South Dakota", tract.ParentLocation)
	assert.Empty(t, tract.Name)

	assert.Equal(t, "02198000100", rt.Apply("02201000100"))
	assert.Equal(t, "01001020100", rt.Apply("01001020100"))
}

func TestNewPrefixRenameTableRejectsMixedLengths(t *testing.T) {
	_, err := NewPrefixRenameTable(map[string]Rename{"02201": {To: "0219"}})
	require.Error(t, err)
}

func TestParseRenames(t *testing.T) {
	input := "county,GEOID09,GEOID10\nx,01001020100,01001020150\ny,12086009101,12086009107\n"
	header, rows, err := fetcher.ReadCSV(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	rt, err := ParseRenames(header, rows, "GEOID09", "GEOID10")
	require.NoError(t, err)
	assert.Equal(t, "12086009107", rt.Apply("12086009101"))

	// Falls back to the first two columns.
	rt, err = ParseRenames([]string{"from", "to"}, [][]string{{"01", "02"}}, "GEOID09", "GEOID10")
	require.NoError(t, err)
	assert.Equal(t, "02", rt.Apply("01"))
}

func TestParseRenamesErrors(t *testing.T) {
	_, err := ParseRenames([]string{"a", "b"}, [][]string{{"01", "02"}, {"01", "03"}}, "a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maps to both")

	_, err = ParseRenames([]string{"a", "b"}, [][]string{{"01", ""}}, "a", "b")
	require.Error(t, err)

	_, err = ParseRenames([]string{"a"}, nil, "a", "b")
	require.Error(t, err)
}
