package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
default_base: population
columns:
  population:
    kind: base
  renter-occupied-households:
    kind: count
  median-household-income:
    kind: RATE
  rent-burden:
    kind: rate
    base: renter-occupied-households
  notes:
    kind: other
variables:
  B01003_001E: population
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, Base, s.KindOf("population"))
	assert.Equal(t, Rate, s.KindOf("median-household-income"))
	assert.Equal(t, Other, s.KindOf("unlisted"))
	assert.Equal(t, "population", s.BaseOf("median-household-income"))
	assert.Equal(t, "renter-occupied-households", s.BaseOf("rent-burden"))
	assert.Equal(t, "", s.BaseOf("population"))
	assert.True(t, s.Additive("population"))
	assert.True(t, s.Additive("renter-occupied-households"))
	assert.False(t, s.Additive("rent-burden"))
	assert.Equal(t, []string{"median-household-income", "rent-burden"}, s.Of(Rate))
	assert.Equal(t, "population", s.Rename("B01003_001E"))
	assert.Equal(t, "B99999_001E", s.Rename("B99999_001E"))
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{"empty", "default_base: population\n", "no columns"},
		{"unknown kind", "columns:\n  a:\n    kind: ratio\n", "unknown kind"},
		{"rate without basis", "columns:\n  a:\n    kind: rate\n", "no weighting basis"},
		{"undefined base", "default_base: pop\ncolumns:\n  a:\n    kind: rate\n", "undefined base"},
		{"base is a rate", "columns:\n  a:\n    kind: rate\n    base: b\n  b:\n    kind: rate\n    base: a\n", "must be a count or base"},
		{"count with base", "columns:\n  a:\n    kind: count\n    base: b\n", "cannot declare a base"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestParseBadYAML(t *testing.T) {
	_, err := Parse([]byte("columns: [oops"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema: parse")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, s.Columns, 5)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())
	assert.Equal(t, []string{"population"}, s.Of(Base))
	assert.Contains(t, s.Of(Rate), "median-household-income")
	assert.Equal(t, "renter-occupied-households", s.Rename("B25003_003E"))
	assert.Contains(t, s.VariableCodes(), "B01003_001E")
}

func TestDerivedLayout(t *testing.T) {
	doc := sampleYAML + `
derived:
  - name: pct-renters
    numerator: renter-occupied-households
    denominator: population
    scale: 1
output: [population, pct-renters]
round: 2
`
	s, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, s.Derived, 1)
	assert.Equal(t, 1.0, s.Derived[0].Factor())
	assert.Equal(t, []string{"population", "pct-renters"}, s.Output)
	require.NotNil(t, s.Round)
	assert.Equal(t, 2, *s.Round)
	assert.True(t, s.Numeric("pct-renters"))
	assert.True(t, s.Numeric("median-household-income"))
	assert.False(t, s.Numeric("notes"))
	assert.False(t, s.Numeric("unlisted"))

	assert.Equal(t, 100.0, Derived{}.Factor())
}

func TestDerivedLayoutErrors(t *testing.T) {
	base := "default_base: population\ncolumns:\n  population:\n    kind: base\n  income:\n    kind: rate\n"
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{"no name", "derived:\n  - {numerator: population, denominator: population}\n", "without a name"},
		{"clashes with column", "derived:\n  - {name: income, numerator: population, denominator: population}\n", "defined twice"},
		{"missing denominator", "derived:\n  - {name: p, numerator: population}\n", "needs a numerator and a denominator"},
		{"rate input", "derived:\n  - {name: p, numerator: income, denominator: population}\n", "not a count or base"},
		{"unknown output", "output: [population, nope]\n", `output column "nope"`},
		{"negative round", "round: -1\n", "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(base + tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
