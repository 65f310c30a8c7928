// Package schema classifies statistic columns for reallocation. Every column
// is a COUNT (additive), a RATE (intensive, weighted by a base column), a
// BASE (additive column used as recombination weight) or OTHER (carried but
// never weighted).
package schema

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Kind is a column classification.
type Kind string

// Column kinds.
const (
	Count Kind = "count"
	Rate  Kind = "rate"
	Base  Kind = "base"
	Other Kind = "other"
)

// Column describes one statistic column.
type Column struct {
	Kind Kind   `yaml:"kind"`
	Base string `yaml:"base,omitempty"` // RATE only; falls back to Schema.DefaultBase
}

// Derived is a percentage computed from two additive columns once rows are
// recombined.
type Derived struct {
	Name        string `yaml:"name"`
	Numerator   string `yaml:"numerator"`
	Denominator string `yaml:"denominator"`
	// Fallback replaces Denominator when the table has no such column.
	Fallback string  `yaml:"fallback,omitempty"`
	Scale    float64 `yaml:"scale,omitempty"` // 100 when unset
}

// Factor returns the multiplier applied to the ratio.
func (d Derived) Factor() float64 {
	if d.Scale == 0 {
		return 100
	}
	return d.Scale
}

// Schema is the column classification plus the mapping from source variable
// codes to column names. Derived, Output and Round describe the published
// layout: derived percentages, the projected column order and the number of
// decimal places numbers are rounded to.
type Schema struct {
	DefaultBase string            `yaml:"default_base"`
	Columns     map[string]Column `yaml:"columns"`
	Variables   map[string]string `yaml:"variables,omitempty"`

	Derived []Derived `yaml:"derived,omitempty"`
	Output  []string  `yaml:"output,omitempty"`
	Round   *int      `yaml:"round,omitempty"`
}

// Load reads and validates a schema from a YAML file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a schema document.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "schema: parse")
	}
	for name, c := range s.Columns {
		c.Kind = Kind(strings.ToLower(string(c.Kind)))
		s.Columns[name] = c
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that every kind is known and that every RATE column has a
// basis which is itself an additive column.
func (s *Schema) Validate() error {
	if len(s.Columns) == 0 {
		return eris.New("schema: no columns defined")
	}
	for _, name := range s.names() {
		c := s.Columns[name]
		switch c.Kind {
		case Count, Base, Other:
			if c.Base != "" {
				return eris.Errorf("schema: column %q of kind %s cannot declare a base", name, c.Kind)
			}
		case Rate:
			base := s.BaseOf(name)
			if base == "" {
				return eris.Errorf("schema: rate column %q has no weighting basis", name)
			}
			bc, ok := s.Columns[base]
			if !ok {
				return eris.Errorf("schema: rate column %q references undefined base %q", name, base)
			}
			if bc.Kind != Base && bc.Kind != Count {
				return eris.Errorf("schema: base %q of rate column %q must be a count or base column, got %s", base, name, bc.Kind)
			}
		default:
			return eris.Errorf("schema: column %q has unknown kind %q", name, c.Kind)
		}
	}
	return s.validateLayout()
}

func (s *Schema) validateLayout() error {
	seen := make(map[string]bool, len(s.Derived))
	for _, d := range s.Derived {
		if d.Name == "" {
			return eris.New("schema: derived column without a name")
		}
		if _, ok := s.Columns[d.Name]; ok || seen[d.Name] {
			return eris.Errorf("schema: derived column %q is defined twice", d.Name)
		}
		seen[d.Name] = true
		if d.Numerator == "" || d.Denominator == "" {
			return eris.Errorf("schema: derived column %q needs a numerator and a denominator", d.Name)
		}
		for _, src := range []string{d.Numerator, d.Denominator, d.Fallback} {
			if src != "" && !s.Additive(src) {
				return eris.Errorf("schema: derived column %q reads %q, which is not a count or base column", d.Name, src)
			}
		}
	}
	for _, name := range s.Output {
		if _, ok := s.Columns[name]; !ok && !seen[name] {
			return eris.Errorf("schema: output column %q is not defined", name)
		}
	}
	if s.Round != nil && *s.Round < 0 {
		return eris.Errorf("schema: round must not be negative, got %d", *s.Round)
	}
	return nil
}

// KindOf returns the kind of a column. Unclassified columns are OTHER.
func (s *Schema) KindOf(name string) Kind {
	if c, ok := s.Columns[name]; ok {
		return c.Kind
	}
	return Other
}

// BaseOf returns the weighting basis of a RATE column, or "" for other kinds.
func (s *Schema) BaseOf(name string) string {
	c, ok := s.Columns[name]
	if !ok || c.Kind != Rate {
		return ""
	}
	if c.Base != "" {
		return c.Base
	}
	return s.DefaultBase
}

// Additive reports whether a column is summed when geography is combined.
func (s *Schema) Additive(name string) bool {
	k := s.KindOf(name)
	return k == Count || k == Base
}

// Numeric reports whether a column holds numbers. OTHER and unclassified
// columns are carried as text.
func (s *Schema) Numeric(name string) bool {
	switch s.KindOf(name) {
	case Count, Base, Rate:
		return true
	}
	for _, d := range s.Derived {
		if d.Name == name {
			return true
		}
	}
	return false
}

// Of returns the sorted names of every column of kind k.
func (s *Schema) Of(k Kind) []string {
	var out []string
	for _, name := range s.names() {
		if s.Columns[name].Kind == k {
			out = append(out, name)
		}
	}
	return out
}

// Rename maps a source variable code to its column name. Unknown codes are
// returned unchanged.
func (s *Schema) Rename(code string) string {
	if name, ok := s.Variables[code]; ok {
		return name
	}
	return code
}

// VariableCodes returns the sorted source codes that map to known columns.
func (s *Schema) VariableCodes() []string {
	out := make([]string, 0, len(s.Variables))
	for code := range s.Variables {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

func (s *Schema) names() []string {
	out := make([]string, 0, len(s.Columns))
	for name := range s.Columns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
