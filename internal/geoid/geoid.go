// Package geoid models census geographic identifiers. A GEOID is a
// fixed-width digit string whose length encodes the level of geography and
// whose prefix encodes containment: a tract's first five characters are its
// county, the first two its state.
package geoid

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Level is a unit of census geography.
type Level string

// Supported levels.
const (
	States      Level = "states"
	Counties    Level = "counties"
	Cities      Level = "cities"
	Tracts      Level = "tracts"
	BlockGroups Level = "block-groups"
	Blocks      Level = "blocks"
)

// Component widths of a full block identifier.
const (
	StateWidth  = 2
	CountyWidth = 3
	TractWidth  = 6
	BlockWidth  = 4
)

// ErrUnknownLevel is returned when a level string is not recognised.
var ErrUnknownLevel = eris.New("geoid: unknown geography level")

var levelLength = map[Level]int{
	States:      2,
	Counties:    5,
	Cities:      7,
	Tracts:      11,
	BlockGroups: 12,
	Blocks:      15,
}

// Levels returns every supported level from coarsest to finest.
func Levels() []Level {
	return []Level{States, Counties, Cities, Tracts, BlockGroups, Blocks}
}

// ParseLevel converts a CLI string into a Level.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := levelLength[l]; !ok {
		return "", eris.Wrapf(ErrUnknownLevel, "level %q (want one of %s)", s, levelNames())
	}
	return l, nil
}

func levelNames() string {
	names := make([]string, 0, len(levelLength))
	for _, l := range Levels() {
		names = append(names, string(l))
	}
	return strings.Join(names, ", ")
}

// Len returns the identifier length for the level, or 0 if the level is unknown.
func (l Level) Len() int {
	return levelLength[l]
}

// String implements fmt.Stringer.
func (l Level) String() string { return string(l) }

// LevelOf infers the level from an identifier's length.
func LevelOf(id string) (Level, bool) {
	for l, n := range levelLength {
		if len(id) == n {
			return l, true
		}
	}
	return "", false
}

// Pad left-pads a numeric code with zeros to width. Surrounding whitespace is
// trimmed. Codes wider than width are returned unchanged.
func Pad(code string, width int) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	if len(code) >= width {
		return code
	}
	return strings.Repeat("0", width-len(code)) + code
}

// Format renders a numeric code with proper zero-padding.
func Format(code, width int) string {
	return fmt.Sprintf("%0*d", width, code)
}

// CombineCounty joins state and county codes into a 5-digit county GEOID.
func CombineCounty(state, county string) string {
	s := Pad(state, StateWidth)
	c := Pad(county, CountyWidth)
	if s == "" || c == "" {
		return ""
	}
	return s + c
}

// NormalizeTract removes the decimal point some sources write into tract
// codes ("9501.02" or "95.01") and pads to six digits. A code without a point
// is treated as already carrying its two-digit suffix.
func NormalizeTract(tract string) string {
	tract = strings.TrimSpace(tract)
	if i := strings.IndexByte(tract, '.'); i >= 0 {
		whole, frac := tract[:i], tract[i+1:]
		for len(frac) < 2 {
			frac += "0"
		}
		tract = whole + frac
	}
	return Pad(tract, TractWidth)
}

// BlockID concatenates component codes into a 15-character block GEOID.
func BlockID(state, county, tract, block string) (string, error) {
	id := Pad(state, StateWidth) + Pad(county, CountyWidth) + NormalizeTract(tract) + Pad(block, BlockWidth)
	if err := Validate(id, Blocks); err != nil {
		return "", err
	}
	return id, nil
}

// Validate checks that id is all digits and exactly as long as the level requires.
func Validate(id string, l Level) error {
	n := l.Len()
	if n == 0 {
		return eris.Wrapf(ErrUnknownLevel, "level %q", string(l))
	}
	if len(id) != n {
		return eris.Errorf("geoid: %q has length %d, want %d for %s", id, len(id), n, l)
	}
	if !isDigits(id) {
		return eris.Errorf("geoid: %q contains non-digit characters", id)
	}
	return nil
}

// Truncate returns the ancestor of id at level l. The identifier must be at
// least as long as the level requires.
func Truncate(id string, l Level) (string, error) {
	n := l.Len()
	if n == 0 {
		return "", eris.Wrapf(ErrUnknownLevel, "level %q", string(l))
	}
	if len(id) < n {
		return "", eris.Errorf("geoid: cannot truncate %q (length %d) to %s", id, len(id), l)
	}
	return id[:n], nil
}

// State returns the two-digit state prefix of id, or "" if id is too short.
func State(id string) string {
	if len(id) < StateWidth {
		return ""
	}
	return id[:StateWidth]
}

// County returns the five-digit county prefix of id, or "" if id is too short.
func County(id string) string {
	if len(id) < Counties.Len() {
		return ""
	}
	return id[:Counties.Len()]
}

// Contains reports whether child lies within parent by prefix.
func Contains(parent, child string) bool {
	return len(child) >= len(parent) && strings.HasPrefix(child, parent)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
