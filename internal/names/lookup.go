package names

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crosswalk-cli/internal/fetcher"
	"github.com/sells-group/crosswalk-cli/internal/geoid"
	"github.com/sells-group/crosswalk-cli/internal/table"
)

// Lookup maps state and county FIPS codes to names. It is immutable once
// built and safe for concurrent use.
type Lookup struct {
	states   map[string]string
	counties map[string]string
}

// NewLookup builds a lookup from state (2-digit) and county (5-digit) maps.
// Keys are zero padded to their full width.
func NewLookup(states, counties map[string]string) *Lookup {
	l := &Lookup{
		states:   make(map[string]string, len(states)),
		counties: make(map[string]string, len(counties)),
	}
	for k, v := range states {
		l.states[geoid.Pad(k, geoid.StateWidth)] = v
	}
	for k, v := range counties {
		l.counties[geoid.Pad(k, geoid.Counties.Len())] = v
	}
	return l
}

// ParseLookup reads GEOID,name rows. Two-character identifiers are states
// and five-character identifiers are counties; other rows are ignored.
func ParseLookup(header []string, rows [][]string) (*Lookup, error) {
	pos, err := fetcher.RequireColumns(fetcher.HeaderIndex(header), table.ColGEOID, table.ColName)
	if err != nil {
		return nil, eris.Wrap(err, "names: lookup header")
	}
	states := make(map[string]string)
	counties := make(map[string]string)
	for _, row := range rows {
		id := strings.TrimSpace(fetcher.Field(row, pos[0]))
		name := strings.TrimSpace(fetcher.Field(row, pos[1]))
		switch len(id) {
		case geoid.States.Len():
			states[id] = name
		case geoid.Counties.Len():
			counties[id] = name
		}
	}
	return NewLookup(states, counties), nil
}

// ReadLookup reads a lookup file.
func ReadLookup(ctx context.Context, path string) (*Lookup, error) {
	header, rows, err := fetcher.ReadRows(ctx, path)
	if err != nil {
		return nil, eris.Wrapf(err, "names: read %s", path)
	}
	return ParseLookup(header, rows)
}

// State returns the name of a state FIPS code.
func (l *Lookup) State(fips string) (string, bool) {
	if l == nil {
		return "", false
	}
	n, ok := l.states[fips]
	return n, ok
}

// County returns the name of a five-digit county code.
func (l *Lookup) County(fips string) (string, bool) {
	if l == nil {
		return "", false
	}
	n, ok := l.counties[fips]
	return n, ok
}

// Counties returns the sorted county codes.
func (l *Lookup) Counties() []string {
	if l == nil {
		return nil
	}
	out := make([]string, 0, len(l.counties))
	for c := range l.counties {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of states and counties known.
func (l *Lookup) Len() (states, counties int) {
	if l == nil {
		return 0, 0
	}
	return len(l.states), len(l.counties)
}

// Parent synthesizes the parent-location label of id at level.
func (l *Lookup) Parent(level geoid.Level, id string) (string, error) {
	if level == geoid.States {
		return "USA", nil
	}
	stateFIPS := geoid.State(id)
	state, ok := l.State(stateFIPS)
	if !ok {
		return "", eris.Errorf("names: unknown state FIPS %q for %s", stateFIPS, id)
	}
	switch level {
	case geoid.Tracts, geoid.BlockGroups, geoid.Blocks:
		if county, ok := l.County(geoid.County(id)); ok {
			return county, nil
		}
	}
	return state, nil
}

// WriteCSV writes the lookup as GEOID,name rows, states first, in a form
// ReadLookup accepts.
func (l *Lookup) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{table.ColGEOID, table.ColName}); err != nil {
		return eris.Wrap(err, "names: write header")
	}
	if l != nil {
		states := make([]string, 0, len(l.states))
		for s := range l.states {
			states = append(states, s)
		}
		sort.Strings(states)
		for _, s := range states {
			if err := cw.Write([]string{s, l.states[s]}); err != nil {
				return eris.Wrap(err, "names: write row")
			}
		}
		for _, c := range l.Counties() {
			if err := cw.Write([]string{c, l.counties[c]}); err != nil {
				return eris.Wrap(err, "names: write row")
			}
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "names: flush")
}
