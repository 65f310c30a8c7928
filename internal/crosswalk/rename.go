package crosswalk

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crosswalk-cli/internal/fetcher"
)

// Rename is a one-to-one identifier substitution. Name and ParentLocation,
// when set, replace the renamed record's context.
type Rename struct {
	To             string
	Name           string
	ParentLocation string
}

// RenameTable is an immutable set of one-to-one renames. In prefix mode a
// rename also applies to every identifier that starts with the key, so a
// county code change carries its tracts and block groups along.
type RenameTable struct {
	entries map[string]Rename
	prefix  bool
	keyLen  int
}

// NewRenameTable builds a table from exact-match renames.
func NewRenameTable(entries map[string]Rename) *RenameTable {
	return newTable(entries, false)
}

// NewPrefixRenameTable builds a table whose keys match identifier prefixes.
// Every key must have the same length.
func NewPrefixRenameTable(entries map[string]Rename) (*RenameTable, error) {
	t := newTable(entries, true)
	for k, r := range t.entries {
		if len(k) != t.keyLen || len(r.To) != t.keyLen {
			return nil, eris.Errorf("crosswalk: prefix rename %q -> %q must be %d characters", k, r.To, t.keyLen)
		}
	}
	return t, nil
}

func newTable(entries map[string]Rename, prefix bool) *RenameTable {
	t := &RenameTable{entries: make(map[string]Rename, len(entries)), prefix: prefix}
	for k, v := range entries {
		t.entries[k] = v
		if t.keyLen == 0 {
			t.keyLen = len(k)
		}
	}
	return t
}

// Len returns the number of renames.
func (t *RenameTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Has reports whether id is renamed.
func (t *RenameTable) Has(id string) bool {
	_, ok := t.Lookup(id)
	return ok
}

// Lookup returns the rename that applies to id with To rewritten to the full
// new identifier. Context fields are only set for exact matches, because a
// county's name does not describe its tracts.
func (t *RenameTable) Lookup(id string) (Rename, bool) {
	if t == nil {
		return Rename{}, false
	}
	if r, ok := t.entries[id]; ok {
		return r, true
	}
	if !t.prefix || len(id) <= t.keyLen {
		return Rename{}, false
	}
	r, ok := t.entries[id[:t.keyLen]]
	if !ok {
		return Rename{}, false
	}
	out := Rename{To: r.To + id[t.keyLen:]}
	switch {
	case r.Name != "" && r.ParentLocation != "":
		out.ParentLocation = r.Name + ", " + r.ParentLocation
	case r.Name != "":
		out.ParentLocation = r.Name
	}
	return out, true
}

// Apply returns the renamed identifier, or id when no rename applies.
func (t *RenameTable) Apply(id string) string {
	if r, ok := t.Lookup(id); ok {
		return r.To
	}
	return id
}

// Keys returns the sorted rename keys.
func (t *RenameTable) Keys() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ParseRenames reads a rename file. The from and to columns are used when
// present; otherwise the first two columns are. Duplicate sources with
// different targets are rejected since the table must be one-to-one.
func ParseRenames(header []string, rows [][]string, from, to string) (*RenameTable, error) {
	fromCol, toCol := 0, 1
	idx := fetcher.HeaderIndex(header)
	if f, ok := idx[from]; ok {
		if tc, ok := idx[to]; ok {
			fromCol, toCol = f, tc
		}
	}
	if len(header) < 2 {
		return nil, eris.New("crosswalk: rename file needs at least two columns")
	}

	entries := make(map[string]Rename, len(rows))
	for n, row := range rows {
		src := strings.TrimSpace(fetcher.Field(row, fromCol))
		dst := strings.TrimSpace(fetcher.Field(row, toCol))
		if src == "" || dst == "" {
			return nil, eris.Errorf("crosswalk: rename line %d: empty identifier", n+2)
		}
		if prev, ok := entries[src]; ok && prev.To != dst {
			return nil, eris.Errorf("crosswalk: rename line %d: %s maps to both %s and %s", n+2, src, prev.To, dst)
		}
		entries[src] = Rename{To: dst}
	}
	return NewRenameTable(entries), nil
}

// ReadRenames reads a rename file from disk.
func ReadRenames(ctx context.Context, path, from, to string) (*RenameTable, error) {
	header, rows, err := fetcher.ReadRows(ctx, path)
	if err != nil {
		return nil, eris.Wrapf(err, "crosswalk: read %s", path)
	}
	return ParseRenames(header, rows, from, to)
}

// CountyCorrections returns the county code changes between the 2000 and
// 2010 vintages, applied by prefix to every contained geography.
func CountyCorrections() *RenameTable {
	t, err := NewPrefixRenameTable(map[string]Rename{
		// 2000
		"02201": {To: "02198", Name: "Prince of Wales-Hyder Census Area", ParentLocation: "Alaska"},
		"02232": {To: "02105", Name: "Hoonah-Angoon Census Area", ParentLocation: "Alaska"},
		"02280": {To: "02275", Name: "Wrangell City and Borough", ParentLocation: "Alaska"},
		// 2010
		"46102": {To: "46113", Name: "Shannon County", ParentLocation: "South Dakota"},
		"02158": {To: "02270", Name: "Wade Hampton Census Area", ParentLocation: "Alaska"},
	})
	if err != nil {
		panic(err)
	}
	return t
}
