// Package names produces display names and parent-location labels for
// reallocated geography.
package names

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/crosswalk-cli/internal/geoid"
)

// citySuffixes are stripped from place names in order. Several entries are
// truncated forms that occur in published place names.
var citySuffixes = []string{
	"city (balance)",
	"unified government (balance)",
	"consolidated government (balance)",
	"metro government (balance)",
	"metropolitan government (balance)",
	" town",
	" city",
	"CDP",
	"municipality",
	" borough",
	"(balance)",
	" village",
	"consolidated government",
	"metro government",
	"metropolitan government",
	"unified governm",
	"unified government",
}

// TractName formats a six-digit tract code for display: leading zeros are
// stripped, a "00" suffix is dropped, otherwise a "." goes before the last
// two digits. "020100" is "201", "020150" is "201.50", "000001" is "0.01".
func TractName(tract string) string {
	t := strings.TrimLeft(strings.TrimSpace(tract), "0")
	if t == "" {
		return "0"
	}
	if len(t) >= 2 && strings.HasSuffix(t, "00") {
		if head := t[:len(t)-2]; head != "" {
			return head
		}
		return "0"
	}
	for len(t) < 3 {
		t = "0" + t
	}
	return t[:len(t)-2] + "." + t[len(t)-2:]
}

// BlockGroupName returns the tract name followed by the block group digit for
// a twelve-character block group GEOID.
func BlockGroupName(id string) string {
	if len(id) != geoid.BlockGroups.Len() {
		return ""
	}
	tractStart := geoid.Counties.Len()
	return TractName(id[tractStart:tractStart+geoid.TractWidth]) + "." + id[geoid.Tracts.Len():]
}

// CityName removes the state qualifier and the known place-type suffixes
// from a published place name.
func CityName(name string) string {
	if i := strings.LastIndex(name, ","); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSpace(name)
	for _, s := range citySuffixes {
		if strings.HasSuffix(name, s) {
			name = name[:len(name)-len(s)]
		}
		name = strings.TrimSpace(name)
	}
	return NFC(name)
}

// PlaceName returns the first comma-separated chunk of a state or county
// name with leading zeros removed.
func PlaceName(name string) string {
	if i := strings.Index(name, ","); i >= 0 {
		name = name[:i]
	}
	return NFC(strings.TrimLeft(strings.TrimSpace(name), "0"))
}

// NFC returns s in Unicode normalization form C.
func NFC(s string) string {
	return norm.NFC.String(s)
}

// Format returns the display name of a record at level. Tract and block
// group names are derived from the identifier; other levels clean the given
// name.
func Format(level geoid.Level, id, name string) string {
	switch level {
	case geoid.Tracts:
		if len(id) != geoid.Tracts.Len() {
			return NFC(name)
		}
		return TractName(id[geoid.Counties.Len():])
	case geoid.BlockGroups:
		if n := BlockGroupName(id); n != "" {
			return n
		}
		return NFC(name)
	case geoid.Cities:
		return CityName(name)
	default:
		return PlaceName(name)
	}
}
