// Package tiger downloads Census TIGER/Line block population shapefiles and
// reads them into block populations for allocation factors.
package tiger

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// FIPSCodes maps state abbreviation to 2-digit FIPS code for all 50 states + DC.
var FIPSCodes = map[string]string{
	"AL": "01", "AK": "02", "AZ": "04", "AR": "05", "CA": "06",
	"CO": "08", "CT": "09", "DE": "10", "DC": "11", "FL": "12",
	"GA": "13", "HI": "15", "ID": "16", "IL": "17", "IN": "18",
	"IA": "19", "KS": "20", "KY": "21", "LA": "22", "ME": "23",
	"MD": "24", "MA": "25", "MI": "26", "MN": "27", "MS": "28",
	"MO": "29", "MT": "30", "NE": "31", "NV": "32", "NH": "33",
	"NJ": "34", "NM": "35", "NY": "36", "NC": "37", "ND": "38",
	"OH": "39", "OK": "40", "OR": "41", "PA": "42", "RI": "44",
	"SC": "45", "SD": "46", "TN": "47", "TX": "48", "UT": "49",
	"VT": "50", "VA": "51", "WA": "53", "WV": "54", "WI": "55",
	"WY": "56",
}

var abbrByFIPS = func() map[string]string {
	m := make(map[string]string, len(FIPSCodes))
	for abbr, fips := range FIPSCodes {
		m[fips] = abbr
	}
	return m
}()

// AbbrFromFIPS returns the state abbreviation for a FIPS code.
func AbbrFromFIPS(fips string) (string, bool) {
	abbr, ok := abbrByFIPS[fips]
	return abbr, ok
}

// AllStateFIPS returns a sorted list of all state FIPS codes.
func AllStateFIPS() []string {
	codes := make([]string, 0, len(FIPSCodes))
	for _, fips := range FIPSCodes {
		codes = append(codes, fips)
	}
	sort.Strings(codes)
	return codes
}

// ResolveStates converts abbreviations or FIPS codes into sorted, distinct
// FIPS codes. An empty list selects every state.
func ResolveStates(states []string) ([]string, error) {
	if len(states) == 0 {
		return AllStateFIPS(), nil
	}
	seen := make(map[string]bool, len(states))
	var out []string
	for _, s := range states {
		s = strings.ToUpper(strings.TrimSpace(s))
		fips, ok := FIPSCodes[s]
		if !ok {
			if _, known := abbrByFIPS[s]; !known {
				return nil, eris.Errorf("tiger: unknown state %q", s)
			}
			fips = s
		}
		if !seen[fips] {
			seen[fips] = true
			out = append(out, fips)
		}
	}
	sort.Strings(out)
	return out, nil
}
