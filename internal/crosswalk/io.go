package crosswalk

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crosswalk-cli/internal/fetcher"
)

// Column names for correspondence and weight files.
const (
	ColSource      = "GEOID00"
	ColTarget      = "GEOID10"
	ColOverlap     = "WEIGHT"
	ColCountWeight = "count_weight"
	ColRateWeight  = "rate_weight"
)

// ParseEdges reads an NHGIS block crosswalk (GEOID00, GEOID10, WEIGHT). The
// weight column name is matched case-insensitively.
func ParseEdges(header []string, rows [][]string) ([]Edge, error) {
	idx := fetcher.HeaderIndex(header)
	if _, ok := idx[ColOverlap]; !ok {
		for name, i := range idx {
			if strings.EqualFold(name, ColOverlap) {
				idx[ColOverlap] = i
				break
			}
		}
	}
	pos, err := fetcher.RequireColumns(idx, ColSource, ColTarget, ColOverlap)
	if err != nil {
		return nil, eris.Wrap(err, "crosswalk: edge header")
	}

	out := make([]Edge, 0, len(rows))
	for n, row := range rows {
		overlap, err := parseWeight(fetcher.Field(row, pos[2]))
		if err != nil {
			return nil, eris.Wrapf(err, "crosswalk: line %d", n+2)
		}
		out = append(out, Edge{
			Source:  fetcher.Field(row, pos[0]),
			Target:  fetcher.Field(row, pos[1]),
			Overlap: overlap,
		})
	}
	return out, nil
}

// ReadEdges reads a block crosswalk from a CSV, XLSX or ZIP file.
func ReadEdges(ctx context.Context, path string) ([]Edge, error) {
	header, rows, err := fetcher.ReadRows(ctx, path)
	if err != nil {
		return nil, eris.Wrapf(err, "crosswalk: read %s", path)
	}
	return ParseEdges(header, rows)
}

// ParseWeights reads weights written by WriteWeights.
func ParseWeights(header []string, rows [][]string) ([]Weight, error) {
	pos, err := fetcher.RequireColumns(fetcher.HeaderIndex(header), ColSource, ColTarget, ColCountWeight, ColRateWeight)
	if err != nil {
		return nil, eris.Wrap(err, "crosswalk: weight header")
	}

	out := make([]Weight, 0, len(rows))
	for n, row := range rows {
		w := Weight{Source: fetcher.Field(row, pos[0]), Target: fetcher.Field(row, pos[1])}
		if w.Source == "" || w.Target == "" {
			return nil, eris.Errorf("crosswalk: line %d: empty GEOID", n+2)
		}
		if w.CountWeight, err = parseWeight(fetcher.Field(row, pos[2])); err != nil {
			return nil, eris.Wrapf(err, "crosswalk: line %d", n+2)
		}
		if w.RateWeight, err = parseWeight(fetcher.Field(row, pos[3])); err != nil {
			return nil, eris.Wrapf(err, "crosswalk: line %d", n+2)
		}
		out = append(out, w)
	}
	return out, nil
}

// ReadWeights reads a weight file.
func ReadWeights(ctx context.Context, path string) ([]Weight, error) {
	header, rows, err := fetcher.ReadRows(ctx, path)
	if err != nil {
		return nil, eris.Wrapf(err, "crosswalk: read %s", path)
	}
	return ParseWeights(header, rows)
}

// WriteWeights writes weights as CSV.
func WriteWeights(w io.Writer, weights []Weight) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColSource, ColTarget, ColCountWeight, ColRateWeight}); err != nil {
		return eris.Wrap(err, "crosswalk: write header")
	}
	for _, wt := range weights {
		rec := []string{
			wt.Source,
			wt.Target,
			strconv.FormatFloat(wt.CountWeight, 'f', -1, 64),
			strconv.FormatFloat(wt.RateWeight, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "crosswalk: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "crosswalk: flush")
}

// parseWeight treats an empty cell as zero, matching a left join filled with 0.
func parseWeight(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Errorf("weight %q is not numeric", s)
	}
	return v, nil
}
