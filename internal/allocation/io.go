package allocation

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crosswalk-cli/internal/fetcher"
	"github.com/sells-group/crosswalk-cli/internal/geoid"
)

// Geocorr column names (MCDC geocorr2000 block export).
const (
	colCounty = "county"
	colTract  = "tract"
	colBlock  = "block"
	colPop    = "pop2k"
)

// Factor file column names.
const (
	colAggregate = "GEOID"
	colBlockID   = "GEOID00"
	colAfact     = "afact"
)

// ParseGeocorr builds block populations from a geocorr header and rows. The
// county column holds the five-digit state+county code; tracts may carry a
// decimal point.
func ParseGeocorr(header []string, rows [][]string) ([]BlockPopulation, error) {
	pos, err := fetcher.RequireColumns(fetcher.HeaderIndex(header), colCounty, colTract, colBlock, colPop)
	if err != nil {
		return nil, eris.Wrap(err, "allocation: geocorr header")
	}

	out := make([]BlockPopulation, 0, len(rows))
	for n, row := range rows {
		county := geoid.Pad(fetcher.Field(row, pos[0]), geoid.Counties.Len())
		if len(county) != geoid.Counties.Len() {
			return nil, eris.Errorf("allocation: line %d: county %q is not a 5-digit code", n+2, county)
		}
		id, err := geoid.BlockID(county[:2], county[2:], fetcher.Field(row, pos[1]), fetcher.Field(row, pos[2]))
		if err != nil {
			return nil, eris.Wrapf(err, "allocation: line %d", n+2)
		}
		pop, err := parsePopulation(fetcher.Field(row, pos[3]))
		if err != nil {
			return nil, eris.Wrapf(err, "allocation: line %d", n+2)
		}
		out = append(out, BlockPopulation{BlockID: id, Population: pop})
	}
	return out, nil
}

// ReadGeocorr reads block populations from a CSV, XLSX or ZIP geocorr file.
func ReadGeocorr(ctx context.Context, path string) ([]BlockPopulation, error) {
	header, rows, err := fetcher.ReadRows(ctx, path)
	if err != nil {
		return nil, eris.Wrapf(err, "allocation: read %s", path)
	}
	return ParseGeocorr(header, rows)
}

// IsFactorHeader reports whether a header describes a factor file rather
// than raw populations.
func IsFactorHeader(header []string) bool {
	_, ok := fetcher.HeaderIndex(header)[colAfact]
	return ok
}

// ParseFactors reads factors previously written by WriteFactors.
func ParseFactors(header []string, rows [][]string) ([]Factor, error) {
	pos, err := fetcher.RequireColumns(fetcher.HeaderIndex(header), colAggregate, colBlockID, colPop, colAfact)
	if err != nil {
		return nil, eris.Wrap(err, "allocation: factor header")
	}

	out := make([]Factor, 0, len(rows))
	for n, row := range rows {
		f := Factor{
			AggregateID: fetcher.Field(row, pos[0]),
			BlockID:     fetcher.Field(row, pos[1]),
		}
		if err := geoid.Validate(f.BlockID, geoid.Blocks); err != nil {
			return nil, eris.Wrapf(err, "allocation: line %d", n+2)
		}
		if f.Population, err = parsePopulation(fetcher.Field(row, pos[2])); err != nil {
			return nil, eris.Wrapf(err, "allocation: line %d", n+2)
		}
		if f.Afact, err = strconv.ParseFloat(fetcher.Field(row, pos[3]), 64); err != nil {
			return nil, eris.Wrapf(err, "allocation: line %d: afact", n+2)
		}
		out = append(out, f)
	}
	return out, nil
}

// WriteFactors writes factors as CSV with header GEOID,GEOID00,pop2k,afact.
func WriteFactors(w io.Writer, factors []Factor) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{colAggregate, colBlockID, colPop, colAfact}); err != nil {
		return eris.Wrap(err, "allocation: write header")
	}
	for _, f := range factors {
		rec := []string{
			f.AggregateID,
			f.BlockID,
			strconv.FormatFloat(f.Population, 'f', -1, 64),
			strconv.FormatFloat(f.Afact, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "allocation: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "allocation: flush")
}

// parsePopulation treats an empty cell as zero population.
func parsePopulation(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Errorf("population %q is not numeric", s)
	}
	if v < 0 {
		return 0, eris.Errorf("population %q is negative", s)
	}
	return v, nil
}
