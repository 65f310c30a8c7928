package tiger

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/allocation"
)

// Attribute names tried, in order, for the block identifier and population.
var (
	blockIDFields    = []string{"blockid10", "geoid10", "blkidfp00", "blkidfp", "geoid"}
	populationFields = []string{"pop10", "pop2k", "pop00", "pop"}
)

// ReadBlockPopulations reads block identifiers and populations from the
// attribute table of a tabulation block shapefile.
func ReadBlockPopulations(shpPath string) ([]allocation.BlockPopulation, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "tiger: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	// Build field name → index map.
	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	idCol, ok := firstField(fieldIdx, blockIDFields)
	if !ok {
		return nil, eris.Errorf("tiger: %s has no block id attribute", shpPath)
	}
	popCol, ok := firstField(fieldIdx, populationFields)
	if !ok {
		return nil, eris.Errorf("tiger: %s has no population attribute", shpPath)
	}

	var out []allocation.BlockPopulation
	var skipped int
	for reader.Next() {
		id := attribute(reader, idCol)
		if id == "" {
			skipped++
			continue
		}
		raw := attribute(reader, popCol)
		pop := 0.0
		if raw != "" {
			pop, err = strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, eris.Errorf("tiger: block %s: invalid population %q", id, raw)
			}
		}
		out = append(out, allocation.BlockPopulation{BlockID: id, Population: pop})
	}

	if skipped > 0 {
		zap.L().Debug("tiger: skipped shapefile records without a block id",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	return out, nil
}

func firstField(idx map[string]int, names []string) (int, bool) {
	for _, n := range names {
		if i, ok := idx[n]; ok {
			return i, true
		}
	}
	return 0, false
}

func attribute(r *shp.Reader, i int) string {
	return strings.TrimSpace(strings.TrimRight(r.Attribute(i), "\x00"))
}
