package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ReadRows reads a header and data rows from a local file. The format is
// chosen by extension: .csv, .xlsx, or .zip holding a CSV. A path of "-"
// reads CSV from stdin.
func ReadRows(ctx context.Context, path string) ([]string, [][]string, error) {
	if path == "-" {
		return ReadCSV(ctx, os.Stdin)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSXTable(path)
	case ".zip":
		entry, err := FindZIPEntry(path, ".csv")
		if err != nil {
			return nil, nil, err
		}
		dir, err := os.MkdirTemp("", "crosswalk-zip-")
		if err != nil {
			return nil, nil, eris.Wrap(err, "fetcher: create temp dir")
		}
		defer os.RemoveAll(dir) //nolint:errcheck

		extracted, err := ExtractZIPFile(path, entry, dir)
		if err != nil {
			return nil, nil, err
		}
		return readCSVFile(ctx, extracted)
	default:
		return readCSVFile(ctx, path)
	}
}

func readCSVFile(ctx context.Context, path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	header, rows, err := ReadCSV(ctx, f)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "fetcher: read %s", path)
	}
	return header, rows, nil
}

// HeaderIndex maps each trimmed header name to its column position.
func HeaderIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

// RequireColumns returns the positions of the named columns, failing on the
// first one missing from idx.
func RequireColumns(idx map[string]int, names ...string) ([]int, error) {
	out := make([]int, len(names))
	for i, n := range names {
		pos, ok := idx[n]
		if !ok {
			return nil, eris.Errorf("fetcher: missing required column %q", n)
		}
		out[i] = pos
	}
	return out, nil
}

// Field returns row[i] or "" when the row is short.
func Field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
