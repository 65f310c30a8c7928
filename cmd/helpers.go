package main

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crosswalk-cli/internal/geoid"
	"github.com/sells-group/crosswalk-cli/internal/schema"
	"github.com/sells-group/crosswalk-cli/internal/store"
)

// parseLevel validates the geography-level argument before anything is read
// or written.
func parseLevel(arg string) (geoid.Level, error) {
	l, err := geoid.ParseLevel(arg)
	if err != nil {
		return "", eris.Wrap(err, "invalid geography level")
	}
	return l, nil
}

// loadSchema returns the schema at path, the configured one, or the
// built-in classification.
func loadSchema(path string) (*schema.Schema, error) {
	if path == "" {
		path = cfg.Schema.Path
	}
	if path == "" {
		return schema.Default(), nil
	}
	return schema.Load(path)
}

// openCache opens and migrates the SQLite weight cache.
func openCache(ctx context.Context, path string) (*store.SQLiteStore, error) {
	if path == "" {
		path = cfg.Cache.Path
	}
	st, err := store.NewSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// createOutput opens path for writing; "" or "-" selects w.
func createOutput(path string, w io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return w, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "create %s", path)
	}
	return f, f.Close, nil
}

// parseYears accepts "2005-2009", "2000,2001" or a single year.
func parseYears(s string) ([]int, error) {
	var out []int
	for _, part := range splitAndTrim(s) {
		if first, last, ok := strings.Cut(part, "-"); ok {
			a, err1 := strconv.Atoi(strings.TrimSpace(first))
			b, err2 := strconv.Atoi(strings.TrimSpace(last))
			if err1 != nil || err2 != nil || b < a {
				return nil, eris.Errorf("invalid year range %q", part)
			}
			for y := a; y <= b; y++ {
				out = append(out, y)
			}
			continue
		}
		y, err := strconv.Atoi(part)
		if err != nil {
			return nil, eris.Errorf("invalid year %q", part)
		}
		out = append(out, y)
	}
	return out, nil
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
