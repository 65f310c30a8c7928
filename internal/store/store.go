// Package store caches derived crosswalk weight sets in a local SQLite
// database so that repeated reallocation runs skip weight derivation.
package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/geoid"
)

// ErrNotFound is returned when no weight set exists for a key.
var ErrNotFound = errors.New("store: weight set not found")

// SetKey identifies a weight set. Fingerprint identifies the correspondence
// inputs the set was derived from; an empty Fingerprint in a lookup matches
// the latest set for the level and vintages.
type SetKey struct {
	Level         geoid.Level
	SourceVintage int
	TargetVintage int
	Fingerprint   string
}

// Fingerprint returns the SHA-256 hex digest of the contents of the files at
// paths, in order.
func Fingerprint(paths ...string) (string, error) {
	h := sha256.New()
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return "", eris.Wrapf(err, "store: open %s", path)
		}
		_, err = io.Copy(h, f)
		f.Close() //nolint:errcheck
		if err != nil {
			return "", eris.Wrapf(err, "store: hash %s", path)
		}
		// File separator.
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// SetInfo describes a stored weight set.
type SetInfo struct {
	ID        string
	Key       SetKey
	CreatedAt time.Time
	RowCount  int
}

// WeightCache defines the persistence interface for derived weights.
type WeightCache interface {
	// Put replaces the weight set stored for the key's level and vintages.
	Put(ctx context.Context, key SetKey, weights []crosswalk.Weight) (*SetInfo, error)
	// Get returns the latest weight set stored under key.
	Get(ctx context.Context, key SetKey) ([]crosswalk.Weight, *SetInfo, error)
	// List returns every stored set, newest first.
	List(ctx context.Context) ([]SetInfo, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
