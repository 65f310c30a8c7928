package names

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/fetcher"
	"github.com/sells-group/crosswalk-cli/internal/geoid"
	"github.com/sells-group/crosswalk-cli/internal/table"
)

// Stats counts where display metadata came from.
type Stats struct {
	Records           int
	NamesFromContext  int
	ParentFromRecord  int
	ParentFromContext int
	ParentSynthesized int
}

// Resolver assigns the display name and parent location of every record.
type Resolver struct {
	level  geoid.Level
	lookup *Lookup
	log    *zap.Logger
}

// NewResolver returns a resolver for level. The lookup may be nil when every
// record already carries a parent location or one is found in context.
func NewResolver(level geoid.Level, lookup *Lookup) *Resolver {
	return &Resolver{
		level:  level,
		lookup: lookup,
		log:    zap.L().With(zap.String("component", "names"), zap.String("level", level.String())),
	}
}

// Resolve sets name and parent-location in place. A parent location is
// taken from the record, then from ctx, then synthesized from the lookup.
// A record whose state cannot be resolved fails the whole pass.
func (r *Resolver) Resolve(t *table.Table, ctx map[string]table.Context) (Stats, error) {
	return r.resolve(t, ctx, true)
}

// Names formats display names and takes parent locations from the record or
// ctx only. Records with neither keep an empty parent location.
func (r *Resolver) Names(t *table.Table, ctx map[string]table.Context) Stats {
	stats, _ := r.resolve(t, ctx, false)
	return stats
}

func (r *Resolver) resolve(t *table.Table, ctx map[string]table.Context, synthesize bool) (Stats, error) {
	stats := Stats{Records: t.Len()}
	join := table.JoinStats{Label: "context <- records"}

	for i := range t.Records {
		rec := &t.Records[i]
		c, hasCtx := ctx[rec.GEOID]
		if len(ctx) > 0 {
			join.Add(rec.GEOID, hasCtx)
		}

		name := rec.Name
		if name == "" && hasCtx && c.Name != "" {
			name = c.Name
			stats.NamesFromContext++
		}
		rec.Name = Format(r.level, rec.GEOID, name)

		switch {
		case rec.ParentLocation != "":
			stats.ParentFromRecord++
		case hasCtx && c.ParentLocation != "":
			rec.ParentLocation = c.ParentLocation
			stats.ParentFromContext++
		case !synthesize:
		default:
			parent, err := r.lookup.Parent(r.level, rec.GEOID)
			if err != nil {
				return stats, err
			}
			rec.ParentLocation = parent
			stats.ParentSynthesized++
		}
		rec.ParentLocation = NFC(rec.ParentLocation)
	}
	if len(ctx) > 0 {
		join.Log(r.log)
	}

	r.log.Info("names resolved",
		zap.Int("records", stats.Records),
		zap.Int("names_from_context", stats.NamesFromContext),
		zap.Int("parent_from_context", stats.ParentFromContext),
		zap.Int("parent_synthesized", stats.ParentSynthesized),
	)
	return stats, nil
}

// ParseContext reads GEOID,name,parent-location rows into a context table.
// The first row for a GEOID wins.
func ParseContext(header []string, rows [][]string) (map[string]table.Context, error) {
	idx := fetcher.HeaderIndex(header)
	pos, err := fetcher.RequireColumns(idx, table.ColGEOID)
	if err != nil {
		return nil, eris.Wrap(err, "names: context header")
	}
	nameCol, hasName := idx[table.ColName]
	parentCol, hasParent := idx[table.ColParentLocation]
	if !hasName && !hasParent {
		return nil, eris.New("names: context needs a name or parent-location column")
	}

	out := make(map[string]table.Context, len(rows))
	for _, row := range rows {
		id := strings.TrimSpace(fetcher.Field(row, pos[0]))
		if _, seen := out[id]; seen || id == "" {
			continue
		}
		var c table.Context
		if hasName {
			c.Name = fetcher.Field(row, nameCol)
		}
		if hasParent {
			c.ParentLocation = fetcher.Field(row, parentCol)
		}
		out[id] = c
	}
	return out, nil
}

// ReadContext reads a context file from disk.
func ReadContext(ctx context.Context, path string) (map[string]table.Context, error) {
	header, rows, err := fetcher.ReadRows(ctx, path)
	if err != nil {
		return nil, eris.Wrapf(err, "names: read %s", path)
	}
	return ParseContext(header, rows)
}
