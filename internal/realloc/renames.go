package realloc

import (
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/table"
)

// ApplyRenames rewrites the GEOID of every record matched by renames in
// place. Name and parent location are replaced when the rename carries them.
// Returns the number of records renamed.
func ApplyRenames(t *table.Table, renames *crosswalk.RenameTable) int {
	if renames.Len() == 0 {
		return 0
	}
	var n int
	for i := range t.Records {
		rec := &t.Records[i]
		ren, ok := renames.Lookup(rec.GEOID)
		if !ok {
			continue
		}
		rec.GEOID = ren.To
		if ren.Name != "" {
			rec.Name = ren.Name
		}
		if ren.ParentLocation != "" {
			rec.ParentLocation = ren.ParentLocation
		}
		n++
	}
	if n > 0 {
		zap.L().Info("renamed records", zap.String("component", "realloc"), zap.Int("renamed", n))
	}
	return n
}
