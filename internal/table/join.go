package table

import (
	"go.uber.org/zap"
)

const maxLoggedUnmatched = 20

// JoinStats records how completely one side of a join matched the other.
type JoinStats struct {
	Label     string
	Total     int
	Matched   int
	Unmatched []string
}

// Add counts one left-side key.
func (s *JoinStats) Add(key string, matched bool) {
	s.Total++
	if matched {
		s.Matched++
		return
	}
	s.Unmatched = append(s.Unmatched, key)
}

// Percent returns the matched share as a percentage. An empty join is 100%.
func (s *JoinStats) Percent() float64 {
	if s.Total == 0 {
		return 100
	}
	return 100 * float64(s.Matched) / float64(s.Total)
}

// Log reports the join completeness. Incomplete joins are warnings and list
// a sample of the unmatched keys.
func (s *JoinStats) Log(log *zap.Logger) {
	fields := []zap.Field{
		zap.String("join", s.Label),
		zap.Int("matched", s.Matched),
		zap.Int("total", s.Total),
		zap.Float64("matched_pct", s.Percent()),
	}
	if len(s.Unmatched) == 0 {
		log.Info("join complete", fields...)
		return
	}
	sample := s.Unmatched
	if len(sample) > maxLoggedUnmatched {
		sample = sample[:maxLoggedUnmatched]
	}
	fields = append(fields, zap.Int("unmatched", len(s.Unmatched)), zap.Strings("unmatched_sample", sample))
	log.Warn("join incomplete", fields...)
}
