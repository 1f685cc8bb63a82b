package transformer

import (
	"fmt"

	"github.com/tributary-data/tributary/internal/config"
	"github.com/tributary-data/tributary/internal/record"
)

// SourceStats counts what happened to one source's raw batch.
type SourceStats struct {
	Read    int
	Dropped int
}

// Report surfaces per-source record and drop counts for the run summary.
type Report struct {
	Stats map[record.Source]*SourceStats
}

func (r *Report) stats(src record.Source) *SourceStats {
	s, ok := r.Stats[src]
	if !ok {
		s = &SourceStats{}
		r.Stats[src] = s
	}
	return s
}

// TotalDropped sums drop counts across sources.
func (r *Report) TotalDropped() int {
	n := 0
	for _, s := range r.Stats {
		n += s.Dropped
	}
	return n
}

// Transformer coerces raw batches into the fixed normalized schema,
// enriches them with derived fields, and collapses in-batch duplicates.
// It never fails a run: malformed records become drop counts.
type Transformer struct {
	LowThreshold  float64
	HighThreshold float64
	DedupPolicy   string // first | last
}

func New(cfg *config.Config) *Transformer {
	return &Transformer{
		LowThreshold:  cfg.Transform.LowThreshold,
		HighThreshold: cfg.Transform.HighThreshold,
		DedupPolicy:   cfg.Load.DedupPolicy,
	}
}

// Transform merges the per-source raw batches (some possibly absent after
// upstream failures) into one normalized batch. Records whose required
// fields fail coercion are discarded and counted, never passed through
// half-formed.
func (t *Transformer) Transform(batches []record.RawBatch) (record.Batch, *Report) {
	report := &Report{Stats: make(map[record.Source]*SourceStats)}
	var out record.Batch

	for _, batch := range batches {
		stats := report.stats(batch.Source)
		for _, raw := range batch.Records {
			stats.Read++
			norm, err := t.normalize(raw)
			if err != nil {
				stats.Dropped++
				continue
			}
			out = append(out, norm)
		}
	}

	return t.collapse(out, report), report
}

func (t *Transformer) normalize(raw record.Raw) (record.Normalized, error) {
	var n record.Normalized
	var err error

	switch raw.Source {
	case record.SourceAPI:
		n, err = normalizeAPI(raw)
	case record.SourceScrape:
		n, err = normalizeScrape(raw)
	case record.SourceFile:
		n, err = normalizeFile(raw)
	default:
		return n, fmt.Errorf("unknown source %q", raw.Source)
	}
	if err != nil {
		return n, err
	}

	if n.RecordID == "" || n.RecordDate.IsZero() || n.Category == "" {
		return n, fmt.Errorf("required field missing after coercion")
	}

	// Enrichment: period bucket from the date, magnitude class from the measure.
	n.Period = n.RecordDate.UTC().Format("2006-01")
	n.Magnitude = t.magnitude(n.Measure)
	return n, nil
}

func (t *Transformer) magnitude(measure float64) string {
	switch {
	case measure < t.LowThreshold:
		return "low"
	case measure <= t.HighThreshold:
		return "medium"
	default:
		return "high"
	}
}

// collapse removes in-batch duplicates by uniqueness key. The more complete
// record wins a collision; on a tie the configured policy decides.
func (t *Transformer) collapse(batch record.Batch, report *Report) record.Batch {
	seen := make(map[string]int, len(batch))
	var out record.Batch

	for _, n := range batch {
		key := n.Key()
		idx, dup := seen[key]
		if !dup {
			seen[key] = len(out)
			out = append(out, n)
			continue
		}
		report.stats(n.Source).Dropped++
		kept := out[idx]
		if completeness(n) > completeness(kept) ||
			(completeness(n) == completeness(kept) && t.DedupPolicy == "last") {
			out[idx] = n
		}
	}
	return out
}

// completeness counts the fields a record actually carries. Measure is not
// inspected: a coerced zero (0 degrees, a free item) is a value, not a gap.
func completeness(n record.Normalized) int {
	c := 0
	if n.Category != "" {
		c++
	}
	if n.Period != "" {
		c++
	}
	if n.Magnitude != "" {
		c++
	}
	return c
}
