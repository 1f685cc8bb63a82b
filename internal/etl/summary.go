package etl

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/tributary-data/tributary/internal/record"
)

// SourceResult records what one extractor contributed to a run.
type SourceResult struct {
	Source  record.Source
	Records int   // raw records read
	Dropped int   // records discarded during transform
	Err     error // recorded failure; nil when the source succeeded
}

func (s *SourceResult) String() string {
	if s.Err != nil {
		return fmt.Sprintf("%s: failed (%v)", s.Source, s.Err)
	}
	return fmt.Sprintf("%s: %d read/%d dropped", s.Source, s.Records, s.Dropped)
}

// Summary is the run report handed to the orchestrator. It is produced for
// every run, including failed ones.
type Summary struct {
	RunID    string
	Status   State
	Started  time.Time
	Finished time.Time
	Sources  map[record.Source]*SourceResult
	Loaded   int   // rows written by the loader, in-place updates included
	Err      error // terminal error when Status is Failed
}

// Extracted sums raw records read across all sources.
func (s *Summary) Extracted() int {
	n := 0
	for _, src := range s.Sources {
		if src.Err == nil {
			n += src.Records
		}
	}
	return n
}

// Dropped sums transform-stage discards across all sources.
func (s *Summary) Dropped() int {
	n := 0
	for _, src := range s.Sources {
		n += src.Dropped
	}
	return n
}

func (s *Summary) String() string {
	parts := make([]string, 0, len(s.Sources)+1)
	sources := make([]*SourceResult, 0, len(s.Sources))
	for _, src := range s.Sources {
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Source < sources[j].Source })
	for _, src := range sources {
		parts = append(parts, src.String())
	}
	parts = append(parts, fmt.Sprintf("loaded: %d", s.Loaded))
	return fmt.Sprintf("{%s}", strings.Join(parts, ", "))
}

// Log writes the run summary in one line per source plus totals.
func (s *Summary) Log(logger *log.Logger) {
	logger.Printf("run %s: %s in %v %s", s.RunID, s.Status, s.Finished.Sub(s.Started).Truncate(time.Millisecond), s)
	if s.Err != nil {
		logger.Printf("run %s: cause: %v", s.RunID, s.Err)
	}
}
