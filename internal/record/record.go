package record

import "time"

// Source identifies which extractor produced a record.
type Source string

const (
	SourceAPI    Source = "api"
	SourceScrape Source = "scrape"
	SourceFile   Source = "file"
)

// Raw is one source-shaped record as emitted by an extractor. Field names
// and value types vary per source; values are scalars (string, float64, int,
// time.Time).
type Raw struct {
	Source Source
	Fields map[string]interface{}
}

// RawBatch is the output of one extractor for one run.
type RawBatch struct {
	Source  Source
	Records []Raw
}

// Normalized is the fixed target shape every record is coerced into before
// it leaves the transformer. All fields are required; Period and Magnitude
// are derived during enrichment.
type Normalized struct {
	RecordID   string
	RecordDate time.Time
	Category   string
	Measure    float64
	Period     string // YYYY-MM bucket of RecordDate
	Magnitude  string // low | medium | high class of Measure
	Source     Source
}

// Key returns the uniqueness key identifying a logically distinct record.
// Two rows with the same key are duplicates for de-duplication purposes.
func (n Normalized) Key() string {
	return string(n.Source) + "\x1f" + n.RecordID + "\x1f" + n.RecordDate.UTC().Format("2006-01-02")
}

// Batch is an ordered sequence of normalized records. Order carries no
// meaning, only multiplicity.
type Batch []Normalized
