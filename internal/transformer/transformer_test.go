package transformer

import (
	"testing"
	"time"

	"github.com/tributary-data/tributary/internal/record"
)

func newTransformer() *Transformer {
	return &Transformer{LowThreshold: 10, HighThreshold: 100, DedupPolicy: "first"}
}

func fileRaw(id, date, amount string) record.Raw {
	return record.Raw{Source: record.SourceFile, Fields: map[string]interface{}{
		"product_id":  id,
		"sale_date":   date,
		"sale_amount": amount,
		"category":    "hardware",
	}}
}

func TestTransformCoercionAndEnrichment(t *testing.T) {
	tr := newTransformer()
	batch, report := tr.Transform([]record.RawBatch{
		{Source: record.SourceFile, Records: []record.Raw{
			fileRaw("101", "2024-03-01", "250.00"),
			fileRaw("102", "2024-03-02", "19.99"),
			fileRaw("103", "2024-03-02", "5.00"),
		}},
	})

	if len(batch) != 3 {
		t.Fatalf("expected 3 records, got %d", len(batch))
	}
	stats := report.Stats[record.SourceFile]
	if stats.Read != 3 || stats.Dropped != 0 {
		t.Fatalf("stats = %+v, want 3 read/0 dropped", stats)
	}

	first := batch[0]
	if first.RecordID != "101" || first.Category != "hardware" || first.Measure != 250.00 {
		t.Errorf("unexpected record: %+v", first)
	}
	if first.Period != "2024-03" {
		t.Errorf("period = %q, want 2024-03", first.Period)
	}
	if first.Magnitude != "high" {
		t.Errorf("magnitude = %q, want high (measure 250 > 100)", first.Magnitude)
	}
	if batch[1].Magnitude != "medium" {
		t.Errorf("magnitude = %q, want medium (10 <= 19.99 <= 100)", batch[1].Magnitude)
	}
	if batch[2].Magnitude != "low" {
		t.Errorf("magnitude = %q, want low (5 < 10)", batch[2].Magnitude)
	}
}

func TestTransformDropsMalformedRecords(t *testing.T) {
	tr := newTransformer()
	batch, report := tr.Transform([]record.RawBatch{
		{Source: record.SourceFile, Records: []record.Raw{
			fileRaw("101", "2024-03-01", "250.00"),
			fileRaw("102", "not-a-date", "19.99"),
			fileRaw("103", "2024-03-02", "not-a-number"),
		}},
	})

	if len(batch) != 1 {
		t.Fatalf("expected 1 record after drops, got %d", len(batch))
	}
	stats := report.Stats[record.SourceFile]
	if stats.Read != 3 || stats.Dropped != 2 {
		t.Fatalf("stats = %+v, want 3 read/2 dropped", stats)
	}
	if report.TotalDropped() != 2 {
		t.Fatalf("TotalDropped = %d, want 2", report.TotalDropped())
	}
}

func TestTransformUnifiesSources(t *testing.T) {
	observed := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	tr := newTransformer()
	batch, _ := tr.Transform([]record.RawBatch{
		{Source: record.SourceAPI, Records: []record.Raw{{
			Source: record.SourceAPI,
			Fields: map[string]interface{}{
				"city": "London", "temperature": 18.5, "condition": "light rain",
				"humidity": 72.0, "wind_speed": 4.1, "observed_at": observed,
			},
		}}},
		{Source: record.SourceScrape, Records: []record.Raw{{
			Source: record.SourceScrape,
			Fields: map[string]interface{}{
				"title": "A Light in the Attic", "price": "£51.77",
				"availability": "In stock", "observed_at": observed,
			},
		}}},
	})

	if len(batch) != 2 {
		t.Fatalf("expected 2 records, got %d", len(batch))
	}
	for _, n := range batch {
		if n.RecordID == "" || n.Category == "" || n.RecordDate.IsZero() || n.Period == "" || n.Magnitude == "" {
			t.Errorf("record missing required fields: %+v", n)
		}
	}
	var scraped record.Normalized
	for _, n := range batch {
		if n.Source == record.SourceScrape {
			scraped = n
		}
	}
	if scraped.Measure != 51.77 {
		t.Errorf("scraped measure = %v, want 51.77 (currency glyph stripped)", scraped.Measure)
	}
}

func TestTransformCollapsesDuplicatesFirstWins(t *testing.T) {
	tr := newTransformer()
	batch, report := tr.Transform([]record.RawBatch{
		{Source: record.SourceFile, Records: []record.Raw{
			fileRaw("101", "2024-03-01", "250.00"),
			fileRaw("101", "2024-03-01", "99.00"),
		}},
	})

	if len(batch) != 1 {
		t.Fatalf("expected 1 record after collapse, got %d", len(batch))
	}
	if batch[0].Measure != 250.00 {
		t.Errorf("measure = %v, want 250.00 (first wins)", batch[0].Measure)
	}
	if report.Stats[record.SourceFile].Dropped != 1 {
		t.Errorf("dropped = %d, want 1", report.Stats[record.SourceFile].Dropped)
	}
}

func TestTransformCollapsesDuplicatesLastWins(t *testing.T) {
	tr := newTransformer()
	tr.DedupPolicy = "last"
	batch, _ := tr.Transform([]record.RawBatch{
		{Source: record.SourceFile, Records: []record.Raw{
			fileRaw("101", "2024-03-01", "250.00"),
			fileRaw("101", "2024-03-01", "99.00"),
		}},
	})

	if len(batch) != 1 {
		t.Fatalf("expected 1 record after collapse, got %d", len(batch))
	}
	if batch[0].Measure != 99.00 {
		t.Errorf("measure = %v, want 99.00 (last wins)", batch[0].Measure)
	}
}

func TestTransformZeroMeasureDuplicateHonorsPolicy(t *testing.T) {
	// A coerced zero measure is a legitimate value, so a zero-measure
	// duplicate is just as complete as the row it collides with and the
	// configured policy decides.
	tr := newTransformer()
	tr.DedupPolicy = "last"
	batch, _ := tr.Transform([]record.RawBatch{
		{Source: record.SourceFile, Records: []record.Raw{
			fileRaw("101", "2024-03-01", "250.00"),
			fileRaw("101", "2024-03-01", "0"),
		}},
	})

	if len(batch) != 1 {
		t.Fatalf("expected 1 record after collapse, got %d", len(batch))
	}
	if batch[0].Measure != 0 {
		t.Errorf("measure = %v, want 0 (last write wins, zero is a value)", batch[0].Measure)
	}

	tr.DedupPolicy = "first"
	batch, _ = tr.Transform([]record.RawBatch{
		{Source: record.SourceFile, Records: []record.Raw{
			fileRaw("101", "2024-03-01", "250.00"),
			fileRaw("101", "2024-03-01", "0"),
		}},
	})
	if batch[0].Measure != 250.00 {
		t.Errorf("measure = %v, want 250.00 (first write wins)", batch[0].Measure)
	}
}

func TestCollapseKeepsMoreCompleteRecord(t *testing.T) {
	tr := newTransformer()
	tr.DedupPolicy = "last"
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	full := record.Normalized{
		Source: record.SourceFile, RecordID: "101", RecordDate: date,
		Category: "hardware", Measure: 250, Period: "2024-03", Magnitude: "high",
	}
	sparse := full
	sparse.Measure = 99
	sparse.Magnitude = ""

	report := &Report{Stats: make(map[record.Source]*SourceStats)}
	out := tr.collapse(record.Batch{full, sparse}, report)
	if len(out) != 1 {
		t.Fatalf("expected 1 record after collapse, got %d", len(out))
	}
	if out[0].Measure != 250 {
		t.Errorf("measure = %v, want 250 (sparser record must not displace a fuller one)", out[0].Measure)
	}
}

func TestTransformEmptySourceDegrades(t *testing.T) {
	tr := newTransformer()
	batch, report := tr.Transform([]record.RawBatch{
		{Source: record.SourceAPI}, // extractor delivered nothing
		{Source: record.SourceFile, Records: []record.Raw{
			fileRaw("101", "2024-03-01", "250.00"),
		}},
	})

	if len(batch) != 1 {
		t.Fatalf("expected 1 record, got %d", len(batch))
	}
	if stats := report.Stats[record.SourceAPI]; stats.Read != 0 || stats.Dropped != 0 {
		t.Errorf("api stats = %+v, want zeroes", stats)
	}
}

func TestKeyDistinguishesSources(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	a := record.Normalized{Source: record.SourceAPI, RecordID: "x", RecordDate: date}
	b := record.Normalized{Source: record.SourceFile, RecordID: "x", RecordDate: date}
	if a.Key() == b.Key() {
		t.Fatal("records from different sources must not share a uniqueness key")
	}
	if a.Key() != (record.Normalized{Source: record.SourceAPI, RecordID: "x", RecordDate: date.Add(3 * time.Hour)}).Key() {
		t.Fatal("same-day records must share a uniqueness key regardless of time of day")
	}
}
