package extractor

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dsnet/compress/bzip2"

	"github.com/tributary-data/tributary/internal/config"
	"github.com/tributary-data/tributary/internal/record"
)

// Columns the delimited file must carry. Anything beyond these is passed
// through as-is for the transformer to ignore or use.
var requiredColumns = []string{"product_id", "sale_date", "sale_amount"}

// FileExtractor reads a delimited local file into raw records. Files ending
// in .gz or .bz2 are decompressed transparently.
type FileExtractor struct {
	Path      string
	Delimiter rune
}

func NewFileExtractor(cfg *config.Config) (Extractor, error) {
	delim := ','
	if cfg.File.Delimiter != "" {
		delim = rune(cfg.File.Delimiter[0])
	}
	return &FileExtractor{Path: cfg.File.Path, Delimiter: delim}, nil
}

func (f *FileExtractor) Source() record.Source { return record.SourceFile }

func (f *FileExtractor) Extract(ctx context.Context) (record.RawBatch, error) {
	batch := record.RawBatch{Source: record.SourceFile}

	file, err := os.Open(f.Path)
	if err != nil {
		return batch, fmt.Errorf("file: open %s: %v: %w", f.Path, err, record.ErrSourceUnavailable)
	}
	defer file.Close()

	reader, err := decompressed(file, f.Path)
	if err != nil {
		return batch, fmt.Errorf("file: open archive %s: %v: %w", f.Path, err, record.ErrSourceUnavailable)
	}

	cr := csv.NewReader(reader)
	cr.Comma = f.Delimiter
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return batch, fmt.Errorf("file: %s is empty: %w", f.Path, record.ErrSchemaMismatch)
	}
	if err != nil {
		return batch, fmt.Errorf("file: read header: %v: %w", err, record.ErrParseError)
	}
	for i, col := range header {
		header[i] = strings.ToLower(strings.TrimSpace(col))
	}
	for _, want := range requiredColumns {
		if !contains(header, want) {
			return batch, fmt.Errorf("file: missing column %q in %s: %w", want, f.Path, record.ErrSchemaMismatch)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// csv.Reader flags per-row column-count drift against the header.
			var pe *csv.ParseError
			if errors.As(err, &pe) && errors.Is(pe.Err, csv.ErrFieldCount) {
				return batch, fmt.Errorf("file: row %d column count mismatch: %w", pe.Line, record.ErrSchemaMismatch)
			}
			return batch, fmt.Errorf("file: read row: %v: %w", err, record.ErrParseError)
		}
		fields := make(map[string]interface{}, len(header))
		for i, col := range header {
			fields[col] = strings.TrimSpace(row[i])
		}
		batch.Records = append(batch.Records, record.Raw{Source: record.SourceFile, Fields: fields})
	}
	return batch, nil
}

// decompressed wraps r according to the path's extension.
func decompressed(r io.Reader, path string) (io.Reader, error) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		return bufio.NewReader(gr), nil
	case strings.HasSuffix(path, ".bz2"):
		br, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, err
		}
		return bufio.NewReader(br), nil
	}
	return bufio.NewReader(r), nil
}

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}

func init() {
	Register("file", NewFileExtractor)
}
