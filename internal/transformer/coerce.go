package transformer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tributary-data/tributary/internal/record"
)

// Date layouts accepted from the delimited source, most common first.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
}

func normalizeFile(raw record.Raw) (record.Normalized, error) {
	n := record.Normalized{Source: record.SourceFile}

	id, err := fieldString(raw, "product_id")
	if err != nil {
		return n, err
	}
	n.RecordID = id

	date, err := fieldDate(raw, "sale_date")
	if err != nil {
		return n, err
	}
	n.RecordDate = date

	amount, err := fieldFloat(raw, "sale_amount")
	if err != nil {
		return n, err
	}
	n.Measure = amount

	// Category column is optional in the file; fall back to a fixed tag.
	if cat, err := fieldString(raw, "category"); err == nil {
		n.Category = cat
	} else {
		n.Category = "sales"
	}
	return n, nil
}

func normalizeAPI(raw record.Raw) (record.Normalized, error) {
	n := record.Normalized{Source: record.SourceAPI}

	city, err := fieldString(raw, "city")
	if err != nil {
		return n, err
	}
	n.RecordID = city

	date, err := fieldDate(raw, "observed_at")
	if err != nil {
		return n, err
	}
	n.RecordDate = date

	temp, err := fieldFloat(raw, "temperature")
	if err != nil {
		return n, err
	}
	n.Measure = temp

	cond, err := fieldString(raw, "condition")
	if err != nil {
		return n, err
	}
	n.Category = cond
	return n, nil
}

func normalizeScrape(raw record.Raw) (record.Normalized, error) {
	n := record.Normalized{Source: record.SourceScrape}

	title, err := fieldString(raw, "title")
	if err != nil {
		return n, err
	}
	n.RecordID = title

	date, err := fieldDate(raw, "observed_at")
	if err != nil {
		return n, err
	}
	n.RecordDate = date

	price, err := fieldPrice(raw, "price")
	if err != nil {
		return n, err
	}
	n.Measure = price

	avail, err := fieldString(raw, "availability")
	if err != nil {
		return n, err
	}
	n.Category = avail
	return n, nil
}

func fieldString(raw record.Raw, key string) (string, error) {
	v, ok := raw.Fields[key]
	if !ok {
		return "", fmt.Errorf("field %q missing", key)
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("field %q empty or not a string", key)
	}
	return strings.TrimSpace(s), nil
}

func fieldFloat(raw record.Raw, key string) (float64, error) {
	v, ok := raw.Fields[key]
	if !ok {
		return 0, fmt.Errorf("field %q missing", key)
	}
	switch val := v.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("field %q: %v", key, err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("field %q has unsupported type %T", key, v)
}

func fieldDate(raw record.Raw, key string) (time.Time, error) {
	v, ok := raw.Fields[key]
	if !ok {
		return time.Time{}, fmt.Errorf("field %q missing", key)
	}
	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return time.Time{}, fmt.Errorf("field %q is zero time", key)
		}
		return val.UTC(), nil
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("field %q: unparsable date %q", key, s)
	}
	return time.Time{}, fmt.Errorf("field %q has unsupported type %T", key, v)
}

// fieldPrice parses a numeric field that may carry a leading currency glyph,
// e.g. the scraped "£51.77".
func fieldPrice(raw record.Raw, key string) (float64, error) {
	v, ok := raw.Fields[key]
	if !ok {
		return 0, fmt.Errorf("field %q missing", key)
	}
	s, ok := v.(string)
	if !ok {
		return fieldFloat(raw, key)
	}
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "£$€")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("field %q: unparsable price %q", key, v)
	}
	return f, nil
}
