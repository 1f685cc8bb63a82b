package extractor

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/tributary-data/tributary/internal/config"
	"github.com/tributary-data/tributary/internal/record"
)

// ScrapeExtractor fetches an HTML product-listing page and extracts one raw
// record per listing via structural selectors. A malformed listing is
// skipped; a page with none of the expected structure is a parse failure.
type ScrapeExtractor struct {
	URL    string
	Client *http.Client

	// now is swappable so tests get deterministic observation dates.
	now func() time.Time
}

func NewScrapeExtractor(cfg *config.Config) (Extractor, error) {
	timeout := cfg.Scrape.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ScrapeExtractor{
		URL:    cfg.Scrape.URL,
		Client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}, nil
}

func (s *ScrapeExtractor) Source() record.Source { return record.SourceScrape }

func (s *ScrapeExtractor) Extract(ctx context.Context) (record.RawBatch, error) {
	batch := record.RawBatch{Source: record.SourceScrape}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return batch, fmt.Errorf("scrape: build request: %w", err)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return batch, fmt.Errorf("scrape: fetch %s: %v: %w", s.URL, err, record.ErrSourceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return batch, fmt.Errorf("scrape: status %d from %s: %w", resp.StatusCode, s.URL, record.ErrSourceUnavailable)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return batch, fmt.Errorf("scrape: parse HTML: %v: %w", err, record.ErrParseError)
	}

	listings := doc.Find("article.product_pod")
	if listings.Length() == 0 {
		// Site layout changed out from under us.
		return batch, fmt.Errorf("scrape: no product listings found at %s: %w", s.URL, record.ErrParseError)
	}

	// Scraped listings carry no date of their own; stamp them with the
	// observation date so they get a meaningful uniqueness key.
	observed := s.now().UTC().Truncate(24 * time.Hour)

	listings.Each(func(_ int, sel *goquery.Selection) {
		title, ok := sel.Find("h3 a").Attr("title")
		if !ok || title == "" {
			return // skip malformed listing
		}
		price := strings.TrimSpace(sel.Find("p.price_color").Text())
		availability := strings.TrimSpace(sel.Find("p.instock.availability").Text())

		batch.Records = append(batch.Records, record.Raw{
			Source: record.SourceScrape,
			Fields: map[string]interface{}{
				"title":        title,
				"price":        price,
				"availability": availability,
				"observed_at":  observed,
			},
		})
	})
	return batch, nil
}

func init() {
	Register("scrape", NewScrapeExtractor)
}
