package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tributary-data/tributary/internal/config"
	"github.com/tributary-data/tributary/internal/record"
)

// APIExtractor polls a weather-shaped JSON endpoint for the current
// conditions of one city and emits a single raw record per run.
type APIExtractor struct {
	URL    string
	Key    string
	City   string
	Units  string
	Client *http.Client
}

func NewAPIExtractor(cfg *config.Config) (Extractor, error) {
	timeout := cfg.API.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &APIExtractor{
		URL:    cfg.API.URL,
		Key:    cfg.API.Key,
		City:   cfg.API.City,
		Units:  cfg.API.Units,
		Client: &http.Client{Timeout: timeout},
	}, nil
}

func (a *APIExtractor) Source() record.Source { return record.SourceAPI }

// apiResponse mirrors the subset of the endpoint's body the pipeline needs.
type apiResponse struct {
	Name string `json:"name"`
	Main *struct {
		Temp     *float64 `json:"temp"`
		Humidity *float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind *struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	Dt int64 `json:"dt"`
}

func (a *APIExtractor) Extract(ctx context.Context) (record.RawBatch, error) {
	batch := record.RawBatch{Source: record.SourceAPI}

	if a.Key == "" {
		return batch, fmt.Errorf("api: no API key configured: %w", record.ErrSourceUnavailable)
	}

	u, err := url.Parse(a.URL)
	if err != nil {
		return batch, fmt.Errorf("api: bad endpoint URL %q: %w", a.URL, record.ErrSourceUnavailable)
	}
	q := u.Query()
	q.Set("q", a.City)
	q.Set("appid", a.Key)
	q.Set("units", a.Units)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return batch, fmt.Errorf("api: build request: %w", err)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return batch, fmt.Errorf("api: request failed: %v: %w", err, record.ErrSourceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return batch, fmt.Errorf("api: status %d: %s: %w", resp.StatusCode, body, record.ErrSourceUnavailable)
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return batch, fmt.Errorf("api: decode body: %v: %w", err, record.ErrSchemaMismatch)
	}

	if parsed.Name == "" || parsed.Main == nil || parsed.Main.Temp == nil ||
		parsed.Main.Humidity == nil || len(parsed.Weather) == 0 || parsed.Wind == nil || parsed.Wind.Speed == nil {
		return batch, fmt.Errorf("api: response missing expected fields: %w", record.ErrSchemaMismatch)
	}

	observed := time.Unix(parsed.Dt, 0).UTC()
	if parsed.Dt == 0 {
		observed = time.Now().UTC()
	}

	batch.Records = append(batch.Records, record.Raw{
		Source: record.SourceAPI,
		Fields: map[string]interface{}{
			"city":        parsed.Name,
			"temperature": *parsed.Main.Temp,
			"condition":   parsed.Weather[0].Description,
			"humidity":    *parsed.Main.Humidity,
			"wind_speed":  *parsed.Wind.Speed,
			"observed_at": observed,
		},
	})
	return batch, nil
}

func init() {
	Register("api", NewAPIExtractor)
}
