package etl_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/tributary-data/tributary/internal/config"
	"github.com/tributary-data/tributary/internal/dashboard"
	"github.com/tributary-data/tributary/internal/etl"
	"github.com/tributary-data/tributary/internal/record"
)

const weatherBody = `{
	"name": "London",
	"main": {"temp": 18.5, "humidity": 72},
	"weather": [{"description": "light rain"}],
	"wind": {"speed": 4.1},
	"dt": 1709290800
}`

const listingsPage = `<html><body>
<article class="product_pod">
  <h3><a title="A Light in the Attic" href="#">A Light ...</a></h3>
  <p class="price_color">£51.77</p>
  <p class="instock availability">In stock</p>
</article>
<article class="product_pod">
  <h3><a title="Tipping the Velvet" href="#">Tipping ...</a></h3>
  <p class="price_color">£53.74</p>
  <p class="instock availability">In stock</p>
</article>
</body></html>`

// salesCSV carries three rows, one with a malformed date.
const salesCSV = `product_id,sale_date,sale_amount,category
101,2024-03-01,250.00,hardware
102,03 Marzipan 2024,19.99,software
103,2024-03-02,75.50,hardware
`

func testConfig(t *testing.T, apiURL, scrapeURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "sales.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(salesCSV), 0o644))

	return &config.Config{
		API: config.APIConfig{
			URL: apiURL, Key: "test-key", City: "London", Units: "metric", Timeout: 2 * time.Second,
		},
		Scrape: config.ScrapeConfig{URL: scrapeURL, Timeout: 2 * time.Second},
		File:   config.FileConfig{Path: csvPath, Delimiter: ","},
		Store: config.StoreConfig{
			Path:  filepath.Join(dir, "store.db"),
			Table: "unified_records",
		},
		Load:      config.LoadConfig{Mode: "append", DedupPolicy: "first"},
		Transform: config.TransformConfig{LowThreshold: 10, HighThreshold: 100},
	}
}

func rowCount(t *testing.T, cfg *config.Config) int {
	t.Helper()
	db, err := sql.Open("sqlite3", cfg.Store.Path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM unified_records").Scan(&n))
	return n
}

func TestFullRunAllSources(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, weatherBody)
	}))
	defer apiSrv.Close()
	scrapeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, listingsPage)
	}))
	defer scrapeSrv.Close()

	cfg := testConfig(t, apiSrv.URL, scrapeSrv.URL)
	runner, err := etl.NewRunner(cfg, log.New(io.Discard, "", 0))
	require.NoError(t, err)

	summary := runner.Run(context.Background())
	require.Equal(t, etl.StateSucceeded, summary.Status)

	// 1 weather + 2 books + 2 valid sales rows (one date fails coercion).
	require.Equal(t, 5, summary.Loaded)
	require.Equal(t, 1, summary.Sources[record.SourceAPI].Records)
	require.Equal(t, 2, summary.Sources[record.SourceScrape].Records)
	require.Equal(t, 3, summary.Sources[record.SourceFile].Records)
	require.Equal(t, 1, summary.Sources[record.SourceFile].Dropped)
	require.Equal(t, 5, rowCount(t, cfg))

	// Append mode is idempotent: a second identical run adds nothing.
	runner2, err := etl.NewRunner(cfg, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	summary2 := runner2.Run(context.Background())
	require.Equal(t, etl.StateSucceeded, summary2.Status)
	require.Equal(t, 0, summary2.Loaded)
	require.Equal(t, 5, rowCount(t, cfg))
}

// TestRunWithAPIDown covers the degraded scenario: the API is unreachable,
// the scraped page lost its layout, and one file row has a malformed date.
// The run still succeeds with the file's two valid rows.
func TestRunWithAPIDown(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	apiSrv.Close() // unreachable
	scrapeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html><body><p>redesigned</p></body></html>")
	}))
	defer scrapeSrv.Close()

	cfg := testConfig(t, apiSrv.URL, scrapeSrv.URL)
	runner, err := etl.NewRunner(cfg, log.New(io.Discard, "", 0))
	require.NoError(t, err)

	summary := runner.Run(context.Background())
	require.Equal(t, etl.StateSucceeded, summary.Status)
	require.Equal(t, 2, summary.Loaded)

	require.Error(t, summary.Sources[record.SourceAPI].Err)
	require.True(t, errors.Is(summary.Sources[record.SourceAPI].Err, record.ErrSourceUnavailable))
	require.True(t, errors.Is(summary.Sources[record.SourceScrape].Err, record.ErrParseError))
	require.Equal(t, 3, summary.Sources[record.SourceFile].Records)
	require.Equal(t, 1, summary.Sources[record.SourceFile].Dropped)

	require.Equal(t, "{api: failed ("+summary.Sources[record.SourceAPI].Err.Error()+"), file: 3 read/1 dropped, scrape: failed ("+summary.Sources[record.SourceScrape].Err.Error()+"), loaded: 2}", summary.String())
}

func TestRunAllSourcesDownLeavesStoreUntouched(t *testing.T) {
	deadSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadSrv.Close()

	cfg := testConfig(t, deadSrv.URL, deadSrv.URL)
	cfg.File.Path = filepath.Join(t.TempDir(), "missing.csv")

	// Seed the store first so we can observe it is untouched.
	seedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, weatherBody)
	}))
	seedCfg := *cfg
	seedCfg.API = config.APIConfig{URL: seedSrv.URL, Key: "k", City: "London", Units: "metric", Timeout: 2 * time.Second}
	seedRunner, err := etl.NewRunner(&seedCfg, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	require.Equal(t, etl.StateSucceeded, seedRunner.Run(context.Background()).Status)
	seedSrv.Close()
	before := rowCount(t, cfg)
	require.Equal(t, 1, before)

	runner, err := etl.NewRunner(cfg, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	summary := runner.Run(context.Background())

	require.Equal(t, etl.StateFailed, summary.Status)
	require.True(t, errors.Is(summary.Err, record.ErrNoSourcesAvailable))
	require.Equal(t, before, rowCount(t, cfg))
}

func TestDashboardOverLoadedStore(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, weatherBody)
	}))
	defer apiSrv.Close()
	scrapeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, listingsPage)
	}))
	defer scrapeSrv.Close()

	cfg := testConfig(t, apiSrv.URL, scrapeSrv.URL)
	runner, err := etl.NewRunner(cfg, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	require.Equal(t, etl.StateSucceeded, runner.Run(context.Background()).Status)

	srv := dashboard.New(cfg, log.New(io.Discard, "", 0))
	require.NoError(t, srv.Open())
	defer srv.Close()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/records?source=file")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rows []dashboard.Row
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.Equal(t, "file", row.Source)
		require.NotEmpty(t, row.Period)
		require.NotEmpty(t, row.LoadedAt)
	}
}
