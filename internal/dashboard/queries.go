package dashboard

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const defaultLimit = 500

// Row is one stored record as served to dashboard clients.
type Row struct {
	Source     string  `json:"source"`
	RecordID   string  `json:"record_id"`
	RecordDate string  `json:"record_date"`
	Category   string  `json:"category"`
	Measure    float64 `json:"measure"`
	Period     string  `json:"period"`
	Magnitude  string  `json:"magnitude"`
	LoadedAt   string  `json:"loaded_at"`
}

// recordsHandler lists stored rows, filterable by source, category and a
// record_date range.
func (s *Server) recordsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	query := fmt.Sprintf(`SELECT source, record_id, record_date, category, measure, period, magnitude, loaded_at
        FROM %s WHERE 1=1`, s.Table)
	var args []interface{}

	if src := r.URL.Query().Get("source"); src != "" {
		query += " AND source = ?"
		args = append(args, src)
	}
	if cat := r.URL.Query().Get("category"); cat != "" {
		query += " AND category = ?"
		args = append(args, cat)
	}
	for _, bound := range []struct{ param, op string }{{"from", ">="}, {"to", "<="}} {
		val := r.URL.Query().Get(bound.param)
		if val == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", val); err != nil {
			jsonError(w, http.StatusBadRequest, fmt.Sprintf("bad %s date %q, want YYYY-MM-DD", bound.param, val))
			return
		}
		query += fmt.Sprintf(" AND record_date %s ?", bound.op)
		args = append(args, val)
	}

	limit := defaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			jsonError(w, http.StatusBadRequest, fmt.Sprintf("bad limit %q", l))
			return
		}
		limit = n
	}
	query += " ORDER BY record_date, source, record_id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		s.Logger.Printf("dashboard: records query: %v", err)
		jsonError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.Source, &row.RecordID, &row.RecordDate, &row.Category,
			&row.Measure, &row.Period, &row.Magnitude, &row.LoadedAt); err != nil {
			s.Logger.Printf("dashboard: scan: %v", err)
			jsonError(w, http.StatusInternalServerError, "scan failure")
			return
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		jsonError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, out)
}

// Aggregate is one group's rollup in the summary view.
type Aggregate struct {
	Key          string  `json:"key"`
	Rows         int     `json:"rows"`
	TotalMeasure float64 `json:"total_measure"`
	AvgMeasure   float64 `json:"avg_measure"`
}

type summaryResponse struct {
	TotalRows  int         `json:"total_rows"`
	ByCategory []Aggregate `json:"by_category"`
	ByPeriod   []Aggregate `json:"by_period"`
	BySource   []Aggregate `json:"by_source"`
}

// summaryHandler serves the aggregate views the dashboard charts are built
// from: row counts and measure sums/averages grouped by category, period
// and source.
func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var resp summaryResponse
	if err := s.db.QueryRowContext(r.Context(),
		fmt.Sprintf("SELECT COUNT(*) FROM %s", s.Table)).Scan(&resp.TotalRows); err != nil {
		s.Logger.Printf("dashboard: summary count: %v", err)
		jsonError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}

	for _, group := range []struct {
		column string
		dest   *[]Aggregate
	}{
		{"category", &resp.ByCategory},
		{"period", &resp.ByPeriod},
		{"source", &resp.BySource},
	} {
		aggs, err := s.aggregateBy(r, group.column)
		if err != nil {
			s.Logger.Printf("dashboard: summary by %s: %v", group.column, err)
			jsonError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		*group.dest = aggs
	}
	writeJSON(w, resp)
}

func (s *Server) aggregateBy(r *http.Request, column string) ([]Aggregate, error) {
	query := fmt.Sprintf(`SELECT %[1]s, COUNT(*), SUM(measure), AVG(measure)
        FROM %[2]s GROUP BY %[1]s ORDER BY %[1]s`, column, s.Table)
	rows, err := s.db.QueryContext(r.Context(), query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Aggregate{}
	for rows.Next() {
		var agg Aggregate
		if err := rows.Scan(&agg.Key, &agg.Rows, &agg.TotalMeasure, &agg.AvgMeasure); err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}
