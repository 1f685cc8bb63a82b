package dashboard

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tributary-data/tributary/internal/config"
	"github.com/tributary-data/tributary/internal/record"
)

// Server renders a read-only view over the destination store: filtered
// record listings and aggregate summaries. It performs no writes.
type Server struct {
	Path       string
	Table      string
	ListenAddr string
	Logger     *log.Logger

	db *sql.DB
}

func New(cfg *config.Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		Path:       cfg.Store.Path,
		Table:      cfg.Store.Table,
		ListenAddr: cfg.Dashboard.ListenAddr,
		Logger:     logger,
	}
}

// Open acquires a read-only handle on the store. SQLite honors mode=ro
// only through the URI scheme, so the path must be passed as a file: URI.
func (s *Server) Open() error {
	db, err := sql.Open("sqlite3", "file:"+s.Path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("open store %s: %v: %w", s.Path, err, record.ErrStorageUnavailable)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("open store %s: %v: %w", s.Path, err, record.ErrStorageUnavailable)
	}
	s.db = db
	return nil
}

func (s *Server) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Handler builds the route table. Split out from Serve so tests can mount
// it on an httptest server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/records", s.recordsHandler)
	mux.HandleFunc("/summary", s.summaryHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}

// Serve runs the dashboard until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Open(); err != nil {
		return err
	}
	defer s.Close()

	server := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Printf("dashboard listening on %s", s.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Logger.Println("shutting down dashboard gracefully...")
	return server.Shutdown(shutdownCtx)
}

func jsonError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
