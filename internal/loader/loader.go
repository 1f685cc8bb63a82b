package loader

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tributary-data/tributary/internal/config"
	"github.com/tributary-data/tributary/internal/record"
)

const (
	ModeAppend  = "append"
	ModeReplace = "replace"

	PolicyFirst = "first"
	PolicyLast  = "last"
)

// Loader persists normalized batches into the single-file SQLite store. The
// store handle is scoped to one Load call: opened on entry, closed on exit,
// regardless of outcome. All rows of one batch commit as one transaction or
// none at all.
type Loader struct {
	Path        string
	Table       string
	Mode        string
	DedupPolicy string
	Logger      *log.Logger

	// now is swappable for deterministic loaded_at stamps in tests.
	now func() time.Time
}

func New(cfg *config.Config, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{
		Path:        cfg.Store.Path,
		Table:       cfg.Store.Table,
		Mode:        cfg.Load.Mode,
		DedupPolicy: cfg.Load.DedupPolicy,
		Logger:      logger,
		now:         time.Now,
	}
}

// InitSchema creates the destination table and its uniqueness index if they
// do not exist yet.
func (l *Loader) InitSchema(ctx context.Context) error {
	db, err := l.open()
	if err != nil {
		return err
	}
	defer db.Close()
	return initSchema(ctx, db, l.Table)
}

// Load writes batch into the store under the configured mode and returns
// the number of rows written. Under the "last" policy this includes rows
// updated in place on a key collision, not just fresh inserts. On any
// failure the table is left exactly as it was before the call.
func (l *Loader) Load(ctx context.Context, batch record.Batch) (int, error) {
	if len(batch) == 0 {
		l.Logger.Printf("loader: empty batch, nothing to load")
		return 0, nil
	}

	db, err := l.open()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	if err := verifySchema(ctx, db, l.Table); err != nil {
		return 0, err
	}
	if err := initSchema(ctx, db, l.Table); err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %v: %w", err, record.ErrStorageUnavailable)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var written int
	switch l.Mode {
	case ModeReplace:
		written, err = l.replaceAll(ctx, tx, batch)
	case ModeAppend:
		written, err = l.appendDedup(ctx, tx, batch)
	default:
		err = fmt.Errorf("unknown load mode %q", l.Mode)
	}
	if err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %v: %w", err, record.ErrStorageUnavailable)
	}

	l.Logger.Printf("loader: %d/%d rows loaded into %s (mode=%s)", written, len(batch), l.Table, l.Mode)
	return written, nil
}

func (l *Loader) open() (*sql.DB, error) {
	if dir := filepath.Dir(l.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %v: %w", err, record.ErrStorageUnavailable)
		}
	}
	db, err := sql.Open("sqlite3", l.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open store %s: %v: %w", l.Path, err, record.ErrStorageUnavailable)
	}
	// Single-writer discipline; one connection avoids lock contention with
	// ourselves inside a load.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store %s: %v: %w", l.Path, err, record.ErrStorageUnavailable)
	}
	return db, nil
}

// appendDedup inserts only rows whose uniqueness key is absent. Under the
// "last" policy an existing row is updated in place instead of being kept,
// and the update counts toward the written total like an insert.
func (l *Loader) appendDedup(ctx context.Context, tx *sql.Tx, batch record.Batch) (int, error) {
	query := fmt.Sprintf(`INSERT INTO %s
        (source, record_id, record_date, category, measure, period, magnitude, loaded_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(source, record_id, record_date) DO NOTHING`, l.Table)
	if l.DedupPolicy == PolicyLast {
		query = fmt.Sprintf(`INSERT INTO %s
        (source, record_id, record_date, category, measure, period, magnitude, loaded_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(source, record_id, record_date) DO UPDATE SET
            category = excluded.category,
            measure = excluded.measure,
            period = excluded.period,
            magnitude = excluded.magnitude,
            loaded_at = excluded.loaded_at`, l.Table)
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %v: %w", err, record.ErrStorageUnavailable)
	}
	defer stmt.Close()

	loadedAt := l.now().UTC().Format(time.RFC3339)
	written := 0
	for _, n := range batch {
		res, err := stmt.ExecContext(ctx, insertArgs(n, loadedAt)...)
		if err != nil {
			return 0, fmt.Errorf("insert row %s: %v: %w", n.RecordID, err, record.ErrStorageUnavailable)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert row %s: %v: %w", n.RecordID, err, record.ErrStorageUnavailable)
		}
		written += int(affected)
	}
	return written, nil
}

// replaceAll swaps the table contents for the incoming batch. DELETE and
// INSERT run inside the caller's transaction, so readers only ever observe
// the old rows or the new rows in full.
func (l *Loader) replaceAll(ctx context.Context, tx *sql.Tx, batch record.Batch) (int, error) {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", l.Table)); err != nil {
		return 0, fmt.Errorf("clear table: %v: %w", err, record.ErrStorageUnavailable)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s
        (source, record_id, record_date, category, measure, period, magnitude, loaded_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, l.Table))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %v: %w", err, record.ErrStorageUnavailable)
	}
	defer stmt.Close()

	loadedAt := l.now().UTC().Format(time.RFC3339)
	for _, n := range batch {
		if _, err := stmt.ExecContext(ctx, insertArgs(n, loadedAt)...); err != nil {
			return 0, fmt.Errorf("insert row %s: %v: %w", n.RecordID, err, record.ErrStorageUnavailable)
		}
	}
	return len(batch), nil
}

func insertArgs(n record.Normalized, loadedAt string) []interface{} {
	return []interface{}{
		string(n.Source),
		n.RecordID,
		n.RecordDate.UTC().Format("2006-01-02"),
		n.Category,
		n.Measure,
		n.Period,
		n.Magnitude,
		loadedAt,
	}
}
