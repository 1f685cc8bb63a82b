package loader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tributary-data/tributary/internal/record"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS %[1]s (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    record_id TEXT NOT NULL,
    record_date TEXT NOT NULL,
    category TEXT NOT NULL,
    measure REAL NOT NULL,
    period TEXT NOT NULL,
    magnitude TEXT NOT NULL,
    loaded_at TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_key ON %[1]s (source, record_id, record_date);
`

// Columns the destination table must carry for a load to proceed.
var expectedColumns = []string{
	"source", "record_id", "record_date", "category",
	"measure", "period", "magnitude", "loaded_at",
}

func initSchema(ctx context.Context, db *sql.DB, table string) error {
	for _, stmt := range strings.Split(fmt.Sprintf(schemaSQL, table), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %v: %w", err, record.ErrStorageUnavailable)
		}
	}
	return nil
}

// verifySchema checks an existing table's column set against the incoming
// batch's shape. A table that does not exist yet passes (it will be created).
func verifySchema(ctx context.Context, db *sql.DB, table string) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("inspect table %s: %v: %w", table, err, record.ErrStorageUnavailable)
	}
	defer rows.Close()

	have := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dflt       sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &primaryKey); err != nil {
			return fmt.Errorf("inspect table %s: %v: %w", table, err, record.ErrStorageUnavailable)
		}
		have[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect table %s: %v: %w", table, err, record.ErrStorageUnavailable)
	}

	if len(have) == 0 {
		return nil // table absent; initSchema will create it
	}
	for _, want := range expectedColumns {
		if !have[want] {
			return fmt.Errorf("table %s missing column %q: %w", table, want, record.ErrSchemaMismatch)
		}
	}
	return nil
}
