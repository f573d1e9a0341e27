// Package warehouse is an isolated in-memory SQLite CDM used to execute
// compiled cohort SQL against fixtures.
//
// Every Open creates a new named in-memory database, so warehouses never
// share data. Compiled SQL must be rendered and normalized for SQLite
// before it is run here, with the CDM schema bound to "main".
package warehouse

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed cdm.sql
var schemaSQL string

// Schema is the schema name to bind @cdm_database_schema to.
const Schema = "main"

// Warehouse is one in-memory CDM.
type Warehouse struct {
	db   *sqlx.DB
	name string
}

// EventKey identifies one event of a query result.
type EventKey struct {
	PersonID int64 `db:"person_id" json:"person_id" yaml:"person_id"`
	EventID  int64 `db:"event_id" json:"event_id" yaml:"event_id"`
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Open creates an empty warehouse with the CDM tables.
func Open() (*Warehouse, error) {
	name := uuid.NewString()
	db, err := sqlx.Open("sqlite3", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}

	// The in-memory database lives as long as one connection is open.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Warehouse{db: db, name: name}, nil
}

// Close releases the database.
func (w *Warehouse) Close() error {
	if w.db == nil {
		return nil
	}
	return w.db.Close()
}

// Name returns the unique database name.
func (w *Warehouse) Name() string {
	return w.name
}

// DB returns the underlying connection.
func (w *Warehouse) DB() *sqlx.DB {
	return w.db
}

// Load inserts rows into table. Columns missing from a row are NULL.
// time.Time values are stored as ISO dates.
func (w *Warehouse) Load(ctx context.Context, table string, rows []map[string]any) error {
	if !identifier.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	if len(rows) == 0 {
		return nil
	}

	colSet := make(map[string]bool)
	for _, row := range rows {
		for col := range row {
			if !identifier.MatchString(col) {
				return fmt.Errorf("invalid column name %q in %s", col, table)
			}
			colSet[col] = true
		}
	}
	cols := make([]string, 0, len(colSet))
	for col := range colSet {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (:%s)",
		table, strings.Join(cols, ", "), strings.Join(cols, ", :"))

	tx, err := w.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin load: %w", err)
	}
	defer tx.Rollback()

	for i, row := range rows {
		args := make(map[string]any, len(cols))
		for _, col := range cols {
			args[col] = storable(row[col])
		}
		if _, err := tx.NamedExecContext(ctx, query, args); err != nil {
			return fmt.Errorf("failed to load %s row %d: %w", table, i, err)
		}
	}
	return tx.Commit()
}

func storable(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.Format(time.DateOnly)
	}
	return v
}

// Exec runs one or more statements.
func (w *Warehouse) Exec(ctx context.Context, sql string) error {
	if _, err := w.db.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// Materialize replaces table with the result of query.
func (w *Warehouse) Materialize(ctx context.Context, table, query string) error {
	if !identifier.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s;\nCREATE TABLE %s AS\n%s", table, table, query)
	if _, err := w.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("materialize %s: %w", table, err)
	}
	return nil
}

// Events runs query and returns its distinct (person_id, event_id) pairs
// in order. The query must output both columns.
func (w *Warehouse) Events(ctx context.Context, query string) ([]EventKey, error) {
	wrapped := fmt.Sprintf("SELECT DISTINCT R.person_id, R.event_id FROM (\n%s\n) R ORDER BY R.person_id, R.event_id", query)
	var out []EventKey
	if err := w.db.SelectContext(ctx, &out, wrapped); err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	if out == nil {
		out = []EventKey{}
	}
	return out, nil
}

// Count returns the number of rows in table.
func (w *Warehouse) Count(ctx context.Context, table string) (int, error) {
	if !identifier.MatchString(table) {
		return 0, fmt.Errorf("invalid table name %q", table)
	}
	var n int
	if err := w.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
