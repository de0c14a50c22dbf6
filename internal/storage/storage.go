// Package storage is a small table store on SQLite used to keep per-bot data
// such as the users a bot has seen.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// ErrInvalidIdentifier is returned for table or column names that are not
// plain SQL identifiers.
var ErrInvalidIdentifier = errors.New("invalid identifier")

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ColumnType is a SQLite storage class.
type ColumnType string

const (
	Integer ColumnType = "INTEGER"
	Real    ColumnType = "REAL"
	Text    ColumnType = "TEXT"
	Blob    ColumnType = "BLOB"
)

// Column describes one table column. Unique only applies when the table is
// created; SQLite cannot add a unique column to an existing table.
type Column struct {
	Name   string
	Type   ColumnType
	Unique bool
}

// Row maps column names to values.
type Row map[string]any

// DB wraps a SQLite handle.
type DB struct {
	*sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path.
func Open(path string, logger *slog.Logger) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("open db: %w", err)
	}

	logger.Info("database opened", "path", path)
	return &DB{DB: sqlDB, logger: logger}, nil
}

// CreateTable creates table name with cols if it does not exist, and adds
// any column of cols the existing table lacks.
func (db *DB) CreateTable(ctx context.Context, name string, cols []Column) error {
	if err := checkIdent(name); err != nil {
		return err
	}
	if len(cols) == 0 {
		return fmt.Errorf("create table %s: no columns", name)
	}

	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		if err := checkIdent(c.Name); err != nil {
			return err
		}
		def := c.Name + " " + string(c.Type)
		if c.Unique {
			def += " UNIQUE"
		}
		defs = append(defs, def)
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}

	existing, err := db.columns(ctx, name)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if existing[c.Name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", name, c.Name, c.Type)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", name, c.Name, err)
		}
		db.logger.Info("column added", "table", name, "column", c.Name)
	}
	return nil
}

// InsertOrIgnore inserts row into table unless it violates a unique
// constraint. It reports whether a row was inserted.
func (db *DB) InsertOrIgnore(ctx context.Context, table string, row Row) (bool, error) {
	if err := checkIdent(table); err != nil {
		return false, err
	}
	if len(row) == 0 {
		return false, fmt.Errorf("insert into %s: empty row", table)
	}

	names := make([]string, 0, len(row))
	for name := range row {
		if err := checkIdent(name); err != nil {
			return false, err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]any, len(names))
	for i, name := range names {
		args[i] = row[name]
	}
	stmt := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (%s)",
		table, strings.Join(names, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", "))

	res, err := db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("insert into %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert into %s: %w", table, err)
	}
	return n > 0, nil
}

// SelectAll returns every row of table in insertion order.
func (db *DB) SelectAll(ctx context.Context, table string) ([]Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY rowid", table))
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		row := make(Row, len(names))
		for i, name := range names {
			row[name] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}
	return out, nil
}

func (db *DB) columns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("table info %s: %w", table, err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func checkIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}
