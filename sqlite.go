package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements RowStore over a local SQLite file so the bot can run
// without Google credentials. Each table mirrors its sheet tab: one TEXT
// column per header name, rowid preserving insertion order. Spreadsheet row n
// (n ≥ 2, row 1 being the header) maps to the n-1-th row by rowid.
type SQLiteStore struct {
	db *sql.DB
}

func newSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables() error {
	for table, header := range tableHeaders {
		cols := make([]string, len(header))
		for i, h := range header {
			cols[i] = quoteIdent(h) + " TEXT NOT NULL DEFAULT ''"
		}
		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(table), strings.Join(cols, ", "))
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create %s: %w", table, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Header reads the live column list, which may include lazily added columns.
func (s *SQLiteStore) Header(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	var header []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		header = append(header, name)
	}
	return header, rows.Err()
}

func (s *SQLiteStore) AppendRow(ctx context.Context, table string, row []string) error {
	header, err := s.Header(ctx, table)
	if err != nil {
		return err
	}
	if len(row) > len(header) {
		return fmt.Errorf("append to %s: %d values for %d columns", table, len(row), len(header))
	}

	cols := make([]string, len(row))
	marks := make([]string, len(row))
	args := make([]any, len(row))
	for i, v := range row {
		cols[i] = quoteIdent(header[i])
		marks[i] = "?"
		args[i] = v
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(cols, ", "), strings.Join(marks, ", "))
	_, err = s.db.ExecContext(ctx, stmt, args...)
	return err
}

func (s *SQLiteStore) Records(ctx context.Context, table string) ([]map[string]string, error) {
	header, err := s.Header(ctx, table)
	if err != nil {
		return nil, err
	}

	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = quoteIdent(h)
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", strings.Join(cols, ", "), quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var records []map[string]string
	for rows.Next() {
		vals := make([]sql.NullString, len(header))
		ptrs := make([]any, len(header))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(map[string]string, len(header))
		for i, h := range header {
			rec[h] = vals[i].String
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) UpdateCell(ctx context.Context, table string, row, col int, value string) error {
	if row == 1 {
		return fmt.Errorf("header cells are managed via EnsureColumn")
	}
	if row < 2 || col < 1 {
		return fmt.Errorf("cell out of range: row %d col %d", row, col)
	}
	header, err := s.Header(ctx, table)
	if err != nil {
		return err
	}
	if col > len(header) {
		return fmt.Errorf("column %d out of range for %s", col, table)
	}

	var rowid int64
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT rowid FROM %s ORDER BY rowid LIMIT 1 OFFSET %d", quoteIdent(table), row-2)).Scan(&rowid)
	if err == sql.ErrNoRows {
		return fmt.Errorf("row %d does not exist in %s", row, table)
	}
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET %s = ? WHERE rowid = ?", quoteIdent(table), quoteIdent(header[col-1])),
		value, rowid)
	return err
}

func (s *SQLiteStore) EnsureColumn(ctx context.Context, table, name string) (int, error) {
	header, err := s.Header(ctx, table)
	if err != nil {
		return 0, err
	}
	if idx := colIndex(header, name); idx > 0 {
		return idx, nil
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT NOT NULL DEFAULT ''", quoteIdent(table), quoteIdent(name)))
	if err != nil {
		return 0, fmt.Errorf("add column %s to %s: %w", name, table, err)
	}
	return len(header) + 1, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
