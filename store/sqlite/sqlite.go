// Package sqlite implements store.RecordStore on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/linanwx/leadbridge/store"
)

// Store implements store.RecordStore using SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.RecordStore = (*Store)(nil)

// New opens (or creates) a SQLite database at the given path and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS leads (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL DEFAULT '',
		source_tool TEXT NOT NULL DEFAULT '',
		thread_id TEXT NOT NULL DEFAULT '',
		run_id TEXT NOT NULL DEFAULT '',
		tool_call_id TEXT NOT NULL DEFAULT '',
		business_name TEXT NOT NULL DEFAULT '',
		contact_name TEXT NOT NULL DEFAULT '',
		contact_title TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		website TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		postal_code TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		categories TEXT NOT NULL DEFAULT '[]',
		rating REAL,
		review_count INTEGER,
		relevance_score INTEGER NOT NULL DEFAULT 0,
		contact_role_score INTEGER NOT NULL DEFAULT 0,
		location_score INTEGER NOT NULL DEFAULT 0,
		completeness_score INTEGER NOT NULL DEFAULT 0,
		online_presence_score INTEGER NOT NULL DEFAULT 0,
		total_score INTEGER NOT NULL DEFAULT 0,
		raw_data TEXT NOT NULL DEFAULT '{}',
		validated BOOLEAN NOT NULL DEFAULT 0,
		outreach_sent BOOLEAN NOT NULL DEFAULT 0,
		response_received BOOLEAN NOT NULL DEFAULT 0,
		converted BOOLEAN NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_leads_employee_created ON leads(employee_id, created_at);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		run_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_thread ON conversations(thread_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertMany implements store.RecordStore.
func (s *Store) InsertMany(ctx context.Context, table string, records []store.Record) ([]store.Record, error) {
	t, err := store.LookupTable(table)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	now := s.now()
	prepared := make([]store.Record, len(records))
	for i, rec := range records {
		row := make(store.Record, len(rec)+3)
		for k, v := range rec {
			if !t.HasColumn(k) {
				return nil, fmt.Errorf("%w: %s.%s", store.ErrUnknownColumn, table, k)
			}
			row[k] = v
		}
		if id, _ := row["id"].(string); id == "" {
			row["id"] = uuid.NewString()
		}
		for _, ts := range []string{"created_at", "updated_at"} {
			if _, ok := row[ts]; !ok && t.HasColumn(ts) {
				row[ts] = now
			}
		}
		prepared[i] = row
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, row := range prepared {
		cols := sortedKeys(row)
		args := make([]any, len(cols))
		for i, name := range cols {
			col, _ := t.Column(name)
			v, err := encode(col, row[name])
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
			t.Name, strings.Join(cols, ", "), placeholders(len(cols)))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("insert %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	out := make([]store.Record, len(prepared))
	for i, row := range prepared {
		out[i] = normalize(t, row)
	}
	return out, nil
}

// SelectFiltered implements store.RecordStore.
func (s *Store) SelectFiltered(ctx context.Context, table string, filters store.Filters, page, limit int) ([]store.Record, int, error) {
	t, err := store.LookupTable(table)
	if err != nil {
		return nil, 0, err
	}

	where, args, err := whereClause(t, filters)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, t.Name, where), args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", table, err)
	}

	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY created_at DESC, id`,
		strings.Join(t.ColumnNames(), ", "), t.Name, where)
	if limit > 0 {
		if page < 1 {
			page = 1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, (page-1)*limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		rec, err := scanRecord(t, rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

// Get implements store.RecordStore.
func (s *Store) Get(ctx context.Context, table, id string) (store.Record, error) {
	t, err := store.LookupTable(table)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, strings.Join(t.ColumnNames(), ", "), t.Name), id)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", table, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s %s", store.ErrRecordNotFound, table, id)
	}
	return scanRecord(t, rows)
}

// UpdateOne implements store.RecordStore.
func (s *Store) UpdateOne(ctx context.Context, table, id string, patch store.Patch) (store.Record, error) {
	t, err := store.LookupTable(table)
	if err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return s.Get(ctx, table, id)
	}

	cols := make([]string, 0, len(patch))
	for k := range patch {
		col, ok := t.Column(k)
		if !ok || !col.Mutable {
			return nil, fmt.Errorf("%w: %s.%s", store.ErrUnknownColumn, table, k)
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	for _, name := range cols {
		col, _ := t.Column(name)
		v, err := encode(col, patch[name])
		if err != nil {
			return nil, err
		}
		sets = append(sets, name+" = ?")
		args = append(args, v)
	}
	if t.HasColumn("updated_at") {
		sets = append(sets, "updated_at = ?")
		args = append(args, s.now())
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, t.Name, strings.Join(sets, ", ")), args...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return nil, fmt.Errorf("%w: %s %s", store.ErrRecordNotFound, table, id)
	}
	return s.Get(ctx, table, id)
}

// DeleteOne implements store.RecordStore.
func (s *Store) DeleteOne(ctx context.Context, table, id string) error {
	t, err := store.LookupTable(table)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, t.Name), id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s %s", store.ErrRecordNotFound, table, id)
	}
	return nil
}

func whereClause(t store.Table, filters store.Filters) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	names := make([]string, 0, len(filters))
	for k := range filters {
		if !t.HasColumn(k) {
			return "", nil, fmt.Errorf("%w: %s.%s", store.ErrUnknownColumn, t.Name, k)
		}
		names = append(names, k)
	}
	sort.Strings(names)

	conds := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		col, _ := t.Column(name)
		v, err := encode(col, filters[name])
		if err != nil {
			return "", nil, err
		}
		conds[i] = name + " = ?"
		args[i] = v
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func scanRecord(t store.Table, rows *sql.Rows) (store.Record, error) {
	vals := make([]any, len(t.Columns))
	ptrs := make([]any, len(t.Columns))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan %s: %w", t.Name, err)
	}
	rec := make(store.Record, len(t.Columns))
	for i, col := range t.Columns {
		v, err := decode(col, vals[i])
		if err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", t.Name, col.Name, err)
		}
		rec[col.Name] = v
	}
	return rec, nil
}

// encode converts a Go value into a driver value for col.
func encode(col store.Column, v any) (any, error) {
	if v == nil {
		if col.Type == store.TypeJSON {
			return "null", nil
		}
		return nil, nil
	}
	switch col.Type {
	case store.TypeText:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	case store.TypeInt:
		n, ok := toFloat(v)
		if !ok || n != math.Trunc(n) {
			return nil, fmt.Errorf("column %s: %v is not an integer", col.Name, v)
		}
		return int64(n), nil
	case store.TypeReal:
		n, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("column %s: %v is not a number", col.Name, v)
		}
		return n, nil
	case store.TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("column %s: %v is not a boolean", col.Name, v)
		}
		return b, nil
	case store.TypeTime:
		ts, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("column %s: %v is not a time", col.Name, v)
		}
		return ts.UTC(), nil
	case store.TypeJSON:
		switch raw := v.(type) {
		case json.RawMessage:
			return string(raw), nil
		case []byte:
			return string(raw), nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		return string(data), nil
	default:
		return nil, fmt.Errorf("column %s: unsupported type", col.Name)
	}
}

// decode converts a scanned driver value into the Go value exposed in
// records: string, int, float64, bool, time.Time or decoded JSON.
func decode(col store.Column, v any) (any, error) {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		if col.Type == store.TypeText {
			return "", nil
		}
		return nil, nil
	}
	switch col.Type {
	case store.TypeText:
		return fmt.Sprint(v), nil
	case store.TypeInt:
		n, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("unexpected %T", v)
		}
		return int(n), nil
	case store.TypeReal:
		n, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("unexpected %T", v)
		}
		return n, nil
	case store.TypeBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		}
		return nil, fmt.Errorf("unexpected %T", v)
	case store.TypeTime:
		switch ts := v.(type) {
		case time.Time:
			return ts.UTC(), nil
		case string:
			return parseTime(ts)
		}
		return nil, fmt.Errorf("unexpected %T", v)
	case store.TypeJSON:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected %T", v)
		}
		if s == "" {
			return nil, nil
		}
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, errors.New("unsupported column type")
	}
}

// normalize maps inserted values onto the shapes decode would produce, so
// InsertMany returns the same records a later Get would.
func normalize(t store.Table, row store.Record) store.Record {
	out := make(store.Record, len(t.Columns))
	for _, col := range t.Columns {
		v, ok := row[col.Name]
		if !ok {
			continue
		}
		enc, err := encode(col, v)
		if err != nil {
			out[col.Name] = v
			continue
		}
		dec, err := decode(col, enc)
		if err != nil {
			out[col.Name] = v
			continue
		}
		out[col.Name] = dec
	}
	return out
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func sortedKeys(r store.Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
