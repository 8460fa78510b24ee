// Package sqlite implements the storage contract on an embedded SQLite
// database (modernc.org/sqlite, pure Go). Each entity kind persists to its
// own table; a derived FTS5 index per table is kept in lockstep with primary
// rows by write-time triggers, so the index can never drift from the data.
// All table access goes through the migration runner's guaranteed-current
// schema.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"datakit/internal/query"
	"datakit/internal/schema"
	"datakit/internal/store"
)

// DB is a shared handle to one database file. All per-kind stores created
// from it use the same connection; SQLite allows a single writer, so the
// pool is pinned to one connection to avoid SQLITE_BUSY churn.
type DB struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database file, applies the tuning pragmas, and
// brings the schema up to date. Safe to call repeatedly.
//
// Tuning applied at startup:
//   - WAL journal (readers stay concurrent with the single writer)
//   - NORMAL synchronous (durability/throughput balance for a local tool)
//   - 4 KiB pages, 16 MiB negative cache
//   - 5 second busy timeout, foreign keys on
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect: %w: %v", store.ErrUnavailable, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db, path: path}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA page_size = 4096",
		"PRAGMA cache_size = -16000",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database file.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Handle exposes the raw connection for the migration CLI and tests.
func (d *DB) Handle() *sql.DB { return d.db }

// Store returns the backend for one entity kind backed by this database.
func (d *DB) Store(kind schema.Kind) *Store {
	return &Store{
		db:    d.db,
		kind:  kind,
		def:   schema.MustGet(kind),
		table: TableName(kind),
	}
}

// TableName maps an entity kind to its table.
func TableName(kind schema.Kind) string {
	switch kind {
	case schema.KindProfile:
		return "profiles"
	case schema.KindProduct:
		return "products"
	case schema.KindQA:
		return "qa_records"
	}
	return string(kind) + "s"
}

// Store is the SQLite backend for one entity kind.
type Store struct {
	db    *sql.DB
	kind  schema.Kind
	def   *schema.EntityDef
	table string
}

var _ store.Store = (*Store)(nil)

// Kind returns the entity kind this store owns.
func (s *Store) Kind() schema.Kind { return s.kind }

// Close is a no-op: the shared DB handle owns the connection.
func (s *Store) Close() error { return nil }

// GetAll returns every record ordered by creation time.
func (s *Store) GetAll(ctx context.Context) ([]schema.Record, error) {
	return s.selectRecords(ctx,
		`SELECT data, created_at, updated_at FROM `+s.table+` ORDER BY created_at, id`)
}

// GetByID returns the record with the given id or ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (schema.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data, created_at, updated_at FROM `+s.table+` WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return schema.Record{}, fmt.Errorf("%s %q: %w", s.kind, id, store.ErrNotFound)
	}
	if err != nil {
		return schema.Record{}, fmt.Errorf("get %s: %w", s.kind, err)
	}
	return rec, nil
}

// Create stores a new record, assigning id and timestamps.
func (s *Store) Create(ctx context.Context, rec schema.Record) (schema.Record, error) {
	rec = rec.Clone()
	rec.Kind = s.kind
	if rec.ID == "" {
		rec.ID = store.NewID(s.kind)
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if err := s.insert(ctx, s.db, rec); err != nil {
		return schema.Record{}, err
	}
	return rec, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insert(ctx context.Context, ex execer, rec schema.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	_, err = ex.ExecContext(ctx,
		`INSERT INTO `+s.table+` (id, source, created_at, updated_at, search_text, data)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Source(),
		rec.CreatedAt.Format(time.RFC3339Nano),
		rec.UpdatedAt.Format(time.RFC3339Nano),
		s.def.SearchableText(rec),
		string(payload),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("duplicate id %q: %w", rec.ID, store.ErrConstraint)
		}
		return fmt.Errorf("insert %s: %w", s.kind, err)
	}
	return nil
}

// Update merges a patch onto an existing record and refreshes UpdatedAt.
func (s *Store) Update(ctx context.Context, id string, patch store.Patch) (schema.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return schema.Record{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT data, created_at, updated_at FROM `+s.table+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return schema.Record{}, fmt.Errorf("%s %q: %w", s.kind, id, store.ErrNotFound)
	}
	if err != nil {
		return schema.Record{}, fmt.Errorf("get %s: %w", s.kind, err)
	}

	store.ApplyPatch(&rec, patch)
	rec.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(rec)
	if err != nil {
		return schema.Record{}, fmt.Errorf("encode record: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE `+s.table+` SET source = ?, updated_at = ?, search_text = ?, data = ? WHERE id = ?`,
		rec.Source(),
		rec.UpdatedAt.Format(time.RFC3339Nano),
		s.def.SearchableText(rec),
		string(payload),
		id,
	)
	if err != nil {
		return schema.Record{}, fmt.Errorf("update %s: %w", s.kind, err)
	}

	if err := tx.Commit(); err != nil {
		return schema.Record{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// Delete removes a record, reporting false if it was already absent.
// The FTS row goes with it via the delete trigger.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", s.kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Query returns all records matching the filters. Scalar string filters
// compile to SQL against the source column or JSON field paths; list fields,
// ranges, and array-valued filters apply in memory over the SQL candidates.
func (s *Store) Query(ctx context.Context, filters store.Filters) ([]schema.Record, error) {
	wb := newWhereBuilder()
	rest := store.Filters{}

	for field, want := range filters {
		if !s.addNativeFilter(wb, field, want) {
			rest[field] = want
		}
	}

	clause, args := wb.build()
	records, err := s.selectRecords(ctx,
		`SELECT data, created_at, updated_at FROM `+s.table+clause+` ORDER BY created_at, id`,
		args...)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		records = query.ApplyFilters(records, rest)
	}
	return records, nil
}

// addNativeFilter compiles a filter entry to SQL when the field shape allows
// it, reporting whether it was handled.
func (s *Store) addNativeFilter(wb *whereBuilder, field string, want any) bool {
	value, ok := want.(string)
	if !ok || value == "" {
		return want == nil || (ok && value == "")
	}

	switch field {
	case "id":
		wb.add("id = ?", value)
		return true
	case schema.Discriminant:
		wb.add("source = ?", value)
		return true
	}

	spec, known := s.def.Spec(field)
	if !known || spec.Type == schema.FieldList {
		return false
	}

	if spec.Type == schema.FieldEnum {
		// Enumerated fields match whole values, case-insensitively.
		wb.add("lower(coalesce(json_extract(data, ?), '')) = lower(?)",
			"$.fields."+field, value)
		return true
	}

	// Case-insensitive substring over the JSON field value, matching the
	// query service semantics for string fields.
	wb.add("instr(lower(coalesce(json_extract(data, ?), '')), lower(?)) > 0",
		"$.fields."+field, value)
	return true
}

// Count returns the number of records matching the filters.
func (s *Store) Count(ctx context.Context, filters store.Filters) (int, error) {
	if len(filters) == 0 {
		var n int
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+s.table).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("count %s: %w", s.kind, err)
		}
		return n, nil
	}

	matched, err := s.Query(ctx, filters)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

// GetPaginated returns one page of filtered, sorted records. Candidate
// selection is native (SQL filters, FTS search); ordering and paging use the
// shared query service so semantics stay identical across backends.
func (s *Store) GetPaginated(ctx context.Context, opts store.PageOptions) (*store.PaginatedResult, error) {
	var (
		records []schema.Record
		err     error
	)
	if opts.Search != "" {
		records, err = s.SearchText(ctx, opts.Search)
		if err == nil && len(opts.Filters) > 0 {
			records = query.ApplyFilters(records, opts.Filters)
		}
	} else {
		records, err = s.Query(ctx, opts.Filters)
	}
	if err != nil {
		return nil, err
	}

	if opts.SortBy != "" {
		records = query.SortRecords(records, opts.SortBy, opts.SortOrder)
	}
	return query.Paginate(records, opts.Page, opts.PageSize), nil
}

// BatchInsert writes pre-validated records in transactional batches. A batch
// either fully commits or fully rolls back; committed batches stand even if
// a later batch fails.
func (s *Store) BatchInsert(ctx context.Context, records []schema.Record, batchSize int) error {
	if batchSize < 1 {
		batchSize = store.DefaultBatchSize
	}

	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := s.insertBatch(ctx, records[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertBatch(ctx context.Context, batch []schema.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, rec := range batch {
		rec = rec.Clone()
		rec.Kind = s.kind
		if rec.ID == "" {
			rec.ID = store.NewID(s.kind)
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		if rec.UpdatedAt.IsZero() {
			rec.UpdatedAt = now
		}
		if err := s.insert(ctx, tx, rec); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SearchText matches records through the FTS5 index. Terms combine with
// implicit AND; the final term matches by prefix so incremental queries
// behave like substring search for word starts.
func (s *Store) SearchText(ctx context.Context, q string) ([]schema.Record, error) {
	match := ftsQuery(q)
	if match == "" {
		return s.GetAll(ctx)
	}

	return s.selectRecords(ctx,
		`SELECT t.data, t.created_at, t.updated_at
		 FROM `+s.table+`_fts f
		 JOIN `+s.table+` t ON t.id = f.id
		 WHERE `+s.table+`_fts MATCH ?
		 ORDER BY rank`,
		match)
}

// ftsQuery converts free text into a safe FTS5 match expression: each term
// quoted, the last term as a prefix.
func ftsQuery(q string) string {
	terms := strings.Fields(q)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	quoted[len(quoted)-1] += "*"
	return strings.Join(quoted, " ")
}

func (s *Store) selectRecords(ctx context.Context, q string, args ...any) ([]schema.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.kind, err)
	}
	defer rows.Close()

	var out []schema.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.kind, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord decodes one (data, created_at, updated_at) row. The column
// timestamps are authoritative over the JSON copy.
func scanRecord(row rowScanner) (schema.Record, error) {
	var payload, createdAt, updatedAt string
	if err := row.Scan(&payload, &createdAt, &updatedAt); err != nil {
		return schema.Record{}, err
	}

	var rec schema.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return schema.Record{}, fmt.Errorf("decode record: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return rec, nil
}

// whereBuilder accumulates AND-combined SQL conditions, skipping the empty
// clause when nothing was added.
type whereBuilder struct {
	conds []string
	args  []any
}

func newWhereBuilder() *whereBuilder {
	return &whereBuilder{}
}

func (wb *whereBuilder) add(cond string, args ...any) {
	wb.conds = append(wb.conds, cond)
	wb.args = append(wb.args, args...)
}

func (wb *whereBuilder) build() (string, []any) {
	if len(wb.conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conds, " AND "), wb.args
}
