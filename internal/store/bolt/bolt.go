// Package bolt implements the storage contract on bbolt, an embedded
// transactional key/value store. Each entity kind gets one collection bucket
// keyed by id plus secondary index buckets for its enumerated high-
// selectivity fields. Query execution prefers an indexed lookup on the first
// usable filter key and applies the remaining filters over that candidate
// set — a deliberate simplicity-over-planning trade-off that works because
// candidate sets after the first indexed filter are small.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	bbolt "go.etcd.io/bbolt"

	"datakit/internal/query"
	"datakit/internal/schema"
	"datakit/internal/store"
)

// DB is a shared handle to one bbolt file.
type DB struct {
	db *bbolt.DB
}

// Open creates or opens the bbolt file and ensures the collection and index
// buckets for every registered entity kind exist. Safe to call repeatedly.
func Open(path string) (*DB, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open object store: %w: %v", store.ErrUnavailable, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, def := range schema.All() {
			if _, err := tx.CreateBucketIfNotExists(recordBucket(def.Kind)); err != nil {
				return err
			}
			for _, field := range indexFields(def) {
				if _, err := tx.CreateBucketIfNotExists(indexBucket(def.Kind, field)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the bbolt file.
func (d *DB) Close() error { return d.db.Close() }

// Store returns the backend for one entity kind backed by this file.
func (d *DB) Store(kind schema.Kind) *Store {
	return &Store{
		db:   d.db,
		kind: kind,
		def:  schema.MustGet(kind),
	}
}

func recordBucket(kind schema.Kind) []byte {
	return []byte("records:" + string(kind))
}

func indexBucket(kind schema.Kind, field string) []byte {
	return []byte("idx:" + string(kind) + ":" + field)
}

// indexFields returns the fields a kind keeps secondary indexes for: the
// enumerated indexed fields, whose whole-value match semantics make a
// value-keyed index correct. Substring-matched text fields scan instead.
func indexFields(def *schema.EntityDef) []string {
	var out []string
	for _, name := range def.IndexedFields() {
		if spec, ok := def.Spec(name); ok && spec.Type == schema.FieldEnum {
			out = append(out, name)
		}
	}
	return out
}

// Store is the bbolt backend for one entity kind.
type Store struct {
	db   *bbolt.DB
	kind schema.Kind
	def  *schema.EntityDef
}

var _ store.Store = (*Store)(nil)

// Kind returns the entity kind this store owns.
func (s *Store) Kind() schema.Kind { return s.kind }

// Close is a no-op: the shared DB handle owns the file.
func (s *Store) Close() error { return nil }

// GetAll returns every record in key order.
func (s *Store) GetAll(ctx context.Context) ([]schema.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []schema.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(recordBucket(s.kind)).ForEach(func(_, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.kind, err)
	}
	return out, nil
}

// GetByID returns the record with the given id or ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (schema.Record, error) {
	if err := ctx.Err(); err != nil {
		return schema.Record{}, err
	}

	var rec schema.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(recordBucket(s.kind)).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("%s %q: %w", s.kind, id, store.ErrNotFound)
		}
		var err error
		rec, err = decodeRecord(v)
		return err
	})
	if err != nil {
		return schema.Record{}, err
	}
	return rec, nil
}

// Create stores a new record, assigning id and timestamps, and writes its
// index entries in the same transaction.
func (s *Store) Create(ctx context.Context, rec schema.Record) (schema.Record, error) {
	if err := ctx.Err(); err != nil {
		return schema.Record{}, err
	}

	rec = rec.Clone()
	rec.Kind = s.kind
	if rec.ID == "" {
		rec.ID = store.NewID(s.kind)
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(recordBucket(s.kind))
		if bucket.Get([]byte(rec.ID)) != nil {
			return fmt.Errorf("duplicate id %q: %w", rec.ID, store.ErrConstraint)
		}
		return s.putRecord(tx, rec)
	})
	if err != nil {
		return schema.Record{}, err
	}
	return rec, nil
}

// putRecord writes the record value and its index entries. Must run inside a
// writable transaction.
func (s *Store) putRecord(tx *bbolt.Tx, rec schema.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := tx.Bucket(recordBucket(s.kind)).Put([]byte(rec.ID), payload); err != nil {
		return err
	}
	return s.indexRecord(tx, rec)
}

func (s *Store) indexRecord(tx *bbolt.Tx, rec schema.Record) error {
	for _, field := range indexFields(s.def) {
		value := indexKey(rec.String(field))
		if value == "" {
			continue
		}
		values, err := tx.Bucket(indexBucket(s.kind, field)).CreateBucketIfNotExists([]byte(value))
		if err != nil {
			return err
		}
		if err := values.Put([]byte(rec.ID), nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) unindexRecord(tx *bbolt.Tx, rec schema.Record) error {
	for _, field := range indexFields(s.def) {
		value := indexKey(rec.String(field))
		if value == "" {
			continue
		}
		if values := tx.Bucket(indexBucket(s.kind, field)).Bucket([]byte(value)); values != nil {
			if err := values.Delete([]byte(rec.ID)); err != nil {
				return err
			}
		}
	}
	return nil
}

func indexKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// Update merges a patch onto an existing record, refreshes UpdatedAt, and
// rewrites its index entries in the same transaction.
func (s *Store) Update(ctx context.Context, id string, patch store.Patch) (schema.Record, error) {
	if err := ctx.Err(); err != nil {
		return schema.Record{}, err
	}

	var rec schema.Record
	err := s.db.Update(func(tx *bbolt.Tx) error {
		v := tx.Bucket(recordBucket(s.kind)).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("%s %q: %w", s.kind, id, store.ErrNotFound)
		}
		prev, err := decodeRecord(v)
		if err != nil {
			return err
		}

		rec = prev.Clone()
		store.ApplyPatch(&rec, patch)
		rec.UpdatedAt = time.Now().UTC()

		if err := s.unindexRecord(tx, prev); err != nil {
			return err
		}
		return s.putRecord(tx, rec)
	})
	if err != nil {
		return schema.Record{}, err
	}
	return rec, nil
}

// Delete removes a record and its index entries, reporting false if the id
// was already absent.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	found := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(recordBucket(s.kind))
		v := bucket.Get([]byte(id))
		if v == nil {
			return nil
		}
		rec, err := decodeRecord(v)
		if err != nil {
			return err
		}
		if err := s.unindexRecord(tx, rec); err != nil {
			return err
		}
		if err := bucket.Delete([]byte(id)); err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// Query returns all records matching the filters. The first filter key with
// a secondary index narrows the candidate set by indexed lookup; every
// filter (including that one) then applies over the candidates, so indexed
// and scanned paths return identical results.
func (s *Store) Query(ctx context.Context, filters store.Filters) ([]schema.Record, error) {
	candidates, err := s.candidates(ctx, filters)
	if err != nil {
		return nil, err
	}
	return query.ApplyFilters(candidates, filters), nil
}

// candidates picks the narrowest available starting set for a filter map.
func (s *Store) candidates(ctx context.Context, filters store.Filters) ([]schema.Record, error) {
	indexed := indexFields(s.def)
	for field, want := range filters {
		value, ok := want.(string)
		if !ok || value == "" {
			continue
		}
		if !contains(indexed, field) {
			continue
		}
		return s.lookupIndex(ctx, field, value)
	}
	// No usable index: full scan of the collection.
	return s.GetAll(ctx)
}

func (s *Store) lookupIndex(ctx context.Context, field, value string) ([]schema.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []schema.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		values := tx.Bucket(indexBucket(s.kind, field)).Bucket([]byte(indexKey(value)))
		if values == nil {
			return nil
		}
		records := tx.Bucket(recordBucket(s.kind))
		return values.ForEach(func(id, _ []byte) error {
			v := records.Get(id)
			if v == nil {
				return nil // stale index entry
			}
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("index lookup %s.%s: %w", s.kind, field, err)
	}
	return out, nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// Count returns the number of records matching the filters.
func (s *Store) Count(ctx context.Context, filters store.Filters) (int, error) {
	matched, err := s.Query(ctx, filters)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

// GetPaginated returns one page of filtered, sorted records.
func (s *Store) GetPaginated(ctx context.Context, opts store.PageOptions) (*store.PaginatedResult, error) {
	records, err := s.Query(ctx, opts.Filters)
	if err != nil {
		return nil, err
	}
	if opts.Search != "" {
		records = query.ApplySearch(records, opts.Search)
	}
	if opts.SortBy != "" {
		records = query.SortRecords(records, opts.SortBy, opts.SortOrder)
	}
	return query.Paginate(records, opts.Page, opts.PageSize), nil
}

// BatchInsert writes pre-validated records in transactional batches: each
// batch is one bbolt update transaction, so it either fully commits or fully
// rolls back. Committed batches stand even if a later batch fails.
func (s *Store) BatchInsert(ctx context.Context, records []schema.Record, batchSize int) error {
	if batchSize < 1 {
		batchSize = store.DefaultBatchSize
	}

	for start := 0; start < len(records); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		err := s.db.Update(func(tx *bbolt.Tx) error {
			bucket := tx.Bucket(recordBucket(s.kind))
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
				if bucket.Get([]byte(rec.ID)) != nil {
					return fmt.Errorf("duplicate id %q: %w", rec.ID, store.ErrConstraint)
				}
				if err := s.putRecord(tx, rec); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// SearchText matches records by case-insensitive substring over each
// record's searchable fields (for profiles that includes the flattened
// owned-product names; for QA records the question, every step, and the
// answer).
func (s *Store) SearchText(ctx context.Context, q string) ([]schema.Record, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return query.ApplySearch(all, q), nil
}

func decodeRecord(v []byte) (schema.Record, error) {
	var rec schema.Record
	if err := json.Unmarshal(v, &rec); err != nil {
		return schema.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
