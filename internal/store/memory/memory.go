// Package memory implements the storage contract on a plain ordered map.
// It is the fallback backend when no persistent mechanism is available and
// the reference implementation for contract semantics in tests. All data is
// lost on process exit.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"datakit/internal/query"
	"datakit/internal/schema"
	"datakit/internal/store"
)

// Store is an in-memory backend for one entity kind. Insertion order is
// preserved so exports and unfiltered listings are deterministic.
type Store struct {
	kind schema.Kind

	mu      sync.RWMutex
	order   []string
	records map[string]schema.Record
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store for the given kind.
func New(kind schema.Kind) *Store {
	return &Store{
		kind:    kind,
		records: make(map[string]schema.Record),
	}
}

// Kind returns the entity kind this store owns.
func (s *Store) Kind() schema.Kind { return s.kind }

// GetAll returns every record in insertion order.
func (s *Store) GetAll(ctx context.Context) ([]schema.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(), nil
}

func (s *Store) snapshotLocked() []schema.Record {
	out := make([]schema.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].Clone())
	}
	return out
}

// GetByID returns the record with the given id or ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (schema.Record, error) {
	if err := ctx.Err(); err != nil {
		return schema.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return schema.Record{}, fmt.Errorf("%s %q: %w", s.kind, id, store.ErrNotFound)
	}
	return rec.Clone(), nil
}

// Create stores a new record, assigning id and timestamps.
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return schema.Record{}, fmt.Errorf("duplicate id %q: %w", rec.ID, store.ErrConstraint)
	}
	s.records[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	return rec.Clone(), nil
}

// Update merges a patch onto an existing record and refreshes UpdatedAt.
func (s *Store) Update(ctx context.Context, id string, patch store.Patch) (schema.Record, error) {
	if err := ctx.Err(); err != nil {
		return schema.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return schema.Record{}, fmt.Errorf("%s %q: %w", s.kind, id, store.ErrNotFound)
	}

	rec = rec.Clone()
	store.ApplyPatch(&rec, patch)
	rec.UpdatedAt = time.Now().UTC()

	s.records[id] = rec
	return rec.Clone(), nil
}

// Delete removes a record, reporting false if it was already absent.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Query returns all records matching the filters.
func (s *Store) Query(ctx context.Context, filters store.Filters) ([]schema.Record, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return query.ApplyFilters(all, filters), nil
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
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return query.Process(all, opts), nil
}

// BatchInsert writes pre-validated records in batches. Each batch commits
// atomically: a duplicate id anywhere in a batch rejects that whole batch,
// leaving earlier batches intact.
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
		if err := s.insertBatch(records[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertBatch(batch []schema.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check the whole batch before mutating anything.
	seen := make(map[string]bool, len(batch))
	for _, rec := range batch {
		if rec.ID == "" {
			continue
		}
		if seen[rec.ID] {
			return fmt.Errorf("duplicate id %q within batch: %w", rec.ID, store.ErrConstraint)
		}
		if _, exists := s.records[rec.ID]; exists {
			return fmt.Errorf("duplicate id %q: %w", rec.ID, store.ErrConstraint)
		}
		seen[rec.ID] = true
	}

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
		s.records[rec.ID] = rec
		s.order = append(s.order, rec.ID)
	}
	return nil
}

// SearchText returns records whose searchable text contains the query.
func (s *Store) SearchText(ctx context.Context, q string) ([]schema.Record, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return query.ApplySearch(all, q), nil
}

// Close is a no-op for the in-memory backend.
func (s *Store) Close() error { return nil }
