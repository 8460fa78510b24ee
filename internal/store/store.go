// Package store defines the storage backend contract every backend
// implements, the shared error taxonomy, and record id generation.
//
// Exactly one backend instance exists per entity kind for the process
// lifetime; it is the sole owner of its underlying storage and serializes
// writes internally. Callers never reach around the contract.
package store

import (
	"context"
	"errors"

	"datakit/internal/schema"
)

// Sentinel errors forming the backend error taxonomy. Backends wrap these
// with %w so callers can match with errors.Is.
var (
	// ErrNotFound is returned by GetByID and Update when the id is absent.
	ErrNotFound = errors.New("record not found")

	// ErrConstraint is returned on backend-level uniqueness or type
	// failures, such as inserting a duplicate id.
	ErrConstraint = errors.New("constraint violation")

	// ErrUnavailable is returned when the backing storage cannot be
	// reached: disk quota exceeded, file locked, environment unsupported.
	ErrUnavailable = errors.New("storage unavailable")
)

// Filters maps field names to match values. Semantics per field value type:
// nil or empty values are no constraints; string values match by
// case-insensitive substring against string fields and by containment
// against list fields; []string values match scalar fields by membership;
// Range values match with inclusive bounds; everything else is exact
// equality. Active filters combine with AND.
type Filters map[string]any

// Range is an inclusive bounds filter for date- or number-shaped fields.
// Empty From or To leaves that side unbounded.
type Range struct {
	From string
	To   string
}

// PageOptions selects one page of records.
type PageOptions struct {
	Page      int // 1-indexed
	PageSize  int
	SortBy    string
	SortOrder string // "asc" (default) or "desc"
	Filters   Filters
	Search    string
}

// PaginatedResult is one page of records plus paging metadata.
type PaginatedResult struct {
	Items      []schema.Record
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// Patch is a partial update. Fields merge onto the existing field map; a
// nil-valued entry deletes the field. Steps, when non-nil, replaces the
// record's step list. The id is immutable: an "id" key in Fields is ignored.
type Patch struct {
	Fields map[string]any
	Steps  *schema.StepList
}

// Store is the contract every backend implements for one entity kind.
// All operations are safe for concurrent use and honor context cancellation
// at their suspension points.
type Store interface {
	// Kind returns the entity kind this instance owns.
	Kind() schema.Kind

	// GetAll returns every record. Order is backend-defined.
	GetAll(ctx context.Context) ([]schema.Record, error)

	// GetByID returns the record with the given id or ErrNotFound.
	GetByID(ctx context.Context, id string) (schema.Record, error)

	// Create stores a new record. A missing id is assigned; CreatedAt and
	// UpdatedAt are always set by the backend. Returns the stored record.
	Create(ctx context.Context, rec schema.Record) (schema.Record, error)

	// Update merges a patch onto an existing record, refreshes UpdatedAt,
	// and returns the result. Returns ErrNotFound for an absent id.
	Update(ctx context.Context, id string, patch Patch) (schema.Record, error)

	// Delete removes a record. Returns false (and no error) if the id was
	// already absent.
	Delete(ctx context.Context, id string) (bool, error)

	// Query returns all records matching the filters.
	Query(ctx context.Context, filters Filters) ([]schema.Record, error)

	// Count returns the number of records matching the filters
	// (all records for nil filters).
	Count(ctx context.Context, filters Filters) (int, error)

	// GetPaginated returns one page of filtered, sorted records.
	// An out-of-range page yields an empty item list, not an error.
	GetPaginated(ctx context.Context, opts PageOptions) (*PaginatedResult, error)

	// BatchInsert writes pre-validated records in transactional batches of
	// batchSize: a batch either fully commits or fully rolls back. Batches
	// already committed stand even if a later batch fails.
	BatchInsert(ctx context.Context, records []schema.Record, batchSize int) error

	// SearchText returns records matching a free-text query using the
	// backend's native text search.
	SearchText(ctx context.Context, query string) ([]schema.Record, error)

	// Close releases the backend's resources.
	Close() error
}

// DefaultBatchSize bounds per-commit memory and latency during imports.
const DefaultBatchSize = 500
