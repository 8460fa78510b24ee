// Package backend selects the storage backend by capability detection and
// hands the rest of the application one store per entity kind. Selection
// order: embedded SQL first, the object store when SQL is unavailable, and
// plain in-memory storage as the last resort. Open never fails: degradation
// is silent except for an advisory warning carried on the result.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"datakit/internal/config"
	"datakit/internal/schema"
	"datakit/internal/store"
	"datakit/internal/store/bolt"
	"datakit/internal/store/memory"
	"datakit/internal/store/sqlite"
)

// Kind names a backend implementation.
type Kind string

const (
	KindSQLite Kind = "sqlite"
	KindBolt   Kind = "bolt"
	KindMemory Kind = "memory"
)

// Backends is the selected backend with one open store per entity kind.
type Backends struct {
	// Kind is the backend that ended up selected.
	Kind Kind

	// Warning is a human-readable advisory set when selection degraded
	// below the preferred backend. Empty on a clean selection.
	Warning string

	stores map[schema.Kind]store.Store
	closer func() error
}

// Open selects a backend and opens a store for every registered entity
// kind. cfg.Backend forces a specific backend; when the forced backend
// cannot be opened, selection degrades down the same chain it would have
// followed automatically. Open never returns an error: the worst case is
// the in-memory backend with a warning.
func Open(ctx context.Context, cfg config.StorageConfig) *Backends {
	var warnings []string

	forced := Kind(strings.ToLower(cfg.Backend))

	if forced == "" || forced == KindSQLite {
		b, err := openSQLite(ctx, cfg)
		if err == nil {
			b.Warning = strings.Join(warnings, "; ")
			slog.Info("storage backend selected", "backend", b.Kind)
			return b
		}
		warnings = append(warnings, fmt.Sprintf("sqlite unavailable: %v", err))
		slog.Warn("sqlite backend unavailable, trying object store", "error", err)
	}

	if forced == "" || forced == KindSQLite || forced == KindBolt {
		b, err := openBolt(cfg)
		if err == nil {
			b.Warning = strings.Join(warnings, "; ")
			slog.Info("storage backend selected", "backend", b.Kind, "degraded", len(warnings) > 0)
			return b
		}
		warnings = append(warnings, fmt.Sprintf("object store unavailable: %v", err))
		slog.Warn("object store backend unavailable, falling back to memory", "error", err)
	}

	if forced == KindMemory {
		slog.Info("storage backend selected", "backend", KindMemory, "forced", true)
	} else {
		warnings = append(warnings, "data will not survive restarts")
		slog.Warn("using in-memory storage", "reason", strings.Join(warnings, "; "))
	}
	return openMemory(strings.Join(warnings, "; "))
}

// openSQLite probes for a writable data directory, then opens the database
// and runs migrations. Any failure reports the backend unavailable.
func openSQLite(ctx context.Context, cfg config.StorageConfig) (*Backends, error) {
	if err := ensureWritableDir(cfg.DataDir); err != nil {
		return nil, err
	}

	db, err := sqlite.Open(ctx, cfg.SQLitePath())
	if err != nil {
		return nil, err
	}

	stores := make(map[schema.Kind]store.Store, len(schema.Kinds()))
	for _, kind := range schema.Kinds() {
		stores[kind] = db.Store(kind)
	}
	return &Backends{Kind: KindSQLite, stores: stores, closer: db.Close}, nil
}

func openBolt(cfg config.StorageConfig) (*Backends, error) {
	if err := ensureWritableDir(cfg.DataDir); err != nil {
		return nil, err
	}

	db, err := bolt.Open(cfg.BoltPath())
	if err != nil {
		return nil, err
	}

	stores := make(map[schema.Kind]store.Store, len(schema.Kinds()))
	for _, kind := range schema.Kinds() {
		stores[kind] = db.Store(kind)
	}
	return &Backends{Kind: KindBolt, stores: stores, closer: db.Close}, nil
}

func openMemory(warning string) *Backends {
	stores := make(map[schema.Kind]store.Store, len(schema.Kinds()))
	for _, kind := range schema.Kinds() {
		stores[kind] = memory.New(kind)
	}
	return &Backends{Kind: KindMemory, Warning: warning, stores: stores, closer: func() error { return nil }}
}

// ensureWritableDir creates the directory if needed and verifies it accepts
// writes by creating and removing a probe file.
func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	probe := filepath.Join(dir, ".write-probe")
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("data dir not writable: %w", err)
	}
	f.Close()
	os.Remove(probe)
	return nil
}

// Store returns the open store for one entity kind.
func (b *Backends) Store(kind schema.Kind) (store.Store, error) {
	s, ok := b.stores[kind]
	if !ok {
		return nil, fmt.Errorf("no store for kind %q: %w", kind, store.ErrUnavailable)
	}
	return s, nil
}

// Stores returns every open store keyed by entity kind.
func (b *Backends) Stores() map[schema.Kind]store.Store {
	return b.stores
}

// Close releases the underlying backend resources.
func (b *Backends) Close() error {
	return b.closer()
}
