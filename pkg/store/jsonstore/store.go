// Package jsonstore implements the asset record store: the in-memory set of
// one asset kind, kept in step with exactly one metadata JSON file.
//
// Every mutation rewrites the whole file. The in-memory change happens first,
// so a failed write leaves memory ahead of disk until the next successful
// write or reload.
package jsonstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/assetvault/assetvault/internal/logger"
	"github.com/assetvault/assetvault/pkg/asset"
	"github.com/assetvault/assetvault/pkg/images"
	"github.com/assetvault/assetvault/pkg/metrics"
	"github.com/assetvault/assetvault/pkg/schema"
)

// MetadataDir is the directory under a data root holding metadata files.
const MetadataDir = "metadata"

// Options configures a Store. Zero values are valid.
type Options struct {
	// Log receives store diagnostics (default: logger.Nop())
	Log *logger.Logger

	// Metrics records operations (default: no-op)
	Metrics metrics.StoreMetrics
}

// Store holds every record of one asset kind.
//
// Thread Safety:
// A single mutex serializes every operation, reads included. Reads return
// deep copies, so callers never share memory with the store. Mutations hold
// the lock across both the in-memory change and the file rewrite, so
// concurrent updates to one store never interleave. Stores of different kinds
// share nothing and may be used concurrently.
type Store[T asset.Record[T]] struct {
	mu      sync.Mutex
	kind    asset.Kind
	root    string
	path    string
	images  *images.Pool
	loader  *schema.Loader[[]T]
	items   []T
	log     *logger.Logger
	metrics metrics.StoreMetrics
}

// New creates an empty store for kind rooted at the data directory root.
// Call Load to read the metadata file.
func New[T asset.Record[T]](root string, kind asset.Kind, opts Options) *Store[T] {
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoopStoreMetrics()
	}
	return &Store[T]{
		kind:    kind,
		root:    root,
		path:    filepath.Join(root, MetadataDir, kind.FileName()),
		images:  images.New(root),
		loader:  asset.NewLoader[T](kind),
		log:     opts.Log.With("kind", string(kind)),
		metrics: opts.Metrics,
	}
}

// Kind returns the asset kind held by the store.
func (s *Store[T]) Kind() asset.Kind { return s.kind }

// Root returns the data directory the store lives in.
func (s *Store[T]) Root() string { return s.root }

// Path returns the metadata file path.
func (s *Store[T]) Path() string { return s.path }

func (s *Store[T]) record(op string, start time.Time, err error) {
	s.metrics.RecordOperation(string(s.kind), op, time.Since(start), err)
}

// indexOf returns the position of id, or -1. Caller holds mu.
func (s *Store[T]) indexOf(id uuid.UUID) int {
	for i, item := range s.items {
		if item.GetID() == id {
			return i
		}
	}
	return -1
}

// persist rewrites the metadata file from the in-memory set. Caller holds mu.
func (s *Store[T]) persist() error {
	start := time.Now()

	data, err := s.loader.Encode(s.items)
	if err == nil {
		err = schema.WriteAtomic(s.path, data)
	}

	s.metrics.RecordPersist(string(s.kind), len(data), time.Since(start), err)
	s.metrics.SetRecordCount(string(s.kind), len(s.items))
	if err != nil {
		s.log.Error("Failed to persist %s: %v", s.path, err)
		return fmt.Errorf("failed to persist %s store: %w", s.kind, err)
	}
	return nil
}

// ============================================================================
// Reads
// ============================================================================

// Load replaces the in-memory set with the contents of the metadata file.
// A missing file leaves the set empty and is not an error. Older schema
// revisions are upgraded in memory; the file is rewritten in the current
// revision on the next mutation.
func (s *Store[T]) Load(ctx context.Context) (err error) {
	defer func(start time.Time) { s.record("Load", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, version, found, err := s.loader.ReadFile(s.path)
	if err != nil {
		return err
	}
	if !found {
		s.log.Debug("No metadata file at %s, starting empty", s.path)
		s.items = nil
		s.metrics.SetRecordCount(string(s.kind), 0)
		return nil
	}

	if version < s.loader.Current() {
		s.log.Info("Migrated %s from version %d to %d", s.path, version, s.loader.Current())
	}

	s.items = items
	s.metrics.SetRecordCount(string(s.kind), len(items))
	s.log.Debug("Loaded %d records from %s", len(items), s.path)
	return nil
}

// GetAll returns deep copies of every record.
func (s *Store[T]) GetAll() []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]T, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item.Clone())
	}
	return out
}

// Assets is GetAll typed as the Asset interface.
func (s *Store[T]) Assets() []asset.Asset {
	all := s.GetAll()
	out := make([]asset.Asset, len(all))
	for i, item := range all {
		out[i] = item
	}
	return out
}

// Get returns a deep copy of the record with id.
func (s *Store[T]) Get(id uuid.UUID) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(id); i >= 0 {
		return s.items[i].Clone(), true
	}
	var zero T
	return zero, false
}

// Lookup is Get typed as the Asset interface.
func (s *Store[T]) Lookup(id uuid.UUID) (asset.Asset, bool) {
	item, ok := s.Get(id)
	if !ok {
		return nil, false
	}
	return item, true
}

// Contains reports whether a record with id exists.
func (s *Store[T]) Contains(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(id) >= 0
}

// IDs returns the identifiers of every record.
func (s *Store[T]) IDs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]uuid.UUID, len(s.items))
	for i, item := range s.items {
		ids[i] = item.GetID()
	}
	return ids
}

// Len returns the number of records.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// ImageFilenames returns every non-empty image file name referenced by the
// store's records.
func (s *Store[T]) ImageFilenames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for _, item := range s.items {
		if name := item.Desc().ImageFilename; name != "" {
			names = append(names, name)
		}
	}
	return names
}
