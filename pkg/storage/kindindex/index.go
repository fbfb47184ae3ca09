// Package kindindex maps asset identifiers to the kind whose store owns them.
//
// The index is a cache over the metadata files, never a source of truth: the
// storage facade rebuilds it from the stores on every load and keeps it in
// step on add and delete. Losing it costs a rebuild, nothing more.
//
// Key Namespace:
//
//	Data Type        Prefix   Key Format     Value
//	=================================================
//	Owning kind      "k:"     k:<uuid>       kind name (bytes)
package kindindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"

	"github.com/assetvault/assetvault/internal/logger"
	"github.com/assetvault/assetvault/pkg/asset"
)

const prefixKind = "k:"

func keyKind(id uuid.UUID) []byte {
	return []byte(prefixKind + id.String())
}

// Config configures an Index.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps the index entirely in memory.
	InMemory bool

	// Log receives BadgerDB warnings and errors (default: logger.Nop())
	Log *logger.Logger
}

// Index is a persistent identifier→kind map backed by BadgerDB.
//
// Thread Safety:
// Safe for concurrent use; every call runs in its own BadgerDB transaction.
type Index struct {
	db *badger.DB
}

// Open opens (creating if needed) the index described by cfg.
//
// Context Cancellation:
// The context is checked before the database is opened.
func Open(ctx context.Context, cfg Config) (*Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("kind index path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	// Entries are a few dozen bytes each
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)
	opts = opts.WithLogger(badgerLogger{log: cfg.Log.With("component", "kindindex")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open kind index at %s: %w", cfg.Path, err)
	}
	return &Index{db: db}, nil
}

// Put records kind as the owner of id, replacing any previous entry.
func (x *Index) Put(id uuid.UUID, kind asset.Kind) error {
	return x.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyKind(id), []byte(kind))
	})
}

// Get returns the kind owning id. The boolean is false when id is unknown.
func (x *Index) Get(id uuid.UUID) (asset.Kind, bool, error) {
	var kind asset.Kind
	err := x.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyKind(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			kind = asset.Kind(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up %s in kind index: %w", id, err)
	}
	return kind, true, nil
}

// Delete removes id. Deleting an unknown id is not an error.
func (x *Index) Delete(id uuid.UUID) error {
	return x.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(keyKind(id))
	})
}

// Rebuild replaces the whole index with entries.
//
// Parameters:
//   - entries: Identifiers of every store, keyed by owning kind
func (x *Index) Rebuild(entries map[asset.Kind][]uuid.UUID) error {
	if err := x.db.DropPrefix([]byte(prefixKind)); err != nil {
		return fmt.Errorf("failed to clear kind index: %w", err)
	}

	wb := x.db.NewWriteBatch()
	defer wb.Cancel()

	for kind, ids := range entries {
		for _, id := range ids {
			if err := wb.Set(keyKind(id), []byte(kind)); err != nil {
				return fmt.Errorf("failed to index %s: %w", id, err)
			}
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to write kind index: %w", err)
	}
	return nil
}

// Len returns the number of indexed identifiers.
func (x *Index) Len() (int, error) {
	var n int
	err := x.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixKind)

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close closes the database.
func (x *Index) Close() error {
	if err := x.db.Close(); err != nil {
		return fmt.Errorf("failed to close kind index: %w", err)
	}
	return nil
}

// badgerLogger routes BadgerDB's own logging into the application logger.
type badgerLogger struct {
	log *logger.Logger
}

func (b badgerLogger) Errorf(format string, v ...any)   { b.log.Error(format, v...) }
func (b badgerLogger) Warningf(format string, v ...any) { b.log.Warn(format, v...) }
func (b badgerLogger) Infof(format string, v ...any)    { b.log.Info(format, v...) }
func (b badgerLogger) Debugf(format string, v ...any)   { b.log.Debug(format, v...) }
