// Package storage is the asset storage facade: one record store per asset
// kind, rooted at the current data directory, plus the operations that span
// stores (cascading delete, data directory migration, merging a foreign data
// directory, export and import).
//
// Layout of a data directory:
//
//	<root>/metadata/<kind>.json        one versioned document per kind
//	<root>/metadata/backups/<ts>/      snapshots taken on every LoadAll
//	<root>/data/<asset-id>/...         files owned by one asset
//	<root>/images/<name>               image pool shared by descriptions
//	<root>/.index/                     identifier→kind index (optional, rebuildable)
//
// Thread Safety:
// The facade carries its own RWMutex. Operations that touch several stores or
// replace the data directory (LoadAll, AddAsset, DeleteAsset, MigrateDataDir,
// MergeExternal, ImportArchive) hold it exclusively; accessors, lookups,
// searches and exports hold it shared. Concurrent DeleteAsset and
// MigrateDataDir calls are therefore serialized. Stores returned by the typed
// accessors are safe to use concurrently but belong to the data directory that
// was current when they were obtained.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/assetvault/assetvault/internal/logger"
	"github.com/assetvault/assetvault/pkg/asset"
	"github.com/assetvault/assetvault/pkg/backup"
	"github.com/assetvault/assetvault/pkg/images"
	"github.com/assetvault/assetvault/pkg/metrics"
	"github.com/assetvault/assetvault/pkg/storage/kindindex"
	"github.com/assetvault/assetvault/pkg/store/jsonstore"
	"github.com/assetvault/assetvault/pkg/vaulterr"
)

const (
	// DataDir holds one subdirectory per asset, named by its identifier.
	DataDir = "data"

	// IndexDir holds the on-disk identifier→kind index.
	IndexDir = ".index"

	importScratchPrefix = ".import-"
)

// IndexOptions configures the identifier→kind index.
type IndexOptions struct {
	// Enabled turns the index on. Without it, ownership is found by probing
	// every store in kind order.
	Enabled bool

	// InMemory keeps the index in memory instead of <root>/.index
	InMemory bool
}

// Options configures a Storage. Zero values are valid.
type Options struct {
	// Log receives facade and store diagnostics (default: logger.Nop())
	Log *logger.Logger

	// Metrics is handed to every record store (default: no-op)
	Metrics metrics.StoreMetrics

	// Backup configures the snapshot taken by LoadAll
	Backup backup.Config

	// DisableBackup skips the LoadAll snapshot (used for foreign data
	// directories opened during import)
	DisableBackup bool

	// Index configures the identifier→kind index
	Index IndexOptions
}

// Storage aggregates the four record stores of one data directory.
type Storage struct {
	mu   sync.RWMutex
	root string
	opts Options
	log  *logger.Logger

	avatars         *jsonstore.Store[*asset.Avatar]
	avatarWearables *jsonstore.Store[*asset.AvatarWearable]
	worldObjects    *jsonstore.Store[*asset.WorldObject]
	otherAssets     *jsonstore.Store[*asset.OtherAsset]

	backups *backup.Manager
	index   *kindindex.Index
	images  *images.Pool
}

// kindStore is the kind-independent view of a record store.
type kindStore interface {
	Kind() asset.Kind
	Load(ctx context.Context) error
	Lookup(id uuid.UUID) (asset.Asset, bool)
	Contains(id uuid.UUID) bool
	IDs() []uuid.UUID
	Len() int
	Assets() []asset.Asset
	ImageFilenames() []string
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	RemoveDependencyEverywhere(ctx context.Context, id uuid.UUID) (bool, error)
}

// New creates a facade rooted at root. Stores start empty; call LoadAll.
//
// Returns:
//   - *Storage: The facade
//   - error: Error if root cannot be made absolute or the index cannot be opened
func New(ctx context.Context, root string, opts Options) (*Storage, error) {
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoopStoreMetrics()
	}
	if opts.Backup.Log == nil {
		opts.Backup.Log = opts.Log
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, vaulterr.IO("resolve", root, err)
	}

	s := &Storage{opts: opts, log: opts.Log.With("component", "storage")}
	s.attach(abs)

	if opts.Index.Enabled {
		index, err := s.openIndex(ctx, abs)
		if err != nil {
			return nil, err
		}
		s.index = index
	}
	return s, nil
}

// attach points every store at root. Caller holds mu or owns s exclusively.
func (s *Storage) attach(root string) {
	storeOpts := jsonstore.Options{Log: s.opts.Log, Metrics: s.opts.Metrics}

	s.root = root
	s.avatars = jsonstore.New[*asset.Avatar](root, asset.KindAvatar, storeOpts)
	s.avatarWearables = jsonstore.New[*asset.AvatarWearable](root, asset.KindAvatarWearable, storeOpts)
	s.worldObjects = jsonstore.New[*asset.WorldObject](root, asset.KindWorldObject, storeOpts)
	s.otherAssets = jsonstore.New[*asset.OtherAsset](root, asset.KindOtherAsset, storeOpts)
	s.backups = backup.New(filepath.Join(root, jsonstore.MetadataDir), s.opts.Backup)
	s.images = images.New(root)
}

func (s *Storage) openIndex(ctx context.Context, root string) (*kindindex.Index, error) {
	return kindindex.Open(ctx, kindindex.Config{
		Path:     filepath.Join(root, IndexDir),
		InMemory: s.opts.Index.InMemory,
		Log:      s.opts.Log,
	})
}

// stores returns every store in the fixed probe order. Caller holds mu.
func (s *Storage) stores() []kindStore {
	return []kindStore{s.avatars, s.avatarWearables, s.worldObjects, s.otherAssets}
}

// Close releases the index. The facade must not be used afterwards.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index == nil {
		return nil
	}
	err := s.index.Close()
	s.index = nil
	return err
}

// ============================================================================
// Accessors
// ============================================================================

// Root returns the current data directory.
func (s *Storage) Root() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// Avatars returns the avatar store.
func (s *Storage) Avatars() *jsonstore.Store[*asset.Avatar] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.avatars
}

// AvatarWearables returns the avatar wearable store.
func (s *Storage) AvatarWearables() *jsonstore.Store[*asset.AvatarWearable] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.avatarWearables
}

// WorldObjects returns the world object store.
func (s *Storage) WorldObjects() *jsonstore.Store[*asset.WorldObject] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.worldObjects
}

// OtherAssets returns the other asset store.
func (s *Storage) OtherAssets() *jsonstore.Store[*asset.OtherAsset] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.otherAssets
}

// Images returns the image pool of the current data directory.
func (s *Storage) Images() *images.Pool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.images
}

// Backups returns the snapshot manager of the current data directory.
func (s *Storage) Backups() *backup.Manager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backups
}

// Snapshot is every asset of every kind, taken under one shared lock.
type Snapshot struct {
	Avatars         []*asset.Avatar
	AvatarWearables []*asset.AvatarWearable
	WorldObjects    []*asset.WorldObject
	OtherAssets     []*asset.OtherAsset
}

// All returns the snapshot as a flat list in kind order.
func (sn Snapshot) All() []asset.Asset {
	out := make([]asset.Asset, 0, len(sn.Avatars)+len(sn.AvatarWearables)+len(sn.WorldObjects)+len(sn.OtherAssets))
	for _, a := range sn.Avatars {
		out = append(out, a)
	}
	for _, a := range sn.AvatarWearables {
		out = append(out, a)
	}
	for _, a := range sn.WorldObjects {
		out = append(out, a)
	}
	for _, a := range sn.OtherAssets {
		out = append(out, a)
	}
	return out
}

// Snapshot returns deep copies of every asset.
func (s *Storage) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Avatars:         s.avatars.GetAll(),
		AvatarWearables: s.avatarWearables.GetAll(),
		WorldObjects:    s.worldObjects.GetAll(),
		OtherAssets:     s.otherAssets.GetAll(),
	}
}

// ============================================================================
// Loading
// ============================================================================

// LoadAll snapshots the metadata files, then loads every store in parallel
// and rebuilds the index.
//
// The snapshot comes first so that a schema migration gone wrong always has a
// copy of the files as they were before this process touched them. A failed
// snapshot fails LoadAll and no store is loaded.
//
// Context Cancellation:
// Checked before starting; store loads share a derived context and the first
// failure cancels the rest.
func (s *Storage) LoadAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadAllLocked(ctx)
}

func (s *Storage) loadAllLocked(ctx context.Context) error {
	// ========================================================================
	// Step 1: Snapshot current metadata
	// ========================================================================

	if !s.opts.DisableBackup {
		if _, err := s.backups.Snapshot(ctx); err != nil {
			return fmt.Errorf("failed to back up metadata before loading: %w", err)
		}
	}

	// ========================================================================
	// Step 2: Load every store
	// ========================================================================

	g, gctx := errgroup.WithContext(ctx)
	for _, st := range s.stores() {
		st := st
		g.Go(func() error {
			if err := st.Load(gctx); err != nil {
				return fmt.Errorf("failed to load %s: %w", st.Kind(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// ========================================================================
	// Step 3: Rebuild the index
	// ========================================================================

	if err := s.rebuildIndex(); err != nil {
		return err
	}

	s.log.Info("Loaded data directory %s (%d assets)", s.root, s.countLocked())
	return nil
}

func (s *Storage) rebuildIndex() error {
	if s.index == nil {
		return nil
	}
	entries := make(map[asset.Kind][]uuid.UUID, len(asset.Kinds))
	for _, st := range s.stores() {
		entries[st.Kind()] = st.IDs()
	}
	return s.index.Rebuild(entries)
}

func (s *Storage) countLocked() int {
	n := 0
	for _, st := range s.stores() {
		n += st.Len()
	}
	return n
}

// ============================================================================
// Lookup
// ============================================================================

// owner returns the store holding id, or nil. The index is consulted first
// and confirmed against the store; a stale or missing entry falls back to
// probing every store in kind order. Caller holds mu.
func (s *Storage) owner(id uuid.UUID) kindStore {
	if s.index != nil {
		kind, ok, err := s.index.Get(id)
		if err != nil {
			s.log.Warn("Kind index lookup failed, probing stores: %v", err)
		} else if ok {
			if st := s.storeFor(kind); st != nil && st.Contains(id) {
				return st
			}
		}
	}
	for _, st := range s.stores() {
		if st.Contains(id) {
			return st
		}
	}
	return nil
}

func (s *Storage) storeFor(kind asset.Kind) kindStore {
	for _, st := range s.stores() {
		if st.Kind() == kind {
			return st
		}
	}
	return nil
}

// GetAsset returns a deep copy of the asset with id, whatever its kind.
func (s *Storage) GetAsset(id uuid.UUID) (asset.Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.owner(id)
	if st == nil {
		return nil, false
	}
	return st.Lookup(id)
}

// UsedIDs returns the union of every store's identifiers.
func (s *Storage) UsedIDs() map[uuid.UUID]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usedIDsLocked()
}

func (s *Storage) usedIDsLocked() map[uuid.UUID]struct{} {
	used := make(map[uuid.UUID]struct{})
	for _, st := range s.stores() {
		for _, id := range st.IDs() {
			used[id] = struct{}{}
		}
	}
	return used
}

// Stats is a point-in-time summary of the data directory.
type Stats struct {
	Root    string
	Counts  map[asset.Kind]int
	UsedIDs int
}

// Stats returns per-kind record counts and the number of distinct identifiers.
func (s *Storage) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Root: s.root, Counts: make(map[asset.Kind]int, len(asset.Kinds))}
	for _, store := range s.stores() {
		st.Counts[store.Kind()] = store.Len()
	}
	st.UsedIDs = len(s.usedIDsLocked())
	return st
}

// dataDirOf returns the owned data directory of id under root.
func dataDirOf(root string, id uuid.UUID) string {
	return filepath.Join(root, DataDir, id.String())
}

// isEmptyDir reports whether path is absent or an empty directory.
func isEmptyDir(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, vaulterr.IO("read", path, err)
	}
	return len(entries) == 0, nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, vaulterr.IO("stat", path, err)
}
