package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/assetvault/assetvault/pkg/fsguard"
	"github.com/assetvault/assetvault/pkg/images"
	"github.com/assetvault/assetvault/pkg/storage/kindindex"
	"github.com/assetvault/assetvault/pkg/store/jsonstore"
	"github.com/assetvault/assetvault/pkg/vaulterr"
)

// movedSubtrees are the parts of a data directory carried to a new root.
var movedSubtrees = []string{jsonstore.MetadataDir, DataDir, images.DirName}

// MigrateDataDir copies the current data directory to newRoot and makes it
// the current one.
//
// Files are copied, never moved, so the old root stays complete and
// authoritative until every file has arrived and the stores have reloaded
// from newRoot. On any failure the facade keeps using the old root and the
// partially written newRoot is abandoned as-is (not deleted); the call can
// be retried once newRoot has been emptied.
//
// Parameters:
//   - ctx: Context for cancellation (checked between files)
//   - newRoot: Destination directory; must be absent or empty, and must not
//     be inside the current root
//   - progress: optional callback, called after each file and with 1.0 last
//
// Returns:
//   - error: Conflict if newRoot is unusable, otherwise the first copy or
//     load failure
func (s *Storage) MigrateDataDir(ctx context.Context, newRoot string, progress fsguard.ProgressFunc) error {
	if progress == nil {
		progress = func(float64, string) {}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// ========================================================================
	// Step 1: Validate the destination
	// ========================================================================

	dst, err := filepath.Abs(newRoot)
	if err != nil {
		return vaulterr.IO("resolve", newRoot, err)
	}
	if fsguard.AssertContained(s.root, dst) == nil {
		return vaulterr.Conflictf("migrate", dst, "destination is inside the current data directory %s", s.root)
	}
	empty, err := isEmptyDir(dst)
	if err != nil {
		return err
	}
	if !empty {
		return vaulterr.Conflictf("migrate", dst, "destination directory is not empty")
	}

	// ========================================================================
	// Step 2: Copy metadata, data and images
	// ========================================================================

	var present []string
	for _, sub := range movedSubtrees {
		ok, err := exists(filepath.Join(s.root, sub))
		if err != nil {
			return err
		}
		if ok {
			present = append(present, sub)
		}
	}

	s.log.Info("Migrating data directory %s -> %s", s.root, dst)
	for i, sub := range present {
		base, span := float64(i)/float64(len(present)), 1/float64(len(present))
		err := fsguard.CopyTree(ctx,
			s.root, filepath.Join(s.root, sub),
			dst, filepath.Join(dst, sub),
			func(p float64, label string) {
				progress(base+p*span, filepath.Join(sub, label))
			})
		if err != nil {
			s.log.Error("Migration to %s failed, keeping %s: %v", dst, s.root, err)
			return fmt.Errorf("failed to copy %s: %w", sub, err)
		}
	}

	// ========================================================================
	// Step 3: Reload from the new root and switch over
	// ========================================================================

	if err := s.switchRoot(ctx, dst); err != nil {
		s.log.Error("Migration to %s failed, keeping %s: %v", dst, s.root, err)
		return err
	}

	progress(1.0, "")
	s.log.Info("Data directory is now %s", dst)
	return nil
}

// switchRoot loads a fresh set of stores at root and swaps them in. On
// failure the facade is unchanged. Caller holds mu exclusively.
func (s *Storage) switchRoot(ctx context.Context, root string) error {
	next := &Storage{opts: s.opts, log: s.log}
	next.opts.DisableBackup = true
	next.attach(root)

	var index *kindindex.Index
	if s.opts.Index.Enabled {
		var err error
		index, err = s.openIndex(ctx, root)
		if err != nil {
			return err
		}
		next.index = index
	}

	if err := next.loadAllLocked(ctx); err != nil {
		if index != nil {
			_ = index.Close()
		}
		return fmt.Errorf("failed to load migrated data directory: %w", err)
	}

	if s.index != nil {
		if err := s.index.Close(); err != nil {
			s.log.Warn("Failed to close previous kind index: %v", err)
		}
	}

	s.root = next.root
	s.avatars = next.avatars
	s.avatarWearables = next.avatarWearables
	s.worldObjects = next.worldObjects
	s.otherAssets = next.otherAssets
	s.backups = next.backups
	s.images = next.images
	s.index = next.index
	return nil
}
