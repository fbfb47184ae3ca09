package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/assetvault/assetvault/pkg/archive"
	"github.com/assetvault/assetvault/pkg/asset"
	"github.com/assetvault/assetvault/pkg/fsguard"
	"github.com/assetvault/assetvault/pkg/images"
	"github.com/assetvault/assetvault/pkg/store/jsonstore"
	"github.com/assetvault/assetvault/pkg/vaulterr"
)

// MergeResult describes a completed MergeExternal.
type MergeResult struct {
	// Reassigned maps every foreign identifier that was relabelled to its
	// new identifier.
	Reassigned map[uuid.UUID]uuid.UUID

	// Merged counts the records inserted across all stores.
	Merged int

	// RenamedImages maps every foreign image whose name was already taken
	// to the name it was copied in under. Merged records refer to the new
	// name.
	RenamedImages map[string]string
}

// MergeExternal merges every asset of other into s.
//
// Identifier collisions are resolved before anything is copied: every
// foreign identifier already used in s, or listed in reassign, gets a new
// identifier (reassign's value when given, a fresh one otherwise). Data
// directories are then copied under the final identifiers, images are copied
// into the pool (under a fresh name when the name is taken, so no two records
// share an image file), and finally each store merges its foreign counterpart
// with the same relabelling applied to dependency lists and image names.
//
// The merge is not transactional: a failure part-way leaves copied files in
// place and earlier stores merged.
//
// Parameters:
//   - ctx: Context for cancellation
//   - other: Foreign facade (read only; must not be s)
//   - reassign: Caller-chosen relabelling (may be nil)
//   - progress: optional callback for the file copies, with 1.0 last
func (s *Storage) MergeExternal(ctx context.Context, other *Storage, reassign map[uuid.UUID]uuid.UUID, progress fsguard.ProgressFunc) (MergeResult, error) {
	if progress == nil {
		progress = func(float64, string) {}
	}
	if other == s {
		return MergeResult{}, errors.New("cannot merge a data directory into itself")
	}
	if err := ctx.Err(); err != nil {
		return MergeResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	// ========================================================================
	// Step 1: Resolve identifier collisions up front
	// ========================================================================

	used := s.usedIDsLocked()
	foreign := other.usedIDsLocked()

	mapping := make(map[uuid.UUID]uuid.UUID)
	for id, to := range reassign {
		if _, ok := foreign[id]; ok {
			mapping[id] = to
		}
	}
	for id := range foreign {
		if _, ok := mapping[id]; ok {
			continue
		}
		if _, clash := used[id]; clash {
			mapping[id] = freshID(used, foreign)
		}
	}
	for id, to := range mapping {
		if _, clash := used[to]; clash {
			return MergeResult{}, vaulterr.Conflictf("merge", to.String(),
				"reassigned identifier for %s is already in use", id)
		}
	}

	final := func(id uuid.UUID) uuid.UUID {
		if to, ok := mapping[id]; ok {
			return to
		}
		return id
	}

	finalOwner := make(map[uuid.UUID]uuid.UUID, len(foreign))
	for id := range foreign {
		to := final(id)
		if prev, dup := finalOwner[to]; dup {
			return MergeResult{}, vaulterr.Conflictf("merge", to.String(),
				"%s and %s would both be merged as this identifier", prev, id)
		}
		finalOwner[to] = id
	}

	// ========================================================================
	// Step 2: Plan the copies, refusing to overwrite data directories
	// ========================================================================

	type copyJob struct {
		label    string
		src, dst string
		dir      bool
	}
	var jobs []copyJob

	for id := range foreign {
		src := dataDirOf(other.root, id)
		ok, err := exists(src)
		if err != nil {
			return MergeResult{}, err
		}
		if !ok {
			continue
		}
		dst := dataDirOf(s.root, final(id))
		taken, err := exists(dst)
		if err != nil {
			return MergeResult{}, err
		}
		if taken {
			return MergeResult{}, vaulterr.Conflictf("merge", dst, "data directory already exists")
		}
		jobs = append(jobs, copyJob{label: filepath.Join(DataDir, final(id).String()), src: src, dst: dst, dir: true})
	}

	renamed := make(map[string]string)
	entries, err := os.ReadDir(other.images.Dir())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return MergeResult{}, vaulterr.IO("read", other.images.Dir(), err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		taken, err := exists(filepath.Join(s.images.Dir(), name))
		if err != nil {
			return MergeResult{}, err
		}
		if taken {
			if name, err = s.freshImageName(name); err != nil {
				return MergeResult{}, err
			}
			renamed[e.Name()] = name
		}
		jobs = append(jobs, copyJob{
			label: filepath.Join(images.DirName, name),
			src:   filepath.Join(other.images.Dir(), e.Name()),
			dst:   filepath.Join(s.images.Dir(), name),
		})
	}

	// ========================================================================
	// Step 3: Copy files
	// ========================================================================

	for i, job := range jobs {
		var err error
		if job.dir {
			err = fsguard.CopyTree(ctx, other.root, job.src, s.root, job.dst, nil)
		} else {
			err = fsguard.CopyFile(ctx, other.root, job.src, s.root, job.dst)
		}
		if err != nil {
			return MergeResult{}, fmt.Errorf("failed to copy %s: %w", job.label, err)
		}
		progress(float64(i+1)/float64(len(jobs)), job.label)
	}

	// ========================================================================
	// Step 4: Merge records
	// ========================================================================

	res := MergeResult{Reassigned: mapping, RenamedImages: renamed}
	merges := []func() (int, error){
		func() (int, error) { return s.avatars.MergeFrom(ctx, other.avatars, mapping, renamed) },
		func() (int, error) { return s.avatarWearables.MergeFrom(ctx, other.avatarWearables, mapping, renamed) },
		func() (int, error) { return s.worldObjects.MergeFrom(ctx, other.worldObjects, mapping, renamed) },
		func() (int, error) { return s.otherAssets.MergeFrom(ctx, other.otherAssets, mapping, renamed) },
	}
	for _, merge := range merges {
		n, err := merge()
		res.Merged += n
		if err != nil {
			_ = s.rebuildIndex()
			return res, err
		}
	}

	if err := s.rebuildIndex(); err != nil {
		return res, err
	}

	progress(1.0, "")
	s.log.Info("Merged %d assets from %s (%d relabelled, %d images renamed)",
		res.Merged, other.root, len(mapping), len(renamed))
	return res, nil
}

// freshImageName returns an unused pool name with name's extension. A
// temp_ upload stays a temp_ upload. Caller holds mu.
func (s *Storage) freshImageName(name string) (string, error) {
	prefix := ""
	if strings.HasPrefix(name, images.TempPrefix) {
		prefix = images.TempPrefix
	}
	for {
		candidate := prefix + uuid.NewString() + filepath.Ext(name)
		taken, err := exists(filepath.Join(s.images.Dir(), candidate))
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
}

// freshID returns an identifier present in neither set.
func freshID(sets ...map[uuid.UUID]struct{}) uuid.UUID {
	for {
		id := uuid.New()
		clash := false
		for _, set := range sets {
			if _, ok := set[id]; ok {
				clash = true
				break
			}
		}
		if !clash {
			return id
		}
	}
}

// ============================================================================
// Import / export
// ============================================================================

// ImportArchive extracts a zip produced by ExportArchive into a scratch
// directory inside the data root and merges it with MergeExternal. The
// scratch directory is always removed afterwards.
//
// Progress runs from 0 to 0.5 during extraction and from 0.5 to 1.0 during
// the merge.
func (s *Storage) ImportArchive(ctx context.Context, zipPath string, progress fsguard.ProgressFunc) (MergeResult, error) {
	if progress == nil {
		progress = func(float64, string) {}
	}

	root := s.Root()
	scratch, err := fsguard.NewScratch(root, filepath.Join(root, importScratchPrefix+uuid.NewString()))
	if err != nil {
		return MergeResult{}, err
	}
	defer func() {
		if err := scratch.Close(); err != nil {
			s.log.Warn("Failed to remove import scratch %s: %v", scratch.Path(), err)
		}
	}()

	if err := archive.Extract(ctx, zipPath, scratch.Path(), func(p float64, label string) {
		progress(p/2, label)
	}); err != nil {
		return MergeResult{}, fmt.Errorf("failed to extract %s: %w", zipPath, err)
	}

	foreign, err := New(ctx, scratch.Path(), Options{Log: s.opts.Log, DisableBackup: true})
	if err != nil {
		return MergeResult{}, err
	}
	defer foreign.Close()

	if err := foreign.LoadAll(ctx); err != nil {
		return MergeResult{}, fmt.Errorf("failed to read imported data: %w", err)
	}

	return s.MergeExternal(ctx, foreign, nil, func(p float64, label string) {
		progress(0.5+p/2, label)
	})
}

// exportPaths lists what an export carries: the metadata documents (not
// their backups), data directories and images.
func exportPaths() []string {
	var paths []string
	for _, k := range asset.Kinds {
		paths = append(paths, jsonstore.MetadataDir+"/"+k.FileName())
	}
	return append(paths, DataDir, images.DirName)
}

// ExportArchive writes the metadata documents, data directories and images
// into a new zip at dst. An existing dst fails with Conflict.
func (s *Storage) ExportArchive(ctx context.Context, dst string, progress fsguard.ProgressFunc) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := archive.WriteTree(ctx, s.root, exportPaths(), dst, progress); err != nil {
		return err
	}
	s.log.Info("Exported %s to %s", s.root, dst)
	return nil
}

// ExportDir copies the metadata documents, data directories and images into
// dst, which must be absent or empty (Conflict otherwise). A failed export
// removes dst when this call created it, and empties it otherwise.
func (s *Storage) ExportDir(ctx context.Context, dst string, progress fsguard.ProgressFunc) (err error) {
	if progress == nil {
		progress = func(float64, string) {}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	abs, err := filepath.Abs(dst)
	if err != nil {
		return vaulterr.IO("resolve", dst, err)
	}
	if fsguard.AssertContained(s.root, abs) == nil {
		return vaulterr.Conflictf("export", abs, "destination is inside the data directory")
	}
	empty, err := isEmptyDir(abs)
	if err != nil {
		return err
	}
	if !empty {
		return vaulterr.Conflictf("export", abs, "destination directory is not empty")
	}

	existed, err := exists(abs)
	if err != nil {
		return err
	}
	var scratch *fsguard.Scratch
	if existed {
		defer func() {
			if err != nil {
				s.clearDir(abs)
			}
		}()
	} else {
		if scratch, err = fsguard.NewScratch(filepath.Dir(abs), abs); err != nil {
			return err
		}
		defer scratch.Close()
	}

	paths := exportPaths()
	for i, rel := range paths {
		src := filepath.Join(s.root, filepath.FromSlash(rel))
		info, err := os.Stat(src)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return vaulterr.IO("stat", src, err)
		}

		target := filepath.Join(abs, filepath.FromSlash(rel))
		base, span := float64(i)/float64(len(paths)), 1/float64(len(paths))
		if info.IsDir() {
			err = fsguard.CopyTree(ctx, s.root, src, abs, target, func(p float64, label string) {
				progress(base+p*span, filepath.Join(rel, label))
			})
		} else {
			err = fsguard.CopyFile(ctx, s.root, src, abs, target)
			progress(base+span, rel)
		}
		if err != nil {
			return fmt.Errorf("failed to export %s: %w", rel, err)
		}
	}

	if scratch != nil {
		scratch.Done()
	}
	progress(1.0, "")
	s.log.Info("Exported %s to %s", s.root, abs)
	return nil
}

// clearDir removes everything inside dir, keeping dir itself.
func (s *Storage) clearDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.log.Warn("Failed to clean up %s: %v", dir, err)
		return
	}
	for _, e := range entries {
		if err := fsguard.RemoveAll(dir, filepath.Join(dir, e.Name())); err != nil {
			s.log.Warn("Failed to clean up %s: %v", filepath.Join(dir, e.Name()), err)
		}
	}
}

// SweepImages deletes images no asset references and temp uploads older
// than grace. It returns the removed file names.
func (s *Storage) SweepImages(ctx context.Context, grace time.Duration) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	referenced := make(map[string]struct{})
	for _, st := range s.stores() {
		for _, name := range st.ImageFilenames() {
			referenced[name] = struct{}{}
		}
	}

	removed, err := s.images.SweepOrphans(ctx, referenced, grace)
	if len(removed) > 0 {
		s.log.Info("Swept %d orphaned images", len(removed))
	}
	return removed, err
}
