package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/assetvault/assetvault/pkg/asset"
	"github.com/assetvault/assetvault/pkg/fsguard"
	"github.com/assetvault/assetvault/pkg/vaulterr"
)

// AddAsset stores a into the store of its kind.
//
// Identifiers are unique across kinds: an identifier already held by a store
// of another kind fails with Conflict. Within one kind the store's own Add
// rules apply (an identical value is a no-op, a different one conflicts).
//
// Add new assets through the facade rather than a typed store so the index
// stays in step.
func (s *Storage) AddAsset(ctx context.Context, a asset.Asset) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := a.GetID()
	if st := s.owner(id); st != nil && st.Kind() != a.Kind() {
		return vaulterr.Conflictf("add asset", id.String(), "identifier already used by a %s", st.Kind())
	}

	var err error
	switch v := a.(type) {
	case *asset.Avatar:
		err = s.avatars.Add(ctx, v)
	case *asset.AvatarWearable:
		err = s.avatarWearables.Add(ctx, v)
	case *asset.WorldObject:
		err = s.worldObjects.Add(ctx, v)
	case *asset.OtherAsset:
		err = s.otherAssets.Add(ctx, v)
	default:
		return fmt.Errorf("unsupported asset type %T", a)
	}

	// A failed persist still leaves the record in memory
	if s.storeFor(a.Kind()).Contains(id) {
		s.indexPut(id, a.Kind())
	}
	return err
}

// UpdateAsset replaces the stored asset sharing a's identifier and kind.
func (s *Storage) UpdateAsset(ctx context.Context, a asset.Asset) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch v := a.(type) {
	case *asset.Avatar:
		return s.avatars.Update(ctx, v)
	case *asset.AvatarWearable:
		return s.avatarWearables.Update(ctx, v)
	case *asset.WorldObject:
		return s.worldObjects.Update(ctx, v)
	case *asset.OtherAsset:
		return s.otherAssets.Update(ctx, v)
	default:
		return fmt.Errorf("unsupported asset type %T", a)
	}
}

func (s *Storage) indexPut(id uuid.UUID, kind asset.Kind) {
	if s.index == nil {
		return
	}
	if err := s.index.Put(id, kind); err != nil {
		s.log.Warn("Failed to index %s: %v", id, err)
	}
}

func (s *Storage) indexDelete(id uuid.UUID) {
	if s.index == nil {
		return
	}
	if err := s.index.Delete(id); err != nil {
		s.log.Warn("Failed to unindex %s: %v", id, err)
	}
}

// DeleteAsset removes the asset with id from whichever store holds it, then
// cleans up after it: its data directory is deleted, its image is deleted
// best-effort, and id is dropped from every dependency list of every kind.
//
// Every cleanup step runs even if an earlier one failed, and each is safe to
// repeat. Failures are joined into the returned error; the record removal is
// never rolled back. An image that cannot be deleted is only logged, since
// SweepImages collects it later.
//
// Returns:
//   - error: NotFound if no store holds id, otherwise the joined failures
func (s *Storage) DeleteAsset(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// ========================================================================
	// Step 1: Remove the record
	// ========================================================================

	st := s.owner(id)
	if st == nil {
		return vaulterr.NotFound("delete asset", id.String())
	}

	var image string
	if a, ok := st.Lookup(id); ok {
		image = a.Desc().ImageFilename
	}

	found, err := st.Delete(ctx, id)
	if !found && err == nil {
		return vaulterr.NotFound("delete asset", id.String())
	}
	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	s.indexDelete(id)

	// ========================================================================
	// Step 2: Remove owned files
	// ========================================================================

	if err := fsguard.RemoveAll(filepath.Join(s.root, DataDir), dataDirOf(s.root, id)); err != nil {
		errs = append(errs, fmt.Errorf("failed to delete data directory of %s: %w", id, err))
	}

	if image != "" {
		if err := s.images.Delete(image); err != nil {
			s.log.Warn("Failed to delete image %s of %s: %v", image, id, err)
		}
	}

	// ========================================================================
	// Step 3: Cascade dependency removal
	// ========================================================================

	for _, other := range s.stores() {
		changed, err := other.RemoveDependencyEverywhere(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to drop %s from %s dependencies: %w", id, other.Kind(), err))
			continue
		}
		if changed {
			s.log.Debug("Dropped %s from %s dependencies", id, other.Kind())
		}
	}

	s.log.Info("Deleted %s %s", st.Kind(), id)
	return errors.Join(errs...)
}
