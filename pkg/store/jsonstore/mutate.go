package jsonstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/assetvault/assetvault/pkg/asset"
	"github.com/assetvault/assetvault/pkg/vaulterr"
)

// Add inserts item and rewrites the metadata file.
//
// Adding a value structurally identical to a stored record is a no-op on the
// set (the file is still rewritten). Adding a different value under an
// identifier already in use fails with Conflict; use Update instead.
//
// Parameters:
//   - ctx: Context for cancellation (checked before taking the lock)
//   - item: Record to insert; the store keeps its own copy
//
// Returns:
//   - error: validation failure, Conflict, or a persistence error
func (s *Store[T]) Add(ctx context.Context, item T) (err error) {
	defer func(start time.Time) { s.record("Add", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := asset.Validate(item); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(item.GetID()); i >= 0 {
		if !asset.Equal(s.items[i], item) {
			return vaulterr.Conflictf("add "+string(s.kind), item.GetID().String(),
				"identifier already holds a different record")
		}
		return s.persist()
	}

	s.items = append(s.items, item.Clone())
	return s.persist()
}

// Update replaces the record sharing item's identifier.
//
// The stored CreatedAt is kept regardless of item's value. When the image
// file name changes, a "temp_" upload is committed (renamed without the
// prefix, which is also the name stored) and the previous image is deleted
// best-effort.
//
// Returns:
//   - error: NotFound if no record has the identifier (the set is left
//     unchanged), validation or image commit failures, or a persistence error
func (s *Store[T]) Update(ctx context.Context, item T) (err error) {
	defer func(start time.Time) { s.record("Update", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := asset.Validate(item); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// ========================================================================
	// Step 1: Locate the existing record
	// ========================================================================

	i := s.indexOf(item.GetID())
	if i < 0 {
		return vaulterr.NotFound("update "+string(s.kind), item.GetID().String())
	}
	existing := s.items[i]

	updated := item.Clone()
	updated.Desc().CreatedAt = existing.Desc().CreatedAt

	// ========================================================================
	// Step 2: Reconcile the image file
	// ========================================================================

	oldImage := existing.Desc().ImageFilename
	newImage := updated.Desc().ImageFilename
	if newImage != oldImage {
		if newImage != "" {
			committed, err := s.images.Commit(newImage)
			if err != nil {
				return err
			}
			updated.Desc().ImageFilename = committed
			newImage = committed
		}
		if oldImage != "" && oldImage != newImage {
			if err := s.images.Delete(oldImage); err != nil {
				s.log.Warn("Failed to delete replaced image %s: %v", oldImage, err)
			}
		}
	}

	// ========================================================================
	// Step 3: Replace and persist
	// ========================================================================

	s.items[i] = updated
	return s.persist()
}

// Delete removes the record with id and reports whether it was present.
// Absence is not an error, so cascades can call it unconditionally.
func (s *Store[T]) Delete(ctx context.Context, id uuid.UUID) (found bool, err error) {
	defer func(start time.Time) { s.record("Delete", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}

	s.items = append(s.items[:i], s.items[i+1:]...)
	return true, s.persist()
}

// RemoveDependencyEverywhere drops id from every record's dependency list.
// The file is rewritten only when some record referenced id; the return value
// reports whether that happened.
func (s *Store[T]) RemoveDependencyEverywhere(ctx context.Context, id uuid.UUID) (changed bool, err error) {
	defer func(start time.Time) { s.record("RemoveDependency", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if item.Desc().RemoveDependency(id) {
			changed = true
		}
	}
	if !changed {
		return false, nil
	}
	return true, s.persist()
}

// MergeFrom inserts every record of other into s.
//
// Identifiers found in reassign are replaced by their mapped value, both on
// the record itself and inside dependency lists, so references between
// merged records stay intact. Image file names found in renameImages are
// replaced the same way. The merge is checked before anything changes: a
// merged identifier that already holds a different record in s, or that two
// merged records end up sharing, fails with Conflict and leaves s untouched.
//
// Parameters:
//   - ctx: Context for cancellation
//   - other: Store to read from (only read; may be s's foreign counterpart)
//   - reassign: Identifier replacement map (may be nil)
//   - renameImages: Image file name replacement map (may be nil)
//
// Returns:
//   - int: Number of records inserted
//   - error: Conflict or a persistence error
func (s *Store[T]) MergeFrom(ctx context.Context, other *Store[T], reassign map[uuid.UUID]uuid.UUID, renameImages map[string]string) (merged int, err error) {
	defer func(start time.Time) { s.record("Merge", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if other == s {
		return 0, fmt.Errorf("cannot merge a %s store into itself", s.kind)
	}

	incoming := other.GetAll()
	for _, item := range incoming {
		if to, ok := reassign[item.GetID()]; ok {
			item.SetID(to)
		}
		if to, ok := renameImages[item.Desc().ImageFilename]; ok {
			item.Desc().ImageFilename = to
		}
		deps := item.Desc().Dependencies
		for j, dep := range deps {
			if to, ok := reassign[dep]; ok {
				deps[j] = to
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var added []T
	seen := make(map[uuid.UUID]struct{}, len(incoming))
	for _, item := range incoming {
		if _, dup := seen[item.GetID()]; dup {
			return 0, vaulterr.Conflictf("merge "+string(s.kind), item.GetID().String(),
				"two merged records share the identifier")
		}
		seen[item.GetID()] = struct{}{}

		if i := s.indexOf(item.GetID()); i >= 0 {
			if asset.Equal(s.items[i], item) {
				continue
			}
			return 0, vaulterr.Conflictf("merge "+string(s.kind), item.GetID().String(),
				"identifier exists in both stores")
		}
		added = append(added, item)
	}

	if len(added) == 0 {
		return 0, nil
	}
	s.items = append(s.items, added...)
	return len(added), s.persist()
}
