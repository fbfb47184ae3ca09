// Package storetest is a reusable contract suite for jsonstore.Store, run once
// per asset kind.
package storetest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetvault/assetvault/pkg/asset"
	"github.com/assetvault/assetvault/pkg/images"
	"github.com/assetvault/assetvault/pkg/store/jsonstore"
	"github.com/assetvault/assetvault/pkg/vaulterr"
)

// StoreTestSuite tests the Store contract for one asset kind.
//
// Usage:
//
//	func TestAvatarStore(t *testing.T) {
//	    suite := &storetest.StoreTestSuite[*asset.Avatar]{
//	        Kind: asset.KindAvatar,
//	        NewAsset: func(name string) *asset.Avatar {
//	            return asset.NewAvatar(asset.Description{Name: name})
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite[T asset.Record[T]] struct {
	// Kind is the asset kind under test
	Kind asset.Kind

	// NewAsset creates a fresh record with the given name and a new identifier
	NewAsset func(name string) T
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite[T]) Run(t *testing.T) {
	t.Run("Load", suite.RunLoadTests)
	t.Run("Add", suite.RunAddTests)
	t.Run("Update", suite.RunUpdateTests)
	t.Run("Delete", suite.RunDeleteTests)
	t.Run("Dependencies", suite.RunDependencyTests)
	t.Run("Merge", suite.RunMergeTests)
	t.Run("Concurrency", suite.RunConcurrencyTests)
}

func testContext() context.Context {
	return context.Background()
}

func (suite *StoreTestSuite[T]) newStore(t *testing.T, root string) *jsonstore.Store[T] {
	t.Helper()
	s := jsonstore.New[T](root, suite.Kind, jsonstore.Options{})
	require.NoError(t, s.Load(testContext()))
	return s
}

// reload opens a second store on the same root and returns its records.
func (suite *StoreTestSuite[T]) reload(t *testing.T, root string) []T {
	t.Helper()
	return suite.newStore(t, root).GetAll()
}

// ============================================================================
// Load
// ============================================================================

func (suite *StoreTestSuite[T]) RunLoadTests(t *testing.T) {
	t.Run("MissingFileIsEmpty", func(t *testing.T) {
		s := suite.newStore(t, t.TempDir())
		assert.Equal(t, 0, s.Len())
		assert.Empty(t, s.GetAll())
	})

	t.Run("CorruptFileFails", func(t *testing.T) {
		root := t.TempDir()
		s := jsonstore.New[T](root, suite.Kind, jsonstore.Options{})
		require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0755))
		require.NoError(t, os.WriteFile(s.Path(), []byte(`{"version":3,"data":`), 0644))

		err := s.Load(testContext())
		assert.True(t, errors.Is(err, vaulterr.ErrCorrupt))
	})

	t.Run("RoundTripThroughFile", func(t *testing.T) {
		root := t.TempDir()
		s := suite.newStore(t, root)

		a := suite.NewAsset("first")
		b := suite.NewAsset("second")
		b.Desc().Dependencies = []uuid.UUID{a.GetID()}
		require.NoError(t, s.Add(testContext(), a))
		require.NoError(t, s.Add(testContext(), b))

		loaded := suite.reload(t, root)
		require.Len(t, loaded, 2)
		assert.True(t, asset.Equal(a, loaded[0]))
		assert.True(t, asset.Equal(b, loaded[1]))
	})
}

// ============================================================================
// Add
// ============================================================================

func (suite *StoreTestSuite[T]) RunAddTests(t *testing.T) {
	t.Run("AddThenGet", func(t *testing.T) {
		s := suite.newStore(t, t.TempDir())
		a := suite.NewAsset("Foo")
		require.NoError(t, s.Add(testContext(), a))

		got, ok := s.Get(a.GetID())
		require.True(t, ok)
		assert.True(t, asset.Equal(a, got))
		assert.True(t, s.Contains(a.GetID()))
		assert.Equal(t, []uuid.UUID{a.GetID()}, s.IDs())
	})

	t.Run("ReadsReturnCopies", func(t *testing.T) {
		s := suite.newStore(t, t.TempDir())
		a := suite.NewAsset("Foo")
		require.NoError(t, s.Add(testContext(), a))

		a.Desc().Name = "changed after add"
		got, _ := s.Get(a.GetID())
		got.Desc().Name = "changed after get"

		again, _ := s.Get(a.GetID())
		assert.Equal(t, "Foo", again.Desc().Name)
	})

	t.Run("IdenticalValueIsNoop", func(t *testing.T) {
		s := suite.newStore(t, t.TempDir())
		a := suite.NewAsset("Foo")
		require.NoError(t, s.Add(testContext(), a))
		require.NoError(t, s.Add(testContext(), a.Clone()))

		assert.Equal(t, 1, s.Len())
	})

	t.Run("DifferentValueSameIDConflicts", func(t *testing.T) {
		s := suite.newStore(t, t.TempDir())
		a := suite.NewAsset("Foo")
		require.NoError(t, s.Add(testContext(), a))

		b := a.Clone()
		b.Desc().Name = "Bar"
		err := s.Add(testContext(), b)
		assert.True(t, errors.Is(err, vaulterr.ErrConflict))
		assert.Equal(t, 1, s.Len())
	})

	t.Run("InvalidRecordRejected", func(t *testing.T) {
		s := suite.newStore(t, t.TempDir())
		a := suite.NewAsset("Foo")
		a.Desc().ImageFilename = "../outside.png"

		assert.Error(t, s.Add(testContext(), a))
		assert.Equal(t, 0, s.Len())
	})

	t.Run("CancelledContext", func(t *testing.T) {
		s := suite.newStore(t, t.TempDir())
		ctx, cancel := context.WithCancel(testContext())
		cancel()

		assert.ErrorIs(t, s.Add(ctx, suite.NewAsset("Foo")), context.Canceled)
	})
}

// ============================================================================
// Update
// ============================================================================

func (suite *StoreTestSuite[T]) RunUpdateTests(t *testing.T) {
	t.Run("PreservesCreatedAt", func(t *testing.T) {
		root := t.TempDir()
		s := suite.newStore(t, root)
		a := suite.NewAsset("Foo")
		original := a.Desc().CreatedAt
		require.NoError(t, s.Add(testContext(), a))

		edit := a.Clone()
		edit.Desc().Name = "Renamed"
		edit.Desc().CreatedAt = original + 1000
		require.NoError(t, s.Update(testContext(), edit))

		got, _ := s.Get(a.GetID())
		assert.Equal(t, "Renamed", got.Desc().Name)
		assert.Equal(t, original, got.Desc().CreatedAt)

		loaded := suite.reload(t, root)
		require.Len(t, loaded, 1)
		assert.Equal(t, original, loaded[0].Desc().CreatedAt)
	})

	t.Run("AbsentIsNotFoundAndSetUnchanged", func(t *testing.T) {
		s := suite.newStore(t, t.TempDir())
		a := suite.NewAsset("Foo")
		require.NoError(t, s.Add(testContext(), a))
		before := s.GetAll()

		err := s.Update(testContext(), suite.NewAsset("Stranger"))
		assert.True(t, errors.Is(err, vaulterr.ErrNotFound))
		assert.Equal(t, before, s.GetAll())
	})

	t.Run("CommitsTempImageAndDeletesOld", func(t *testing.T) {
		root := t.TempDir()
		s := suite.newStore(t, root)
		pool := images.New(root)
		require.NoError(t, os.MkdirAll(pool.Dir(), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(pool.Dir(), "old.png"), []byte("old"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(pool.Dir(), "temp_new.png"), []byte("new"), 0644))

		a := suite.NewAsset("Foo")
		a.Desc().ImageFilename = "old.png"
		require.NoError(t, s.Add(testContext(), a))

		edit := a.Clone()
		edit.Desc().ImageFilename = "temp_new.png"
		require.NoError(t, s.Update(testContext(), edit))

		got, _ := s.Get(a.GetID())
		assert.Equal(t, "new.png", got.Desc().ImageFilename)
		assert.FileExists(t, filepath.Join(pool.Dir(), "new.png"))
		assert.NoFileExists(t, filepath.Join(pool.Dir(), "temp_new.png"))
		assert.NoFileExists(t, filepath.Join(pool.Dir(), "old.png"))
	})

	t.Run("MissingOldImageIsNotAnError", func(t *testing.T) {
		s := suite.newStore(t, t.TempDir())
		a := suite.NewAsset("Foo")
		a.Desc().ImageFilename = "never-existed.png"
		require.NoError(t, s.Add(testContext(), a))

		edit := a.Clone()
		edit.Desc().ImageFilename = "other.png"
		require.NoError(t, s.Update(testContext(), edit))

		got, _ := s.Get(a.GetID())
		assert.Equal(t, "other.png", got.Desc().ImageFilename)
	})

	t.Run("FailedCommitLeavesRecord", func(t *testing.T) {
		s := suite.newStore(t, t.TempDir())
		a := suite.NewAsset("Foo")
		require.NoError(t, s.Add(testContext(), a))

		edit := a.Clone()
		edit.Desc().ImageFilename = "temp_missing.png"
		assert.Error(t, s.Update(testContext(), edit))

		got, _ := s.Get(a.GetID())
		assert.Equal(t, "", got.Desc().ImageFilename)
	})
}

// ============================================================================
// Delete
// ============================================================================

func (suite *StoreTestSuite[T]) RunDeleteTests(t *testing.T) {
	t.Run("ReportsPresence", func(t *testing.T) {
		root := t.TempDir()
		s := suite.newStore(t, root)
		a := suite.NewAsset(" Foo ")
		require.NoError(t, s.Add(testContext(), a))

		got, _ := s.Get(a.GetID())
		assert.Equal(t, "Foo", got.Desc().Name)

		found, err := s.Delete(testContext(), a.GetID())
		require.NoError(t, err)
		assert.True(t, found)

		found, err = s.Delete(testContext(), a.GetID())
		require.NoError(t, err)
		assert.False(t, found)

		assert.Empty(t, suite.reload(t, root))
	})

	t.Run("KeepsOthers", func(t *testing.T) {
		s := suite.newStore(t, t.TempDir())
		a, b, c := suite.NewAsset("a"), suite.NewAsset("b"), suite.NewAsset("c")
		for _, x := range []T{a, b, c} {
			require.NoError(t, s.Add(testContext(), x))
		}

		_, err := s.Delete(testContext(), b.GetID())
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{a.GetID(), c.GetID()}, s.IDs())
	})
}

// ============================================================================
// Dependencies
// ============================================================================

func (suite *StoreTestSuite[T]) RunDependencyTests(t *testing.T) {
	t.Run("RemovesEverywhere", func(t *testing.T) {
		root := t.TempDir()
		s := suite.newStore(t, root)
		target := uuid.New()
		keep := uuid.New()

		a := suite.NewAsset("a")
		a.Desc().Dependencies = []uuid.UUID{target, keep}
		b := suite.NewAsset("b")
		b.Desc().Dependencies = []uuid.UUID{target}
		require.NoError(t, s.Add(testContext(), a))
		require.NoError(t, s.Add(testContext(), b))

		changed, err := s.RemoveDependencyEverywhere(testContext(), target)
		require.NoError(t, err)
		assert.True(t, changed)

		for _, item := range suite.reload(t, root) {
			assert.False(t, item.Desc().HasDependency(target))
		}
		got, _ := s.Get(a.GetID())
		assert.Equal(t, []uuid.UUID{keep}, got.Desc().Dependencies)
	})

	t.Run("UnreferencedDoesNotRewrite", func(t *testing.T) {
		s := suite.newStore(t, t.TempDir())
		require.NoError(t, s.Add(testContext(), suite.NewAsset("a")))

		info, err := os.Stat(s.Path())
		require.NoError(t, err)
		require.NoError(t, os.Chtimes(s.Path(), info.ModTime().Add(-time.Hour), info.ModTime().Add(-time.Hour)))
		before, err := os.Stat(s.Path())
		require.NoError(t, err)

		changed, err := s.RemoveDependencyEverywhere(testContext(), uuid.New())
		require.NoError(t, err)
		assert.False(t, changed)

		after, err := os.Stat(s.Path())
		require.NoError(t, err)
		assert.Equal(t, before.ModTime(), after.ModTime())
	})
}

// ============================================================================
// Merge
// ============================================================================

func (suite *StoreTestSuite[T]) RunMergeTests(t *testing.T) {
	t.Run("ReassignsConflictingIDs", func(t *testing.T) {
		local := suite.newStore(t, t.TempDir())
		foreign := suite.newStore(t, t.TempDir())

		shared := suite.NewAsset("local")
		require.NoError(t, local.Add(testContext(), shared))

		clash := shared.Clone()
		clash.Desc().Name = "foreign"
		dependent := suite.NewAsset("dependent")
		dependent.Desc().Dependencies = []uuid.UUID{clash.GetID()}
		require.NoError(t, foreign.Add(testContext(), clash))
		require.NoError(t, foreign.Add(testContext(), dependent))

		fresh := uuid.New()
		merged, err := local.MergeFrom(testContext(), foreign, map[uuid.UUID]uuid.UUID{shared.GetID(): fresh}, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, merged)

		kept, _ := local.Get(shared.GetID())
		assert.Equal(t, "local", kept.Desc().Name)

		moved, ok := local.Get(fresh)
		require.True(t, ok)
		assert.Equal(t, "foreign", moved.Desc().Name)

		dep, ok := local.Get(dependent.GetID())
		require.True(t, ok)
		assert.Equal(t, []uuid.UUID{fresh}, dep.Desc().Dependencies)

		// the foreign store is only read
		_, ok = foreign.Get(shared.GetID())
		assert.True(t, ok)
	})

	t.Run("UnresolvedConflictLeavesStoreUntouched", func(t *testing.T) {
		local := suite.newStore(t, t.TempDir())
		foreign := suite.newStore(t, t.TempDir())

		a := suite.NewAsset("a")
		require.NoError(t, local.Add(testContext(), a))
		clash := a.Clone()
		clash.Desc().Name = "other"
		require.NoError(t, foreign.Add(testContext(), suite.NewAsset("fine")))
		require.NoError(t, foreign.Add(testContext(), clash))

		_, err := local.MergeFrom(testContext(), foreign, nil, nil)
		assert.True(t, errors.Is(err, vaulterr.ErrConflict))
		assert.Equal(t, 1, local.Len())
	})

	t.Run("ReassignOntoForeignIdentifierConflicts", func(t *testing.T) {
		local := suite.newStore(t, t.TempDir())
		foreign := suite.newStore(t, t.TempDir())

		a := suite.NewAsset("a")
		b := suite.NewAsset("b")
		require.NoError(t, foreign.Add(testContext(), a))
		require.NoError(t, foreign.Add(testContext(), b))

		_, err := local.MergeFrom(testContext(), foreign, map[uuid.UUID]uuid.UUID{a.GetID(): b.GetID()}, nil)
		assert.True(t, errors.Is(err, vaulterr.ErrConflict))
		assert.Equal(t, 0, local.Len())
	})

	t.Run("RenamesImages", func(t *testing.T) {
		local := suite.newStore(t, t.TempDir())
		foreign := suite.newStore(t, t.TempDir())

		a := suite.NewAsset("a")
		a.Desc().ImageFilename = "cover.png"
		require.NoError(t, foreign.Add(testContext(), a))

		_, err := local.MergeFrom(testContext(), foreign, nil, map[string]string{"cover.png": "renamed.png"})
		require.NoError(t, err)

		got, ok := local.Get(a.GetID())
		require.True(t, ok)
		assert.Equal(t, "renamed.png", got.Desc().ImageFilename)

		// the foreign record keeps its name
		orig, _ := foreign.Get(a.GetID())
		assert.Equal(t, "cover.png", orig.Desc().ImageFilename)
	})
}

// ============================================================================
// Concurrency
// ============================================================================

func (suite *StoreTestSuite[T]) RunConcurrencyTests(t *testing.T) {
	t.Run("ConcurrentMutationsSerialize", func(t *testing.T) {
		root := t.TempDir()
		s := suite.newStore(t, root)

		const writers = 16
		var wg sync.WaitGroup
		errs := make(chan error, writers*2)

		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				a := suite.NewAsset("concurrent")
				if err := s.Add(testContext(), a); err != nil {
					errs <- err
					return
				}
				edit := a.Clone()
				edit.Desc().Memo = "edited"
				errs <- s.Update(testContext(), edit)
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		loaded := suite.reload(t, root)
		require.Len(t, loaded, writers)
		for _, item := range loaded {
			assert.Equal(t, "edited", item.Desc().Memo)
		}
	})
}
