package fsguard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/assetvault/assetvault/pkg/vaulterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestAssertContained(t *testing.T) {
	t.Run("DotDotEscapes", func(t *testing.T) {
		err := AssertContained("/data", "/data/../etc/passwd")
		require.Error(t, err)
		assert.True(t, errors.Is(err, vaulterr.ErrPathEscape))
	})

	t.Run("DescendantIsContained", func(t *testing.T) {
		assert.NoError(t, AssertContained("/data", "/data/sub/file"))
	})

	t.Run("RootItselfIsContained", func(t *testing.T) {
		assert.NoError(t, AssertContained("/data", "/data/"))
	})

	t.Run("SiblingWithSharedPrefixEscapes", func(t *testing.T) {
		err := AssertContained("/data", "/database/file")
		assert.True(t, errors.Is(err, vaulterr.ErrPathEscape))
	})

	t.Run("RelativePathsAreAbsolutized", func(t *testing.T) {
		assert.NoError(t, AssertContained(".", "sub/dir"))
		assert.Error(t, AssertContained("sub", "../other"))
	})
}

func TestRemove(t *testing.T) {
	root := t.TempDir()

	t.Run("RemoveAllDeletesTree", func(t *testing.T) {
		target := filepath.Join(root, "data", "x")
		writeFile(t, filepath.Join(target, "a", "b.txt"), "b")

		require.NoError(t, RemoveAll(root, target))
		_, err := os.Stat(target)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("RemoveAllRefusesEscape", func(t *testing.T) {
		outside := t.TempDir()
		writeFile(t, filepath.Join(outside, "keep.txt"), "keep")

		err := RemoveAll(root, outside)
		assert.True(t, errors.Is(err, vaulterr.ErrPathEscape))
		assert.FileExists(t, filepath.Join(outside, "keep.txt"))
	})

	t.Run("RemoveFileMissingIsNotAnError", func(t *testing.T) {
		assert.NoError(t, RemoveFile(root, filepath.Join(root, "images", "nope.png")))
	})
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	writeFile(t, filepath.Join(src, "tree", "one.txt"), "1")
	writeFile(t, filepath.Join(src, "tree", "nested", "two.txt"), "22")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "tree", "empty"), 0755))

	var calls []float64
	var labels []string
	err := CopyTree(context.Background(),
		src, filepath.Join(src, "tree"),
		dst, filepath.Join(dst, "copy"),
		func(progress float64, label string) {
			calls = append(calls, progress)
			labels = append(labels, label)
		})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dst, "copy", "nested", "two.txt"))
	require.NoError(t, err)
	assert.Equal(t, "22", string(data))
	assert.DirExists(t, filepath.Join(dst, "copy", "empty"))

	require.Len(t, calls, 2)
	assert.Equal(t, 1.0, calls[len(calls)-1])
	assert.ElementsMatch(t, []string{"one.txt", filepath.Join("nested", "two.txt")}, labels)
}

func TestCopyTree_EmptySourceReportsCompletion(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	var last float64
	err := CopyTree(context.Background(), src, src, dst, filepath.Join(dst, "out"),
		func(progress float64, _ string) { last = progress })
	require.NoError(t, err)
	assert.Equal(t, 1.0, last)
}

func TestCopyTree_Cancelled(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := CopyTree(ctx, src, src, dst, filepath.Join(dst, "out"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCopyFile_RefusesEscapingDestination(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "a")

	err := CopyFile(context.Background(), src, filepath.Join(src, "a.txt"), dst, filepath.Join(dst, "..", "a.txt"))
	assert.True(t, errors.Is(err, vaulterr.ErrPathEscape))
}

func TestMove(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "images", "temp_x.png"), "png")

	err := Move(root, filepath.Join(root, "images", "temp_x.png"), root, filepath.Join(root, "images", "x.png"))
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(root, "images", "temp_x.png"))
	assert.FileExists(t, filepath.Join(root, "images", "x.png"))
}

func TestScratch(t *testing.T) {
	root := t.TempDir()

	t.Run("RemovedUnlessDone", func(t *testing.T) {
		s, err := NewScratch(root, filepath.Join(root, "partial"))
		require.NoError(t, err)
		writeFile(t, filepath.Join(s.Path(), "f"), "x")

		require.NoError(t, s.Close())
		assert.NoDirExists(t, s.Path())
		assert.NoError(t, s.Close())
	})

	t.Run("KeptWhenDone", func(t *testing.T) {
		s, err := NewScratch(root, filepath.Join(root, "complete"))
		require.NoError(t, err)
		s.Done()

		require.NoError(t, s.Close())
		assert.DirExists(t, s.Path())
	})

	t.Run("RefusesEscape", func(t *testing.T) {
		_, err := NewScratch(root, filepath.Join(root, "..", "elsewhere"))
		assert.True(t, errors.Is(err, vaulterr.ErrPathEscape))
	})
}
