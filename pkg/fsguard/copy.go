package fsguard

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/assetvault/assetvault/pkg/vaulterr"
)

// copyChunkSize bounds how much is copied between cancellation checks.
const copyChunkSize = 256 * 1024

// CopyFile copies a single regular file, creating dst's parent directory.
//
// Context Cancellation:
// The context is checked between chunks. A cancelled copy leaves a partial dst.
//
// Parameters:
//   - ctx: Context for cancellation
//   - srcRoot, src: source file and the directory it must live under
//   - dstRoot, dst: destination file and the directory it must live under
//
// Returns:
//   - error: PathEscape if either path leaves its root, IO on copy failure,
//     or the context error
func CopyFile(ctx context.Context, srcRoot, src, dstRoot, dst string) error {
	if err := AssertContained(srcRoot, src); err != nil {
		return err
	}
	if err := AssertContained(dstRoot, dst); err != nil {
		return err
	}
	return copyFile(ctx, src, dst)
}

// CopyTree recursively copies the directory src to dst. Files are copied one
// by one and progress is reported after each, labelled with the file's path
// relative to src.
//
// Only the top-level src and dst are checked for containment; entries found
// while walking are copied as-is. Symlinks are skipped.
//
// Context Cancellation:
// The context is checked before every file and between chunks. Nothing is
// rolled back on cancellation or failure.
//
// Parameters:
//   - ctx: Context for cancellation
//   - srcRoot, src: source directory and the directory it must live under
//   - dstRoot, dst: destination directory and the directory it must live under
//   - progress: optional progress callback (nil to disable)
//
// Returns:
//   - error: PathEscape, IO, or the context error
func CopyTree(ctx context.Context, srcRoot, src, dstRoot, dst string, progress ProgressFunc) error {
	if err := AssertContained(srcRoot, src); err != nil {
		return err
	}
	if err := AssertContained(dstRoot, dst); err != nil {
		return err
	}
	return copyTree(ctx, src, dst, progress)
}

func copyTree(ctx context.Context, src, dst string, progress ProgressFunc) error {
	// ========================================================================
	// Step 1: Walk the source, creating directories and collecting files
	// ========================================================================

	var files []string
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(filepath.Join(dst, rel), 0755)
		case d.Type().IsRegular():
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return vaulterr.IO("copy", src, err)
	}

	// ========================================================================
	// Step 2: Copy files, reporting progress after each
	// ========================================================================

	for i, rel := range files {
		if err := copyFile(ctx, filepath.Join(src, rel), filepath.Join(dst, rel)); err != nil {
			return err
		}
		if progress != nil {
			progress(float64(i+1)/float64(len(files)), rel)
		}
	}

	if len(files) == 0 && progress != nil {
		progress(1.0, "")
	}
	return nil
}

func copyFile(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return vaulterr.IO("open", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return vaulterr.IO("stat", src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return vaulterr.IO("mkdir", filepath.Dir(dst), err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return vaulterr.IO("create", dst, err)
	}

	if _, err := io.CopyBuffer(out, &ctxReader{ctx: ctx, r: in}, make([]byte, copyChunkSize)); err != nil {
		out.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return vaulterr.IO("copy", src, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return vaulterr.IO("sync", dst, err)
	}
	return vaulterr.IO("close", dst, out.Close())
}

// ctxReader fails reads once its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
