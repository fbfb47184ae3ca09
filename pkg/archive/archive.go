// Package archive writes directory trees to zip files and extracts them back.
//
// Extraction refuses entries that would land outside the destination
// directory.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/assetvault/assetvault/pkg/fsguard"
	"github.com/assetvault/assetvault/pkg/vaulterr"
)

// WriteTree writes the listed files and directories of root into a new zip
// file at dst. Directories are included recursively; listed paths that do not
// exist are skipped. Entry names are slash-separated and relative to root.
//
// dst must not exist; an existing file fails with Conflict. A failed or
// cancelled write removes the partial zip.
//
// Parameters:
//   - ctx: Context for cancellation (checked before every file)
//   - root: Directory the entries are taken from
//   - paths: Slash-separated paths relative to root to include
//   - dst: Zip file to create
//   - progress: optional callback, called after each file and with 1.0 at the end
func WriteTree(ctx context.Context, root string, paths []string, dst string, progress fsguard.ProgressFunc) (err error) {
	if progress == nil {
		progress = func(float64, string) {}
	}

	// ========================================================================
	// Step 1: Collect files
	// ========================================================================

	var files []string
	for _, p := range paths {
		dir := filepath.Join(root, filepath.FromSlash(p))
		if err := fsguard.AssertContained(root, dir); err != nil {
			return err
		}
		walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				files = append(files, path)
			}
			return nil
		})
		if errors.Is(walkErr, fs.ErrNotExist) {
			continue
		}
		if walkErr != nil {
			return vaulterr.IO("walk", dir, walkErr)
		}
	}

	// ========================================================================
	// Step 2: Create the zip
	// ========================================================================

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		return vaulterr.Conflictf("export", dst, "archive already exists")
	}
	if err != nil {
		return vaulterr.IO("create", dst, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = vaulterr.IO("close", dst, cerr)
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	zw := zip.NewWriter(out)

	// ========================================================================
	// Step 3: Add entries
	// ========================================================================

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return vaulterr.IO("export", path, err)
		}
		name := filepath.ToSlash(rel)
		if err := addFile(zw, path, name); err != nil {
			return err
		}
		progress(float64(i+1)/float64(len(files)), name)
	}

	if err := zw.Close(); err != nil {
		return vaulterr.IO("finish", dst, err)
	}
	if len(files) == 0 {
		progress(1.0, "")
	}
	return nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return vaulterr.IO("open", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return vaulterr.IO("stat", path, err)
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return vaulterr.IO("export", path, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return vaulterr.IO("export", path, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return vaulterr.IO("export", path, err)
	}
	return nil
}

// Extract unpacks the zip at src into the existing directory dst.
//
// Every entry is checked against dst before it is written; an entry that
// would escape (for example "../x" or an absolute name) fails the whole
// extraction with PathEscape. Entries written before a failure are left in
// place for the caller to clean up.
//
// Parameters:
//   - ctx: Context for cancellation (checked before every entry)
//   - src: Zip file to read
//   - dst: Destination directory
//   - progress: optional callback, called after each entry and with 1.0 at the end
func Extract(ctx context.Context, src, dst string, progress fsguard.ProgressFunc) error {
	if progress == nil {
		progress = func(float64, string) {}
	}

	zr, err := zip.OpenReader(src)
	if err != nil {
		return vaulterr.IO("open archive", src, err)
	}
	defer zr.Close()

	total := len(zr.File)
	for i, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		target := filepath.Join(dst, filepath.FromSlash(f.Name))
		if filepath.IsAbs(filepath.FromSlash(f.Name)) || strings.HasPrefix(f.Name, "/") {
			return vaulterr.New(vaulterr.CodePathEscape, "extract", f.Name, fmt.Errorf("absolute entry name"))
		}
		if err := fsguard.AssertContained(dst, target); err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return vaulterr.IO("mkdir", target, err)
			}
		} else if f.FileInfo().Mode().IsRegular() {
			if err := extractFile(f, target); err != nil {
				return err
			}
		}
		progress(float64(i+1)/float64(total), f.Name)
	}

	if total == 0 {
		progress(1.0, "")
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return vaulterr.IO("mkdir", filepath.Dir(target), err)
	}

	rc, err := f.Open()
	if err != nil {
		return vaulterr.Corrupt("extract", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return vaulterr.IO("create", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return vaulterr.IO("extract", target, err)
	}
	if err := out.Close(); err != nil {
		return vaulterr.IO("close", target, err)
	}
	return nil
}
