// Package fsguard wraps every destructive or transferring filesystem operation
// in a containment check.
//
// Each operation takes the directory the path must live under ("root") and
// refuses to touch the filesystem when the path resolves outside of it. For
// recursive operations only the top-level target is checked.
//
// The check is lexical: both paths are made absolute and cleaned, but symlinks
// are not resolved. It catches path-construction bugs such as a stray ".."
// and is not a security boundary against a hostile filesystem.
package fsguard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/assetvault/assetvault/pkg/vaulterr"
)

// ProgressFunc receives fractional progress in [0, 1] and a label naming the
// item currently being processed. Long operations call it with 1.0 last on
// success.
type ProgressFunc func(progress float64, label string)

// AssertContained fails with a PathEscape error unless candidate, after
// absolutization, is root itself or lies beneath root.
func AssertContained(root, candidate string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return vaulterr.IO("resolve", root, err)
	}
	absCandidate, err := filepath.Abs(candidate)
	if err != nil {
		return vaulterr.IO("resolve", candidate, err)
	}

	rel, err := filepath.Rel(absRoot, absCandidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return vaulterr.New(vaulterr.CodePathEscape, "contain", candidate,
			fmt.Errorf("%s is outside %s", absCandidate, absRoot))
	}
	return nil
}

// RemoveFile deletes a single file under root. A missing file is not an error.
func RemoveFile(root, target string) error {
	if err := AssertContained(root, target); err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return vaulterr.IO("remove", target, err)
	}
	return nil
}

// RemoveAll recursively deletes target under root. A missing target is not an
// error.
func RemoveAll(root, target string) error {
	if err := AssertContained(root, target); err != nil {
		return err
	}
	return vaulterr.IO("remove", target, os.RemoveAll(target))
}

// Move renames src (under srcRoot) to dst (under dstRoot), creating dst's
// parent directory. Across devices it falls back to copy then delete.
func Move(srcRoot, src, dstRoot, dst string) error {
	if err := AssertContained(srcRoot, src); err != nil {
		return err
	}
	if err := AssertContained(dstRoot, dst); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return vaulterr.IO("mkdir", filepath.Dir(dst), err)
	}

	renameErr := os.Rename(src, dst)
	if renameErr == nil {
		return nil
	}
	if !errors.Is(renameErr, syscall.EXDEV) {
		return vaulterr.IO("move", src, renameErr)
	}

	info, err := os.Stat(src)
	if err != nil {
		return vaulterr.IO("move", src, err)
	}
	if info.IsDir() {
		if err := copyTree(context.Background(), src, dst, nil); err != nil {
			return err
		}
	} else if err := copyFile(context.Background(), src, dst); err != nil {
		return err
	}
	return vaulterr.IO("move", src, os.RemoveAll(src))
}
