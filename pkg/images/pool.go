// Package images manages the shared images/ directory of a data root.
//
// Descriptions reference images by bare file name. Uploads first land as
// "temp_<uuid>.<ext>" and become permanent when an update commits them, which
// strips the prefix.
package images

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/assetvault/assetvault/pkg/fsguard"
	"github.com/assetvault/assetvault/pkg/vaulterr"
)

const (
	// DirName is the images directory under a data root.
	DirName = "images"

	// TempPrefix marks an uploaded image not yet committed to a record.
	TempPrefix = "temp_"
)

// Pool is the images/ directory of one data root.
type Pool struct {
	dir string
}

// New returns the pool under dataRoot. The directory is created lazily.
func New(dataRoot string) *Pool {
	return &Pool{dir: filepath.Join(dataRoot, DirName)}
}

// Dir returns the pool directory.
func (p *Pool) Dir() string { return p.dir }

// IsTemp reports whether name is an uncommitted upload.
func IsTemp(name string) bool { return strings.HasPrefix(name, TempPrefix) }

// Path resolves a bare file name inside the pool.
func (p *Pool) Path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", vaulterr.New(vaulterr.CodePathEscape, "resolve image", name,
			errors.New("image name must be a bare file name"))
	}
	path := filepath.Join(p.dir, name)
	if err := fsguard.AssertContained(p.dir, path); err != nil {
		return "", err
	}
	return path, nil
}

// ImportTemp decodes the image at src, downscales it to fit maxDim x maxDim
// when maxDim > 0 and the image is larger, and stores it as a temp upload.
//
// Parameters:
//   - ctx: Context for cancellation
//   - src: absolute path of the uploaded image
//   - maxDim: longest edge in pixels, 0 to keep the original size
//
// Returns:
//   - string: the temp file name to put in a description
//   - error: IO if the file cannot be decoded or written
func (p *Pool) ImportTemp(ctx context.Context, src string, maxDim int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(src))
	if _, err := imaging.FormatFromExtension(ext); err != nil {
		return "", vaulterr.IO("import image", src, err)
	}

	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return "", vaulterr.IO("decode image", src, err)
	}

	if maxDim > 0 {
		b := img.Bounds()
		if b.Dx() > maxDim || b.Dy() > maxDim {
			img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
		}
	}

	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return "", vaulterr.IO("mkdir", p.dir, err)
	}

	name := TempPrefix + uuid.NewString() + ext
	dst, err := p.Path(name)
	if err != nil {
		return "", err
	}
	if err := imaging.Save(img, dst); err != nil {
		return "", vaulterr.IO("save image", dst, err)
	}
	return name, nil
}

// Commit makes a temp upload permanent by stripping its prefix and returns
// the permanent name. Names without the prefix are returned unchanged.
func (p *Pool) Commit(name string) (string, error) {
	if !IsTemp(name) {
		return name, nil
	}

	final := strings.TrimPrefix(name, TempPrefix)
	src, err := p.Path(name)
	if err != nil {
		return "", err
	}
	dst, err := p.Path(final)
	if err != nil {
		return "", err
	}

	if err := fsguard.Move(p.dir, src, p.dir, dst); err != nil {
		return "", fmt.Errorf("failed to commit image %s: %w", name, err)
	}
	return final, nil
}

// Delete removes an image. A missing file is not an error.
func (p *Pool) Delete(name string) error {
	if name == "" {
		return nil
	}
	path, err := p.Path(name)
	if err != nil {
		return err
	}
	return fsguard.RemoveFile(p.dir, path)
}

// SweepOrphans deletes images no description references and temp uploads
// older than grace. It returns the removed names.
//
// Context Cancellation:
// The context is checked before every deletion.
func (p *Pool) SweepOrphans(ctx context.Context, referenced map[string]struct{}, grace time.Duration) ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, vaulterr.IO("list", p.dir, err)
	}

	cutoff := time.Now().Add(-grace)
	var removed []string

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if e.IsDir() {
			continue
		}

		name := e.Name()
		if IsTemp(name) {
			info, err := e.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
		} else if _, ok := referenced[name]; ok {
			continue
		}

		if err := p.Delete(name); err != nil {
			return removed, err
		}
		removed = append(removed, name)
	}
	return removed, nil
}
