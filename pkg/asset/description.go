package asset

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Description is embedded in every asset kind.
type Description struct {
	Name    string `json:"name" validate:"required"`
	Creator string `json:"creator"`

	// ImageFilename names a file in the store's images/ directory. It is a
	// bare file name, never a path. A "temp_" prefix marks an uncommitted
	// upload.
	ImageFilename string `json:"imageFilename,omitempty" validate:"omitempty,imagefile"`

	Tags        []string `json:"tags"`
	Memo        string   `json:"memo,omitempty"`
	BoothItemID *uint64  `json:"boothItemId,omitempty"`

	// Dependencies are weak references to other assets. Dangling entries are
	// tolerated and pruned when the referenced asset is deleted.
	Dependencies []uuid.UUID `json:"dependencies"`

	// CreatedAt and PublishedAt are Unix epoch milliseconds. CreatedAt never
	// changes after creation.
	CreatedAt   int64  `json:"createdAt"`
	PublishedAt *int64 `json:"publishedAt,omitempty"`
}

// NowMillis returns the current time as Unix epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Clone returns a deep copy.
func (d Description) Clone() Description {
	out := d
	out.Tags = cloneStrings(d.Tags)
	if d.Dependencies != nil {
		out.Dependencies = append([]uuid.UUID{}, d.Dependencies...)
	}
	if d.BoothItemID != nil {
		v := *d.BoothItemID
		out.BoothItemID = &v
	}
	if d.PublishedAt != nil {
		v := *d.PublishedAt
		out.PublishedAt = &v
	}
	return out
}

// HasDependency reports whether id is listed as a dependency.
func (d *Description) HasDependency(id uuid.UUID) bool {
	for _, dep := range d.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// RemoveDependency drops every occurrence of id and reports whether any was
// present.
func (d *Description) RemoveDependency(id uuid.UUID) bool {
	kept := d.Dependencies[:0]
	removed := false
	for _, dep := range d.Dependencies {
		if dep == id {
			removed = true
			continue
		}
		kept = append(kept, dep)
	}
	d.Dependencies = kept
	return removed
}

// normalized trims text fields, drops empty tags, fills nil slices and stamps
// CreatedAt when unset.
func (d Description) normalized() Description {
	out := d.Clone()
	out.Name = strings.TrimSpace(out.Name)
	out.Creator = strings.TrimSpace(out.Creator)
	out.Memo = strings.TrimSpace(out.Memo)
	out.ImageFilename = strings.TrimSpace(out.ImageFilename)
	out.Tags = trimAll(out.Tags)
	if out.Dependencies == nil {
		out.Dependencies = []uuid.UUID{}
	}
	if out.CreatedAt == 0 {
		out.CreatedAt = NowMillis()
	}
	return out
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string{}, in...)
}
