// Package search filters assets. It holds no state: every call evaluates a
// Request against the assets it is given and returns matching identifiers.
package search

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/assetvault/assetvault/pkg/asset"
	"github.com/assetvault/assetvault/pkg/storage"
)

// MatchMode selects how a multi-value filter combines its values.
type MatchMode string

const (
	// MatchAll requires every requested value to be present (AND).
	MatchAll MatchMode = "and"

	// MatchAny requires at least one requested value to be present (OR).
	MatchAny MatchMode = "or"
)

// ParseMatchMode accepts "and"/"all" and "or"/"any", case-insensitively.
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "and", "all":
		return MatchAll, nil
	case "or", "any":
		return MatchAny, nil
	default:
		return "", fmt.Errorf("unknown match mode %q (supported: and, or)", s)
	}
}

// ValueFilter matches a set of requested values against an asset's values.
// A filter with no values matches everything.
type ValueFilter struct {
	Values []string  `validate:"dive,required"`
	Mode   MatchMode `validate:"omitempty,oneof=and or"`
}

func (f ValueFilter) active() bool { return len(f.Values) > 0 }

func (f ValueFilter) match(have []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, v := range have {
		set[v] = struct{}{}
	}

	if f.Mode == MatchAny {
		for _, want := range f.Values {
			if _, ok := set[want]; ok {
				return true
			}
		}
		return false
	}

	for _, want := range f.Values {
		if _, ok := set[want]; !ok {
			return false
		}
	}
	return true
}

// Request describes one search. Zero fields do not filter.
//
// A filter naming a concept a kind does not have (Categories on avatars,
// SupportedAvatars on anything but wearables) excludes every asset of that
// kind rather than being ignored for it.
type Request struct {
	// Kind restricts results to one kind; empty means every kind.
	Kind asset.Kind `validate:"omitempty,oneof=avatar avatarWearable worldObject otherAsset"`

	// Text is split on whitespace; every token must occur, ignoring case,
	// in the name, the creator or one of the tags.
	Text string

	// Categories matches assets whose category is one of the values.
	Categories []string `validate:"dive,required"`

	// Tags matches description tags.
	Tags ValueFilter

	// SupportedAvatars matches a wearable's supported avatar labels.
	SupportedAvatars ValueFilter
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the request's kind, modes and values.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}
	return nil
}

// Match reports whether a satisfies every filter of r.
func (r Request) Match(a asset.Asset) bool {
	if r.Kind != "" && a.Kind() != r.Kind {
		return false
	}

	d := a.Desc()
	for _, token := range strings.Fields(strings.ToLower(r.Text)) {
		if !matchesText(d, token) {
			return false
		}
	}

	if len(r.Categories) > 0 {
		c, ok := a.(asset.Categorized)
		if !ok || !contains(r.Categories, c.GetCategory()) {
			return false
		}
	}

	if r.Tags.active() && !r.Tags.match(d.Tags) {
		return false
	}

	if r.SupportedAvatars.active() {
		w, ok := a.(asset.AvatarCompatible)
		if !ok || !r.SupportedAvatars.match(w.GetSupportedAvatars()) {
			return false
		}
	}
	return true
}

func matchesText(d *asset.Description, token string) bool {
	if strings.Contains(strings.ToLower(d.Name), token) || strings.Contains(strings.ToLower(d.Creator), token) {
		return true
	}
	for _, tag := range d.Tags {
		if strings.Contains(strings.ToLower(tag), token) {
			return true
		}
	}
	return false
}

func contains(values []string, v string) bool {
	for _, want := range values {
		if want == v {
			return true
		}
	}
	return false
}

// Filter returns the identifiers of the assets matching r, in input order.
func Filter(r Request, assets []asset.Asset) []uuid.UUID {
	ids := make([]uuid.UUID, 0)
	for _, a := range assets {
		if r.Match(a) {
			ids = append(ids, a.GetID())
		}
	}
	return ids
}

// Source supplies the assets to search.
type Source interface {
	Snapshot() storage.Snapshot
}

// Run validates r and filters a snapshot of src.
func Run(src Source, r Request) ([]uuid.UUID, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return Filter(r, src.Snapshot().All()), nil
}
