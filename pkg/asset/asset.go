// Package asset defines the four asset kinds managed by assetvault, their
// shared description, the factories that create them, and the schema chain
// that upgrades historical metadata files.
package asset

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
)

// Kind names one of the fixed set of asset record shapes.
type Kind string

const (
	KindAvatar         Kind = "avatar"
	KindAvatarWearable Kind = "avatarWearable"
	KindWorldObject    Kind = "worldObject"
	KindOtherAsset     Kind = "otherAsset"
)

// Kinds lists every kind in the fixed probe order used by the storage facade.
var Kinds = []Kind{KindAvatar, KindAvatarWearable, KindWorldObject, KindOtherAsset}

// FileName returns the metadata file name holding this kind's records.
func (k Kind) FileName() string {
	switch k {
	case KindAvatar:
		return "avatars.json"
	case KindAvatarWearable:
		return "avatarWearables.json"
	case KindWorldObject:
		return "worldObjects.json"
	case KindOtherAsset:
		return "otherAssets.json"
	}
	return string(k) + ".json"
}

// ParseKind accepts a kind name case-insensitively.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown asset kind %q", s)
}

// Asset is implemented by the pointer type of every kind.
type Asset interface {
	Kind() Kind
	GetID() uuid.UUID
	SetID(id uuid.UUID)
	Desc() *Description
}

// Record is an Asset that can deep-copy itself. Stores are generic over it.
type Record[T any] interface {
	Asset
	Clone() T
}

// Categorized is implemented by kinds that carry a category.
type Categorized interface {
	GetCategory() string
}

// AvatarCompatible is implemented by kinds that list supported avatars.
type AvatarCompatible interface {
	GetSupportedAvatars() []string
}

// Equal reports whether two assets are structurally identical.
func Equal(a, b Asset) bool {
	return reflect.DeepEqual(a, b)
}

// ============================================================================
// Kinds
// ============================================================================

type Avatar struct {
	ID          uuid.UUID   `json:"id"`
	Description Description `json:"description"`
}

func (a *Avatar) Kind() Kind { return KindAvatar }
func (a *Avatar) GetID() uuid.UUID { return a.ID }
func (a *Avatar) SetID(id uuid.UUID) { a.ID = id }
func (a *Avatar) Desc() *Description { return &a.Description }
func (a *Avatar) Clone() *Avatar {
	return &Avatar{ID: a.ID, Description: a.Description.Clone()}
}

type AvatarWearable struct {
	ID               uuid.UUID   `json:"id"`
	Description      Description `json:"description"`
	Category         string      `json:"category"`
	SupportedAvatars []string    `json:"supportedAvatars"`
}

func (a *AvatarWearable) Kind() Kind { return KindAvatarWearable }
func (a *AvatarWearable) GetID() uuid.UUID { return a.ID }
func (a *AvatarWearable) SetID(id uuid.UUID) { a.ID = id }
func (a *AvatarWearable) Desc() *Description { return &a.Description }
func (a *AvatarWearable) GetCategory() string { return a.Category }
func (a *AvatarWearable) GetSupportedAvatars() []string { return a.SupportedAvatars }
func (a *AvatarWearable) Clone() *AvatarWearable {
	return &AvatarWearable{
		ID:               a.ID,
		Description:      a.Description.Clone(),
		Category:         a.Category,
		SupportedAvatars: cloneStrings(a.SupportedAvatars),
	}
}

type WorldObject struct {
	ID          uuid.UUID   `json:"id"`
	Description Description `json:"description"`
	Category    string      `json:"category"`
}

func (a *WorldObject) Kind() Kind { return KindWorldObject }
func (a *WorldObject) GetID() uuid.UUID { return a.ID }
func (a *WorldObject) SetID(id uuid.UUID) { a.ID = id }
func (a *WorldObject) Desc() *Description { return &a.Description }
func (a *WorldObject) GetCategory() string { return a.Category }
func (a *WorldObject) Clone() *WorldObject {
	return &WorldObject{ID: a.ID, Description: a.Description.Clone(), Category: a.Category}
}

type OtherAsset struct {
	ID          uuid.UUID   `json:"id"`
	Description Description `json:"description"`
	Category    string      `json:"category"`
}

func (a *OtherAsset) Kind() Kind { return KindOtherAsset }
func (a *OtherAsset) GetID() uuid.UUID { return a.ID }
func (a *OtherAsset) SetID(id uuid.UUID) { a.ID = id }
func (a *OtherAsset) Desc() *Description { return &a.Description }
func (a *OtherAsset) GetCategory() string { return a.Category }
func (a *OtherAsset) Clone() *OtherAsset {
	return &OtherAsset{ID: a.ID, Description: a.Description.Clone(), Category: a.Category}
}

// ============================================================================
// Factories
// ============================================================================

// NewAvatar creates an Avatar with a fresh identifier and a normalized
// description.
func NewAvatar(desc Description) *Avatar {
	return &Avatar{ID: uuid.New(), Description: desc.normalized()}
}

// NewAvatarWearable creates an AvatarWearable with a fresh identifier.
func NewAvatarWearable(desc Description, category string, supportedAvatars []string) *AvatarWearable {
	return &AvatarWearable{
		ID:               uuid.New(),
		Description:      desc.normalized(),
		Category:         strings.TrimSpace(category),
		SupportedAvatars: trimAll(supportedAvatars),
	}
}

// NewWorldObject creates a WorldObject with a fresh identifier.
func NewWorldObject(desc Description, category string) *WorldObject {
	return &WorldObject{ID: uuid.New(), Description: desc.normalized(), Category: strings.TrimSpace(category)}
}

// NewOtherAsset creates an OtherAsset with a fresh identifier.
func NewOtherAsset(desc Description, category string) *OtherAsset {
	return &OtherAsset{ID: uuid.New(), Description: desc.normalized(), Category: strings.TrimSpace(category)}
}
