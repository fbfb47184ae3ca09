package asset

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetvault/assetvault/pkg/vaulterr"
)

func TestNewAvatar_TrimsAndAssignsID(t *testing.T) {
	a := NewAvatar(Description{
		Name:    " Foo ",
		Creator: "\tBar\n",
		Tags:    []string{" x ", "", "y"},
	})

	assert.Equal(t, "Foo", a.Description.Name)
	assert.Equal(t, "Bar", a.Description.Creator)
	assert.Equal(t, []string{"x", "y"}, a.Description.Tags)
	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.NotZero(t, a.Description.CreatedAt)
	assert.NotNil(t, a.Description.Dependencies)

	b := NewAvatar(Description{Name: "Foo"})
	assert.NotEqual(t, a.ID, b.ID)
}

func TestFactories_KeepCreatedAtWhenSet(t *testing.T) {
	w := NewAvatarWearable(Description{Name: "Hat", CreatedAt: 42}, " Hats ", []string{" Alice "})
	assert.Equal(t, int64(42), w.Description.CreatedAt)
	assert.Equal(t, "Hats", w.Category)
	assert.Equal(t, []string{"Alice"}, w.SupportedAvatars)
}

func TestClone_IsDeep(t *testing.T) {
	booth := uint64(7)
	w := NewAvatarWearable(Description{Name: "Hat", Tags: []string{"a"}, BoothItemID: &booth}, "c", []string{"Alice"})
	w.Description.Dependencies = []uuid.UUID{uuid.New()}

	c := w.Clone()
	require.True(t, Equal(w, c))

	c.Description.Tags[0] = "changed"
	c.SupportedAvatars[0] = "Bob"
	*c.Description.BoothItemID = 8
	c.Description.Dependencies[0] = uuid.Nil

	assert.Equal(t, "a", w.Description.Tags[0])
	assert.Equal(t, "Alice", w.SupportedAvatars[0])
	assert.Equal(t, uint64(7), *w.Description.BoothItemID)
	assert.NotEqual(t, uuid.Nil, w.Description.Dependencies[0])
	assert.False(t, Equal(w, c))
}

func TestRemoveDependency(t *testing.T) {
	x, y := uuid.New(), uuid.New()
	d := Description{Dependencies: []uuid.UUID{x, y, x}}

	assert.True(t, d.HasDependency(x))
	assert.True(t, d.RemoveDependency(x))
	assert.Equal(t, []uuid.UUID{y}, d.Dependencies)
	assert.False(t, d.RemoveDependency(x))
}

func TestValidate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, Validate(NewWorldObject(Description{Name: "Tree", ImageFilename: "tree.png"}, "")))
	})

	t.Run("ImageFilenameWithSeparator", func(t *testing.T) {
		err := Validate(NewAvatar(Description{Name: "A", ImageFilename: "../x.png"}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "imagefile")
	})

	t.Run("EmptyName", func(t *testing.T) {
		err := Validate(NewOtherAsset(Description{Name: "  "}, ""))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "required")
	})
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("AVATARWEARABLE")
	require.NoError(t, err)
	assert.Equal(t, KindAvatarWearable, k)
	assert.Equal(t, "avatarWearables.json", k.FileName())

	_, err = ParseKind("hat")
	assert.Error(t, err)
}

// ============================================================================
// Schema chain
// ============================================================================

const legacyAvatarsV1 = `[
  {
    "id": "3b1f0c1e-8f7a-4c7e-9d55-2a6f3f0b9a01",
    "description": {
      "name": "Kikyo",
      "creator": "Pokemori",
      "imageSrc": "C:\\Users\\me\\AppData\\Roaming\\app\\images\\kikyo.png",
      "tags": ["cute"],
      "createdAt": 1700000000000
    }
  },
  {
    "id": "3b1f0c1e-8f7a-4c7e-9d55-2a6f3f0b9a02",
    "description": {
      "name": "Rusk",
      "creator": "Komado",
      "imageSrc": "/home/me/.local/share/app/images/rusk.jpg",
      "tags": [],
      "createdAt": 1700000000001
    }
  }
]`

const legacyWearablesV2 = `{
  "version": 2,
  "data": [
    {
      "id": "9c2e4d1a-1111-4a2b-8c3d-000000000001",
      "description": {
        "name": "Ribbon",
        "creator": "Shop",
        "imageFilename": "ribbon.png",
        "tags": ["accessory"],
        "memo": "gift",
        "boothItemId": 123456,
        "createdAt": 1700000000002
      },
      "category": "Accessory",
      "supportedAvatars": ["Kikyo", "Rusk"]
    }
  ]
}`

const legacyWorldObjectsV1 = `[
  {
    "id": "7d4b2a9f-2222-4b3c-9d4e-000000000001",
    "description": {
      "name": "Chair",
      "creator": "Carpenter",
      "imageSrc": "",
      "tags": ["furniture"],
      "createdAt": 1700000000003
    },
    "category": "Furniture"
  }
]`

const legacyOtherAssetsV2 = `{
  "version": 2,
  "data": [
    {
      "id": "5e6f7a8b-3333-4c5d-8e9f-000000000001",
      "description": {
        "name": "Shader",
        "creator": "lil",
        "tags": [],
        "createdAt": 1700000000004
      }
    }
  ]
}`

func TestLoader_MigratesAvatarsV1(t *testing.T) {
	l := NewLoader[*Avatar](KindAvatar)
	assert.Equal(t, 3, l.Current())

	got, version, err := l.Decode([]byte(legacyAvatarsV1))
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	require.Len(t, got, 2)

	assert.Equal(t, "kikyo.png", got[0].Description.ImageFilename)
	assert.Equal(t, "rusk.jpg", got[1].Description.ImageFilename)
	assert.Equal(t, int64(1700000000000), got[0].Description.CreatedAt)
	assert.Equal(t, []uuid.UUID{}, got[0].Description.Dependencies)
	assert.Nil(t, got[0].Description.PublishedAt)

	for _, a := range got {
		assert.NoError(t, Validate(a))
		assert.False(t, strings.ContainsAny(a.Description.ImageFilename, `/\`))
	}
}

func TestLoader_MigratesWearablesV2(t *testing.T) {
	got, version, err := NewLoader[*AvatarWearable](KindAvatarWearable).Decode([]byte(legacyWearablesV2))
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	require.Len(t, got, 1)

	w := got[0]
	assert.Equal(t, "Accessory", w.Category)
	assert.Equal(t, []string{"Kikyo", "Rusk"}, w.SupportedAvatars)
	assert.Equal(t, "gift", w.Description.Memo)
	require.NotNil(t, w.Description.BoothItemID)
	assert.Equal(t, uint64(123456), *w.Description.BoothItemID)
	assert.NoError(t, Validate(w))
}

func TestLoader_MigratesWorldObjectsV1WithoutImage(t *testing.T) {
	got, _, err := NewLoader[*WorldObject](KindWorldObject).Decode([]byte(legacyWorldObjectsV1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "", got[0].Description.ImageFilename)
	assert.Equal(t, "Furniture", got[0].Category)
}

func TestLoader_MigratesOtherAssetsV2WithDefaultCategory(t *testing.T) {
	got, _, err := NewLoader[*OtherAsset](KindOtherAsset).Decode([]byte(legacyOtherAssetsV2))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "", got[0].Category)
	assert.NoError(t, Validate(got[0]))
}

func TestLoader_RoundTripCurrent(t *testing.T) {
	l := NewLoader[*AvatarWearable](KindAvatarWearable)
	published := int64(1700000009999)
	booth := uint64(99)

	in := []*AvatarWearable{
		NewAvatarWearable(Description{Name: "A", Tags: []string{"t"}, PublishedAt: &published, BoothItemID: &booth}, "c", []string{"x"}),
		NewAvatarWearable(Description{Name: "B", Memo: "m"}, "", nil),
	}
	in[1].Description.Dependencies = []uuid.UUID{in[0].ID}

	raw, err := l.Encode(in)
	require.NoError(t, err)

	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.JSONEq(t, "3", string(env["version"]))

	out, version, err := l.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, 3, version)
	require.Len(t, out, 2)
	for i := range in {
		assert.True(t, Equal(in[i], out[i]), "record %d differs after round trip", i)
	}
}

func TestLoader_UnrepresentableImagePathIsCorrupt(t *testing.T) {
	raw := `[{"id":"3b1f0c1e-8f7a-4c7e-9d55-2a6f3f0b9a01","description":{"name":"X","creator":"","imageSrc":"/images/","tags":[],"createdAt":1}}]`

	_, _, err := NewLoader[*Avatar](KindAvatar).Decode([]byte(raw))
	require.Error(t, err)
	assert.True(t, errors.Is(err, vaulterr.ErrCorrupt))
	assert.Contains(t, err.Error(), "no file name")
}

func TestImageFilenameFromPath(t *testing.T) {
	cases := map[string]string{
		"":                  "",
		"plain.png":         "plain.png",
		"/abs/dir/a.png":    "a.png",
		`C:\dir\b.jpg`:      "b.jpg",
		"/mixed\\sep/c.gif": "c.gif",
	}
	for in, want := range cases {
		got, err := imageFilenameFromPath(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"/dir/", "/dir/..", "\xff\xfe.png"} {
		_, err := imageFilenameFromPath(bad)
		assert.Error(t, err, bad)
	}
}
