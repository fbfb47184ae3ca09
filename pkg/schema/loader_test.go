package schema

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/assetvault/assetvault/pkg/vaulterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A three-revision test document:
//   v1: ["a", "b"]                        (untagged)
//   v2: [{"name":"a"}]
//   v3: [{"name":"A","upper":true}]

type itemV3 struct {
	Name  string `json:"name"`
	Upper bool   `json:"upper"`
}

func v1ToV2(payload json.RawMessage) (json.RawMessage, error) {
	var names []string
	if err := json.Unmarshal(payload, &names); err != nil {
		return nil, err
	}
	out := make([]map[string]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			return nil, errors.New("empty name")
		}
		out = append(out, map[string]string{"name": n})
	}
	return json.Marshal(out)
}

func v2ToV3(payload json.RawMessage) (json.RawMessage, error) {
	var items []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, err
	}
	out := make([]itemV3, 0, len(items))
	for _, it := range items {
		out = append(out, itemV3{Name: strings.ToUpper(it.Name), Upper: true})
	}
	return json.Marshal(out)
}

func newTestLoader() *Loader[[]itemV3] {
	return NewLoader[[]itemV3]("items", v1ToV2, v2ToV3)
}

func TestLoader_Current(t *testing.T) {
	assert.Equal(t, 3, newTestLoader().Current())
	assert.Equal(t, 1, NewLoader[int]("plain").Current())
}

func TestLoader_DecodeEveryRevision(t *testing.T) {
	l := newTestLoader()
	want := []itemV3{{Name: "A", Upper: true}, {Name: "B", Upper: true}}

	cases := []struct {
		name    string
		raw     string
		version int
	}{
		{"LegacyUntagged", `["a","b"]`, 1},
		{"TaggedV1", `{"version":1,"data":["a","b"]}`, 1},
		{"V2", `{"version":2,"data":[{"name":"a"},{"name":"b"}]}`, 2},
		{"Current", `{"version":3,"data":[{"name":"A","upper":true},{"name":"B","upper":true}]}`, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, version, err := l.Decode([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.version, version)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoader_DecodeFailuresAreCorrupt(t *testing.T) {
	l := newTestLoader()

	cases := map[string]string{
		"Empty":          ``,
		"NotJSON":        `not json`,
		"Scalar":         `42`,
		"FutureVersion":  `{"version":9,"data":[]}`,
		"ZeroVersion":    `{"version":0,"data":[]}`,
		"MissingData":    `{"version":3}`,
		"StepFails":      `["ok",""]`,
		"WrongShape":     `{"version":3,"data":{"name":1}}`,
		"TruncatedArray": `[{"name":`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := l.Decode([]byte(raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, vaulterr.ErrCorrupt), "got %v", err)
		})
	}
}

func TestLoader_EncodeWritesCurrentEnvelope(t *testing.T) {
	l := newTestLoader()

	raw, err := l.Encode([]itemV3{{Name: "X", Upper: true}})
	require.NoError(t, err)

	var env struct {
		Version int             `json:"version"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, 3, env.Version)
	assert.JSONEq(t, `[{"name":"X","upper":true}]`, string(env.Data))

	back, version, err := l.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, 3, version)
	assert.Equal(t, []itemV3{{Name: "X", Upper: true}}, back)
}

func TestLoader_Files(t *testing.T) {
	l := newTestLoader()
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata", "items.json")

	t.Run("MissingFileIsNotAnError", func(t *testing.T) {
		v, _, found, err := l.ReadFile(path)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, v)
	})

	t.Run("WriteThenRead", func(t *testing.T) {
		require.NoError(t, l.WriteFile(path, []itemV3{{Name: "Z"}}))

		v, version, found, err := l.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, 3, version)
		assert.Equal(t, []itemV3{{Name: "Z"}}, v)

		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temporary file must not be left behind")
	})

	t.Run("CorruptFileCarriesPath", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("{"), 0644))

		_, _, found, err := l.ReadFile(path)
		assert.True(t, found)
		assert.True(t, errors.Is(err, vaulterr.ErrCorrupt))
		assert.Contains(t, err.Error(), path)
	})
}
