package preferences

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetvault/assetvault/pkg/vaulterr"
)

func TestDecode_LegacyV1(t *testing.T) {
	raw := `{"dataDirPath":"/home/me/vault","theme":"dark","deleteOnImport":true,"showUnitypackageDialog":true}`

	p, version, err := Decode([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, 1, version)
	assert.Equal(t, Preferences{
		DataDirPath:            "/home/me/vault",
		Theme:                  ThemeDark,
		Language:               DefaultLanguage,
		DeleteOnImport:         true,
		SkipUnitypackageDialog: false,
		UsePrerelease:          true,
	}, p)
	assert.NoError(t, p.Validate())
}

func TestDecode_LegacyV1HiddenDialogBecomesSkip(t *testing.T) {
	raw := `{"dataDirPath":"/v","theme":"light","deleteOnImport":false,"showUnitypackageDialog":false}`

	p, _, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.True(t, p.SkipUnitypackageDialog)
}

func TestDecode_V2KeepsLanguage(t *testing.T) {
	raw := `{"version":2,"data":{"dataDirPath":"/v","theme":"system","language":"en-US","deleteOnImport":false,"skipUnitypackageDialog":true}}`

	p, version, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	assert.Equal(t, "en-US", p.Language)
	assert.True(t, p.SkipUnitypackageDialog)
	assert.True(t, p.UsePrerelease)
}

func TestDecode_CurrentKeepsPrereleaseChoice(t *testing.T) {
	raw := `{"version":3,"data":{"dataDirPath":"/v","theme":"system","language":"en-US","deleteOnImport":false,"skipUnitypackageDialog":false,"usePrerelease":false}}`

	p, _, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.False(t, p.UsePrerelease)
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	p, version, err := Load(filepath.Join(t.TempDir(), FileName), "/data")
	require.NoError(t, err)
	assert.Equal(t, 0, version)
	assert.Equal(t, Default("/data"), p)
	assert.False(t, p.UsePrerelease)
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	want := Preferences{
		DataDirPath: "/data",
		Theme:       ThemeLight,
		Language:    "en-US",
	}

	require.NoError(t, Save(path, want))

	got, version, err := Load(path, "/ignored")
	require.NoError(t, err)
	assert.Equal(t, 3, version)
	assert.Equal(t, want, got)
}

func TestSave_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	err := Save(path, Preferences{DataDirPath: "/d", Theme: "neon", Language: "en-US"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oneof")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoad_CorruptIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(`"just a string"`), 0644))

	_, _, err := Load(path, "/d")
	assert.True(t, errors.Is(err, vaulterr.ErrCorrupt))
}
