package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetvault/assetvault/pkg/asset"
	"github.com/assetvault/assetvault/pkg/preferences"
	"github.com/assetvault/assetvault/pkg/storage"
)

// isolate points every default location into a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("ASSETVAULT_LOGGING_LEVEL", "ERROR")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--no-progress"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seed(t *testing.T, root string, assets ...asset.Asset) {
	t.Helper()
	ctx := context.Background()
	s, err := storage.New(ctx, root, storage.Options{DisableBackup: true})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.LoadAll(ctx))
	for _, a := range assets {
		require.NoError(t, s.AddAsset(ctx, a))
	}
}

func TestCLI_ListSearchDelete(t *testing.T) {
	dir := isolate(t)
	root := filepath.Join(dir, "vault")

	kikyo := asset.NewAvatar(asset.Description{Name: "Kikyo", Creator: "Ponderogen"})
	coat := asset.NewAvatarWearable(asset.Description{Name: "Coat", Tags: []string{"winter"}}, "Clothing", []string{"Kikyo"})
	coat.Description.Dependencies = []uuid.UUID{kikyo.ID}
	seed(t, root, kikyo, coat)

	out, err := run(t, "--data-dir", root, "list", "--json")
	require.NoError(t, err)
	var rows []assetRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Len(t, rows, 2)

	out, err = run(t, "--data-dir", root, "list", "--kind", "avatarWearable")
	require.NoError(t, err)
	assert.Contains(t, out, "Coat")
	assert.NotContains(t, out, "Ponderogen")

	out, err = run(t, "--data-dir", root, "search", "--ids", "--avatar", "Kikyo", "coat")
	require.NoError(t, err)
	assert.Equal(t, coat.ID.String()+"\n", out)

	_, err = run(t, "--data-dir", root, "search", "--tag-mode", "xor", "coat")
	assert.Error(t, err)

	out, err = run(t, "--data-dir", root, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Identifiers in use:  2")

	out, err = run(t, "--data-dir", root, "delete", kikyo.ID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted "+kikyo.ID.String())

	_, err = run(t, "--data-dir", root, "delete", kikyo.ID.String())
	assert.Error(t, err)

	out, err = run(t, "--data-dir", root, "list", "--json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, coat.ID, rows[0].ID)
}

func TestCLI_ExportImport(t *testing.T) {
	dir := isolate(t)
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	shared := asset.NewWorldObject(asset.Description{Name: "Chair"}, "Furniture")
	seed(t, src, shared)
	seed(t, dst, &asset.WorldObject{Description: asset.Description{Name: "Table"}, ID: shared.ID, Category: "Furniture"})

	zipPath := filepath.Join(dir, "export.zip")
	_, err := run(t, "--data-dir", src, "export", zipPath)
	require.NoError(t, err)
	assert.FileExists(t, zipPath)

	_, err = run(t, "--data-dir", src, "export", zipPath)
	assert.Error(t, err, "existing archive must not be overwritten")

	out, err := run(t, "--data-dir", dst, "import", zipPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 assets")
	assert.Contains(t, out, "reassigned "+shared.ID.String())

	out, err = run(t, "--data-dir", dst, "search", "--ids", "chair")
	require.NoError(t, err)
	ids := strings.Fields(out)
	require.Len(t, ids, 1)
	assert.NotEqual(t, shared.ID.String(), ids[0])

	folder := filepath.Join(dir, "folder")
	_, err = run(t, "--data-dir", src, "export", "--dir", folder)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(folder, "metadata", "worldObjects.json"))
}

func TestCLI_MigrateUpdatesPreferences(t *testing.T) {
	dir := isolate(t)
	old := filepath.Join(dir, "data", "assetvault")
	seed(t, old, asset.NewAvatar(asset.Description{Name: "Rusk"}))

	target := filepath.Join(dir, "moved")
	out, err := run(t, "migrate", target)
	require.NoError(t, err)
	assert.Contains(t, out, target)

	prefs, version, err := preferences.Load(filepath.Join(dir, "config", "assetvault", "preferences.json"), "")
	require.NoError(t, err)
	assert.Equal(t, 3, version)
	assert.Equal(t, target, prefs.DataDirPath)

	// Later commands follow the preferences document
	out, err = run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Rusk")

	_, err = run(t, "migrate", target)
	assert.Error(t, err, "migrating into the current root must fail")
}

func TestCLI_BackupAndLogs(t *testing.T) {
	dir := isolate(t)
	root := filepath.Join(dir, "vault")
	seed(t, root, asset.NewAvatar(asset.Description{Name: "Kikyo"}))

	out, err := run(t, "--data-dir", root, "backup")
	require.NoError(t, err)
	assert.Contains(t, out, "Snapshot written to")

	out, err = run(t, "--data-dir", root, "backup", "list")
	require.NoError(t, err)
	// one snapshot per load plus the explicit one
	assert.GreaterOrEqual(t, len(strings.Fields(out)), 2)

	out, err = run(t, "--data-dir", root, "--log-level", "debug", "logs")
	require.NoError(t, err)
	assert.Contains(t, out, "[INFO]")

	_, err = run(t, "--data-dir", root, "backup", "schedule")
	assert.Error(t, err, "schedule requires backup.schedule")
}

func TestCLI_ConfigAndPrefs(t *testing.T) {
	dir := isolate(t)

	path := filepath.Join(dir, "custom.yaml")
	out, err := run(t, "config", "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	_, err = run(t, "config", "init", "--path", path)
	assert.Error(t, err)

	out, err = run(t, "config", "schema")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))

	out, err = run(t, "--config", path, "prefs", "show")
	require.NoError(t, err)
	var prefs preferences.Preferences
	require.NoError(t, json.Unmarshal([]byte(out), &prefs))
	assert.Equal(t, preferences.DefaultLanguage, prefs.Language)
	assert.Equal(t, filepath.Join(dir, "data", "assetvault"), prefs.DataDirPath)
}

func TestCLI_BadArguments(t *testing.T) {
	isolate(t)

	_, err := run(t, "delete", "not-a-uuid")
	assert.ErrorContains(t, err, "invalid asset id")

	_, err = run(t, "list", "--kind", "spaceship")
	assert.Error(t, err)

	_, err = run(t, "--log-level", "chatty", "list")
	assert.Error(t, err)
}

func TestProgressBar_ClampsFraction(t *testing.T) {
	var buf bytes.Buffer
	bar := newProgressBar(&buf, "copy", false)
	bar.Update(-1, "")
	bar.Update(0.5, "data/x")
	bar.Update(2, "")
	bar.Finish()
	assert.NotEmpty(t, buf.String())
}
