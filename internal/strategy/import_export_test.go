package strategy

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportYAML(t *testing.T) {
	data, err := Export(DefaultPresetFile(), DefaultExportOptions())
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, "# fxfunk strategy presets")
	assert.Contains(t, s, "schema_version:")
	assert.Contains(t, s, "presets:")
	assert.Contains(t, s, "name: tfqe")
	assert.Contains(t, s, "kind: tfqe")
	assert.Contains(t, s, "stop_atr_mult: 1.5")
}

func TestExportJSON(t *testing.T) {
	data, err := Export(DefaultPresetFile(), ExportOptions{Format: FormatJSON, PrettyPrint: true})
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(data, []byte("{")))
	assert.Contains(t, string(data), `"presets"`)
}

func TestExportUnknownFormat(t *testing.T) {
	_, err := Export(DefaultPresetFile(), ExportOptions{Format: "toml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported export format")
}

func TestExportNil(t *testing.T) {
	_, err := Export(nil, DefaultExportOptions())
	require.Error(t, err)
}

func TestExportFillsIdentity(t *testing.T) {
	f := DefaultPresetFile()
	f.Metadata.ID = ""
	f.Metadata.Source = ""

	data, err := Export(f, DefaultExportOptions())
	require.NoError(t, err)

	loaded, err := Import(data, ImportOptions{ValidateStrict: true})
	require.NoError(t, err)
	assert.NotEmpty(t, loaded.Metadata.ID)
	assert.Equal(t, "export", loaded.Metadata.Source)

	// The caller's copy is untouched.
	assert.Empty(t, f.Metadata.ID)
}

func TestImportYAMLRoundTrip(t *testing.T) {
	orig := DefaultPresetFile()
	data, err := Export(orig, DefaultExportOptions())
	require.NoError(t, err)

	loaded, err := Import(data, DefaultImportOptions())
	require.NoError(t, err)

	assert.Equal(t, orig.Metadata.Name, loaded.Metadata.Name)
	require.Len(t, loaded.Presets, 1)
	assert.Equal(t, orig.Presets[0], loaded.Presets[0])
	assert.NotEqual(t, orig.Metadata.ID, loaded.Metadata.ID, "import generates a fresh id")
}

func TestImportJSONRoundTrip(t *testing.T) {
	orig := DefaultPresetFile()
	data, err := Export(orig, ExportOptions{Format: FormatJSON})
	require.NoError(t, err)

	loaded, err := Import(data, DefaultImportOptions())
	require.NoError(t, err)
	assert.Equal(t, orig.Presets, loaded.Presets)
}

func TestImportEmpty(t *testing.T) {
	_, err := Import(nil, DefaultImportOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty preset data")
}

func TestImportGarbage(t *testing.T) {
	_, err := Import([]byte("{not valid: [json or yaml"), DefaultImportOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestImportRejectsNewerSchema(t *testing.T) {
	f := DefaultPresetFile()
	f.Metadata.SchemaVersion = "2.0"
	data, err := Export(f, ExportOptions{Format: FormatYAML})
	require.NoError(t, err)

	_, err = Import(data, DefaultImportOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema version")
}

func TestImportMigratesPatchVersion(t *testing.T) {
	f := DefaultPresetFile()
	f.Metadata.SchemaVersion = "1.0.0"
	data, err := Export(f, ExportOptions{Format: FormatYAML})
	require.NoError(t, err)

	loaded, err := Import(data, DefaultImportOptions())
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, loaded.Metadata.SchemaVersion)
}

func TestImportValidationFailure(t *testing.T) {
	f := DefaultPresetFile()
	f.Presets[0].Risk.TP1ATRMult = 3.0 // above tp2
	data, err := Export(f, ExportOptions{Format: FormatYAML})
	require.NoError(t, err)

	_, err = Import(data, DefaultImportOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
	assert.Contains(t, err.Error(), "tp1")
}

func TestImportOverrideMetadata(t *testing.T) {
	data, err := Export(DefaultPresetFile(), DefaultExportOptions())
	require.NoError(t, err)

	loaded, err := Import(data, ImportOptions{
		ValidateStrict:   true,
		OverrideMetadata: &PresetMetadata{Name: "tuned", Author: "desk"},
	})
	require.NoError(t, err)
	assert.Equal(t, "tuned", loaded.Metadata.Name)
	assert.Equal(t, "desk", loaded.Metadata.Author)
}

func TestExportToFileAndBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "presets.yaml")
	require.NoError(t, ExportToFile(DefaultPresetFile(), path, ExportOptions{IncludeMetadata: true, PrettyPrint: true, AddComments: true}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := ImportFromFile(path, DefaultImportOptions())
	require.NoError(t, err)
	assert.Equal(t, "default", loaded.Metadata.Name)
}

func TestExportToFileJSONByExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.json")
	require.NoError(t, ExportToFile(DefaultPresetFile(), path, ExportOptions{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("{")))
}

func TestImportFromFileMissing(t *testing.T) {
	_, err := ImportFromFile(filepath.Join(t.TempDir(), "nope.yaml"), DefaultImportOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read preset file")
}

func TestImportFromReader(t *testing.T) {
	data, err := Export(DefaultPresetFile(), DefaultExportOptions())
	require.NoError(t, err)

	loaded, err := ImportFromReader(bytes.NewReader(data), DefaultImportOptions())
	require.NoError(t, err)
	assert.Equal(t, "default", loaded.Metadata.Name)
}

func TestClone(t *testing.T) {
	orig := DefaultPresetFile()
	clone, err := Clone(orig)
	require.NoError(t, err)

	assert.NotEqual(t, orig.Metadata.ID, clone.Metadata.ID)
	assert.Equal(t, "clone", clone.Metadata.Source)
	assert.Equal(t, orig.Presets, clone.Presets)

	// No shared state.
	clone.Presets[0].Symbols = []string{"EUR_USD"}
	assert.Empty(t, orig.Presets[0].Symbols)

	_, err = Clone(nil)
	require.Error(t, err)
}

func TestMerge(t *testing.T) {
	base := DefaultPresetFile()
	override := &PresetFile{
		Metadata: PresetMetadata{Name: "tuned"},
		Presets: []Preset{
			{Name: "tfqe", Kind: KindTFQE, Enabled: true, Risk: RiskSpec{StopATRMult: 2.0}},
			{Name: "tfqe-eur", Kind: KindTFQE, Enabled: false, Symbols: []string{"EUR_JPY"}},
		},
	}

	merged, err := Merge(base, override)
	require.NoError(t, err)

	assert.Equal(t, "tuned", merged.Metadata.Name)
	assert.Equal(t, "merge", merged.Metadata.Source)

	require.Len(t, merged.Presets, 2)
	assert.Equal(t, 2.0, merged.Presets[0].Risk.StopATRMult, "override wins")
	assert.Equal(t, 1.0, merged.Presets[0].Risk.TP1ATRMult, "zero knobs keep base values")
	assert.Equal(t, 2.0, merged.Presets[0].Risk.TP2ATRMult)
	assert.Equal(t, "16:00", merged.Presets[0].Session.Start)
	assert.Equal(t, "tfqe-eur", merged.Presets[1].Name, "new presets are appended")
}

func TestMergeEnabledTakesOverride(t *testing.T) {
	base := DefaultPresetFile()
	override := &PresetFile{Presets: []Preset{{Name: "tfqe", Enabled: false}}}

	merged, err := Merge(base, override)
	require.NoError(t, err)
	assert.False(t, merged.Presets[0].Enabled)
}

func TestMergeNilOverride(t *testing.T) {
	base := DefaultPresetFile()
	merged, err := Merge(base, nil)
	require.NoError(t, err)
	assert.Equal(t, base.Presets, merged.Presets)

	_, err = Merge(nil, nil)
	require.Error(t, err)
}
