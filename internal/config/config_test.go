package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
batch-settings:
  mosaic: true
  average-images: false
mosaic-settings:
  resolution: 10
  resampling-method: bilinear
  mosaic-order:
    1: S2A_MSIL2A_20190101T101401_N0211_R022_T32TQM_20190101T113839
    2: S2A_MSIL2A_20190101T101401_N0211_R022_T33TUG_20190101T113839
image-list:
  image1:
    tile-name: S2A_MSIL1C_20190101T101401_N0207_R022_T32TQM_20190101T113839.SAFE
    ard-settings:
      atm-corr: true
      cloud-mask: true
      stack: true
    cloud-mask-settings:
      sen2cor-scl-codes: [3, 8, 9, 10]
    output-image-settings:
      bands: [B02, B03, B04, B08]
      vi: [ndvi]
      t-srs: EPSG:32632
      resolution: 20
`

func writeAOI(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aoi.geojson")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"FeatureCollection","features":[]}`), 0644))
	return path
}

func TestParseFullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig), "")
	require.NoError(t, err)

	assert.True(t, cfg.Batch.Mosaic)
	assert.False(t, cfg.Batch.AverageImages)
	assert.False(t, cfg.Batch.MosaicInAverage)

	want := MosaicSettings{
		Resolution:       10,
		ResamplingMethod: "bilinear",
		Order: []string{
			"S2A_MSIL2A_20190101T101401_N0211_R022_T32TQM_20190101T113839",
			"S2A_MSIL2A_20190101T101401_N0211_R022_T33TUG_20190101T113839",
		},
	}
	if diff := cmp.Diff(want, cfg.Batch.MosaicSettings); diff != "" {
		t.Fatalf("mosaic settings mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, cfg.Tiles, 1)
	tile := cfg.Tiles[0]
	assert.Equal(t, ARDSettings{AtmCorr: true, CloudMask: true, Stack: true}, tile.ARD)
	require.NotNil(t, tile.CloudMask)
	assert.Equal(t, []int{3, 8, 9, 10}, tile.CloudMask.SCLCodes)
	assert.True(t, tile.UsesSCLMask())
	assert.False(t, tile.UsesFmask())
	assert.Equal(t, EPSG(32632), tile.Output.TargetSRS)
	assert.Equal(t, 20.0, tile.Output.Resolution)
	assert.Equal(t, "near", tile.Output.ResamplingMethod)
	assert.Empty(t, tile.Output.InputFeatures)
}

func TestParseMissingSections(t *testing.T) {
	cases := []struct {
		name    string
		doc     string
		section string
	}{
		{
			name:    "batch-settings",
			section: "batch-settings",
			doc: `
mosaic-settings: {resolution: 10}
image-list: {}
`,
		},
		{
			name:    "mosaic-settings",
			section: "mosaic-settings",
			doc: `
batch-settings: {mosaic: false}
image-list: {}
`,
		},
		{
			name:    "ard-settings",
			section: "ard-settings",
			doc: `
batch-settings: {mosaic: false}
mosaic-settings: {resolution: 10}
image-list:
  a:
    tile-name: T1
    output-image-settings: {bands: [B04]}
`,
		},
		{
			name:    "cloud-mask-settings when cloud-mask requested",
			section: "cloud-mask-settings",
			doc: `
batch-settings: {mosaic: false}
mosaic-settings: {resolution: 10}
image-list:
  a:
    tile-name: T1
    ard-settings: {cloud-mask: true}
    output-image-settings: {bands: [B04]}
`,
		},
		{
			name:    "output-image-settings",
			section: "output-image-settings",
			doc: `
batch-settings: {mosaic: false}
mosaic-settings: {resolution: 10}
image-list:
  a:
    tile-name: T1
    ard-settings: {stack: true}
`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc), "")
			require.Error(t, err)
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %T", err)
			assert.Equal(t, tc.section, cfgErr.Section)
		})
	}
}

func TestOmittedARDKeysDefaultToFalse(t *testing.T) {
	doc := `
batch-settings: {}
mosaic-settings: {}
image-list:
  - tile-name: T1
    ard-settings:
      stack: true
      unknown-stage: true
    output-image-settings: {bands: [B04, B08]}
`
	cfg, err := Parse([]byte(doc), "")
	require.NoError(t, err)
	require.Len(t, cfg.Tiles, 1)
	assert.Equal(t, ARDSettings{Stack: true}, cfg.Tiles[0].ARD)
	assert.Nil(t, cfg.Tiles[0].CloudMask)
	assert.Equal(t, "near", cfg.Batch.MosaicSettings.ResamplingMethod)
}

func TestClipRequiresInputFeatures(t *testing.T) {
	doc := `
batch-settings: {}
mosaic-settings: {}
image-list:
  a:
    tile-name: T1
    ard-settings: {clip: true}
    output-image-settings: {bands: [B04]}
`
	_, err := Parse([]byte(doc), filepath.Join(t.TempDir(), "missing.geojson"))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "output-image-settings", cfgErr.Section)
	assert.Equal(t, "T1", cfgErr.Tile)

	aoi := writeAOI(t)
	cfg, err := Parse([]byte(doc), aoi)
	require.NoError(t, err)
	assert.Equal(t, aoi, cfg.Tiles[0].Output.InputFeatures)
}

func TestUnknownIndexRejected(t *testing.T) {
	doc := `
batch-settings: {}
mosaic-settings: {}
image-list:
  a:
    tile-name: T1
    ard-settings: {derived-index: true}
    output-image-settings: {vi: [evi]}
`
	_, err := Parse([]byte(doc), "")
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "evi")
}

func TestMosaicOrderSequence(t *testing.T) {
	doc := `
batch-settings: {}
mosaic-settings:
  mosaic-order: [T3, T1, T2]
image-list: []
`
	cfg, err := Parse([]byte(doc), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"T3", "T1", "T2"}, cfg.Batch.MosaicSettings.Order)
	assert.Empty(t, cfg.Tiles)
}

func TestParseEPSG(t *testing.T) {
	for in, want := range map[string]EPSG{"32633": 32633, "EPSG:4326": 4326, "epsg:3857": 3857, "": 0} {
		got, err := ParseEPSG(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseEPSG("utm")
	assert.Error(t, err)
	assert.Equal(t, "EPSG:32633", EPSG(32633).String())
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(fullConfig), 0644))
	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Len(t, cfg.Tiles, 1)

	_, err = Load(filepath.Join(t.TempDir(), "nope.yml"), "")
	assert.Error(t, err)
}

func TestMosaicRequiresOrder(t *testing.T) {
	for name, settings := range map[string]string{
		"missing": "{resolution: 10}",
		"empty":   "{mosaic-order: []}",
	} {
		t.Run(name, func(t *testing.T) {
			doc := "batch-settings: {mosaic: true}\nmosaic-settings: " + settings + "\nimage-list: []\n"
			_, err := Parse([]byte(doc), "")
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, "mosaic-settings", cfgErr.Section)
		})
	}

	cfg, err := Parse([]byte("batch-settings: {mosaic: false}\nmosaic-settings: {}\nimage-list: []\n"), "")
	require.NoError(t, err)
	assert.Empty(t, cfg.Batch.MosaicSettings.Order)
}

func TestLoadForMosaicSkipsCutlineCheck(t *testing.T) {
	doc := `
batch-settings: {mosaic: true}
mosaic-settings: {mosaic-order: [T1]}
image-list:
  a:
    tile-name: T1
    ard-settings: {clip: true, include-in-mosaic: true}
    output-image-settings: {bands: [B04]}
`
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	_, err := Load(path, "")
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)

	cfg, err := LoadForMosaic(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"T1"}, cfg.Batch.MosaicSettings.Order)
	assert.True(t, cfg.Tiles[0].ARD.Clip)
}

func TestDuplicateBandsCollapse(t *testing.T) {
	doc := `
batch-settings: {}
mosaic-settings: {}
image-list:
  - tile-name: T1
    ard-settings: {derived-index: true}
    output-image-settings: {bands: [B04, B08, B04], vi: [ndvi, ndvi]}
`
	cfg, err := Parse([]byte(doc), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"B04", "B08"}, cfg.Tiles[0].Output.Bands)
	assert.Equal(t, []string{"ndvi"}, cfg.Tiles[0].Output.VI)
}
