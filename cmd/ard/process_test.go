package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/regen-network/open-science/internal/config"
	"github.com/regen-network/open-science/internal/raster"
	"github.com/regen-network/open-science/internal/report"
	"github.com/regen-network/open-science/internal/store"
	"github.com/regen-network/open-science/internal/ui"
	"github.com/regen-network/open-science/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	tileName = "S2A_MSIL2A_20190101T101401_N0211_R022_T32TQM_20190101T113839.SAFE"
	tileID   = "S2A_MSIL2A_20190101T101401_N0211_R022_T32TQM_20190101T113839"
)

// writeL2A writes a SAFE directory with 10m bands stored as GeoTIFFs under
// the .jp2 names its metadata lists.
func writeL2A(t *testing.T, dir string, bands ...string) {
	t.Helper()
	raster.Register()
	sr, err := godal.NewSpatialRefFromEPSG(32632)
	require.NoError(t, err)
	defer sr.Close()
	wkt, err := sr.WKT()
	require.NoError(t, err)

	product := filepath.Join(dir, tileName)
	var xml strings.Builder
	xml.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<n1:Level-2A_User_Product xmlns:n1="https://psd-14.sentinel2.eo.esa.int"><n1:General_Info><Product_Info>
<Product_Organisation><Granule_List><Granule granuleIdentifier="G">
`)
	for i, b := range bands {
		file := fmt.Sprintf("GRANULE/G/IMG_DATA/T32TQM_20190101T101401_%s_10m", b)
		fmt.Fprintf(&xml, "<IMAGE_FILE>%s</IMAGE_FILE>\n", file)
		meta := raster.Meta{
			GeoTransform: [6]float64{600000, 10, 0, 5000040, 0, -10},
			Projection:   wkt,
			Width:        4,
			Height:       4,
			DataType:     godal.UInt16,
		}
		data := make([]float64, 16)
		for j := range data {
			data[j] = float64(100 * (i + 1))
		}
		require.NoError(t, raster.Write(filepath.Join(product, file+".jp2"), meta, data))
	}
	xml.WriteString(`</Granule></Granule_List></Product_Organisation></Product_Info></n1:General_Info></n1:Level-2A_User_Product>`)
	require.NoError(t, os.WriteFile(filepath.Join(product, "MTD_MSIL2A.xml"), []byte(xml.String()), 0644))
}

func processFixture(t *testing.T, doc string) processOptions {
	t.Helper()
	ui.SetOutput(&bytes.Buffer{})
	logger = zap.NewNop()

	root := t.TempDir()
	tiles := filepath.Join(root, "tiles")
	writeL2A(t, tiles, "B02", "B03")
	cfgPath := filepath.Join(root, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(doc), 0644))

	return processOptions{
		tilesDir:   tiles,
		configPath: cfgPath,
		workDir:    filepath.Join(root, "work"),
		outputDir:  filepath.Join(root, "output"),
		mosaicDir:  filepath.Join(root, "mosaic"),
		ledgerPath: filepath.Join(root, "ard.db"),
		backend:    "godal",
		workers:    1,
	}
}

func TestRunProcessFromConfigFile(t *testing.T) {
	o := processFixture(t, `
batch-settings:
  mosaic: false
mosaic-settings:
  resolution: 10
image-list:
  image1:
    tile-name: `+tileName+`
    ard-settings:
      stack: true
    output-image-settings:
      bands: [B02, B03]
`)
	require.NoError(t, runProcess(context.Background(), o))

	assert.FileExists(t, filepath.Join(o.outputDir, tileID+"_stacked.tif"))
	assert.FileExists(t, filepath.Join(o.outputDir, output.FootprintsName))
	rows, err := report.Read(filepath.Join(o.outputDir, report.ManifestName))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "stacked", rows[0].Key)
	assert.Equal(t, 2, rows[0].Bands)
	assert.Equal(t, 100.0, rows[0].Mean)

	ledger, err := store.Open(o.ledgerPath, nil)
	require.NoError(t, err)
	defer ledger.Close()
	runs, err := ledger.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.StatusOK, runs[0].Status)
}

func TestRunProcessRejectsMosaicWithoutOrderBeforeTiles(t *testing.T) {
	o := processFixture(t, `
batch-settings:
  mosaic: true
mosaic-settings:
  resolution: 10
image-list:
  image1:
    tile-name: `+tileName+`
    ard-settings:
      stack: true
    output-image-settings:
      bands: [B02, B03]
`)
	err := runProcess(context.Background(), o)
	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "mosaic-settings", cfgErr.Section)
	assert.NoDirExists(t, o.outputDir)
	assert.NoDirExists(t, o.workDir)
}
