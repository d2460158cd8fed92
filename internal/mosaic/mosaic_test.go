package mosaic

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/regen-network/open-science/internal/config"
	"github.com/regen-network/open-science/internal/raster"
	"github.com/regen-network/open-science/internal/tools"
	"github.com/regen-network/open-science/internal/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	t1 = "S2A_MSIL2A_20190101T101401_N0211_R022_T32TQM_20190101T113839"
	t2 = "S2B_MSIL2A_20190104T101401_N0211_R022_T32TQM_20190104T113839"
	t3 = "S2A_MSIL2A_20190107T101401_N0211_R022_T32TQM_20190107T113839"
)

func writeOutput(t *testing.T, dir, id, key string, values ...float64) string {
	t.Helper()
	raster.Register()
	sr, err := godal.NewSpatialRefFromEPSG(32632)
	require.NoError(t, err)
	defer sr.Close()
	wkt, err := sr.WKT()
	require.NoError(t, err)

	meta := raster.Meta{
		GeoTransform: [6]float64{600000, 10, 0, 5000020, 0, -10},
		Projection:   wkt,
		Width:        2,
		Height:       2,
		DataType:     godal.Float32,
	}
	path := filepath.Join(dir, id+"_"+key+".tif")
	require.NoError(t, raster.Write(path, meta, values))
	return path
}

func newBuilder(t *testing.T) *Builder {
	t.Helper()
	ui.SetOutput(&bytes.Buffer{})
	return NewBuilder(tools.NewInvoker(tools.NewGodalRunner(nil), tools.WithStrict(true)), nil, 2)
}

func TestNamesFollowProductIdentifier(t *testing.T) {
	assert.Equal(t, 60, len(t1))
	assert.Equal(t, t1, ProductID(t1+"_stacked.tif"))
	assert.Equal(t, t1, ProductID(t1+".SAFE"))
	assert.Equal(t, "stacked.tif", Suffix(t1+"_stacked.tif"))
	assert.Equal(t, "", Suffix("short.tif"))
	assert.Equal(t, "20190104", SensingDate(t2))
	assert.Equal(t,
		filepath.Join("out", "20190101_20190104_ndvi_mosaic.vrt"),
		VRTName("out", "ndvi.tif", []string{t1 + ".SAFE", t2}))
}

func TestOrderFollowsConfiguration(t *testing.T) {
	files := []string{"/d/" + t3 + "_B04.tif", "/d/" + t1 + "_B04.tif", "/d/" + t2 + "_B04.tif"}
	ordered, err := Order("B04.tif", files, []string{t2, t1 + ".SAFE", t3})
	require.NoError(t, err)
	assert.Equal(t, []string{"/d/" + t2 + "_B04.tif", "/d/" + t1 + "_B04.tif", "/d/" + t3 + "_B04.tif"}, ordered)
}

func TestOrderRejectsUnlistedAndMissingProducts(t *testing.T) {
	var ce *CompositionError

	_, err := Order("B04.tif", []string{"/d/" + t1 + "_B04.tif", "/d/" + t3 + "_B04.tif"}, []string{t1})
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "/d/"+t3+"_B04.tif", ce.File)
	assert.Contains(t, err.Error(), "not included in list of images to mosaic")

	_, err = Order("B04.tif", []string{"/d/" + t1 + "_B04.tif", "/d/" + t3 + "_B04.tif"}, []string{t1, t2, t3})
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, t2, ce.Missing)
}

func TestBuildAbortsOnlyIncompleteGroups(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, t1, "B04", 1, 1, 1, 1)
	writeOutput(t, dir, t2, "B04", 2, 2, 0, 2)
	writeOutput(t, dir, t3, "B04", 3, 3, 3, 3)
	writeOutput(t, dir, t1, "ndvi", 0.1, 0.1, 0.1, 0.1)
	writeOutput(t, dir, t3, "ndvi", 0.3, 0.3, 0.3, 0.3)

	b := newBuilder(t)
	results, err := b.Build(context.Background(), dir, config.MosaicSettings{
		ResamplingMethod: "near",
		Order:            []string{t1, t2, t3},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	b04, ndvi := results[0], results[1]
	assert.Equal(t, "B04.tif", b04.Suffix)
	require.NoError(t, b04.Err)
	assert.Equal(t, filepath.Join(dir, "20190101_20190104_20190107_B04_mosaic.tif"), b04.Output)
	data, _, err := raster.ReadBand(b04.Output)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3, 3, 3}, data, "last ordered product on top")

	var ce *CompositionError
	require.True(t, errors.As(ndvi.Err, &ce))
	assert.Equal(t, t2, ce.Missing)
	_, err = os.Stat(filepath.Join(dir, "20190101_20190104_20190107_ndvi_mosaic.vrt"))
	assert.True(t, os.IsNotExist(err))
}

func TestBuildIgnoresPreviousMosaics(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, t1, "B04", 1, 1, 1, 1)
	b := newBuilder(t)
	settings := config.MosaicSettings{Order: []string{t1}}

	_, err := b.Build(context.Background(), dir, settings)
	require.NoError(t, err)
	results, err := b.Build(context.Background(), dir, settings)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)

	_, err = b.Build(context.Background(), dir, config.MosaicSettings{})
	var cfgErr *config.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestAverageIgnoresMaskedPixels(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, t1, "ndvi", 0.2, 0, 0.4, 0)
	writeOutput(t, dir, t2, "ndvi", 0.4, 0.6, 0, 0)

	dst, err := Average(dir, "ndvi", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ndvi_average.tif"), dst)

	data, meta, err := raster.ReadBand(dst)
	require.NoError(t, err)
	assert.Equal(t, godal.Float32, meta.DataType)
	assert.InDelta(t, 0.3, data[0], 1e-6)
	assert.InDelta(t, 0.6, data[1], 1e-6)
	assert.InDelta(t, 0.4, data[2], 1e-6)
	assert.Equal(t, 0.0, data[3])

	inputs, err := AverageInputs(dir, "ndvi", false)
	require.NoError(t, err)
	assert.Len(t, inputs, 2, "the average itself is not an input")
}

func TestAverageOfMosaics(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, t1, "B04", 1, 1, 1, 1)
	mosaic := filepath.Join(dir, "20190101_B04_mosaic.tif")
	require.NoError(t, raster.CopyFile(writeOutput(t, t.TempDir(), t2, "B04", 5, 5, 5, 5), mosaic))

	inputs, err := AverageInputs(dir, "B04", true)
	require.NoError(t, err)
	assert.Equal(t, []string{mosaic}, inputs)

	written, err := AverageAll(dir, true)
	require.NoError(t, err)
	require.Len(t, written, 1)
	data, _, err := raster.ReadBand(written[0])
	require.NoError(t, err)
	assert.Equal(t, 5.0, data[0])
}

func TestAverageFilesRejectsMismatchedGrids(t *testing.T) {
	dir := t.TempDir()
	a := writeOutput(t, dir, t1, "B04", 1, 1, 1, 1)
	b := filepath.Join(dir, "other.tif")
	require.NoError(t, raster.Write(b, raster.Meta{Width: 1, Height: 1, DataType: godal.Float32}, []float64{1}))

	assert.Error(t, AverageFiles([]string{a, b}, filepath.Join(dir, "avg.tif")))
	assert.Error(t, AverageFiles(nil, filepath.Join(dir, "avg.tif")))
}

func TestGroupsOnlyCollectGeoTIFFs(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, t1, "B04", 1, 1, 1, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, t1+"_B04_quicklook.png"), []byte("png"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, t1+"_B04.tif.aux.xml"), []byte("<PAMDataset/>"), 0644))

	groups, err := Groups(dir)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"B04.tif": {filepath.Join(dir, t1+"_B04.tif")}}, groups)
}

func TestAverageAllContinuesPastFailingType(t *testing.T) {
	ui.SetOutput(&bytes.Buffer{})
	dir := t.TempDir()
	writeOutput(t, dir, t1, "B04", 1, 1, 1, 1)
	require.NoError(t, raster.Write(filepath.Join(dir, t2+"_B04.tif"),
		raster.Meta{Width: 1, Height: 1, DataType: godal.Float32}, []float64{1}))
	writeOutput(t, dir, t1, "ndvi", 0.5, 0.5, 0.5, 0.5)

	written, err := AverageAll(dir, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "B04")
	assert.Equal(t, []string{filepath.Join(dir, "ndvi_average.tif")}, written)
}
