package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandLines(t *testing.T) {
	cases := []struct {
		inv  Invocation
		want string
	}{
		{Sen2Cor("/in/S2A.SAFE"), "L2A_Process --resolution 10 /in/S2A.SAFE"},
		{Sen2CorSceneClassOnly("/in/S2A.SAFE"), "L2A_Process --sc_only /in/S2A.SAFE"},
		{Fmask("/in/S2A.SAFE", "/w/S2A_FMASK.tif"), "fmask_sentinel2Stacked.py -o /w/S2A_FMASK.tif --safedir /in/S2A.SAFE"},
		{Resample("/in/B11.jp2", "/w/B11.tif", 10, "bilinear"), "gdal_translate -tr 10 10 -r bilinear /in/B11.jp2 /w/B11.tif"},
		{Warp("/w/B04.tif", "/w/B04_w.tif", 20, 32633, "near"), "gdalwarp -tr 20 20 -t_srs EPSG:32633 -r near /w/B04.tif /w/B04_w.tif -overwrite"},
		{BuildVRT("/m/x.vrt", []string{"/m/a.tif", "/m/b.tif"}, "near"), "gdalbuildvrt -r near /m/x.vrt /m/a.tif /m/b.tif"},
		{Translate("/m/x.vrt", "/m/x.tif"), "gdal_translate -of GTiff /m/x.vrt /m/x.tif"},
		{ReprojectVector("/a/aoi.geojson", "/w/aoi_32632.geojson", 32632), "ogr2ogr -f GeoJSON -t_srs EPSG:32632 /w/aoi_32632.geojson /a/aoi.geojson"},
		{ClipToCutline("/o/t_B04.tif", "/o/clipped/t_B04_clipped.tif", "/w/aoi_FEATURE_ID_0.geojson"),
			"gdalwarp -cutline /w/aoi_FEATURE_ID_0.geojson -crop_to_cutline /o/t_B04.tif /o/clipped/t_B04_clipped.tif -overwrite"},
	}
	for _, tc := range cases {
		t.Run(tc.inv.Tool, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.inv.String())
		})
	}
}

func TestInvocationParts(t *testing.T) {
	w := Warp("in.tif", "out.tif", 10, 4326, "cubic")
	assert.Equal(t, []string{"in.tif"}, w.Inputs)
	assert.Equal(t, "out.tif", w.Output)
	assert.Equal(t, []string{"-tr", "10", "10", "-t_srs", "EPSG:4326", "-r", "cubic", "-overwrite"}, w.Switches)

	v := BuildVRT("m.vrt", []string{"a.tif", "b.tif"}, "near")
	assert.Equal(t, []string{"a.tif", "b.tif"}, v.Inputs)
	assert.Equal(t, []string{"-r", "near"}, v.Switches)
}

func TestInvocationStringQuotes(t *testing.T) {
	inv := Invocation{Tool: "gdal_translate", Args: []string{"/tmp/my file.tif"}}
	assert.Equal(t, "gdal_translate '/tmp/my file.tif'", inv.String())
}
