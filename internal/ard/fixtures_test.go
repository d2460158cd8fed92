package ard

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/regen-network/open-science/internal/config"
	"github.com/regen-network/open-science/internal/raster"
	"github.com/regen-network/open-science/internal/sentinel"
	"github.com/regen-network/open-science/internal/tools"
	"github.com/regen-network/open-science/internal/ui"
	"github.com/stretchr/testify/require"
)

const (
	l2aTile = "S2A_MSIL2A_20190101T101401_N0211_R022_T32TQM_20190101T113839.SAFE"
	l1cTile = "S2A_MSIL1C_20190101T101401_N0207_R022_T32TQM_20190101T113839.SAFE"
	l2aID   = "S2A_MSIL2A_20190101T101401_N0211_R022_T32TQM_20190101T113839"
	originX = 600000.0
	originY = 5000200.0
)

// band describes one raster of a synthetic product.
type band struct {
	key   string // B04_10m, SCL_20m, B02
	pixel float64
	fill  func(i int) float64
}

func utmWKT(t *testing.T) string {
	t.Helper()
	sr, err := godal.NewSpatialRefFromEPSG(32632)
	require.NoError(t, err)
	defer sr.Close()
	wkt, err := sr.WKT()
	require.NoError(t, err)
	return wkt
}

// makeProduct writes a SAFE directory whose metadata lists the given bands.
// Rasters are GeoTIFFs stored under the .jp2 names the metadata implies,
// covering 200m x 200m in EPSG:32632.
func makeProduct(t *testing.T, dir, name string, bands []band) string {
	t.Helper()
	raster.Register()
	product := filepath.Join(dir, name)
	wkt := utmWKT(t)

	var xml strings.Builder
	xml.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<n1:User_Product xmlns:n1="https://psd-14.sentinel2.eo.esa.int"><n1:General_Info><Product_Info>
<Product_Organisation><Granule_List><Granule granuleIdentifier="G">
`)
	for _, b := range bands {
		file := fmt.Sprintf("GRANULE/G/IMG_DATA/T32TQM_20190101T101401_%s", b.key)
		fmt.Fprintf(&xml, "<IMAGE_FILE>%s</IMAGE_FILE>\n", file)

		size := int(200 / b.pixel)
		data := make([]float64, size*size)
		for i := range data {
			data[i] = b.fill(i)
		}
		meta := raster.Meta{
			GeoTransform: [6]float64{originX, b.pixel, 0, originY, 0, -b.pixel},
			Projection:   wkt,
			Width:        size,
			Height:       size,
			DataType:     godal.UInt16,
		}
		require.NoError(t, raster.Write(filepath.Join(product, file+".jp2"), meta, data))
	}
	xml.WriteString(`</Granule></Granule_List></Product_Organisation></Product_Info></n1:General_Info></n1:User_Product>`)

	require.NoError(t, os.WriteFile(filepath.Join(product, "MTD_MSIL2A.xml"), []byte(xml.String()), 0644))
	return product
}

func constant(v float64) func(int) float64 {
	return func(int) float64 { return v }
}

// callLog records tool invocations and answers them through GDAL, except
// for the Sentinel-2 processors which are answered by stub.
type callLog struct {
	mu    sync.Mutex
	tools []string
	stub  func(inv tools.Invocation) tools.Result
}

func (c *callLog) runner() tools.Runner {
	fallback := tools.RunnerFunc(func(ctx context.Context, inv tools.Invocation) tools.Result {
		if c.stub != nil {
			return c.stub(inv)
		}
		return tools.Result{ExitCode: 127, Output: "not installed"}
	})
	g := tools.NewGodalRunner(fallback)
	return tools.RunnerFunc(func(ctx context.Context, inv tools.Invocation) tools.Result {
		c.mu.Lock()
		c.tools = append(c.tools, inv.Tool)
		c.mu.Unlock()
		return g.Run(ctx, inv)
	})
}

func (c *callLog) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.tools...)
}

func quietUI(t *testing.T) {
	t.Helper()
	ui.SetOutput(&bytes.Buffer{})
}

func deps(c *callLog, strict bool) Deps {
	return Deps{
		Invoker:  tools.NewInvoker(c.runner(), tools.WithStrict(strict)),
		Resolver: sentinel.NewResolver(nil, nil),
	}
}

func tileConfig(name string, ard config.ARDSettings, bands ...string) config.TileConfig {
	return config.TileConfig{
		TileName: name,
		ARD:      ard,
		Output: config.OutputImageSettings{
			Bands:            bands,
			ResamplingMethod: "near",
			Resolution:       10,
		},
	}
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(dir, path)
			files = append(files, rel)
		}
		return nil
	})
	require.NoError(t, err)
	return files
}
