package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/regen-network/open-science/internal/raster"
)

const FootprintsName = "ard_footprints.geojson"

// Product is one output raster to describe in the footprint collection.
type Product struct {
	Tile string
	Key  string
	Path string
}

// Footprints writes the WGS84 extent of every product as a GeoJSON polygon,
// with tile, key, path, native EPSG and the centre pixel as properties.
func Footprints(products []Product, dst string) error {
	fc := geojson.NewFeatureCollection()
	for _, p := range products {
		meta, err := raster.ReadMeta(p.Path)
		if err != nil {
			return err
		}
		ring := meta.Bounds().ToRing()
		cx, cy := meta.PixelCenter(meta.Width/2, meta.Height/2)
		center := []orb.Point{{cx, cy}}
		if meta.EPSG != 0 {
			if err := raster.ToWGS84(meta.EPSG, ring); err != nil {
				return fmt.Errorf("%s: %w", p.Path, err)
			}
			if err := raster.ToWGS84(meta.EPSG, center); err != nil {
				return fmt.Errorf("%s: %w", p.Path, err)
			}
		}

		f := geojson.NewFeature(orb.Polygon{ring})
		f.Properties["tile"] = p.Tile
		f.Properties["key"] = p.Key
		f.Properties["path"] = p.Path
		f.Properties["epsg"] = meta.EPSG
		f.Properties["center"] = []float64{center[0][0], center[0][1]}
		fc.Append(f)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("error encoding GeoJSON: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("error creating GeoJSON file: %w", err)
	}
	return nil
}
