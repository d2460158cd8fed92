package sentinel

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/regen-network/open-science/internal/raster"
)

// Feature is one polygon of an area-of-interest collection. ID is the
// position of the feature in its layer.
type Feature struct {
	ID       int
	Geometry orb.Geometry
	Area     float64
}

type FeatureCollection struct {
	Path     string
	EPSG     int
	Features []Feature
}

// ReadFeatures loads every feature of the first layer of a vector file.
func ReadFeatures(path string) (*FeatureCollection, error) {
	ds, err := raster.Open(path, godal.VectorOnly())
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	layers := ds.Layers()
	if len(layers) == 0 {
		return nil, fmt.Errorf("%s has no vector layer", path)
	}
	layer := layers[0]

	fc := &FeatureCollection{Path: path}
	if sr := layer.SpatialRef(); sr != nil {
		fc.EPSG = raster.EPSGOf(sr)
		sr.Close()
	}

	for id := 0; ; id++ {
		feat := layer.NextFeature()
		if feat == nil {
			break
		}
		js, err := feat.Geometry().GeoJSON()
		feat.Close()
		if err != nil {
			return nil, fmt.Errorf("feature %d of %s: %w", id, path, err)
		}
		geom, err := geojson.UnmarshalGeometry([]byte(js))
		if err != nil {
			return nil, fmt.Errorf("feature %d of %s: %w", id, path, err)
		}
		_, area := planar.CentroidArea(geom.Coordinates)
		fc.Features = append(fc.Features, Feature{ID: id, Geometry: geom.Coordinates, Area: area})
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("%s contains no features", path)
	}
	return fc, nil
}

// WriteCutline writes a single feature as a GeoJSON file usable as a gdalwarp
// cutline. The coordinate system is recorded in the legacy crs member so GDAL
// does not assume WGS84.
func WriteCutline(path string, f Feature, epsg int) error {
	fc := geojson.NewFeatureCollection()
	feature := geojson.NewFeature(f.Geometry)
	feature.Properties["FEATURE_ID"] = f.ID
	fc.Append(feature)
	if epsg != 0 {
		fc.ExtraMembers = geojson.Properties{
			"crs": map[string]any{
				"type": "name",
				"properties": map[string]any{
					"name": fmt.Sprintf("urn:ogc:def:crs:EPSG::%d", epsg),
				},
			},
		}
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode cutline %d: %w", f.ID, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	return os.WriteFile(path, data, 0644)
}
