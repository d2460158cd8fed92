// Package raster reads and writes GeoTIFF rasters through GDAL and holds the
// pixel operations applied between pipeline stages.
package raster

import (
	"fmt"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
)

// Meta describes the pixel grid and georeferencing of a raster.
type Meta struct {
	GeoTransform [6]float64
	Projection   string
	EPSG         int
	Width        int
	Height       int
	DataType     godal.DataType
	BandCount    int
	NoData       float64
}

// PixelSize is the pixel width in georeferenced units.
func (m Meta) PixelSize() float64 {
	return m.GeoTransform[1]
}

func (m Meta) Pixels() int {
	return m.Width * m.Height
}

// WithDataType returns a copy of m describing a raster of another pixel type.
func (m Meta) WithDataType(dt godal.DataType) Meta {
	m.DataType = dt
	return m
}

var registerOnce sync.Once

// Register makes every GDAL driver available.
func Register() {
	registerOnce.Do(godal.RegisterAll)
}

// Open opens a dataset, ignoring GDAL warnings such as missing overviews.
func Open(path string, opts ...godal.OpenOption) (*godal.Dataset, error) {
	opts = append(opts, godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec <= godal.CE_Warning {
			return nil
		}
		return fmt.Errorf("%s", msg)
	}))
	ds, err := godal.Open(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return ds, nil
}

// EPSGOf returns the EPSG code of a spatial reference, or 0 when it has none.
func EPSGOf(sr *godal.SpatialRef) int {
	if sr == nil {
		return 0
	}
	if strings.EqualFold(sr.AuthorityName(""), "EPSG") {
		if code := sr.AuthorityCode(""); code != 0 {
			return code
		}
	}
	if err := sr.AutoIdentifyEPSG(); err == nil {
		return sr.AuthorityCode("")
	}
	return 0
}

// MetaOf reads the metadata of an open dataset.
func MetaOf(ds *godal.Dataset) (Meta, error) {
	st := ds.Structure()
	meta := Meta{
		Width:     st.SizeX,
		Height:    st.SizeY,
		DataType:  st.DataType,
		BandCount: st.NBands,
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		return meta, fmt.Errorf("failed to read geotransform: %w", err)
	}
	meta.GeoTransform = gt
	meta.Projection = ds.Projection()
	if meta.Projection != "" {
		sr := ds.SpatialRef()
		meta.EPSG = EPSGOf(sr)
		sr.Close()
	}
	if bands := ds.Bands(); len(bands) > 0 {
		if nd, ok := bands[0].NoData(); ok {
			meta.NoData = nd
		}
	}
	return meta, nil
}

// ReadMeta opens path and reads its metadata.
func ReadMeta(path string) (Meta, error) {
	ds, err := Open(path, godal.RasterOnly())
	if err != nil {
		return Meta{}, err
	}
	defer ds.Close()
	meta, err := MetaOf(ds)
	if err != nil {
		return meta, fmt.Errorf("%s: %w", path, err)
	}
	return meta, nil
}
