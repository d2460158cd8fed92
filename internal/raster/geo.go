package raster

import (
	"fmt"
	"math"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
)

// PixelCenter returns the georeferenced coordinates of the centre of pixel
// (x, y).
func (m Meta) PixelCenter(x, y int) (float64, float64) {
	gt := m.GeoTransform
	px, py := float64(x)+0.5, float64(y)+0.5
	return gt[0] + gt[1]*px + gt[2]*py, gt[3] + gt[4]*px + gt[5]*py
}

// Bounds is the georeferenced extent of the grid.
func (m Meta) Bounds() orb.Bound {
	gt := m.GeoTransform
	x0, y0 := gt[0], gt[3]
	x1 := x0 + gt[1]*float64(m.Width) + gt[2]*float64(m.Height)
	y1 := y0 + gt[4]*float64(m.Width) + gt[5]*float64(m.Height)
	return orb.Bound{
		Min: orb.Point{math.Min(x0, x1), math.Min(y0, y1)},
		Max: orb.Point{math.Max(x0, x1), math.Max(y0, y1)},
	}
}

// ToWGS84 transforms points from the given EPSG code to longitude/latitude
// in place.
func ToWGS84(epsg int, points []orb.Point) error {
	if epsg == 4326 {
		return nil
	}
	srcSR, err := godal.NewSpatialRefFromEPSG(epsg)
	if err != nil {
		return fmt.Errorf("unknown EPSG:%d: %w", epsg, err)
	}
	defer srcSR.Close()
	dstSR, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return err
	}
	defer dstSR.Close()
	tr, err := godal.NewTransform(srcSR, dstSR)
	if err != nil {
		return fmt.Errorf("no transform from EPSG:%d to WGS84: %w", epsg, err)
	}
	defer tr.Close()

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i] = p[0], p[1]
	}
	if err := tr.TransformEx(xs, ys, nil, nil); err != nil {
		return fmt.Errorf("transform error: %w", err)
	}
	for i := range points {
		points[i] = orb.Point{xs[i], ys[i]}
	}
	return nil
}
