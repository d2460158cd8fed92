package rastercalc

import (
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/regen-network/open-science/internal/raster"
)

// EvalFiles evaluates e over the first band of each named input raster and
// writes the result as a float32 GeoTIFF on the grid of the first variable.
func EvalFiles(e *Expr, inputs map[string]string, dst string) error {
	vars := e.Variables()
	if len(vars) == 0 {
		return fmt.Errorf("%q refers to no band", e.src)
	}

	values := make(map[string][]float64, len(vars))
	var grid raster.Meta
	for i, name := range vars {
		path, ok := inputs[name]
		if !ok {
			return fmt.Errorf("no input given for band %s", name)
		}
		data, meta, err := raster.ReadBand(path)
		if err != nil {
			return err
		}
		if i == 0 {
			grid = meta
		} else if meta.Width != grid.Width || meta.Height != grid.Height {
			return fmt.Errorf("%s is %dx%d, %s is %dx%d", path, meta.Width, meta.Height, inputs[vars[0]], grid.Width, grid.Height)
		}
		values[name] = data
	}

	out, err := e.Eval(values)
	if err != nil {
		return err
	}
	grid.BandCount = 1
	grid.NoData = 0
	return raster.Write(dst, grid.WithDataType(godal.Float32), out)
}
