package mosaic

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/regen-network/open-science/internal/raster"
	"github.com/regen-network/open-science/internal/ui"
	"github.com/regen-network/open-science/internal/utils"
	"github.com/regen-network/open-science/internal/workdir"
)

// AverageInputs lists the rasters of dir averaged for key, sorted by name.
// With mosaicsOnly these are the *_<key>_mosaic.tif rasters, otherwise the
// per-tile <id>_<key>.tif outputs.
func AverageInputs(dir, key string, mosaicsOnly bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var inputs []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			continue
		}
		var match bool
		if mosaicsOnly {
			match = strings.HasSuffix(name, "_"+key+"_"+mosaicTag+".tif")
		} else {
			match = !isDerived(name) && Suffix(name) == key+".tif"
		}
		if match {
			inputs = append(inputs, filepath.Join(dir, name))
		}
	}
	sort.Strings(inputs)
	return inputs, nil
}

// Average writes the pixel-wise mean of the inputs of key to
// <key>_average.tif in dir.
func Average(dir, key string, mosaicsOnly bool) (string, error) {
	inputs, err := AverageInputs(dir, key, mosaicsOnly)
	if err != nil {
		return "", err
	}
	if len(inputs) == 0 {
		return "", fmt.Errorf("no %s rasters to average in %s", key, dir)
	}
	dst := workdir.Name(dir, ".tif", key, averageTag)
	return dst, AverageFiles(inputs, dst)
}

// AverageFiles writes the pixel-wise mean of inputs to dst as float32,
// ignoring zero (masked) pixels. Every band is averaged separately and all
// inputs must share the grid of the first.
func AverageFiles(inputs []string, dst string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("nothing to average into %s", dst)
	}
	var (
		meta    raster.Meta
		perBand [][][]float64
	)
	for i, path := range inputs {
		ui.PrintStep("averaging %s", filepath.Base(path))
		bands, m, err := raster.ReadBands(path)
		if err != nil {
			return err
		}
		if i == 0 {
			meta = m
			perBand = make([][][]float64, len(bands))
		} else if m.Width != meta.Width || m.Height != meta.Height || len(bands) != len(perBand) {
			return fmt.Errorf("cannot average %s: %dx%dx%d does not match %dx%dx%d",
				path, m.Width, m.Height, len(bands), meta.Width, meta.Height, len(perBand))
		}
		for b, data := range bands {
			perBand[b] = append(perBand[b], data)
		}
	}

	out := make([][]float64, len(perBand))
	for b, arrays := range perBand {
		var err error
		if out[b], err = raster.MeanIgnoringZero(arrays); err != nil {
			return err
		}
	}
	meta.NoData = 0
	meta.BandCount = len(out)
	return raster.Write(dst, meta.WithDataType(godal.Float32), out...)
}

// AverageAll averages every output type found in dir and returns the
// written rasters. A failing output type does not stop the others; their
// errors are joined.
func AverageAll(dir string, mosaicsOnly bool) ([]string, error) {
	groups, err := Groups(dir)
	if err != nil {
		return nil, err
	}
	var (
		written []string
		errs    []error
	)
	for _, suffix := range utils.SortedKeys(groups) {
		key := strings.TrimSuffix(suffix, filepath.Ext(suffix))
		dst, err := Average(dir, key, mosaicsOnly)
		if err != nil {
			ui.PrintError(fmt.Sprintf("average %s: %v", key, err))
			errs = append(errs, fmt.Errorf("average %s: %w", key, err))
			continue
		}
		written = append(written, dst)
	}
	return written, errors.Join(errs...)
}
