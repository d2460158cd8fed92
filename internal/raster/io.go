package raster

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"
)

// ReadBand returns the first band of path as float64 pixels, row-major.
func ReadBand(path string) ([]float64, Meta, error) {
	ds, err := Open(path, godal.RasterOnly())
	if err != nil {
		return nil, Meta{}, err
	}
	defer ds.Close()

	meta, err := MetaOf(ds)
	if err != nil {
		return nil, meta, fmt.Errorf("%s: %w", path, err)
	}
	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, meta, fmt.Errorf("%s has no raster band", path)
	}
	data := make([]float64, meta.Pixels())
	if err := bands[0].Read(0, 0, data, meta.Width, meta.Height); err != nil {
		return nil, meta, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, meta, nil
}

// ReadBands returns every band of path.
func ReadBands(path string) ([][]float64, Meta, error) {
	ds, err := Open(path, godal.RasterOnly())
	if err != nil {
		return nil, Meta{}, err
	}
	defer ds.Close()

	meta, err := MetaOf(ds)
	if err != nil {
		return nil, meta, fmt.Errorf("%s: %w", path, err)
	}
	out := make([][]float64, 0, meta.BandCount)
	for i, band := range ds.Bands() {
		data := make([]float64, meta.Pixels())
		if err := band.Read(0, 0, data, meta.Width, meta.Height); err != nil {
			return nil, meta, fmt.Errorf("failed to read band %d of %s: %w", i+1, path, err)
		}
		out = append(out, data)
	}
	return out, meta, nil
}

// Write creates a GeoTIFF at path with one band per array, georeferenced by
// meta. Every band gets meta.NoData as its no-data value.
func Write(path string, meta Meta, arrays ...[]float64) error {
	if len(arrays) == 0 {
		return errors.New("no bands to write")
	}
	for i, a := range arrays {
		if len(a) != meta.Pixels() {
			return fmt.Errorf("band %d has %d pixels, grid is %dx%d", i+1, len(a), meta.Width, meta.Height)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}

	dt := meta.DataType
	if dt == godal.Unknown {
		dt = godal.Float32
	}
	ds, err := godal.Create(godal.GTiff, path, len(arrays), dt, meta.Width, meta.Height)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := writeInto(ds, meta, arrays); err != nil {
		ds.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return nil
}

func writeInto(ds *godal.Dataset, meta Meta, arrays [][]float64) error {
	if err := ds.SetGeoTransform(meta.GeoTransform); err != nil {
		return err
	}
	if meta.Projection != "" {
		if err := ds.SetProjection(meta.Projection); err != nil {
			return err
		}
	}
	if err := ds.SetMetadata("AREA_OR_POINT", "Area"); err != nil {
		return err
	}
	for i, band := range ds.Bands() {
		if err := band.Write(0, 0, arrays[i], meta.Width, meta.Height); err != nil {
			return err
		}
		if err := band.SetNoData(meta.NoData); err != nil {
			return err
		}
	}
	return nil
}

// Stack writes the first band of every source into one multi-band raster,
// in the given order, using the grid of the first source.
func Stack(dst string, sources []string) (Meta, error) {
	if len(sources) == 0 {
		return Meta{}, errors.New("nothing to stack")
	}
	var (
		meta   Meta
		arrays [][]float64
	)
	for i, src := range sources {
		data, m, err := ReadBand(src)
		if err != nil {
			return meta, err
		}
		if i == 0 {
			meta = m
		} else if m.Width != meta.Width || m.Height != meta.Height {
			return meta, fmt.Errorf("cannot stack %s: %dx%d does not match %dx%d", src, m.Width, m.Height, meta.Width, meta.Height)
		}
		arrays = append(arrays, data)
	}
	meta.BandCount = len(arrays)
	meta.NoData = 0
	return meta, Write(dst, meta, arrays...)
}

// Transform reads the first band of src, applies fn and writes the result
// to dst with dt as pixel type. godal.Unknown keeps the source type.
func Transform(src, dst string, dt godal.DataType, fn func([]float64) ([]float64, error)) error {
	data, meta, err := ReadBand(src)
	if err != nil {
		return err
	}
	out, err := fn(data)
	if err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}
	meta.BandCount = 1
	meta.NoData = 0
	if dt != godal.Unknown {
		meta = meta.WithDataType(dt)
	}
	return Write(dst, meta, out)
}

// CopyFile copies a raster file byte for byte.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

// CopyTree copies the directory src into dst, creating dst.
func CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return CopyFile(path, target)
	})
}
