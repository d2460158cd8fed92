// Package report writes the CSV manifest describing the outputs of a run.
package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/regen-network/open-science/internal/ard"
	"github.com/regen-network/open-science/internal/raster"
	"gonum.org/v1/gonum/stat"
)

const ManifestName = "ard_manifest.csv"

// Row describes one output raster. Statistics cover the first band and
// skip zero (masked) pixels.
type Row struct {
	Tile        string  `csv:"tile"`
	Key         string  `csv:"key"`
	Path        string  `csv:"path"`
	EPSG        int     `csv:"epsg"`
	Width       int     `csv:"width"`
	Height      int     `csv:"height"`
	Bands       int     `csv:"bands"`
	ValidPixels int     `csv:"valid_pixels"`
	Mean        float64 `csv:"mean"`
	StdDev      float64 `csv:"std_dev"`
	Min         float64 `csv:"min"`
	Max         float64 `csv:"max"`
}

func Describe(tile, key, path string) (Row, error) {
	data, meta, err := raster.ReadBand(path)
	if err != nil {
		return Row{}, err
	}
	row := Row{
		Tile:   tile,
		Key:    key,
		Path:   path,
		EPSG:   meta.EPSG,
		Width:  meta.Width,
		Height: meta.Height,
		Bands:  meta.BandCount,
	}

	valid := make([]float64, 0, len(data))
	for _, v := range data {
		if v != 0 && !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	row.ValidPixels = len(valid)
	if len(valid) == 0 {
		return row, nil
	}
	row.Mean, row.StdDev = stat.MeanStdDev(valid, nil)
	if len(valid) == 1 {
		row.StdDev = 0
	}
	row.Min, row.Max = valid[0], valid[0]
	for _, v := range valid[1:] {
		row.Min = math.Min(row.Min, v)
		row.Max = math.Max(row.Max, v)
	}
	return row, nil
}

// Rows describes the outputs of every successful tile, in output order.
func Rows(results []ard.TileResult) ([]Row, error) {
	var rows []Row
	for _, r := range results {
		if !r.OK() || r.State == nil {
			continue
		}
		tile := r.State.TileID()
		for _, key := range r.State.Outputs.Keys() {
			path, _ := r.State.Outputs.Get(key)
			row, err := Describe(tile, key, path)
			if err != nil {
				return rows, fmt.Errorf("describe %s: %w", path, err)
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func Write(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating manifest directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating manifest file: %w", err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return fmt.Errorf("error writing manifest file: %w", err)
	}
	return nil
}

func Read(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening manifest file: %w", err)
	}
	defer file.Close()

	var rows []Row
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("error reading manifest file: %w", err)
	}
	return rows, nil
}
