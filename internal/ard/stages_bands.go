package ard

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/airbusgeo/godal"
	"github.com/regen-network/open-science/internal/config"
	"github.com/regen-network/open-science/internal/raster"
	"github.com/regen-network/open-science/internal/sentinel"
	"github.com/regen-network/open-science/internal/tools"
	"github.com/regen-network/open-science/internal/ui"
	"github.com/regen-network/open-science/internal/utils"
)

type atmosphericCorrection struct {
	*env
	bands []string
}

func (s *atmosphericCorrection) Name() string { return "atmospheric correction" }

func (s *atmosphericCorrection) Apply(ctx context.Context, st *TileState) error {
	ui.PrintHeader("running atmospheric correction - sen2cor")
	if err := s.invoker.Run(ctx, tools.Sen2Cor(st.InputPath)); err != nil {
		return err
	}

	l2a, err := sentinel.FindL2AProduct(st.InputPath)
	if err != nil {
		return err
	}
	if err := st.useProduct(s.resolver, l2a, sentinel.ProductBOA, s.bands); err != nil {
		return err
	}
	return raster.CopyTree(l2a, filepath.Join(st.OutputDir, filepath.Base(l2a)))
}

// targetProjection fills in the target EPSG from the tile's own bands when
// the configuration leaves it open.
type targetProjection struct {
	epsg config.EPSG
}

func (s *targetProjection) Name() string { return "target projection" }

func (s *targetProjection) Apply(ctx context.Context, st *TileState) error {
	if s.epsg != 0 {
		st.TargetEPSG = int(s.epsg)
		return nil
	}
	keys := utils.SortedKeys(st.AllBands)
	if len(keys) == 0 {
		return fmt.Errorf("product %s lists no bands", st.ProductPath)
	}
	meta, err := raster.ReadMeta(st.AllBands[keys[0]])
	if err != nil {
		return err
	}
	if meta.EPSG == 0 {
		return fmt.Errorf("cannot determine EPSG of %s", st.AllBands[keys[0]])
	}
	st.TargetEPSG = meta.EPSG
	return nil
}

type resample struct {
	*env
	bands      []string
	resolution float64
	method     string
}

func (s *resample) Name() string { return "resample" }

func (s *resample) Apply(ctx context.Context, st *TileState) error {
	for _, key := range s.bands {
		src, ok := st.Bands.Get(key)
		if !ok {
			continue
		}
		dst := st.Work.Path(".tif", st.TileID(), key)
		out, err := s.resampleIfNeeded(ctx, src, dst, s.resolution, s.method)
		if err != nil {
			return err
		}
		if out != src {
			ui.PrintStep("resampling band to target resolution: %s", key)
		}
		st.Bands.Set(key, out)
	}
	return nil
}

type deriveIndex struct {
	*env
	indices    []string
	resolution float64
	method     string
}

func (s *deriveIndex) Name() string { return "derive index" }

func (s *deriveIndex) Apply(ctx context.Context, st *TileState) error {
	ui.PrintHeader("derive index / indices")
	for _, index := range s.indices {
		pair, ok := config.IndexBands[index]
		if !ok {
			return fmt.Errorf("unknown index %q", index)
		}
		ui.PrintStep("%s %v", index, pair)

		inputs, err := sentinel.Subset(pair[:], st.AllBands, st.Product, st.Metadata)
		if err != nil {
			return err
		}
		for _, key := range pair {
			dst := st.Work.Path(".tif", st.TileID(), key)
			out, err := s.resampleIfNeeded(ctx, inputs[key], dst, s.resolution, s.method)
			if err != nil {
				return err
			}
			inputs[key] = out
		}

		dst := st.Work.Path(".tif", st.TileID(), index)
		if err := writeIndex(inputs[pair[0]], inputs[pair[1]], dst); err != nil {
			return fmt.Errorf("%s: %w", index, err)
		}
		st.Indices.Set(index, dst)
	}
	return nil
}

func writeIndex(aPath, bPath, dst string) error {
	a, meta, err := raster.ReadBand(aPath)
	if err != nil {
		return err
	}
	b, _, err := raster.ReadBand(bPath)
	if err != nil {
		return err
	}
	nd, err := raster.NormalizedDifference(a, b)
	if err != nil {
		return err
	}
	meta.BandCount = 1
	meta.NoData = 0
	ui.PrintStep("writing image : %s", dst)
	return raster.Write(dst, meta.WithDataType(godal.Float32), nd)
}

type calibrate struct {
	bands []string
}

func (s *calibrate) Name() string { return "calibrate" }

func (s *calibrate) Apply(ctx context.Context, st *TileState) error {
	ui.PrintHeader("calibrating bands")
	for _, key := range s.bands {
		src, ok := st.Bands.Get(key)
		if !ok {
			continue
		}
		ui.PrintStep("calibrating band %s", key)
		dst := st.Work.Path(".tif", baseName(src), "calibrated")
		err := raster.Transform(src, dst, godal.Float32, func(v []float64) ([]float64, error) {
			return raster.Calibrate(v), nil
		})
		if err != nil {
			return err
		}
		st.Bands.Set(key, dst)
	}
	return nil
}

type reproject struct {
	*env
	resolution float64
	method     string
}

func (s *reproject) Name() string { return "reproject" }

func (s *reproject) Apply(ctx context.Context, st *TileState) error {
	for _, set := range []*Outputs{st.Bands, st.Indices} {
		for _, key := range set.Keys() {
			src, _ := set.Get(key)
			meta, err := raster.ReadMeta(src)
			if err != nil {
				return err
			}
			if meta.EPSG == st.TargetEPSG {
				continue
			}
			ui.PrintStep("reprojecting band %s", key)
			dst := st.Work.Path(".tif", baseName(src), "resampled",
				strconv.FormatFloat(s.resolution, 'f', -1, 64), s.method, strconv.Itoa(st.TargetEPSG))
			if err := s.invoker.Run(ctx, tools.Warp(src, dst, s.resolution, st.TargetEPSG, s.method)); err != nil {
				return err
			}
			set.Set(key, dst)
		}
	}
	return nil
}

// StackedKey replaces the per-band entries once bands are stacked.
const StackedKey = "stacked"

type stack struct {
	bands []string
}

func (s *stack) Name() string { return "stack" }

func (s *stack) Apply(ctx context.Context, st *TileState) error {
	ui.PrintHeader("stacking bands")
	if len(s.bands) < 2 {
		return nil
	}
	sources := make([]string, 0, len(s.bands))
	for _, key := range s.bands {
		src, ok := st.Bands.Get(key)
		if !ok {
			return fmt.Errorf("band %s missing from stack inputs", key)
		}
		ui.PrintStep("stacking band %s", key)
		sources = append(sources, src)
	}
	dst := st.Work.Path(".tif", st.TileID(), StackedKey)
	if _, err := raster.Stack(dst, sources); err != nil {
		return err
	}
	st.Bands = NewOutputs()
	st.Bands.Set(StackedKey, dst)
	return nil
}
