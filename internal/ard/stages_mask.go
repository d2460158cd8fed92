package ard

import (
	"context"

	"github.com/airbusgeo/godal"
	"github.com/regen-network/open-science/internal/raster"
	"github.com/regen-network/open-science/internal/sentinel"
	"github.com/regen-network/open-science/internal/tools"
	"github.com/regen-network/open-science/internal/ui"
	"github.com/regen-network/open-science/internal/workdir"
)

// maskResampling is used for class rasters, whose values are categories.
const maskResampling = "near"

// applyMask zeroes masked pixels of every band and index and points the
// state at the masked copies.
func applyMask(st *TileState, mask []uint8, tag string) error {
	for _, set := range []*Outputs{st.Bands, st.Indices} {
		for _, key := range set.Keys() {
			src, _ := set.Get(key)
			dst := st.Work.Path(".tif", baseName(src), tag, "masked")
			err := raster.Transform(src, dst, godal.Unknown, func(v []float64) ([]float64, error) {
				return raster.ApplyMask(mask, v)
			})
			if err != nil {
				return err
			}
			set.Set(key, dst)
		}
	}
	return nil
}

type sceneClassMask struct {
	*env
	codes      []int
	atmCorr    bool
	resolution float64
}

func (s *sceneClassMask) Name() string { return "scene classification mask" }

func (s *sceneClassMask) Apply(ctx context.Context, st *TileState) error {
	if !s.atmCorr && st.InputProduct == sentinel.ProductTOA {
		ui.PrintHeader("running sen2cor scene classification only")
		if err := s.invoker.Run(ctx, tools.Sen2CorSceneClassOnly(st.InputPath)); err != nil {
			return err
		}
	}

	l2a := st.ProductPath
	if st.Product != sentinel.ProductBOA {
		var err error
		if l2a, err = sentinel.FindL2AProduct(st.InputPath); err != nil {
			return err
		}
	}
	xmlPath, err := sentinel.FindMetadataXML(l2a)
	if err != nil {
		return err
	}
	boa, err := s.resolver.Resolve(xmlPath, sentinel.ProductBOA)
	if err != nil {
		return err
	}
	scl, ok := boa["SCL_20m"]
	if !ok {
		return &sentinel.BandResolutionError{Band: "SCL_20m", Metadata: xmlPath}
	}

	dst := st.Work.Path(".tif", baseName(scl), "resampled")
	if scl, err = s.resampleIfNeeded(ctx, scl, dst, s.resolution, maskResampling); err != nil {
		return err
	}
	classes, _, err := raster.ReadBand(scl)
	if err != nil {
		return err
	}

	ui.PrintHeader("applying sen2cor scene classification mask")
	return applyMask(st, raster.BinaryMask(classes, s.codes), "scl")
}

type fmaskMask struct {
	*env
	codes      []int
	resolution float64
}

func (s *fmaskMask) Name() string { return "fmask" }

func (s *fmaskMask) Apply(ctx context.Context, st *TileState) error {
	ui.PrintHeader("running fmask cloud mask")
	inputID := sentinel.TileID(st.InputPath)
	fmaskImage := st.Work.Path(".tif", inputID, "FMASK")
	if err := s.invoker.Run(ctx, tools.Fmask(st.InputPath, fmaskImage)); err != nil {
		return err
	}
	if err := raster.CopyFile(fmaskImage, workdir.Name(st.OutputDir, ".tif", inputID, "FMASK")); err != nil {
		return err
	}
	st.Extras = append(st.Extras, workdir.Name(st.OutputDir, ".tif", inputID, "FMASK"))

	dst := st.Work.Path(".tif", inputID, "FMASK", "resampled")
	img, err := s.resampleIfNeeded(ctx, fmaskImage, dst, s.resolution, maskResampling)
	if err != nil {
		return err
	}
	classes, _, err := raster.ReadBand(img)
	if err != nil {
		return err
	}

	ui.PrintHeader("applying fmask cloud mask")
	return applyMask(st, raster.BinaryMask(classes, s.codes), "fmask")
}
