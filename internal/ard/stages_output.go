package ard

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/regen-network/open-science/internal/raster"
	"github.com/regen-network/open-science/internal/sentinel"
	"github.com/regen-network/open-science/internal/tools"
	"github.com/regen-network/open-science/internal/ui"
	"github.com/regen-network/open-science/internal/workdir"
	"github.com/regen-network/open-science/output"
	"go.uber.org/zap"
)

// copyOutputs merges indices into the band entries and copies every entry
// to <output>/<tile>_<key>.tif.
type copyOutputs struct {
	*env
	withIndices bool
}

func (s *copyOutputs) Name() string { return "copy outputs" }

func (s *copyOutputs) Apply(ctx context.Context, st *TileState) error {
	merged := NewOutputs()
	merged.Merge(st.Bands)
	if s.withIndices {
		merged.Merge(st.Indices)
	}

	for _, key := range merged.Keys() {
		src, _ := merged.Get(key)
		dst := workdir.Name(st.OutputDir, ".tif", st.TileID(), key)
		// untouched jp2 bands are converted rather than copied under a .tif name
		if strings.EqualFold(filepath.Ext(src), ".tif") {
			if err := raster.CopyFile(src, dst); err != nil {
				return err
			}
		} else if err := s.invoker.Run(ctx, tools.Translate(src, dst)); err != nil {
			return err
		}
		st.Outputs.Set(key, dst)
	}
	return nil
}

// clip crops every output to each polygon of the area of interest.
type clip struct {
	*env
	features string
}

func (s *clip) Name() string { return "clip" }

func (s *clip) Apply(ctx context.Context, st *TileState) error {
	clippedDir := filepath.Join(st.OutputDir, "clipped")
	ui.PrintHeader("cropping to cutline")

	aoi, err := sentinel.ReadFeatures(s.features)
	if err != nil {
		return err
	}
	aoiName := baseName(s.features)
	if aoi.EPSG != st.TargetEPSG {
		ui.PrintStep("reprojecting input features to target projection")
		reprojected := st.Work.Path(".geojson", aoiName, strconv.Itoa(st.TargetEPSG))
		if err := s.invoker.Run(ctx, tools.ReprojectVector(s.features, reprojected, st.TargetEPSG)); err != nil {
			return err
		}
		if aoi, err = sentinel.ReadFeatures(reprojected); err != nil {
			return err
		}
	}

	single := len(aoi.Features) == 1
	for _, f := range aoi.Features {
		id := strconv.Itoa(f.ID)
		cutline := st.Work.Path(".geojson", aoiName, "FEATURE_ID", id)
		if err := sentinel.WriteCutline(cutline, f, st.TargetEPSG); err != nil {
			return err
		}
		s.logger.Debug("cutline written", zap.Int("feature", f.ID), zap.Float64("area", f.Area))

		for _, key := range st.Outputs.Keys() {
			src, _ := st.Outputs.Get(key)
			var chip string
			if single {
				chip = workdir.Name(clippedDir, ".tif", st.TileID(), key, "clipped")
			} else {
				chip = workdir.Name(filepath.Join(clippedDir, id), ".tif", st.TileID(), key, "FEATURE_ID", id, "clipped")
			}
			if err := ensureDir(filepath.Dir(chip)); err != nil {
				return err
			}
			if err := s.invoker.Run(ctx, tools.ClipToCutline(src, chip, cutline)); err != nil {
				return err
			}
			st.Clipped = append(st.Clipped, chip)
		}
	}
	return nil
}

// quicklook renders a PNG preview next to every output.
type quicklook struct{}

func (s *quicklook) Name() string { return "quicklook" }

func (s *quicklook) Apply(ctx context.Context, st *TileState) error {
	for _, key := range st.Outputs.Keys() {
		src, _ := st.Outputs.Get(key)
		dst := workdir.Name(st.OutputDir, ".png", st.TileID(), key, "quicklook")
		if err := output.Quicklook(src, dst); err != nil {
			return err
		}
		st.Extras = append(st.Extras, dst)
	}
	return nil
}
