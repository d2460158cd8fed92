// Package ard turns one Sentinel-2 product into analysis-ready rasters by
// running a fixed sequence of optional stages, and drives batches of tiles.
package ard

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/regen-network/open-science/internal/config"
	"github.com/regen-network/open-science/internal/sentinel"
	"github.com/regen-network/open-science/internal/tools"
	"github.com/regen-network/open-science/internal/ui"
	"github.com/regen-network/open-science/internal/workdir"
	"go.uber.org/zap"
)

type Deps struct {
	Invoker  *tools.Invoker
	Resolver *sentinel.Resolver
	Logger   *zap.Logger
}

// Pipeline is the stage list selected for one tile configuration.
type Pipeline struct {
	cfg    config.TileConfig
	env    *env
	stages []Stage
}

// NewPipeline selects the stages enabled by cfg, in processing order.
func NewPipeline(cfg config.TileConfig, deps Deps) (*Pipeline, error) {
	inputProduct, err := sentinel.ProductTypeFromName(cfg.TileName)
	if err != nil {
		return nil, err
	}
	if deps.Invoker == nil {
		return nil, fmt.Errorf("pipeline needs a tool invoker")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Resolver == nil {
		deps.Resolver = sentinel.NewResolver(nil, deps.Logger)
	}
	e := &env{invoker: deps.Invoker, resolver: deps.Resolver, logger: deps.Logger}

	out := cfg.Output
	var stages []Stage
	if cfg.ARD.AtmCorr {
		stages = append(stages, &atmosphericCorrection{env: e, bands: out.Bands})
	}
	stages = append(stages,
		&targetProjection{epsg: out.TargetSRS},
		&resample{env: e, bands: out.Bands, resolution: out.Resolution, method: out.ResamplingMethod},
	)
	if cfg.ARD.DerivedIndex && len(out.VI) > 0 {
		stages = append(stages, &deriveIndex{env: e, indices: out.VI, resolution: out.Resolution, method: out.ResamplingMethod})
	}
	if cfg.UsesSCLMask() {
		stages = append(stages, &sceneClassMask{env: e, codes: cfg.CloudMask.SCLCodes, atmCorr: cfg.ARD.AtmCorr, resolution: out.Resolution})
	}
	if cfg.UsesFmask() && inputProduct == sentinel.ProductTOA {
		stages = append(stages, &fmaskMask{env: e, codes: cfg.CloudMask.FmaskCodes, resolution: out.Resolution})
	}
	if cfg.ARD.Calibrate {
		stages = append(stages, &calibrate{bands: out.Bands})
	}
	stages = append(stages, &reproject{env: e, resolution: out.Resolution, method: out.ResamplingMethod})
	if cfg.ARD.Stack {
		stages = append(stages, &stack{bands: out.Bands})
	}
	stages = append(stages, &copyOutputs{env: e, withIndices: cfg.ARD.DerivedIndex})
	if cfg.ARD.Clip {
		stages = append(stages, &clip{env: e, features: out.InputFeatures})
	}
	if out.Quicklook {
		stages = append(stages, &quicklook{})
	}
	return &Pipeline{cfg: cfg, env: e, stages: stages}, nil
}

// Stages lists the names of the selected stages in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run processes the product at inputPath. Intermediates go to work, final
// rasters to outputDir.
func (p *Pipeline) Run(ctx context.Context, inputPath string, work workdir.WorkDir, outputDir string) (*TileState, error) {
	inputProduct, err := sentinel.ProductTypeFromName(inputPath)
	if err != nil {
		return nil, err
	}
	if err := ensureDir(outputDir); err != nil {
		return nil, err
	}

	st := &TileState{
		InputPath:    inputPath,
		InputProduct: inputProduct,
		Indices:      NewOutputs(),
		Outputs:      NewOutputs(),
		Work:         work,
		OutputDir:    outputDir,
	}
	if err := st.useProduct(p.env.resolver, inputPath, inputProduct, p.cfg.Output.Bands); err != nil {
		return st, err
	}

	logger := p.env.logger.With(zap.String("tile", st.TileID()))
	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		start := time.Now()
		logger.Debug("stage started", zap.String("stage", stage.Name()))
		if err := stage.Apply(ctx, st); err != nil {
			ui.PrintError(fmt.Sprintf("%s failed: %v", stage.Name(), err))
			return st, &StageError{Stage: stage.Name(), Tile: st.TileID(), Err: err}
		}
		logger.Info("stage finished", zap.String("stage", stage.Name()), zap.Duration("duration", time.Since(start)))
	}
	return st, nil
}

// useProduct points the state at a product and resolves its bands.
func (st *TileState) useProduct(r *sentinel.Resolver, productPath string, pt sentinel.ProductType, bands []string) error {
	xmlPath, err := sentinel.FindMetadataXML(productPath)
	if err != nil {
		return err
	}
	all, err := r.Resolve(xmlPath, pt)
	if err != nil {
		return err
	}
	ref, err := sentinel.Subset(bands, all, pt, xmlPath)
	if err != nil {
		return err
	}

	st.ProductPath = productPath
	st.Product = pt
	st.Metadata = xmlPath
	st.AllBands = all
	st.Bands = NewOutputs()
	for _, b := range bands {
		st.Bands.Set(b, ref[b])
	}
	return nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}
