package ard

import (
	"context"
	"fmt"

	"github.com/regen-network/open-science/internal/raster"
	"github.com/regen-network/open-science/internal/sentinel"
	"github.com/regen-network/open-science/internal/tools"
	"go.uber.org/zap"
)

// Stage is one step of tile processing. Stages run in the order the
// pipeline lists them and communicate only through the TileState.
type Stage interface {
	Name() string
	Apply(ctx context.Context, st *TileState) error
}

// StageError wraps the failure of a stage with its name and tile.
type StageError struct {
	Stage string
	Tile  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: stage %s: %v", e.Tile, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// env holds the collaborators shared by the stages of one pipeline.
type env struct {
	invoker  *tools.Invoker
	resolver *sentinel.Resolver
	logger   *zap.Logger
}

// resampleIfNeeded returns src when it already has the target pixel size,
// otherwise resamples it into dst.
func (e *env) resampleIfNeeded(ctx context.Context, src, dst string, resolution float64, method string) (string, error) {
	meta, err := raster.ReadMeta(src)
	if err != nil {
		return "", err
	}
	if meta.PixelSize() == resolution {
		return src, nil
	}
	e.logger.Debug("resampling", zap.String("src", src), zap.Float64("from", meta.PixelSize()), zap.Float64("to", resolution))
	if err := e.invoker.Run(ctx, tools.Resample(src, dst, resolution, method)); err != nil {
		return "", err
	}
	return dst, nil
}
