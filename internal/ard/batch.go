package ard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/regen-network/open-science/internal/config"
	"github.com/regen-network/open-science/internal/sentinel"
	"github.com/regen-network/open-science/internal/ui"
	"github.com/regen-network/open-science/internal/workdir"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// TileRecorder is told when a tile starts and how it ended.
type TileRecorder interface {
	TileStarted(tile string)
	TileFinished(tile string, st *TileState, err error)
}

type Options struct {
	TilesDir  string
	Work      workdir.WorkDir
	OutputDir string
	// MosaicDir receives the outputs of tiles flagged include-in-mosaic.
	MosaicDir string
	Workers   int
	// KeepWork leaves each tile's intermediates on disk.
	KeepWork bool
	Progress bool
	Recorder TileRecorder
	Deps     Deps
}

type TileResult struct {
	Config  config.TileConfig
	State   *TileState
	Err     error
	Skipped bool
}

func (r TileResult) OK() bool {
	return !r.Skipped && r.Err == nil
}

type Batch struct {
	opts   Options
	logger *zap.Logger
}

func NewBatch(opts Options) *Batch {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	logger := opts.Deps.Logger
	if logger == nil {
		logger = zap.NewNop()
		opts.Deps.Logger = logger
	}
	return &Batch{opts: opts, logger: logger}
}

// Run processes every configured tile whose directory exists under
// TilesDir. Results keep the configuration order. Failed tiles do not stop
// the batch; only cancellation of ctx does.
func (b *Batch) Run(ctx context.Context, tiles []config.TileConfig) ([]TileResult, error) {
	results := make([]TileResult, len(tiles))

	var bar *progressbar.ProgressBar
	if b.opts.Progress {
		bar = progressbar.Default(int64(len(tiles)), "Processing tiles")
	}
	var mu sync.Mutex
	done := func() {
		if bar == nil {
			return
		}
		mu.Lock()
		bar.Add(1)
		mu.Unlock()
	}

	if b.opts.Workers == 1 {
		for i, tile := range tiles {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			results[i] = b.processTile(ctx, tile)
			done()
		}
		return results, ctx.Err()
	}

	wp := workerpool.New(b.opts.Workers)
	for i, tile := range tiles {
		i, tile := i, tile
		wp.Submit(func() {
			if ctx.Err() != nil {
				results[i] = TileResult{Config: tile, Err: ctx.Err()}
				return
			}
			results[i] = b.processTile(ctx, tile)
			done()
		})
	}
	wp.StopWait()
	return results, ctx.Err()
}

func (b *Batch) processTile(ctx context.Context, tile config.TileConfig) TileResult {
	result := TileResult{Config: tile}
	input := filepath.Join(b.opts.TilesDir, tile.TileName)
	if info, err := os.Stat(input); err != nil || !info.IsDir() {
		ui.PrintWarning(fmt.Sprintf("Unable to process tile: %s", tile.TileName))
		b.logger.Warn("tile directory missing", zap.String("tile", tile.TileName))
		result.Skipped = true
		return result
	}

	ui.PrintInfo(fmt.Sprintf("PROCESSING IMAGE: %s", tile.TileName))
	id := sentinel.TileID(tile.TileName)
	if b.opts.Recorder != nil {
		b.opts.Recorder.TileStarted(id)
	}

	st, err := b.runTile(ctx, tile, input, id)
	result.State, result.Err = st, err
	if b.opts.Recorder != nil {
		b.opts.Recorder.TileFinished(id, st, err)
	}
	if err != nil {
		b.logger.Error("tile failed", zap.String("tile", id), zap.Error(err))
	} else {
		ui.PrintSuccess(fmt.Sprintf("%s: %d outputs", id, st.Outputs.Len()))
	}
	return result
}

func (b *Batch) runTile(ctx context.Context, tile config.TileConfig, input, id string) (*TileState, error) {
	work, err := b.opts.Work.ForTile(id)
	if err != nil {
		return nil, err
	}
	if !b.opts.KeepWork {
		defer work.Remove()
	}

	deps := b.opts.Deps
	if deps.Invoker == nil {
		return nil, fmt.Errorf("batch has no tool invoker")
	}
	deps.Invoker = deps.Invoker.ForTile(id)
	deps.Logger = b.logger.With(zap.String("tile", id))
	p, err := NewPipeline(tile, deps)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("pipeline", zap.String("tile", id), zap.Strings("stages", p.Stages()))

	outputDir := b.opts.OutputDir
	if tile.ARD.IncludeInMosaic {
		outputDir = b.opts.MosaicDir
	}
	return p.Run(ctx, input, work, outputDir)
}
