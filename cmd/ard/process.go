package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/regen-network/open-science/internal/ard"
	"github.com/regen-network/open-science/internal/cache"
	"github.com/regen-network/open-science/internal/config"
	"github.com/regen-network/open-science/internal/mosaic"
	"github.com/regen-network/open-science/internal/notification"
	"github.com/regen-network/open-science/internal/properties"
	"github.com/regen-network/open-science/internal/report"
	"github.com/regen-network/open-science/internal/sentinel"
	"github.com/regen-network/open-science/internal/store"
	"github.com/regen-network/open-science/internal/tools"
	"github.com/regen-network/open-science/internal/ui"
	"github.com/regen-network/open-science/internal/utils"
	"github.com/regen-network/open-science/internal/workdir"
	"github.com/regen-network/open-science/output"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type processOptions struct {
	tilesDir    string
	configPath  string
	aoiPath     string
	workDir     string
	outputDir   string
	mosaicDir   string
	ledgerPath  string
	backend     string
	workers     int
	strict      bool
	keepWork    bool
	progress    bool
	notify      bool
	toolTimeout time.Duration
}

var processOpts processOptions

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process every configured tile into analysis ready rasters",
	Long: `Loads the configuration once, then runs the enabled stages for each
tile found under --tiles. Tiles whose directory is missing are reported and
skipped. Outputs go to --output-dir, or --mosaic-dir for tiles flagged
include-in-mosaic; mosaics and averages are built afterwards when the batch
settings ask for them.

Tool exit codes are logged and processing continues unless --strict is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProcess(cmd.Context(), processOpts)
	},
}

func init() {
	f := processCmd.Flags()
	f.StringVar(&processOpts.tilesDir, "tiles", "", "directory holding the SAFE products")
	f.StringVarP(&processOpts.configPath, "config", "c", "config.yml", "batch configuration document")
	f.StringVar(&processOpts.aoiPath, "aoi", "", "area of interest features used for clipping")
	f.StringVar(&processOpts.workDir, "work-dir", "", "scratch directory (default $ARD_WORK_DIR)")
	f.StringVar(&processOpts.outputDir, "output-dir", "", "output directory (default $ARD_OUTPUT_DIR)")
	f.StringVar(&processOpts.mosaicDir, "mosaic-dir", "", "mosaic input/output directory (default $ARD_MOSAIC_DIR)")
	f.StringVar(&processOpts.ledgerPath, "ledger", "", "run ledger database, \"-\" disables it (default $ARD_LEDGER_PATH)")
	f.StringVar(&processOpts.backend, "tool-backend", "exec", "run GDAL utilities as processes (exec) or in-process (godal)")
	f.IntVarP(&processOpts.workers, "workers", "w", 0, "tiles processed at once (default $ARD_WORKERS or 1)")
	f.BoolVar(&processOpts.strict, "strict", false, "fail a tile when a tool exits non-zero")
	f.BoolVar(&processOpts.keepWork, "keep-work", false, "keep per-tile intermediates")
	f.BoolVar(&processOpts.progress, "progress", true, "show a progress bar")
	f.BoolVar(&processOpts.notify, "notify", false, "post a run summary to the Discord webhooks")
	f.DurationVar(&processOpts.toolTimeout, "tool-timeout", 0, "bound on each tool invocation, 0 for none")
	_ = processCmd.MarkFlagRequired("tiles")
}

func (o *processOptions) applyDefaults() {
	if o.workDir == "" {
		o.workDir = properties.WorkDir()
	}
	if o.outputDir == "" {
		o.outputDir = properties.OutputDir()
	}
	if o.mosaicDir == "" {
		o.mosaicDir = properties.MosaicDir()
	}
	if o.ledgerPath == "" {
		o.ledgerPath = properties.LedgerPath()
	}
	if o.workers < 1 {
		o.workers = properties.Workers()
	}
}

// newRunner builds the tool runner for backend. The Sentinel-2 processors
// always run as processes.
func newRunner(backend string) (tools.Runner, error) {
	execRunner := tools.NewExecRunner(map[string]string{
		tools.ToolSen2Cor: properties.Sen2CorBin(),
		tools.ToolFmask:   properties.FmaskBin(),
	})
	switch backend {
	case "exec":
		return execRunner, nil
	case "godal":
		return tools.NewGodalRunner(execRunner), nil
	}
	return nil, fmt.Errorf("unknown tool backend %q", backend)
}

func runProcess(ctx context.Context, o processOptions) error {
	o.applyDefaults()
	start := time.Now()

	cfg, err := config.Load(o.configPath, o.aoiPath)
	if err != nil {
		return err
	}
	ui.PrintInfo(fmt.Sprintf("%d tiles configured", len(cfg.Tiles)))

	work, err := workdir.New(o.workDir)
	if err != nil {
		return err
	}
	runner, err := newRunner(o.backend)
	if err != nil {
		return err
	}

	invokerOpts := []tools.Option{
		tools.WithStrict(o.strict),
		tools.WithTimeout(o.toolTimeout),
		tools.WithLogger(logger),
	}
	var ledger *store.Ledger
	runID := "-"
	if o.ledgerPath != "-" {
		if ledger, err = store.Open(o.ledgerPath, logger); err != nil {
			return err
		}
		defer ledger.Close()
		if runID, err = ledger.StartRun(o.configPath, o.strict); err != nil {
			return err
		}
		invokerOpts = append(invokerOpts, tools.WithRecorder(ledger))
	}
	invoker := tools.NewInvoker(runner, invokerOpts...)

	bandCache := cache.NewFileCache[sentinel.BandPathMap](filepath.Join(work.Root(), "cache"))
	batchOpts := ard.Options{
		TilesDir:  o.tilesDir,
		Work:      work,
		OutputDir: o.outputDir,
		MosaicDir: o.mosaicDir,
		Workers:   o.workers,
		KeepWork:  o.keepWork,
		Progress:  o.progress,
		Deps: ard.Deps{
			Invoker:  invoker,
			Resolver: sentinel.NewResolver(bandCache, logger),
			Logger:   logger,
		},
	}
	if ledger != nil {
		batchOpts.Recorder = ledger
	}

	results, runErr := ard.NewBatch(batchOpts).Run(ctx, cfg.Tiles)
	summary := summarize(runID, results)

	rows, err := report.Rows(results)
	if err != nil {
		logger.Error("manifest incomplete", zap.Error(err))
	}
	manifest := filepath.Join(o.outputDir, report.ManifestName)
	if err := report.Write(manifest, rows); err != nil {
		logger.Error("failed to write manifest", zap.Error(err))
	} else {
		ui.PrintInfo(fmt.Sprintf("manifest: %s", manifest))
	}
	if len(rows) > 0 {
		products := make([]output.Product, 0, len(rows))
		for _, row := range rows {
			products = append(products, output.Product{Tile: row.Tile, Key: row.Key, Path: row.Path})
		}
		footprints := filepath.Join(o.outputDir, output.FootprintsName)
		if err := output.Footprints(products, footprints); err != nil {
			logger.Error("failed to write footprints", zap.Error(err))
		}
	}

	if runErr == nil {
		summary.Mosaics, runErr = postProcess(ctx, cfg, o, invoker, results)
	}
	summary.Duration = time.Since(start)

	status := store.StatusOK
	switch {
	case errors.Is(runErr, context.Canceled):
		status = store.StatusCanceled
	case runErr != nil || !summary.OK():
		status = store.StatusFailed
	}
	if ledger != nil {
		if err := ledger.FinishRun(status); err != nil {
			logger.Error("failed to close run", zap.Error(err))
		}
	}
	if o.notify {
		if err := notification.NewDiscordFromProperties().NotifyRun(context.WithoutCancel(ctx), summary); err != nil {
			logger.Warn("notification not sent", zap.Error(err))
		}
	}

	if runErr != nil {
		return runErr
	}
	if !summary.OK() {
		return fmt.Errorf("%d of %d tiles failed", len(summary.Failed), len(results))
	}
	ui.PrintSuccess(fmt.Sprintf("processed %d tiles in %s", summary.Processed, summary.Duration.Round(time.Second)))
	return nil
}

func summarize(runID string, results []ard.TileResult) notification.RunSummary {
	s := notification.RunSummary{RunID: runID}
	for _, r := range results {
		switch {
		case r.Skipped:
			s.Skipped = append(s.Skipped, r.Config.TileName)
		case r.Err != nil:
			s.Failed = append(s.Failed, r.Config.TileName)
		default:
			s.Processed++
		}
	}
	return s
}

// postProcess builds the mosaics and temporal averages requested by the
// batch settings and returns how many mosaics were written.
func postProcess(ctx context.Context, cfg *config.Config, o processOptions, invoker *tools.Invoker, results []ard.TileResult) (int, error) {
	built := 0
	if cfg.Batch.Mosaic {
		ui.PrintHeader("building mosaics")
		mosaics, err := mosaic.NewBuilder(invoker, logger, o.workers).Build(ctx, o.mosaicDir, cfg.Batch.MosaicSettings)
		if err != nil {
			return built, err
		}
		for _, m := range mosaics {
			if m.Err == nil {
				built++
			}
		}
	}

	if !cfg.Batch.AverageImages {
		return built, nil
	}
	ui.PrintHeader("averaging images")
	if cfg.Batch.MosaicInAverage {
		written, err := mosaic.AverageAll(o.mosaicDir, true)
		for _, w := range written {
			ui.PrintStep("wrote %s", w)
		}
		return built, err
	}

	byKey := map[string][]string{}
	for _, r := range results {
		if !r.OK() || !r.Config.ARD.IncludeInAverage {
			continue
		}
		for _, key := range r.State.Outputs.Keys() {
			path, _ := r.State.Outputs.Get(key)
			byKey[key] = append(byKey[key], path)
		}
	}
	var errs []error
	for _, key := range utils.SortedKeys(byKey) {
		dst := workdir.Name(o.outputDir, ".tif", key, "average")
		if err := mosaic.AverageFiles(byKey[key], dst); err != nil {
			errs = append(errs, fmt.Errorf("average %s: %w", key, err))
			continue
		}
		ui.PrintStep("wrote %s", dst)
	}
	return built, errors.Join(errs...)
}
