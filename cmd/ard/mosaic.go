package main

import (
	"fmt"

	"github.com/regen-network/open-science/internal/config"
	"github.com/regen-network/open-science/internal/mosaic"
	"github.com/regen-network/open-science/internal/properties"
	"github.com/regen-network/open-science/internal/tools"
	"github.com/regen-network/open-science/internal/ui"
	"github.com/spf13/cobra"
)

var (
	mosaicDir     string
	mosaicConfig  string
	mosaicBackend string
	mosaicAverage bool
)

var mosaicCmd = &cobra.Command{
	Use:   "mosaic",
	Short: "Build ordered mosaics from per-tile outputs",
	Long: `Groups the rasters of --dir by output type and mosaics each group in
the mosaic-order of the configuration. A group with a raster missing from the
order, or an ordered product without a raster, is reported and skipped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if mosaicDir == "" {
			mosaicDir = properties.MosaicDir()
		}
		cfg, err := config.LoadForMosaic(mosaicConfig)
		if err != nil {
			return err
		}
		runner, err := newRunner(mosaicBackend)
		if err != nil {
			return err
		}
		invoker := tools.NewInvoker(runner, tools.WithLogger(logger))

		results, err := mosaic.NewBuilder(invoker, logger, properties.Workers()).Build(cmd.Context(), mosaicDir, cfg.Batch.MosaicSettings)
		if err != nil {
			return err
		}
		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
				continue
			}
			ui.PrintSuccess(fmt.Sprintf("%s: %s", r.Suffix, r.Output))
		}
		if mosaicAverage {
			written, err := mosaic.AverageAll(mosaicDir, true)
			for _, w := range written {
				ui.PrintSuccess(w)
			}
			if err != nil {
				return err
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d mosaic groups failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	mosaicCmd.Flags().StringVar(&mosaicDir, "dir", "", "directory of per-tile outputs (default $ARD_MOSAIC_DIR)")
	mosaicCmd.Flags().StringVarP(&mosaicConfig, "config", "c", "config.yml", "batch configuration document")
	mosaicCmd.Flags().StringVar(&mosaicBackend, "tool-backend", "exec", "exec or godal")
	mosaicCmd.Flags().BoolVar(&mosaicAverage, "average", false, "also average the mosaics")
}
