package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/regen-network/open-science/internal/config"
	"github.com/regen-network/open-science/internal/logging"
	"github.com/regen-network/open-science/internal/properties"
	"github.com/regen-network/open-science/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	verbose  bool
	jsonLogs bool
	envFile  string
	noBanner bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ard",
	Short: "Sentinel-2 analysis ready data processing",
	Long: `ard turns Sentinel-2 SAFE products into analysis ready rasters.

Each tile listed in the configuration runs through the enabled stages
(atmospheric correction, resampling, derived indices, cloud masking,
calibration, reprojection, stacking and clipping). Tiles flagged for the
mosaic are combined afterwards in the configured order.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := properties.Load(envFile); err != nil {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		var err error
		logger, err = logging.New(verbose, jsonLogs)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if !noBanner {
			ui.PrintBanner("S2 ARD")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "structured JSON logs")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "environment file with process settings")
	rootCmd.PersistentFlags().BoolVar(&noBanner, "no-banner", false, "skip the start banner")

	rootCmd.AddCommand(processCmd, mosaicCmd, calcCmd, runsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			ui.PrintError(fmt.Sprintf("configuration: %v", cfgErr))
		} else {
			ui.PrintError(err.Error())
		}
		os.Exit(1)
	}
}
