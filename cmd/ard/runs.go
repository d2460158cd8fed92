package main

import (
	"fmt"
	"time"

	"github.com/regen-network/open-science/internal/properties"
	"github.com/regen-network/open-science/internal/store"
	"github.com/regen-network/open-science/internal/ui"
	"github.com/spf13/cobra"
)

var (
	runsLedger string
	runsLimit  int
)

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List recorded runs, or the tiles and tool calls of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if runsLedger == "" {
			runsLedger = properties.LedgerPath()
		}
		ledger, err := store.Open(runsLedger, logger)
		if err != nil {
			return err
		}
		defer ledger.Close()

		if len(args) == 1 {
			return showRun(ledger, args[0])
		}
		runs, err := ledger.Runs()
		if err != nil {
			return err
		}
		if len(runs) > runsLimit {
			runs = runs[:runsLimit]
		}
		for _, r := range runs {
			ui.PrintInfo(fmt.Sprintf("%s  %-8s  %s  %s", r.ID, r.Status, r.StartedAt.Local().Format(time.DateTime), r.ConfigPath))
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsLedger, "ledger", "", "run ledger database (default $ARD_LEDGER_PATH)")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "number of runs listed")
}

func showRun(ledger *store.Ledger, runID string) error {
	tiles, err := ledger.Tiles(runID)
	if err != nil {
		return err
	}
	ui.PrintHeader("tiles")
	for _, t := range tiles {
		line := fmt.Sprintf("%s  %s  EPSG:%d  %d outputs", t.Tile, t.Status, t.TargetEPSG, len(t.Outputs))
		if t.Error != "" {
			ui.PrintError(line + "  " + t.Error)
			continue
		}
		ui.PrintInfo(line)
	}

	invs, err := ledger.Invocations(runID)
	if err != nil {
		return err
	}
	ui.PrintHeader("tool invocations")
	for _, inv := range invs {
		line := fmt.Sprintf("[%s] exit %d in %s: %s", inv.Tile, inv.ExitCode, inv.Duration, inv.CommandLine)
		if inv.ExitCode != 0 || inv.Error != "" {
			ui.PrintWarning(line)
			continue
		}
		ui.PrintStep("%s", line)
	}
	return nil
}
