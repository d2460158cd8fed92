package main

import (
	"fmt"
	"strings"

	"github.com/regen-network/open-science/internal/raster"
	"github.com/regen-network/open-science/internal/rastercalc"
	"github.com/regen-network/open-science/internal/ui"
	"github.com/spf13/cobra"
)

var (
	calcExpr   string
	calcInputs []string
	calcOutput string
)

var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Evaluate band arithmetic over rasters",
	Long: `Evaluates an expression pixel by pixel over named single band rasters.

Expressions may use numbers, band names, + - * /, comparisons, && || !,
parentheses and the functions abs, sqrt, min, max and where(cond, a, b).

Example:
  ard calc -e "(nir - red) / (nir + red)" -i nir=B08.tif -i red=B04.tif -o ndvi.tif`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs, err := parseInputs(calcInputs)
		if err != nil {
			return err
		}
		expr, err := rastercalc.Parse(calcExpr)
		if err != nil {
			return err
		}
		raster.Register()
		if err := rastercalc.EvalFiles(expr, inputs, calcOutput); err != nil {
			return err
		}
		ui.PrintSuccess(fmt.Sprintf("wrote %s", calcOutput))
		return nil
	},
}

func init() {
	calcCmd.Flags().StringVarP(&calcExpr, "expr", "e", "", "expression to evaluate")
	calcCmd.Flags().StringArrayVarP(&calcInputs, "input", "i", nil, "band as name=path, repeatable")
	calcCmd.Flags().StringVarP(&calcOutput, "output", "o", "", "output GeoTIFF")
	_ = calcCmd.MarkFlagRequired("expr")
	_ = calcCmd.MarkFlagRequired("output")
}

func parseInputs(specs []string) (map[string]string, error) {
	inputs := make(map[string]string, len(specs))
	for _, s := range specs {
		name, path, ok := strings.Cut(s, "=")
		name, path = strings.TrimSpace(name), strings.TrimSpace(path)
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("input %q is not name=path", s)
		}
		if _, dup := inputs[name]; dup {
			return nil, fmt.Errorf("input %s given twice", name)
		}
		inputs[name] = path
	}
	return inputs, nil
}
