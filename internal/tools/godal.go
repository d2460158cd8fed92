package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/regen-network/open-science/internal/raster"
)

// GodalRunner executes the GDAL utilities through the library instead of
// starting gdal_translate, gdalwarp, gdalbuildvrt and ogr2ogr processes. Any
// other tool is handed to Fallback.
type GodalRunner struct {
	Fallback Runner
}

func NewGodalRunner(fallback Runner) *GodalRunner {
	raster.Register()
	return &GodalRunner{Fallback: fallback}
}

func (r *GodalRunner) Run(ctx context.Context, inv Invocation) Result {
	switch inv.Tool {
	case ToolTranslate, ToolWarp, ToolBuildVRT, ToolOgr2ogr:
	default:
		if r.Fallback == nil {
			return Result{ExitCode: -1, Err: fmt.Errorf("no runner for %s", inv.Tool)}
		}
		return r.Fallback.Run(ctx, inv)
	}
	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1, Err: fmt.Errorf("%s interrupted: %w", inv.Tool, err)}
	}

	start := time.Now()
	err := r.run(inv)
	res := Result{Duration: time.Since(start)}
	if err != nil {
		// library failures are reported like a failed process
		res.ExitCode = 1
		res.Output = err.Error()
	}
	return res
}

func (r *GodalRunner) run(inv Invocation) error {
	if inv.Output == "" || len(inv.Inputs) == 0 {
		return errors.New("invocation has no input or output")
	}

	if inv.Tool == ToolBuildVRT {
		ds, err := godal.BuildVRT(inv.Output, inv.Inputs, inv.Switches)
		if err != nil {
			return err
		}
		return ds.Close()
	}

	var openOpt godal.OpenOption = godal.RasterOnly()
	if inv.Tool == ToolOgr2ogr {
		openOpt = godal.VectorOnly()
	}
	src, err := raster.Open(inv.Inputs[0], openOpt)
	if err != nil {
		return err
	}
	defer src.Close()

	switches := inv.Switches
	if slices.Contains(switches, "-overwrite") {
		switches = slices.DeleteFunc(slices.Clone(switches), func(s string) bool { return s == "-overwrite" })
		if err := os.Remove(inv.Output); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	var dst *godal.Dataset
	switch inv.Tool {
	case ToolTranslate:
		dst, err = src.Translate(inv.Output, switches)
	case ToolWarp:
		dst, err = src.Warp(inv.Output, switches)
	case ToolOgr2ogr:
		dst, err = src.VectorTranslate(inv.Output, switches)
	}
	if err != nil {
		return err
	}
	return dst.Close()
}
