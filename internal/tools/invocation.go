// Package tools runs the external raster, vector and Sentinel-2 processors the
// pipeline depends on, either as subprocesses or in-process through GDAL.
package tools

import (
	"context"
	"strings"
	"time"
)

const (
	ToolSen2Cor   = "L2A_Process"
	ToolFmask     = "fmask_sentinel2Stacked.py"
	ToolTranslate = "gdal_translate"
	ToolWarp      = "gdalwarp"
	ToolBuildVRT  = "gdalbuildvrt"
	ToolOgr2ogr   = "ogr2ogr"
)

// Invocation is one call of an external tool. Args is the full command line
// after the tool name. Switches, Inputs and Output split the same call into
// its parts for backends that do not go through a command line.
type Invocation struct {
	Tool     string
	Args     []string
	Switches []string
	Inputs   []string
	Output   string
}

func (i Invocation) String() string {
	parts := make([]string, 0, len(i.Args)+1)
	parts = append(parts, i.Tool)
	for _, a := range i.Args {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Result is the outcome of running an invocation. Err is set only when the
// tool could not be run at all or was interrupted; a tool that ran and
// failed reports a non-zero ExitCode.
type Result struct {
	ExitCode int
	Output   string
	Duration time.Duration
	Err      error
}

func (r Result) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

type Runner interface {
	Run(ctx context.Context, inv Invocation) Result
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, inv Invocation) Result

func (f RunnerFunc) Run(ctx context.Context, inv Invocation) Result {
	return f(ctx, inv)
}
