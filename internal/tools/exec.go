package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"
)

const defaultMaxOutput = 1 << 20

// ExecRunner runs tools as subprocesses.
type ExecRunner struct {
	// Binaries maps a tool name to the executable actually started, so
	// L2A_Process can point at a specific Sen2Cor installation.
	Binaries map[string]string
	// MaxOutput bounds the captured combined output, in bytes.
	MaxOutput int64
}

func NewExecRunner(binaries map[string]string) *ExecRunner {
	return &ExecRunner{Binaries: binaries, MaxOutput: defaultMaxOutput}
}

func (r *ExecRunner) binary(tool string) string {
	if b, ok := r.Binaries[tool]; ok && b != "" {
		return b
	}
	return tool
}

func (r *ExecRunner) Run(ctx context.Context, inv Invocation) Result {
	limit := r.MaxOutput
	if limit <= 0 {
		limit = defaultMaxOutput
	}
	var buf bytes.Buffer
	out := &limitedWriter{w: &buf, max: limit}

	cmd := exec.CommandContext(ctx, r.binary(inv.Tool), inv.Args...)
	cmd.Stdout = out
	cmd.Stderr = out

	start := time.Now()
	err := cmd.Run()
	res := Result{Duration: time.Since(start), Output: buf.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case ctx.Err() != nil:
		res.ExitCode = -1
		res.Err = fmt.Errorf("%s interrupted: %w", inv.Tool, ctx.Err())
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		res.Err = err
	}
	return res
}

// limitedWriter keeps the first max bytes and discards the rest.
type limitedWriter struct {
	w       io.Writer
	max     int64
	written int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	remaining := lw.max - lw.written
	if remaining <= 0 {
		return n, nil
	}
	if int64(n) > remaining {
		p = p[:remaining]
	}
	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return n, err
}
