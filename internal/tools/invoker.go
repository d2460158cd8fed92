package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/regen-network/open-science/internal/ui"
	"go.uber.org/zap"
)

// ToolError reports a tool that exited non-zero or could not be run.
type ToolError struct {
	Invocation Invocation
	ExitCode   int
	Output     string
	Err        error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Invocation.Tool, e.Err)
	}
	msg := fmt.Sprintf("%s exited with status %d", e.Invocation.Tool, e.ExitCode)
	if last := lastLine(e.Output); last != "" {
		msg += ": " + last
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// Recorder receives every invocation once it has finished.
type Recorder interface {
	RecordInvocation(tile string, inv Invocation, res Result)
}

// Invoker runs invocations on behalf of one tile. By default a non-zero
// exit status is logged and processing continues with whatever the tool
// left behind; in strict mode it is returned as a *ToolError. A tool that
// cannot be started or is interrupted always fails.
type Invoker struct {
	runner   Runner
	strict   bool
	timeout  time.Duration
	tile     string
	logger   *zap.Logger
	recorder Recorder
}

type Option func(*Invoker)

func WithStrict(strict bool) Option {
	return func(i *Invoker) { i.strict = strict }
}

// WithTimeout bounds each invocation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(i *Invoker) { i.timeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(i *Invoker) {
		if l != nil {
			i.logger = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(i *Invoker) { i.recorder = r }
}

func NewInvoker(r Runner, opts ...Option) *Invoker {
	i := &Invoker{runner: r, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ForTile returns a copy of the invoker that labels its records with tile.
func (i *Invoker) ForTile(tile string) *Invoker {
	c := *i
	c.tile = tile
	c.logger = i.logger.With(zap.String("tile", tile))
	return &c
}

func (i *Invoker) Run(ctx context.Context, inv Invocation) error {
	ui.PrintStep("%s", inv.String())
	i.logger.Debug("running tool", zap.String("tool", inv.Tool), zap.Strings("args", inv.Args))

	runCtx := ctx
	if i.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}
	res := i.runner.Run(runCtx, inv)

	if i.recorder != nil {
		i.recorder.RecordInvocation(i.tile, inv, res)
	}

	if res.Err != nil {
		i.logger.Error("tool failed", zap.String("tool", inv.Tool), zap.Error(res.Err))
		return &ToolError{Invocation: inv, ExitCode: res.ExitCode, Output: res.Output, Err: res.Err}
	}
	if res.ExitCode != 0 {
		ui.PrintStep("%d", res.ExitCode)
		i.logger.Warn("tool exited non-zero",
			zap.String("tool", inv.Tool),
			zap.Int("exit_code", res.ExitCode),
			zap.String("output", lastLine(res.Output)),
			zap.Bool("strict", i.strict))
		if i.strict {
			return &ToolError{Invocation: inv, ExitCode: res.ExitCode, Output: res.Output}
		}
		return nil
	}
	i.logger.Debug("tool finished", zap.String("tool", inv.Tool), zap.Duration("duration", res.Duration))
	return nil
}
