package tools

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/regen-network/open-science/internal/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	tile string
	inv  Invocation
	res  Result
}

type memRecorder struct {
	mu      sync.Mutex
	entries []recorded
}

func (m *memRecorder) RecordInvocation(tile string, inv Invocation, res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, recorded{tile, inv, res})
}

func exitWith(code int) Runner {
	return RunnerFunc(func(ctx context.Context, inv Invocation) Result {
		return Result{ExitCode: code, Output: "ERROR 1: cannot open\n"}
	})
}

func quiet(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	ui.SetOutput(&buf)
	return &buf
}

func TestInvokerBestEffortContinues(t *testing.T) {
	out := quiet(t)
	rec := &memRecorder{}
	inv := NewInvoker(exitWith(1), WithRecorder(rec)).ForTile("T32TQM")

	err := inv.Run(context.Background(), Resample("a.jp2", "b.tif", 10, "near"))
	require.NoError(t, err)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "T32TQM", rec.entries[0].tile)
	assert.Equal(t, 1, rec.entries[0].res.ExitCode)
	assert.Contains(t, out.String(), "gdal_translate -tr 10 10 -r near a.jp2 b.tif")
}

func TestInvokerStrictEscalates(t *testing.T) {
	quiet(t)
	inv := NewInvoker(exitWith(2), WithStrict(true))

	err := inv.Run(context.Background(), Translate("m.vrt", "m.tif"))
	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, 2, toolErr.ExitCode)
	assert.Equal(t, ToolTranslate, toolErr.Invocation.Tool)
	assert.Equal(t, "gdal_translate exited with status 2: ERROR 1: cannot open", toolErr.Error())
}

func TestInvokerStartFailureAlwaysFails(t *testing.T) {
	quiet(t)
	boom := errors.New("executable file not found")
	r := RunnerFunc(func(ctx context.Context, inv Invocation) Result {
		return Result{ExitCode: -1, Err: boom}
	})

	err := NewInvoker(r).Run(context.Background(), Sen2Cor("/in/tile.SAFE"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestInvokerTimeout(t *testing.T) {
	quiet(t)
	r := RunnerFunc(func(ctx context.Context, inv Invocation) Result {
		<-ctx.Done()
		return Result{ExitCode: -1, Err: ctx.Err()}
	})
	err := NewInvoker(r, WithTimeout(10*time.Millisecond)).Run(context.Background(), Fmask("/in/t.SAFE", "/w/t_FMASK.tif"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecRunner(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := NewExecRunner(map[string]string{"fail": "sh"})

	res := r.Run(context.Background(), Invocation{Tool: "fail", Args: []string{"-c", "echo oops >&2; exit 3"}})
	assert.NoError(t, res.Err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Output, "oops")

	res = r.Run(context.Background(), Invocation{Tool: "definitely-not-a-binary-xyz"})
	assert.Error(t, res.Err)
	assert.False(t, res.OK())
}

func TestLimitedWriter(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, max: 4}
	n, err := lw.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	_, _ = lw.Write([]byte("gh"))
	assert.Equal(t, "abcd", buf.String())
}
