// Package store keeps a SQLite ledger of processing runs: which tiles were
// processed, what they produced, and every external tool invocation.
package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/regen-network/open-science/internal/ard"
	"github.com/regen-network/open-science/internal/tools"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const (
	StatusRunning  = "running"
	StatusOK       = "ok"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

// Ledger records one run at a time. It implements tools.Recorder and
// ard.TileRecorder; write failures are logged rather than returned so they
// never interrupt processing.
type Ledger struct {
	db     *sql.DB
	logger *zap.Logger

	mu    sync.Mutex
	runID string
}

var (
	_ tools.Recorder   = (*Ledger)(nil)
	_ ard.TileRecorder = (*Ledger)(nil)
)

func Open(path string, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}
	// tiles finishing on several workers write through one connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise ledger schema: %w", err)
	}
	return &Ledger{db: db, logger: logger}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func now() int64 {
	return time.Now().UTC().UnixMilli()
}

// StartRun opens a new run and makes it the target of later records.
func (l *Ledger) StartRun(configPath string, strict bool) (string, error) {
	id := uuid.NewString()
	_, err := l.db.Exec(`INSERT INTO runs (id, config_path, strict, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, configPath, strict, StatusRunning, now())
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	l.mu.Lock()
	l.runID = id
	l.mu.Unlock()
	l.logger.Info("run started", zap.String("run_id", id))
	return id, nil
}

func (l *Ledger) RunID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runID
}

func (l *Ledger) FinishRun(status string) error {
	_, err := l.db.Exec(`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`, status, now(), l.RunID())
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

func (l *Ledger) TileStarted(tile string) {
	_, err := l.db.Exec(`INSERT OR REPLACE INTO tiles (run_id, tile, status, started_at) VALUES (?, ?, ?, ?)`,
		l.RunID(), tile, StatusRunning, now())
	if err != nil {
		l.logger.Error("failed to record tile start", zap.String("tile", tile), zap.Error(err))
	}
}

func (l *Ledger) TileFinished(tile string, st *ard.TileState, tileErr error) {
	status, message := StatusOK, ""
	if tileErr != nil {
		status, message = StatusFailed, tileErr.Error()
	}
	var (
		epsg    int
		outputs []byte
	)
	if st != nil {
		epsg = st.TargetEPSG
		paths := map[string]string{}
		if st.Outputs != nil {
			for _, k := range st.Outputs.Keys() {
				paths[k], _ = st.Outputs.Get(k)
			}
		}
		outputs, _ = json.Marshal(paths)
	}
	_, err := l.db.Exec(`UPDATE tiles SET status = ?, target_epsg = ?, outputs = ?, error_message = ?, finished_at = ?
		WHERE run_id = ? AND tile = ?`,
		status, epsg, string(outputs), message, now(), l.RunID(), tile)
	if err != nil {
		l.logger.Error("failed to record tile result", zap.String("tile", tile), zap.Error(err))
	}
}

func (l *Ledger) RecordInvocation(tile string, inv tools.Invocation, res tools.Result) {
	var message string
	if res.Err != nil {
		message = res.Err.Error()
	}
	_, err := l.db.Exec(`INSERT INTO tool_invocations
		(run_id, tile, tool, command_line, exit_code, duration_ms, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.RunID(), tile, inv.Tool, inv.String(), res.ExitCode, res.Duration.Milliseconds(), message, now())
	if err != nil {
		l.logger.Error("failed to record invocation", zap.String("tool", inv.Tool), zap.Error(err))
	}
}

type Run struct {
	ID         string
	ConfigPath string
	Strict     bool
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
}

type Tile struct {
	Tile       string
	Status     string
	TargetEPSG int
	Outputs    map[string]string
	Error      string
}

type Invocation struct {
	Tile        string
	Tool        string
	CommandLine string
	ExitCode    int
	Duration    time.Duration
	Error       string
}

// Runs lists recorded runs, newest first.
func (l *Ledger) Runs() ([]Run, error) {
	rows, err := l.db.Query(`SELECT id, config_path, strict, status, started_at, finished_at FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.ConfigPath, &r.Strict, &r.Status, &started, &finished); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		if finished.Valid {
			r.FinishedAt = time.UnixMilli(finished.Int64).UTC()
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (l *Ledger) Tiles(runID string) ([]Tile, error) {
	rows, err := l.db.Query(`SELECT tile, status, target_epsg, outputs, error_message FROM tiles WHERE run_id = ? ORDER BY tile`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiles []Tile
	for rows.Next() {
		var (
			t       Tile
			epsg    sql.NullInt64
			outputs sql.NullString
			message sql.NullString
		)
		if err := rows.Scan(&t.Tile, &t.Status, &epsg, &outputs, &message); err != nil {
			return nil, err
		}
		t.TargetEPSG = int(epsg.Int64)
		t.Error = message.String
		if outputs.String != "" {
			if err := json.Unmarshal([]byte(outputs.String), &t.Outputs); err != nil {
				return nil, fmt.Errorf("tile %s: bad outputs: %w", t.Tile, err)
			}
		}
		tiles = append(tiles, t)
	}
	return tiles, rows.Err()
}

func (l *Ledger) Invocations(runID string) ([]Invocation, error) {
	rows, err := l.db.Query(`SELECT tile, tool, command_line, exit_code, duration_ms, error_message
		FROM tool_invocations WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invocation
	for rows.Next() {
		var (
			inv     Invocation
			ms      int64
			message sql.NullString
		)
		if err := rows.Scan(&inv.Tile, &inv.Tool, &inv.CommandLine, &inv.ExitCode, &ms, &message); err != nil {
			return nil, err
		}
		inv.Duration = time.Duration(ms) * time.Millisecond
		inv.Error = message.String
		out = append(out, inv)
	}
	return out, rows.Err()
}
