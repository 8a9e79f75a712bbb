// Package orchestrator is the façade that wires the extension bus,
// subprocess pool, scheduler, and result store together and runs a
// workflow end to end for one target.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/CodeMonkeyCybersecurity/neosec/internal/bus"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/config"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/core"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/executor"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/logger"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/plugins"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/scheduler"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/validation"
	"github.com/CodeMonkeyCybersecurity/neosec/pkg/types"
)

// DataDirEnv redirects the run output root when set.
const DataDirEnv = "NEOSEC_DATA_DIR"

type Engine struct {
	cfg    *config.Config
	bus    *bus.Bus
	pool   core.Pool
	store  core.ResultStore
	logger *logger.Logger
}

// New builds a fully wired engine. The store is optional; pass nil to run
// without persistence.
func New(cfg *config.Config, store core.ResultStore, log *logger.Logger) (*Engine, error) {
	b := bus.New(log)
	if err := plugins.RegisterDefaultAdapters(b, cfg.Tools); err != nil {
		return nil, err
	}

	runner := executor.NewRunner(cfg.Executor, log)
	pool := executor.NewPool(runner, cfg.Executor.MaxConcurrent)

	return &Engine{
		cfg:    cfg,
		bus:    b,
		pool:   pool,
		store:  store,
		logger: log.WithComponent("orchestrator"),
	}, nil
}

// Bus exposes the engine's extension bus for adapter listing and
// dependency validation commands.
func (e *Engine) Bus() *bus.Bus {
	return e.bus
}

// DataDir resolves the run output root, honoring NEOSEC_DATA_DIR.
func (e *Engine) DataDir() string {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return dir
	}
	return e.cfg.Output.DataDir
}

// Run executes a workflow against target and returns the aggregated
// result. Validation failures reject the run before any binary spawns.
func (e *Engine) Run(ctx context.Context, spec *types.WorkflowSpec, target string) (*types.ScanResult, error) {
	if _, err := validation.ValidateTarget(target); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	log := e.logger.WithScanID(runID).WithTarget(target)

	rawDir := filepath.Join(e.DataDir(), "raw_outputs", runID)
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create raw output dir: %w", err)
	}

	sched := scheduler.New(e.bus, e.pool, e.logger, scheduler.Options{
		GlobalTimeout: e.cfg.Scheduler.GlobalTimeout,
		ToolTimeouts:  plugins.ToolTimeouts(e.cfg.Tools),
		RunID:         runID,
		RawOutput: func(taskID string, stdout, stderr []byte) {
			writeRawCapture(log, rawDir, taskID, stdout, stderr)
		},
	})

	log.Infow("Scan starting", "workflow", spec.Name)
	e.bus.OnScanStart(spec.Name, target)

	start := time.Now()
	result, err := sched.Run(ctx, spec, target)
	if err != nil {
		log.LogError(ctx, err, "orchestrator.run", "workflow", spec.Name)
		return nil, err
	}

	e.bus.OnScanComplete(result)

	if err := e.writeReport(result); err != nil {
		log.LogError(ctx, err, "orchestrator.write_report", "scan_id", runID)
	}

	if e.store != nil {
		if err := e.store.SaveScan(ctx, result); err != nil {
			log.LogError(ctx, err, "orchestrator.save_scan", "scan_id", runID)
		}
	}

	log.Infow("Scan finished",
		"workflow", spec.Name,
		"status", result.Status,
		"duration_ms", time.Since(start).Milliseconds(),
		"hosts", len(result.Assets.Hosts),
		"web_apps", len(result.Assets.WebApps),
		"subdomains", len(result.Assets.Subdomains),
		"vulnerabilities", len(result.Vulnerabilities),
	)

	return result, nil
}

// ValidateTools reports per-binary availability for every registered
// adapter. Used by the validate command.
func (e *Engine) ValidateTools() map[string][]core.BinaryStatus {
	return e.bus.ValidateDependencies()
}

func (e *Engine) writeReport(result *types.ScanResult) error {
	reportDir := filepath.Join(e.DataDir(), "reports")
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return fmt.Errorf("failed to create report dir: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	path := filepath.Join(reportDir, result.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func writeRawCapture(log *logger.Logger, dir, taskID string, stdout, stderr []byte) {
	if err := os.WriteFile(filepath.Join(dir, taskID+".stdout"), stdout, 0o644); err != nil {
		log.Warnw("Failed to persist raw stdout", "task", taskID, "error", err)
	}
	if err := os.WriteFile(filepath.Join(dir, taskID+".stderr"), stderr, 0o644); err != nil {
		log.Warnw("Failed to persist raw stderr", "task", taskID, "error", err)
	}
}
