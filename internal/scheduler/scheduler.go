// Package scheduler drives layered, concurrent execution of a workflow
// DAG: it validates the graph, runs each layer through the subprocess
// pool, propagates failures to dependents, and aggregates normalized
// results into a single ScanResult.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/CodeMonkeyCybersecurity/neosec/internal/bus"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/core"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/logger"
	"github.com/CodeMonkeyCybersecurity/neosec/pkg/types"
)

// DefaultGlobalTimeout caps a run when neither the workflow nor the
// options specify one.
const DefaultGlobalTimeout = 1 * time.Hour

// Options tune a scheduler independently of any single workflow.
type Options struct {
	// GlobalTimeout applies when the workflow spec carries none.
	GlobalTimeout time.Duration

	// ToolTimeouts are per-tool defaults; a task override wins over
	// these, these win over the workflow global.
	ToolTimeouts map[string]time.Duration

	// RawOutput, when set, receives each task's captured streams before
	// parsing. Used by the orchestrator to persist forensics copies.
	RawOutput func(taskID string, stdout, stderr []byte)

	// RunID, when set, becomes the ScanResult id. A fresh UUID is
	// generated otherwise.
	RunID string
}

type Scheduler struct {
	bus    core.Bus
	pool   core.Pool
	opts   Options
	logger *logger.Logger
}

func New(b core.Bus, pool core.Pool, log *logger.Logger, opts Options) *Scheduler {
	if opts.GlobalTimeout <= 0 {
		opts.GlobalTimeout = DefaultGlobalTimeout
	}
	return &Scheduler{
		bus:    b,
		pool:   pool,
		opts:   opts,
		logger: log.WithComponent("scheduler"),
	}
}

// run-internal per-task bookkeeping. The state table is owned exclusively
// by the scheduler; all access goes through the run mutex.
type taskNode struct {
	spec   *types.TaskSpec
	state  types.TaskState
	result types.TaskResult
}

type run struct {
	mu     sync.Mutex
	nodes  map[string]*taskNode
	assets types.Asset
	vulns  []types.Vulnerability
}

// Run executes the workflow against defaultTarget and returns the
// aggregated result. Validation errors reject the run before any binary
// is spawned.
func (s *Scheduler) Run(ctx context.Context, spec *types.WorkflowSpec, defaultTarget string) (*types.ScanResult, error) {
	layers, err := buildLayers(spec)
	if err != nil {
		return nil, err
	}
	if err := s.validateTools(spec); err != nil {
		return nil, err
	}

	globalTimeout := spec.GlobalTimeout
	if globalTimeout <= 0 {
		globalTimeout = s.opts.GlobalTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, globalTimeout)
	defer cancel()

	st := &run{nodes: make(map[string]*taskNode, len(spec.Tasks))}
	for i := range spec.Tasks {
		t := &spec.Tasks[i]
		st.nodes[t.ID] = &taskNode{
			spec:  t,
			state: types.TaskPending,
			result: types.TaskResult{
				TaskID: t.ID,
				Tool:   t.Tool,
				State:  types.TaskPending,
			},
		}
	}

	startedAt := time.Now()
	s.logger.Infow("Workflow run starting",
		"workflow", spec.Name,
		"target", defaultTarget,
		"tasks", len(spec.Tasks),
		"layers", len(layers),
		"global_timeout", globalTimeout,
	)

	for i, layer := range layers {
		if runCtx.Err() != nil {
			break
		}

		runnable := s.collectRunnable(st, layer)
		if len(runnable) == 0 {
			continue
		}

		s.logger.Debugw("Executing layer",
			"workflow", spec.Name,
			"layer", i,
			"tasks", len(runnable),
		)

		g, gCtx := errgroup.WithContext(runCtx)
		for _, id := range runnable {
			id := id
			g.Go(func() error {
				s.executeTask(gCtx, st, spec, id, defaultTarget)
				return nil
			})
		}
		// Task errors become task states, never group errors.
		_ = g.Wait()

		s.propagateSkips(st, spec)
	}

	s.finalizePending(st, runCtx)

	result := s.collect(st, spec, defaultTarget, startedAt, ctx)

	s.logger.Infow("Workflow run finished",
		"workflow", spec.Name,
		"target", defaultTarget,
		"status", result.Status,
		"duration_ms", result.CompletedAt.Sub(result.StartedAt).Milliseconds(),
		"vulnerabilities", len(result.Vulnerabilities),
	)

	return result, nil
}

// validateTools checks that every referenced tool has a registered adapter
// whose binaries resolve. Fatal before any task executes.
func (s *Scheduler) validateTools(spec *types.WorkflowSpec) error {
	required := make(map[string]bool)
	for _, t := range spec.Tasks {
		required[t.Tool] = true
	}

	deps := s.bus.ValidateDependencies()
	for tool := range required {
		if _, err := s.bus.Adapter(tool); err != nil {
			return err
		}
		for _, status := range deps[tool] {
			if !status.Available {
				return &bus.BinaryMissingError{Tool: tool, Binary: status.Binary}
			}
		}
	}
	return nil
}

// collectRunnable returns the layer's tasks that are still Pending with
// every dependency Succeeded, transitioning them to Ready.
func (s *Scheduler) collectRunnable(st *run, layer []string) []string {
	st.mu.Lock()
	defer st.mu.Unlock()

	var out []string
	for _, id := range layer {
		node := st.nodes[id]
		if node.state != types.TaskPending {
			continue
		}
		ready := true
		for _, dep := range node.spec.DependsOn {
			if st.nodes[dep].state != types.TaskSucceeded {
				ready = false
				break
			}
		}
		if ready {
			node.state = types.TaskReady
			out = append(out, id)
		}
	}
	return out
}

func (s *Scheduler) executeTask(ctx context.Context, st *run, spec *types.WorkflowSpec, id, defaultTarget string) {
	node := st.nodes[id]
	task := node.spec

	target := task.Target
	if target == "" {
		target = defaultTarget
	}

	s.transition(st, id, types.TaskRunning)
	s.bus.OnTaskStart(id)

	startedAt := time.Now()
	finish := func(state types.TaskState, exitCode int, truncated bool, err error) {
		st.mu.Lock()
		node.state = state
		node.result.State = state
		node.result.StartedAt = startedAt
		node.result.CompletedAt = time.Now()
		node.result.Duration = node.result.CompletedAt.Sub(startedAt)
		node.result.ExitCode = exitCode
		node.result.Truncated = truncated
		if err != nil {
			node.result.Error = err.Error()
		}
		st.mu.Unlock()

		s.bus.OnTaskComplete(id, state)
	}

	argv, err := s.bus.BuildCommand(task.Tool, target, task.Options)
	if err != nil {
		s.logger.LogError(ctx, err, "scheduler.build_command", "task", id, "tool", task.Tool)
		finish(types.TaskFailed, -1, false, err)
		return
	}

	outcome := s.pool.Run(ctx, core.Command{
		Argv:    argv,
		Timeout: s.taskTimeout(task),
	})

	if s.opts.RawOutput != nil {
		s.opts.RawOutput(id, outcome.Stdout, outcome.Stderr)
	}

	switch outcome.Status {
	case core.StatusTimedOut:
		finish(types.TaskTimedOut, outcome.ExitCode, outcome.Truncated,
			fmt.Errorf("tool %s timed out after %s", task.Tool, outcome.Duration.Round(time.Millisecond)))
		return
	case core.StatusCancelled:
		finish(types.TaskCancelled, outcome.ExitCode, outcome.Truncated, errors.New("run cancelled"))
		return
	case core.StatusSpawnFailed:
		finish(types.TaskFailed, outcome.ExitCode, false,
			fmt.Errorf("failed to spawn %s: %s", task.Tool, outcome.Stderr))
		return
	}

	if outcome.ExitCode != 0 {
		finish(types.TaskFailed, outcome.ExitCode, outcome.Truncated,
			fmt.Errorf("tool %s exited with code %d", task.Tool, outcome.ExitCode))
		return
	}

	parsed, err := s.bus.ParseOutput(task.Tool, outcome.Stdout, outcome.Stderr, "")
	if err != nil {
		s.logger.LogError(ctx, err, "scheduler.parse_output", "task", id, "tool", task.Tool)
		finish(types.TaskFailed, outcome.ExitCode, outcome.Truncated, err)
		return
	}

	if parsed != nil {
		st.mu.Lock()
		st.assets.Merge(parsed.Assets)
		st.vulns = append(st.vulns, parsed.Vulnerabilities...)
		st.mu.Unlock()
	}

	finish(types.TaskSucceeded, outcome.ExitCode, outcome.Truncated, nil)
}

func (s *Scheduler) transition(st *run, id string, state types.TaskState) {
	st.mu.Lock()
	st.nodes[id].state = state
	st.nodes[id].result.State = state
	st.mu.Unlock()
}

// taskTimeout applies the precedence task override > tool default >
// workflow global (the global is the run context's deadline).
func (s *Scheduler) taskTimeout(task *types.TaskSpec) time.Duration {
	if task.Timeout > 0 {
		return task.Timeout
	}
	if d, ok := s.opts.ToolTimeouts[task.Tool]; ok && d > 0 {
		return d
	}
	return 0
}

// propagateSkips marks every not-yet-scheduled transitive dependent of a
// non-Succeeded terminal task as Skipped. Independent subgraphs continue.
func (s *Scheduler) propagateSkips(st *run, spec *types.WorkflowSpec) {
	st.mu.Lock()
	defer st.mu.Unlock()

	for id, node := range st.nodes {
		if !node.state.Terminal() || node.state == types.TaskSucceeded || node.state == types.TaskSkipped {
			continue
		}
		for _, dep := range transitiveDependents(spec, id) {
			depNode := st.nodes[dep]
			if depNode.state == types.TaskPending || depNode.state == types.TaskReady {
				depNode.state = types.TaskSkipped
				depNode.result.State = types.TaskSkipped
				s.logger.Debugw("Task skipped",
					"task", dep,
					"caused_by", id,
					"cause_state", node.state,
				)
			}
		}
	}
}

// finalizePending marks everything still non-terminal as Cancelled. This
// only happens when the run context expired or was cancelled.
func (s *Scheduler) finalizePending(st *run, runCtx context.Context) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if runCtx.Err() == nil {
		return
	}
	for _, node := range st.nodes {
		if !node.state.Terminal() {
			node.state = types.TaskCancelled
			node.result.State = types.TaskCancelled
			node.result.Error = "run cancelled"
		}
	}
}

func (s *Scheduler) collect(st *run, spec *types.WorkflowSpec, target string, startedAt time.Time, parent context.Context) *types.ScanResult {
	st.mu.Lock()
	defer st.mu.Unlock()

	runID := s.opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	result := &types.ScanResult{
		ID:              runID,
		WorkflowName:    spec.Name,
		Target:          target,
		StartedAt:       startedAt,
		CompletedAt:     time.Now(),
		Assets:          st.assets,
		Vulnerabilities: st.vulns,
	}

	allSucceeded := true
	for _, t := range spec.Tasks {
		node := st.nodes[t.ID]
		result.Tasks = append(result.Tasks, node.result)
		if node.state != types.TaskSucceeded {
			allSucceeded = false
		}
	}

	switch {
	case parent.Err() != nil:
		result.Status = types.RunCancelled
	case allSucceeded:
		result.Status = types.RunSucceeded
	default:
		result.Status = types.RunPartialFailure
	}
	return result
}
