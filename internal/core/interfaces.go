package core

import (
	"context"
	"time"

	"github.com/CodeMonkeyCybersecurity/neosec/pkg/types"
)

// Adapter is the contract every tool plugin satisfies. Adapters are pure
// translators: they build argv vectors and parse captured output. They must
// not perform I/O, spawn processes, or share mutable state.
type Adapter interface {
	Name() string
	Category() types.ToolCategory
	Describe() types.ToolDescriptor
	RequiredBinaries() []string

	// BuildCommand turns (target, options) into an argv vector with the
	// resolved binary path as token 0. Every dynamic option value must be
	// validated against the adapter's allowlist before it is placed.
	BuildCommand(target string, options map[string]types.OptionValue) ([]string, error)

	// ParseOutput translates raw captured output into the normalized model.
	// Parsing is pure and deterministic per input.
	ParseOutput(stdout, stderr []byte, formatHint string) (*types.ParsedResult, error)
}

// Listener receives broadcast lifecycle events. Adapters may implement it
// in addition to Adapter; other components (persistence, notification) may
// register as bare listeners.
type Listener interface {
	OnScanStart(workflowName, target string)
	OnTaskStart(taskID string)
	OnTaskComplete(taskID string, state types.TaskState)
	OnScanComplete(result *types.ScanResult)
}

// BinaryStatus is one adapter binary's dependency-check result.
type BinaryStatus struct {
	Binary       string
	Available    bool
	ResolvedPath string
}

// Bus routes hook calls between the core and registered adapters.
type Bus interface {
	Register(adapter Adapter) error
	Subscribe(listener Listener)
	Adapter(tool string) (Adapter, error)
	Descriptors() []types.ToolDescriptor
	ValidateDependencies() map[string][]BinaryStatus

	BuildCommand(tool, target string, options map[string]types.OptionValue) ([]string, error)
	ParseOutput(tool string, stdout, stderr []byte, formatHint string) (*types.ParsedResult, error)

	OnScanStart(workflowName, target string)
	OnTaskStart(taskID string)
	OnTaskComplete(taskID string, state types.TaskState)
	OnScanComplete(result *types.ScanResult)
}

// ExecutionStatus is the terminal classification of one subprocess run.
type ExecutionStatus string

const (
	StatusCompleted   ExecutionStatus = "completed"
	StatusTimedOut    ExecutionStatus = "timed_out"
	StatusCancelled   ExecutionStatus = "cancelled"
	StatusSpawnFailed ExecutionStatus = "spawn_failed"
)

// Command describes one subprocess invocation.
type Command struct {
	Argv        []string
	Dir         string
	Env         map[string]string
	Timeout     time.Duration
	StdoutLimit int64
	StderrLimit int64
}

// ExecutionOutcome is what the executor returns for every spawn attempt,
// including killed and failed ones. Partial output is always preserved.
type ExecutionOutcome struct {
	Status    ExecutionStatus
	ExitCode  int
	Stdout    []byte
	Stderr    []byte
	Duration  time.Duration
	Truncated bool
}

func (o ExecutionOutcome) Success() bool {
	return o.Status == StatusCompleted && o.ExitCode == 0
}

// Executor runs a command with no shell interpretation and drains both pipes
// without deadlocking. On timeout or cancellation the whole process group is
// killed before the outcome is returned; on a normal exit the group is not
// signalled, so a descendant that no longer holds the output pipes can
// outlive the call.
type Executor interface {
	Run(ctx context.Context, cmd Command) ExecutionOutcome
}

// Pool bounds the number of concurrently running executors. It imposes no
// ordering between submissions.
type Pool interface {
	Run(ctx context.Context, cmd Command) ExecutionOutcome
}

// ResultStore persists completed scans and their vulnerabilities.
type ResultStore interface {
	SaveScan(ctx context.Context, result *types.ScanResult) error
	GetScan(ctx context.Context, scanID string) (*types.ScanResult, error)
	ListScans(ctx context.Context, limit int) ([]*types.ScanResult, error)
	GetVulnerabilitiesBySeverity(ctx context.Context, severity types.Severity) ([]types.Vulnerability, error)
	Close() error
}
