// Package bus implements the extension bus: an explicit, process-scope
// registry mapping hook points to registered adapters. Lifecycle hooks
// broadcast to every listener in registration order; command construction
// and output parsing are single-responder, resolved by tool name.
package bus

import (
	"fmt"
	"os/exec"
	"sync"

	"github.com/CodeMonkeyCybersecurity/neosec/internal/core"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/logger"
	"github.com/CodeMonkeyCybersecurity/neosec/pkg/types"
)

// AdapterResolutionError reports that a single-responder hook resolved to
// zero or more than one adapter. It is a configuration error.
type AdapterResolutionError struct {
	Tool   string
	Reason string
}

func (e *AdapterResolutionError) Error() string {
	return fmt.Sprintf("adapter resolution failed for tool %q: %s", e.Tool, e.Reason)
}

// BinaryMissingError reports that an adapter's required binary could not be
// resolved. Fatal when a workflow requires the tool.
type BinaryMissingError struct {
	Tool   string
	Binary string
}

func (e *BinaryMissingError) Error() string {
	return fmt.Sprintf("tool %q requires binary %q which is not available", e.Tool, e.Binary)
}

type Bus struct {
	mu        sync.RWMutex
	adapters  []core.Adapter
	byName    map[string]core.Adapter
	listeners []core.Listener

	// binaryPaths maps binary name to an explicitly configured path.
	// An explicit path wins over PATH lookup.
	binaryPaths map[string]string

	logger *logger.Logger
}

func New(log *logger.Logger) *Bus {
	return &Bus{
		byName:      make(map[string]core.Adapter),
		binaryPaths: make(map[string]string),
		logger:      log.WithComponent("bus"),
	}
}

// SetBinaryPath pins a binary name to an explicit filesystem path, taking
// precedence over PATH resolution.
func (b *Bus) SetBinaryPath(binary, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.binaryPaths[binary] = path
}

// Register adds an adapter. Registration happens once at startup; a
// duplicate tool name is a configuration error.
func (b *Bus) Register(adapter core.Adapter) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := adapter.Name()
	if name == "" {
		return &AdapterResolutionError{Tool: name, Reason: "adapter has no name"}
	}
	if _, exists := b.byName[name]; exists {
		return &AdapterResolutionError{Tool: name, Reason: "already registered"}
	}

	b.adapters = append(b.adapters, adapter)
	b.byName[name] = adapter

	if l, ok := adapter.(core.Listener); ok {
		b.listeners = append(b.listeners, l)
	}

	b.logger.Debugw("Adapter registered",
		"tool", name,
		"category", adapter.Category(),
		"binaries", adapter.RequiredBinaries(),
	)
	return nil
}

// Subscribe registers a bare lifecycle listener that is not an adapter.
func (b *Bus) Subscribe(listener core.Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, listener)
}

// Adapter resolves the single adapter registered for a tool name.
func (b *Bus) Adapter(tool string) (core.Adapter, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	adapter, ok := b.byName[tool]
	if !ok {
		return nil, &AdapterResolutionError{Tool: tool, Reason: "no adapter registered"}
	}
	return adapter, nil
}

// Descriptors returns every registered adapter's descriptor in
// registration order.
func (b *Bus) Descriptors() []types.ToolDescriptor {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]types.ToolDescriptor, 0, len(b.adapters))
	for _, a := range b.adapters {
		out = append(out, a.Describe())
	}
	return out
}

// ResolveBinary resolves a binary name to a concrete path. Explicit
// configuration wins over PATH.
func (b *Bus) ResolveBinary(binary string) (string, bool) {
	b.mu.RLock()
	explicit := b.binaryPaths[binary]
	b.mu.RUnlock()

	if explicit != "" {
		return explicit, true
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", false
	}
	return path, true
}

// ValidateDependencies asks every adapter for its required binaries and
// resolves each one. The result maps tool name to per-binary status.
func (b *Bus) ValidateDependencies() map[string][]core.BinaryStatus {
	b.mu.RLock()
	adapters := make([]core.Adapter, len(b.adapters))
	copy(adapters, b.adapters)
	b.mu.RUnlock()

	out := make(map[string][]core.BinaryStatus, len(adapters))
	for _, a := range adapters {
		statuses := make([]core.BinaryStatus, 0, len(a.RequiredBinaries()))
		for _, bin := range a.RequiredBinaries() {
			path, ok := b.ResolveBinary(bin)
			statuses = append(statuses, core.BinaryStatus{
				Binary:       bin,
				Available:    ok,
				ResolvedPath: path,
			})
			if !ok {
				b.logger.Warnw("Required binary not found",
					"tool", a.Name(),
					"binary", bin,
				)
			}
		}
		out[a.Name()] = statuses
	}
	return out
}

// BuildCommand dispatches the single-responder build_command hook.
func (b *Bus) BuildCommand(tool, target string, options map[string]types.OptionValue) ([]string, error) {
	adapter, err := b.Adapter(tool)
	if err != nil {
		return nil, err
	}
	return adapter.BuildCommand(target, options)
}

// ParseOutput dispatches the single-responder parse_output hook.
func (b *Bus) ParseOutput(tool string, stdout, stderr []byte, formatHint string) (*types.ParsedResult, error) {
	adapter, err := b.Adapter(tool)
	if err != nil {
		return nil, err
	}
	return adapter.ParseOutput(stdout, stderr, formatHint)
}

// Broadcast hooks. A listener that panics is logged and skipped; one bad
// listener never aborts the broadcast.

func (b *Bus) OnScanStart(workflowName, target string) {
	b.broadcast("on_scan_start", func(l core.Listener) {
		l.OnScanStart(workflowName, target)
	})
}

func (b *Bus) OnTaskStart(taskID string) {
	b.broadcast("on_task_start", func(l core.Listener) {
		l.OnTaskStart(taskID)
	})
}

func (b *Bus) OnTaskComplete(taskID string, state types.TaskState) {
	b.broadcast("on_task_complete", func(l core.Listener) {
		l.OnTaskComplete(taskID, state)
	})
}

func (b *Bus) OnScanComplete(result *types.ScanResult) {
	b.broadcast("on_scan_complete", func(l core.Listener) {
		l.OnScanComplete(result)
	})
}

func (b *Bus) broadcast(hook string, call func(core.Listener)) {
	b.mu.RLock()
	listeners := make([]core.Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Errorw("Listener panicked during broadcast",
						"hook", hook,
						"panic", r,
					)
				}
			}()
			call(l)
		}()
	}
}
