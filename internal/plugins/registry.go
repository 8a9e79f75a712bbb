// Package plugins wires the shipped tool adapters into an extension bus.
package plugins

import (
	"fmt"
	"time"

	"github.com/CodeMonkeyCybersecurity/neosec/internal/bus"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/config"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/plugins/httpx"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/plugins/nmap"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/plugins/nuclei"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/plugins/subfinder"
)

// RegisterDefaultAdapters registers every enabled shipped adapter.
// Explicitly configured binary paths are pinned on the bus first so they
// win over PATH lookup.
func RegisterDefaultAdapters(b *bus.Bus, tools config.Tools) error {
	// Registration order is stable; slice, not map.
	entries := []struct {
		name    string
		cfg     config.ToolConfig
		factory func() error
	}{
		{"nmap", tools.Nmap, func() error { return b.Register(nmap.New(b)) }},
		{"httpx", tools.HTTPX, func() error { return b.Register(httpx.New(b)) }},
		{"nuclei", tools.Nuclei, func() error { return b.Register(nuclei.New(b)) }},
		{"subfinder", tools.Subfinder, func() error { return b.Register(subfinder.New(b)) }},
	}

	for _, entry := range entries {
		if !entry.cfg.Enabled {
			continue
		}
		if entry.cfg.BinaryPath != "" {
			b.SetBinaryPath(entry.name, entry.cfg.BinaryPath)
		}
		if err := entry.factory(); err != nil {
			return fmt.Errorf("failed to register %s adapter: %w", entry.name, err)
		}
	}
	return nil
}

// ToolTimeouts extracts the per-tool default timeouts the scheduler uses
// when a task carries no override.
func ToolTimeouts(tools config.Tools) map[string]time.Duration {
	return map[string]time.Duration{
		"nmap":      tools.Nmap.Timeout,
		"httpx":     tools.HTTPX.Timeout,
		"nuclei":    tools.Nuclei.Timeout,
		"subfinder": tools.Subfinder.Timeout,
	}
}
