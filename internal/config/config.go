package config

import (
	"time"

	"github.com/CodeMonkeyCybersecurity/neosec/pkg/types"
)

type Config struct {
	Logger            Logger         `mapstructure:"logger"`
	Database          Database       `mapstructure:"database"`
	Executor          Executor       `mapstructure:"executor"`
	Scheduler         Scheduler      `mapstructure:"scheduler"`
	Output            Output         `mapstructure:"output"`
	Tools             Tools          `mapstructure:"tools"`
	SeverityThreshold types.Severity `mapstructure:"severity_threshold"`
}

type Logger struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"`
	OutputPaths []string `mapstructure:"output_paths"`
}

type Database struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type Executor struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	GracePeriod   time.Duration `mapstructure:"grace_period"`
	StdoutLimit   int64         `mapstructure:"stdout_limit"`
	StderrLimit   int64         `mapstructure:"stderr_limit"`
}

type Scheduler struct {
	GlobalTimeout time.Duration `mapstructure:"global_timeout"`
}

type Output struct {
	// DataDir is the run output root; the NEOSEC_DATA_DIR environment
	// variable overrides it.
	DataDir string `mapstructure:"data_dir"`
}

type Tools struct {
	Nmap      ToolConfig `mapstructure:"nmap"`
	HTTPX     ToolConfig `mapstructure:"httpx"`
	Nuclei    ToolConfig `mapstructure:"nuclei"`
	Subfinder ToolConfig `mapstructure:"subfinder"`
}

// ToolConfig holds the per-tool knobs shared by every adapter. An explicit
// BinaryPath wins over PATH lookup.
type ToolConfig struct {
	BinaryPath string        `mapstructure:"binary_path"`
	Enabled    bool          `mapstructure:"enabled"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ByName returns the config section for a tool name, falling back to an
// enabled zero config for tools registered outside the known set.
func (t Tools) ByName(name string) ToolConfig {
	switch name {
	case "nmap":
		return t.Nmap
	case "httpx":
		return t.HTTPX
	case "nuclei":
		return t.Nuclei
	case "subfinder":
		return t.Subfinder
	}
	return ToolConfig{Enabled: true}
}

func DefaultConfig() *Config {
	return &Config{
		Logger: Logger{
			Level:       "info",
			Format:      "console",
			OutputPaths: []string{"stdout"},
		},
		Database: Database{
			Driver:          "sqlite3",
			DSN:             "data/neosec.db",
			MaxConnections:  10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 1 * time.Hour,
		},
		Executor: Executor{
			MaxConcurrent: 5,
			GracePeriod:   2 * time.Second,
			StdoutLimit:   64 * 1024 * 1024,
			StderrLimit:   64 * 1024 * 1024,
		},
		Scheduler: Scheduler{
			GlobalTimeout: 1 * time.Hour,
		},
		Output: Output{
			DataDir: "data",
		},
		Tools: Tools{
			Nmap: ToolConfig{
				BinaryPath: "",
				Enabled:    true,
				Timeout:    30 * time.Minute,
			},
			HTTPX: ToolConfig{
				BinaryPath: "",
				Enabled:    true,
				Timeout:    10 * time.Minute,
			},
			Nuclei: ToolConfig{
				BinaryPath: "",
				Enabled:    true,
				Timeout:    30 * time.Minute,
			},
			Subfinder: ToolConfig{
				BinaryPath: "",
				Enabled:    true,
				Timeout:    10 * time.Minute,
			},
		},
		SeverityThreshold: "",
	}
}
