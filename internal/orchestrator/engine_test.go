package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/neosec/internal/config"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/logger"
)

func TestNewRegistersDefaultAdapters(t *testing.T) {
	engine, err := New(config.DefaultConfig(), nil, logger.NewNop())
	require.NoError(t, err)

	descriptors := engine.Bus().Descriptors()
	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"nmap", "httpx", "nuclei", "subfinder"}, names)
}

func TestNewSkipsDisabledAdapters(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Tools.Nuclei.Enabled = false

	engine, err := New(cfg, nil, logger.NewNop())
	require.NoError(t, err)

	for _, d := range engine.Bus().Descriptors() {
		assert.NotEqual(t, "nuclei", d.Name)
	}
}

func TestDataDirEnvOverride(t *testing.T) {
	engine, err := New(config.DefaultConfig(), nil, logger.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "data", engine.DataDir())

	t.Setenv(DataDirEnv, "/tmp/neosec-test")
	assert.Equal(t, "/tmp/neosec-test", engine.DataDir())
}

func TestValidateToolsCoversEveryAdapter(t *testing.T) {
	engine, err := New(config.DefaultConfig(), nil, logger.NewNop())
	require.NoError(t, err)

	report := engine.ValidateTools()
	for _, tool := range []string{"nmap", "httpx", "nuclei", "subfinder"} {
		assert.Contains(t, report, tool)
	}
}

func TestRunRejectsInvalidTarget(t *testing.T) {
	engine, err := New(config.DefaultConfig(), nil, logger.NewNop())
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), nil, "example.com; rm -rf /")
	assert.Error(t, err)
}
