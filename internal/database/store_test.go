package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/neosec/internal/config"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/core"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/logger"
	"github.com/CodeMonkeyCybersecurity/neosec/pkg/types"
)

func newTestStore(t *testing.T) core.ResultStore {
	t.Helper()
	store, err := NewStore(config.Database{
		Driver:         "sqlite3",
		DSN:            ":memory:",
		MaxConnections: 1,
	}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleResult() *types.ScanResult {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	return &types.ScanResult{
		ID:           "run-1",
		WorkflowName: "full-recon",
		Target:       "example.com",
		Status:       types.RunSucceeded,
		StartedAt:    now,
		CompletedAt:  now.Add(2 * time.Minute),
		Tasks: []types.TaskResult{
			{TaskID: "ports", Tool: "nmap", State: types.TaskSucceeded, ExitCode: 0},
		},
		Assets: types.Asset{
			Hosts: []types.Host{{
				Address: "10.0.0.5",
				Ports:   []types.Port{{Number: 22, Protocol: types.ProtocolTCP, State: types.PortStateOpen}},
			}},
		},
		Vulnerabilities: []types.Vulnerability{
			{
				ID:       "nuclei:CVE-2021-44228:https://example.com",
				Name:     "Log4j RCE",
				Severity: types.SeverityCritical,
				Affected: "https://example.com",
				Tool:     "nuclei",
				CVSS: &types.CVSS{
					Vector:    "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:H/I:H/A:H",
					BaseScore: 10.0,
					Version:   "3.1",
				},
				CVEs:         []string{"CVE-2021-44228"},
				DiscoveredAt: now,
			},
			{
				ID:           "nmap:10.0.0.5:23/tcp",
				Name:         "High-risk service telnet exposed",
				Severity:     types.SeverityHigh,
				Affected:     "10.0.0.5",
				Tool:         "nmap",
				DiscoveredAt: now,
			},
		},
	}
}

func TestSaveAndGetScan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveScan(ctx, sampleResult()))

	got, err := store.GetScan(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, "full-recon", got.WorkflowName)
	assert.Equal(t, types.RunSucceeded, got.Status)
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, types.TaskSucceeded, got.Tasks[0].State)
	require.Len(t, got.Assets.Hosts, 1)
	assert.Len(t, got.Assets.Hosts[0].Ports, 1)

	require.Len(t, got.Vulnerabilities, 2)
	for _, v := range got.Vulnerabilities {
		if v.Tool == "nuclei" {
			require.NotNil(t, v.CVSS)
			assert.Equal(t, 10.0, v.CVSS.BaseScore)
			assert.Equal(t, []string{"CVE-2021-44228"}, v.CVEs)
		} else {
			assert.Nil(t, v.CVSS)
		}
	}
}

func TestGetScanMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetScan(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestListScans(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := sampleResult()
	second := sampleResult()
	second.ID = "run-2"
	second.StartedAt = second.StartedAt.Add(1 * time.Hour)
	second.Vulnerabilities = nil

	require.NoError(t, store.SaveScan(ctx, first))
	require.NoError(t, store.SaveScan(ctx, second))

	scans, err := store.ListScans(ctx, 10)
	require.NoError(t, err)
	require.Len(t, scans, 2)
	// Most recent first.
	assert.Equal(t, "run-2", scans[0].ID)
}

func TestGetVulnerabilitiesBySeverity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveScan(ctx, sampleResult()))

	critical, err := store.GetVulnerabilitiesBySeverity(ctx, types.SeverityCritical)
	require.NoError(t, err)
	require.Len(t, critical, 1)
	assert.Equal(t, "Log4j RCE", critical[0].Name)

	low, err := store.GetVulnerabilitiesBySeverity(ctx, types.SeverityLow)
	require.NoError(t, err)
	assert.Empty(t, low)
}
