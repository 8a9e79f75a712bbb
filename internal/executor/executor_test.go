//go:build unix

package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/CodeMonkeyCybersecurity/neosec/internal/config"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/core"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	return NewRunner(config.Executor{GracePeriod: 500 * time.Millisecond}, logger.NewNop())
}

func mustLook(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available", name)
	}
	return path
}

func TestRunEcho(t *testing.T) {
	r := newTestRunner(t)

	outcome := r.Run(context.Background(), core.Command{
		Argv: []string{mustLook(t, "echo"), "hello", "world"},
	})

	assert.Equal(t, core.StatusCompleted, outcome.Status)
	assert.Equal(t, 0, outcome.ExitCode)
	assert.Equal(t, "hello world\n", string(outcome.Stdout))
	assert.False(t, outcome.Truncated)
}

func TestRunNonZeroExit(t *testing.T) {
	r := newTestRunner(t)

	outcome := r.Run(context.Background(), core.Command{
		Argv: []string{mustLook(t, "false")},
	})

	assert.Equal(t, core.StatusCompleted, outcome.Status)
	assert.Equal(t, 1, outcome.ExitCode)
	assert.False(t, outcome.Success())
}

func TestRunSpawnFailed(t *testing.T) {
	r := newTestRunner(t)

	outcome := r.Run(context.Background(), core.Command{
		Argv: []string{"/nonexistent/binary-xyzzy"},
	})

	assert.Equal(t, core.StatusSpawnFailed, outcome.Status)
	assert.Equal(t, -1, outcome.ExitCode)
	assert.Contains(t, string(outcome.Stderr), "spawn failed")
}

func TestRunEmptyCommand(t *testing.T) {
	r := newTestRunner(t)

	outcome := r.Run(context.Background(), core.Command{})
	assert.Equal(t, core.StatusSpawnFailed, outcome.Status)
}

// A child emitting far more than the OS pipe buffer must complete without
// deadlock even though nobody reads concurrently on the caller side.
func TestRunLargeOutputNoDeadlock(t *testing.T) {
	r := newTestRunner(t)

	// 10 MiB of zeroes.
	outcome := r.Run(context.Background(), core.Command{
		Argv:    []string{mustLook(t, "dd"), "if=/dev/zero", "bs=1024", "count=10240"},
		Timeout: 30 * time.Second,
	})

	assert.Equal(t, core.StatusCompleted, outcome.Status)
	assert.Equal(t, 0, outcome.ExitCode)
	assert.Len(t, outcome.Stdout, 10*1024*1024)
	assert.False(t, outcome.Truncated)
}

func TestRunOutputTruncatedAtCap(t *testing.T) {
	r := newTestRunner(t)

	// 256 KiB produced, 64 KiB cap: truncated, but the process still
	// completes normally.
	outcome := r.Run(context.Background(), core.Command{
		Argv:        []string{mustLook(t, "dd"), "if=/dev/zero", "bs=1024", "count=256"},
		StdoutLimit: 64 * 1024,
		Timeout:     30 * time.Second,
	})

	assert.Equal(t, core.StatusCompleted, outcome.Status)
	assert.Equal(t, 0, outcome.ExitCode)
	assert.Len(t, outcome.Stdout, 64*1024)
	assert.True(t, outcome.Truncated)
}

func TestRunTimeout(t *testing.T) {
	r := newTestRunner(t)

	start := time.Now()
	outcome := r.Run(context.Background(), core.Command{
		Argv:    []string{mustLook(t, "sleep"), "30"},
		Timeout: 200 * time.Millisecond,
	})
	elapsed := time.Since(start)

	assert.Equal(t, core.StatusTimedOut, outcome.Status)
	// Timeout plus at most the grace period, with slack for CI.
	assert.Less(t, elapsed, 5*time.Second)
}

func TestRunCancel(t *testing.T) {
	r := newTestRunner(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	outcome := r.Run(ctx, core.Command{
		Argv: []string{mustLook(t, "sleep"), "30"},
	})

	assert.Equal(t, core.StatusCancelled, outcome.Status)
	assert.Less(t, time.Since(start), 5*time.Second)
}

// Timing out a process must take its whole process tree with it,
// grandchildren included.
func TestRunTimeoutKillsProcessTree(t *testing.T) {
	pgrep, err := exec.LookPath("pgrep")
	if err != nil {
		t.Skip("pgrep not available")
	}
	shPath := mustLook(t, "sh")

	marker := fmt.Sprintf("neosec-tree-kill-%d", os.Getpid())
	script := filepath.Join(t.TempDir(), "spawner.sh")
	// The grandchild runs in a subshell whose cmdline carries the marker,
	// so pgrep -f can find any survivor.
	content := fmt.Sprintf("#!%s\n%s -c 'sleep 300 # %s' &\nsleep 300\n", shPath, shPath, marker)
	require.NoError(t, os.WriteFile(script, []byte(content), 0o755))

	r := newTestRunner(t)
	outcome := r.Run(context.Background(), core.Command{
		Argv:    []string{script},
		Timeout: 300 * time.Millisecond,
	})

	assert.Equal(t, core.StatusTimedOut, outcome.Status)

	// No descendant may survive the group kill. Poll briefly; the kill is
	// synchronous but the kernel may need a moment to reap.
	deadline := time.Now().Add(1 * time.Second)
	for {
		err := exec.Command(pgrep, "-f", marker).Run()
		if err != nil {
			break // non-zero exit: no matches left
		}
		if time.Now().After(deadline) {
			t.Fatal("descendant processes still alive after timeout kill")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestRunPartialOutputPreservedOnTimeout(t *testing.T) {
	shPath := mustLook(t, "sh")

	script := filepath.Join(t.TempDir(), "chatty.sh")
	content := fmt.Sprintf("#!%s\necho partial-output\nsleep 300\n", shPath)
	require.NoError(t, os.WriteFile(script, []byte(content), 0o755))

	r := newTestRunner(t)
	outcome := r.Run(context.Background(), core.Command{
		Argv:    []string{script},
		Timeout: 300 * time.Millisecond,
	})

	assert.Equal(t, core.StatusTimedOut, outcome.Status)
	assert.Contains(t, string(outcome.Stdout), "partial-output")
}

func TestRunEnvOverrides(t *testing.T) {
	r := newTestRunner(t)

	outcome := r.Run(context.Background(), core.Command{
		Argv: []string{mustLook(t, "env")},
		Env:  map[string]string{"NEOSEC_TEST_MARKER": "present"},
	})

	assert.Equal(t, core.StatusCompleted, outcome.Status)
	assert.Contains(t, string(outcome.Stdout), "NEOSEC_TEST_MARKER=present")
}

func TestLimitedBuffer(t *testing.T) {
	b := newLimitedBuffer(8)

	n, err := b.Write([]byte("12345"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.False(t, b.Truncated())

	n, err = b.Write([]byte("67890"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.True(t, b.Truncated())
	assert.Equal(t, "12345678", string(b.Bytes()))

	// Writes past the cap are still accepted and discarded.
	n, err = b.Write([]byte("more"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "12345678", string(b.Bytes()))
}
