// Package executor launches external tool binaries without shell
// interpretation, drains their output concurrently, and enforces
// wall-clock timeouts. On timeout or cancellation the whole process group
// is terminated before an outcome is returned; on a normal exit only the
// direct child is waited for and the group is not signalled.
package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/CodeMonkeyCybersecurity/neosec/internal/config"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/core"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/logger"
)

const (
	// DefaultOutputLimit caps each captured stream at 64 MiB.
	DefaultOutputLimit = 64 * 1024 * 1024

	// DefaultGracePeriod is the window between SIGTERM and SIGKILL.
	DefaultGracePeriod = 2 * time.Second
)

type Runner struct {
	grace       time.Duration
	stdoutLimit int64
	stderrLimit int64
	logger      *logger.Logger
}

func NewRunner(cfg config.Executor, log *logger.Logger) *Runner {
	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	stdoutLimit := cfg.StdoutLimit
	if stdoutLimit <= 0 {
		stdoutLimit = DefaultOutputLimit
	}
	stderrLimit := cfg.StderrLimit
	if stderrLimit <= 0 {
		stderrLimit = DefaultOutputLimit
	}
	return &Runner{
		grace:       grace,
		stdoutLimit: stdoutLimit,
		stderrLimit: stderrLimit,
		logger:      log.WithComponent("executor"),
	}
}

// Run spawns cmd.Argv as a direct argv vector in its own process group,
// drains stdout and stderr concurrently up to their caps, and enforces
// cmd.Timeout. On timeout or context cancellation the entire group gets a
// graceful terminate, a grace period, then a forced kill. Every child is
// reaped before Run returns; partial output is always preserved.
func (r *Runner) Run(ctx context.Context, cmd core.Command) core.ExecutionOutcome {
	start := time.Now()

	if len(cmd.Argv) == 0 {
		return core.ExecutionOutcome{
			Status:   core.StatusSpawnFailed,
			ExitCode: -1,
			Stderr:   []byte("empty command"),
			Duration: time.Since(start),
		}
	}

	c := exec.Command(cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		env := os.Environ()
		for k, v := range cmd.Env {
			env = append(env, k+"="+v)
		}
		c.Env = env
	}
	setProcessGroup(c)

	stdoutLimit := cmd.StdoutLimit
	if stdoutLimit <= 0 {
		stdoutLimit = r.stdoutLimit
	}
	stderrLimit := cmd.StderrLimit
	if stderrLimit <= 0 {
		stderrLimit = r.stderrLimit
	}
	stdout := newLimitedBuffer(stdoutLimit)
	stderr := newLimitedBuffer(stderrLimit)
	c.Stdout = stdout
	c.Stderr = stderr

	if err := c.Start(); err != nil {
		r.logger.Errorw("Failed to spawn process",
			"binary", cmd.Argv[0],
			"error", err,
		)
		return core.ExecutionOutcome{
			Status:   core.StatusSpawnFailed,
			ExitCode: -1,
			Stderr:   []byte(fmt.Sprintf("spawn failed: %v", err)),
			Duration: time.Since(start),
		}
	}

	pid := c.Process.Pid
	r.logger.Debugw("Process started",
		"binary", cmd.Argv[0],
		"pid", pid,
		"timeout", cmd.Timeout,
	)

	// c.Stdout/c.Stderr are in-process writers, so Wait owns the pipe
	// copy goroutines and returns only after both streams hit EOF.
	waitErr := make(chan error, 1)
	go func() {
		waitErr <- c.Wait()
	}()

	var timeoutC <-chan time.Time
	if cmd.Timeout > 0 {
		timer := time.NewTimer(cmd.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	status := core.StatusCompleted
	var err error

	select {
	case err = <-waitErr:
	case <-timeoutC:
		status = core.StatusTimedOut
		err = r.killGroup(pid, waitErr)
	case <-ctx.Done():
		status = core.StatusCancelled
		err = r.killGroup(pid, waitErr)
	}

	outcome := core.ExecutionOutcome{
		Status:    status,
		ExitCode:  exitCode(c, err),
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		Duration:  time.Since(start),
		Truncated: stdout.Truncated() || stderr.Truncated(),
	}

	r.logger.Debugw("Process finished",
		"binary", cmd.Argv[0],
		"pid", pid,
		"status", outcome.Status,
		"exit_code", outcome.ExitCode,
		"duration_ms", outcome.Duration.Milliseconds(),
		"stdout_bytes", len(outcome.Stdout),
		"stderr_bytes", len(outcome.Stderr),
		"truncated", outcome.Truncated,
	)

	return outcome
}

// killGroup signals the whole process group: graceful terminate, grace
// period, forced kill. It consumes waitErr so the child is always reaped.
func (r *Runner) killGroup(pid int, waitErr chan error) error {
	terminateGroup(pid)

	graceTimer := time.NewTimer(r.grace)
	defer graceTimer.Stop()

	select {
	case err := <-waitErr:
		return err
	case <-graceTimer.C:
	}

	forceKillGroup(pid)
	return <-waitErr
}

func exitCode(c *exec.Cmd, err error) int {
	if c.ProcessState != nil {
		return c.ProcessState.ExitCode()
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
	}
	return -1
}

// limitedBuffer captures up to max bytes and silently discards the rest,
// so a chatty child keeps draining instead of blocking on a full pipe.
type limitedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	max       int64
	truncated bool
}

func newLimitedBuffer(max int64) *limitedBuffer {
	return &limitedBuffer{max: max}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.max - int64(len(b.buf))
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		b.buf = append(b.buf, p[:remaining]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *limitedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf
}

func (b *limitedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
