// executor.go runs the device's helper tools (am, getprop, cmd) with a timeout.
// Commands are exec'd directly from argv, never through a shell, so intent
// URIs and package names reach the tool exactly as given. Each command runs
// in its own process group, which is killed as a whole on timeout.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// DefaultTimeout bounds a single helper-tool invocation.
const DefaultTimeout = 15 * time.Second

// Executor runs helper tools with timeout and output capture.
type Executor struct {
	// Timeout applies to every Run. Default: DefaultTimeout.
	Timeout time.Duration

	// tools resolves and allowlists tool names. Nil means any name is run
	// as given.
	tools *ToolCache
}

// New creates an Executor restricted to the default tool allowlist.
func New() *Executor {
	return &Executor{
		Timeout: DefaultTimeout,
		tools:   NewToolCache(DefaultTools...),
	}
}

// NewUnrestricted creates an Executor that runs any binary
// found through PATH.
func NewUnrestricted() *Executor {
	return &Executor{Timeout: DefaultTimeout}
}

// Run executes name with args and waits for it to finish.
// A non-zero exit is reported in Result.ExitCode, not as an error. An error
// is returned only when the tool cannot be resolved or started.
func (e *Executor) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	path := name
	if e.tools != nil {
		resolved, err := e.tools.Lookup(name)
		if err != nil {
			return nil, err
		}
		path = resolved
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, path, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	result := &Result{StartedAt: time.Now()}

	err := cmd.Run()
	result.Duration = time.Since(result.StartedAt)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			result.ExitCode = -1
			result.TimedOut = true
			return result, nil
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}

		return nil, fmt.Errorf("run %s: %w", name, err)
	}

	result.ExitCode = 0
	return result, nil
}
