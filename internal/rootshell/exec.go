package rootshell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// DefaultShell is the privileged interpreter used when none is configured.
const DefaultShell = "su"

// DefaultWaitDelay bounds how long Wait keeps copying stderr after the shell
// exits while a background child still holds the stream open.
const DefaultWaitDelay = 5 * time.Second

// ExecSpawner launches the interpreter as a child process with os/exec.
type ExecSpawner struct {
	// Shell is the interpreter binary, resolved through PATH. Default: su.
	Shell string
	// Args are passed to the interpreter verbatim.
	Args []string
	// Env replaces the child's environment when non-nil.
	Env []string
	// WaitDelay overrides DefaultWaitDelay when positive. Diagnostics written
	// after it expires are lost; the exit code is still reported.
	WaitDelay time.Duration
}

// NewExecSpawner returns a spawner for shell with the given arguments.
func NewExecSpawner(shell string, args ...string) *ExecSpawner {
	return &ExecSpawner{Shell: shell, Args: args}
}

// Spawn starts the interpreter in its own process group. Stderr is collected
// by the exec copier so the child never blocks on a full pipe while the
// caller is still waiting for it to exit.
func (s *ExecSpawner) Spawn(ctx context.Context) (Process, error) {
	shell := s.Shell
	if shell == "" {
		shell = DefaultShell
	}

	cmd := exec.CommandContext(ctx, shell, s.Args...)
	cmd.Env = s.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = DefaultWaitDelay
	if s.WaitDelay > 0 {
		cmd.WaitDelay = s.WaitDelay
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}

	p := &execProcess{
		ctx:    ctx,
		cmd:    cmd,
		stdin:  stdin,
		exited: make(chan struct{}),
	}
	p.stderr = &stderrStream{p: p}
	cmd.Stderr = &p.diag

	if err := cmd.Start(); err != nil {
		// Start closes the pipes it created on failure.
		return nil, err
	}
	return p, nil
}

// execProcess is a Process backed by *exec.Cmd.
type execProcess struct {
	ctx    context.Context
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *stderrStream
	diag   bytes.Buffer

	waitOnce sync.Once
	waitErr  error
	exited   chan struct{}
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }

func (p *execProcess) Stderr() io.ReadCloser { return p.stderr }

func (p *execProcess) Wait() (int, error) {
	p.reap()
	err := p.waitErr
	if err == nil {
		return 0, nil
	}
	if ctxErr := p.ctx.Err(); ctxErr != nil {
		return -1, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	// The shell has exited but a child it left behind still holds stderr.
	if errors.Is(err, exec.ErrWaitDelay) && p.cmd.ProcessState != nil {
		return p.cmd.ProcessState.ExitCode(), nil
	}
	return -1, err
}

// Kill destroys the process group if the shell has not been reaped yet and
// then reaps it, so no zombie outlives the session.
func (p *execProcess) Kill() error {
	select {
	case <-p.exited:
		return nil
	default:
	}
	var err error
	if p.cmd.Process != nil {
		err = syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			err = nil
		}
	}
	p.reap()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *execProcess) reap() {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		close(p.exited)
	})
}

// stderrStream blocks readers until the shell has exited and been reaped, at
// which point the captured output is complete and reads drain it to EOF.
type stderrStream struct {
	p *execProcess
}

func (s *stderrStream) Read(b []byte) (int, error) {
	s.p.reap()
	return s.p.diag.Read(b)
}

func (s *stderrStream) Close() error { return nil }
