// Package rootshell drives the privileged command interpreter (su by default).
//
// A Session writes newline-terminated commands to the shell's stdin, flushing
// after each one, then sends the exit directive, waits for the shell to
// terminate and drains its stderr. Run scopes a Session to a single call: the
// input stream, the diagnostic stream and the process handle are released
// exactly once on every path out of the callback.
//
// Usage:
//
//	err := rootshell.Run(ctx, spawner, logger, func(s *rootshell.Session) error {
//		if err := s.Exit(); err != nil {
//			return err
//		}
//		_, err := s.Wait()
//		return err
//	})
package rootshell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// ExitDirective terminates the privileged shell session.
const ExitDirective = "exit"

// Fault kinds surfaced by a Session. Callers test them with errors.Is.
var (
	ErrSpawn = errors.New("spawn privileged shell")
	ErrIO    = errors.New("privileged shell i/o")
	ErrWait  = errors.New("wait for privileged shell")
)

// Process is a running privileged interpreter. Implementations own one
// input stream bound to the child's stdin and one diagnostic stream bound to
// its stderr.
type Process interface {
	// Stdin returns the write side of the child's stdin.
	Stdin() io.WriteCloser
	// Stderr returns the read side of the child's stderr. It reaches EOF once
	// the child has exited and closed the stream.
	Stderr() io.ReadCloser
	// Wait blocks until the child terminates and returns its exit code.
	// A non-zero exit is reported through the code, not the error.
	Wait() (int, error)
	// Kill destroys the child. It is a no-op once the child has been reaped.
	Kill() error
}

// Spawner launches the privileged interpreter.
type Spawner interface {
	Spawn(ctx context.Context) (Process, error)
}

// SpawnerFunc adapts a function to the Spawner interface.
type SpawnerFunc func(ctx context.Context) (Process, error)

// Spawn calls f(ctx).
func (f SpawnerFunc) Spawn(ctx context.Context) (Process, error) {
	return f(ctx)
}

// Session is one conversation with a privileged shell. It is owned by the
// goroutine that started it and must not be shared.
type Session struct {
	proc        Process
	stdin       *bufio.Writer
	logger      *slog.Logger
	release     sync.Once
	inputClosed bool
}

// Start spawns the interpreter and wraps it in a Session. The caller must
// call Release; prefer Run, which does so unconditionally.
func Start(ctx context.Context, spawner Spawner, logger *slog.Logger) (*Session, error) {
	proc, err := spawner.Spawn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	return &Session{
		proc:   proc,
		stdin:  bufio.NewWriter(proc.Stdin()),
		logger: logger,
	}, nil
}

// Run starts a Session, passes it to fn and releases it when fn returns or
// panics. The error from fn is returned unchanged.
func Run(ctx context.Context, spawner Spawner, logger *slog.Logger, fn func(*Session) error) error {
	s, err := Start(ctx, spawner, logger)
	if err != nil {
		return err
	}
	defer s.Release()
	return fn(s)
}

// WriteLine writes line followed by a newline as UTF-8 and flushes it so the
// interpreter sees the command immediately.
func (s *Session) WriteLine(line string) error {
	if _, err := s.stdin.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("%w: write command: %w", ErrIO, err)
	}
	if err := s.stdin.Flush(); err != nil {
		return fmt.Errorf("%w: flush command: %w", ErrIO, err)
	}
	return nil
}

// Exit writes and flushes the exit directive.
func (s *Session) Exit() error {
	return s.WriteLine(ExitDirective)
}

// CloseInput closes the shell's stdin so it sees end-of-input even if it
// ignores the exit directive. Release skips an input already closed here.
func (s *Session) CloseInput() error {
	if s.inputClosed {
		return nil
	}
	s.inputClosed = true
	if err := s.proc.Stdin().Close(); err != nil {
		return fmt.Errorf("%w: close input: %w", ErrIO, err)
	}
	return nil
}

// Wait blocks until the interpreter terminates and returns its exit code.
func (s *Session) Wait() (int, error) {
	code, err := s.proc.Wait()
	if err != nil {
		return code, fmt.Errorf("%w: %w", ErrWait, err)
	}
	return code, nil
}

// ReadAllDiagnostics reads the diagnostic stream to end-of-stream and joins
// its lines without separators. A line ends at "\n", "\r\n" or a lone "\r".
// Call it after Wait.
func (s *Session) ReadAllDiagnostics() (string, error) {
	data, err := io.ReadAll(s.proc.Stderr())
	joined := eolStripper.Replace(string(data))
	if err != nil {
		return joined, fmt.Errorf("%w: read diagnostics: %w", ErrIO, err)
	}
	return joined, nil
}

// Release closes both streams and destroys the process. Only the first call
// has any effect. Close failures are logged and otherwise ignored.
func (s *Session) Release() {
	s.release.Do(func() {
		if !s.inputClosed {
			if err := s.proc.Stdin().Close(); err != nil {
				s.logger.Debug("close shell stdin", slog.String("error", err.Error()))
			}
		}
		if err := s.proc.Stderr().Close(); err != nil {
			s.logger.Debug("close shell stderr", slog.String("error", err.Error()))
		}
		if err := s.proc.Kill(); err != nil {
			s.logger.Debug("destroy shell process", slog.String("error", err.Error()))
		}
	})
}

// Kind names the fault class of err for logging: "spawn", "io", "wait",
// "canceled" or "unknown".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrSpawn):
		return "spawn"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrWait):
		return "wait"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}

// eolStripper removes line terminators so the lines join back to back.
var eolStripper = strings.NewReplacer("\r", "", "\n", "")
