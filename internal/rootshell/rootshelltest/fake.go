// Package rootshelltest provides an in-memory rootshell backend for tests.
// The fake records every command written to the shell and counts how many
// resources each spawn opened and how many were released.
package rootshelltest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/and2long/tcm/bridge/internal/rootshell"
)

// ErrClosed is returned when a fake stream is used after Close.
var ErrClosed = errors.New("rootshelltest: stream closed")

// Spawner is a configurable fake rootshell.Spawner. The zero value spawns
// shells that exit 0 with empty diagnostics.
type Spawner struct {
	// ExitCode is returned by Wait.
	ExitCode int
	// Diagnostics is served on the stderr stream.
	Diagnostics string

	// SpawnErr makes Spawn fail.
	SpawnErr error
	// WriteErr makes every stdin write fail.
	WriteErr error
	// WaitErr makes Wait fail.
	WaitErr error
	// ReadErr is returned by stderr after Diagnostics has been served.
	ReadErr error

	mu    sync.Mutex
	procs []*Process
}

// Spawn returns a new fake Process, or SpawnErr.
func (s *Spawner) Spawn(ctx context.Context) (rootshell.Process, error) {
	if s.SpawnErr != nil {
		return nil, s.SpawnErr
	}
	p := &Process{
		exitCode: s.ExitCode,
		waitErr:  s.WaitErr,
		stdin:    &stdin{writeErr: s.WriteErr},
		stderr:   &stderr{r: strings.NewReader(s.Diagnostics), readErr: s.ReadErr},
	}
	s.mu.Lock()
	s.procs = append(s.procs, p)
	s.mu.Unlock()
	return p, nil
}

// Processes returns every process spawned so far.
func (s *Spawner) Processes() []*Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Process(nil), s.procs...)
}

// Last returns the most recently spawned process, or nil.
func (s *Spawner) Last() *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.procs) == 0 {
		return nil
	}
	return s.procs[len(s.procs)-1]
}

// Opened is the number of resources acquired: each spawn opens a process
// handle, an input stream and a diagnostic stream.
func (s *Spawner) Opened() int {
	return 3 * len(s.Processes())
}

// Released is the number of release calls observed across all processes.
func (s *Spawner) Released() int {
	n := 0
	for _, p := range s.Processes() {
		n += p.StdinCloses() + p.StderrCloses() + p.Kills()
	}
	return n
}

// Process is a fake rootshell.Process.
type Process struct {
	exitCode int
	waitErr  error
	stdin    *stdin
	stderr   *stderr

	mu    sync.Mutex
	waits int
	kills int
}

func (p *Process) Stdin() io.WriteCloser { return p.stdin }

func (p *Process) Stderr() io.ReadCloser { return p.stderr }

func (p *Process) Wait() (int, error) {
	p.mu.Lock()
	p.waits++
	p.mu.Unlock()
	if p.waitErr != nil {
		return -1, p.waitErr
	}
	return p.exitCode, nil
}

func (p *Process) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kills++
	return nil
}

// Written returns everything the session wrote to stdin.
func (p *Process) Written() string {
	p.stdin.mu.Lock()
	defer p.stdin.mu.Unlock()
	return p.stdin.buf.String()
}

// Waits is the number of Wait calls.
func (p *Process) Waits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waits
}

// Kills is the number of Kill calls.
func (p *Process) Kills() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kills
}

// StdinCloses is the number of Close calls on the input stream.
func (p *Process) StdinCloses() int {
	p.stdin.mu.Lock()
	defer p.stdin.mu.Unlock()
	return p.stdin.closes
}

// StderrCloses is the number of Close calls on the diagnostic stream.
func (p *Process) StderrCloses() int {
	p.stderr.mu.Lock()
	defer p.stderr.mu.Unlock()
	return p.stderr.closes
}

type stdin struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	writeErr error
	closes   int
}

func (w *stdin) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closes > 0 {
		return 0, ErrClosed
	}
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	return w.buf.Write(b)
}

func (w *stdin) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closes++
	return nil
}

type stderr struct {
	mu      sync.Mutex
	r       *strings.Reader
	readErr error
	closes  int
}

func (r *stderr) Read(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closes > 0 {
		return 0, ErrClosed
	}
	n, err := r.r.Read(b)
	if err == io.EOF && r.readErr != nil {
		return n, r.readErr
	}
	return n, err
}

func (r *stderr) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
	return nil
}
