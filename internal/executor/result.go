// result.go defines the outcome of a helper-tool invocation.
package executor

import "time"

// Result holds the output of a finished command.
type Result struct {
	// ExitCode is the process exit code. -1 indicates timeout or signal death.
	ExitCode int `json:"exit_code"`

	// Stdout contains the standard output of the command.
	Stdout string `json:"stdout"`

	// Stderr contains the standard error output of the command.
	Stderr string `json:"stderr"`

	// Duration is how long the command took to execute.
	Duration time.Duration `json:"duration_ms"`

	// TimedOut is true if the command was killed due to timeout.
	TimedOut bool `json:"timed_out"`

	// StartedAt is when execution began.
	StartedAt time.Time `json:"started_at"`
}

// Output returns stdout and stderr concatenated, for tools that report
// errors on either stream.
func (r *Result) Output() string {
	return r.Stdout + r.Stderr
}
