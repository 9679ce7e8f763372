// Package runner executes external commands with bounded, linearly backed
// off retries. It is used by batch plugins that shell out to command-line
// tools (e.g. condor_q, condor_status) instead of talking to an API.
package runner

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
)

// Result is the outcome of a command that was launched: ExitCode 0 with the
// captured stdout on success, or the last non-zero exit code (and no Output)
// once retries are exhausted.
type Result struct {
	ExitCode int
	Output   []byte
}

// Runner executes commands with retry semantics. Log must be non-nil when
// Run is called; New guarantees this by substituting logrus.StandardLogger().
type Runner struct {
	Log *logrus.Logger
}

// New returns a Runner that logs through log. A nil log falls back to
// logrus.StandardLogger().
func New(log *logrus.Logger) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{Log: log}
}

// Run executes argv, retrying up to maxAttempts times on a launch error or a
// non-zero exit status. Before attempt n (n>1) it sleeps n seconds. stderr is
// discarded. It returns (nil, nil) only if the process could never be
// launched on any attempt; on success it returns a Result with ExitCode 0; on
// exhausted retries with at least one launch it returns a Result carrying the
// last non-zero exit code.
func (r *Runner) Run(ctx context.Context, argv []string, maxAttempts int) (*Result, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastExitCode int
	launched := false

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			r.Log.Infof("waiting %ds before retrying %v", attempt, argv)
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var stdout bytes.Buffer
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Stdout = &stdout
		cmd.Stderr = nil

		if err := cmd.Run(); err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				launched = true
				lastExitCode = exitErr.ExitCode()
				r.Log.Debugf("command failed (exit %d): %v", lastExitCode, argv)
				continue
			}
			r.Log.Errorf("command cannot be executed: %v: %v", argv, err)
			continue
		}

		r.Log.Debugf("command exited OK: %v", argv)
		return &Result{ExitCode: 0, Output: stdout.Bytes()}, nil
	}

	if !launched {
		r.Log.Errorf("giving up after %d attempts: %v", maxAttempts, argv)
		return nil, nil
	}

	r.Log.Errorf("giving up after %d attempts: last exit code was %d: %v", maxAttempts, lastExitCode, argv)
	return &Result{ExitCode: lastExitCode}, nil
}
