// Package batch defines the pluggable interface between elastiq's scheduler
// core and whatever batch system (HTCondor by default) owns the job queue
// and the per-worker activity view.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTransient marks a poll failure the scheduler should recover from by
// waiting for its next scheduled tick.
var ErrTransient = errors.New("batch: transient poll failure")

// ErrParse marks a malformed batch-system response; treated like
// ErrTransient by the scheduler.
var ErrParse = errors.New("batch: parse error")

// WorkerStatus is the latest observation for a single batch worker.
type WorkerStatus struct {
	// Jobs is the count of non-idle job slots observed in the latest poll.
	Jobs int
	// UnchangedSince is the last moment Jobs differed from the previous
	// poll; it is only refreshed on change.
	UnchangedSince time.Time
}

// Plugin is the capability set a batch system integration must provide.
type Plugin interface {
	// Init receives the plugin's own INI section (possibly empty) at
	// startup.
	Init(section map[string]string) error

	// PollQueue returns the number of waiting jobs. Errors are always
	// ErrTransient; a negative count is never returned on success.
	PollQueue(ctx context.Context) (int, error)

	// PollStatus returns the freshly observed per-worker activity map.
	// previous is consulted only to carry UnchangedSince forward across
	// polls where Jobs is unchanged. When validIPs is non-nil, workers
	// whose resolved IP is absent from validIPs are excluded from the
	// result. Errors are ErrTransient or ErrParse.
	PollStatus(ctx context.Context, previous map[string]WorkerStatus, validIPs map[string]struct{}) (map[string]WorkerStatus, error)
}

// Factory constructs a fresh, uninitialized Plugin instance.
type Factory func() Plugin

var registry = map[string]Factory{}

// Register makes a named plugin factory available to Lookup. Call from an
// init() function in the plugin's own package.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// Lookup constructs and initializes the named plugin with section. It
// returns an error (a Fatal, startup-time condition) if name was never
// registered.
func Lookup(name string, section map[string]string) (Plugin, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("batch: unknown plugin %q", name)
	}
	p := factory()
	if err := p.Init(section); err != nil {
		return nil, fmt.Errorf("batch: init plugin %q: %w", name, err)
	}
	return p, nil
}
