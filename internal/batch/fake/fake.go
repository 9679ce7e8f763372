// Package fake provides an in-memory batch.Plugin driven entirely by a
// settable table, registered as "fake" for deployments that should not
// depend on a real HTCondor pool. The scheduler's own tests use their own
// in-file doubles rather than this package.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/cernops/elastiq/internal/batch"
)

func init() {
	batch.Register("fake", New)
}

// Plugin is a batch.Plugin whose answers are entirely controlled by the
// test or operator driving it through SetWaitingJobs and SetWorkers.
type Plugin struct {
	mu      sync.Mutex
	waiting int
	workers map[string]int
	now     func() time.Time
}

// New returns a fresh, empty Plugin. Registered as the "fake" batch.Factory.
func New() batch.Plugin {
	return &Plugin{workers: map[string]int{}, now: time.Now}
}

// Init is a no-op: the fake plugin takes no configuration.
func (p *Plugin) Init(section map[string]string) error { return nil }

// SetWaitingJobs sets the value the next PollQueue call will return.
func (p *Plugin) SetWaitingJobs(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waiting = n
}

// SetWorkers replaces the worker→job-count table the next PollStatus call
// aggregates from.
func (p *Plugin) SetWorkers(jobs map[string]int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workers = jobs
}

// PollQueue returns the currently configured waiting-job count.
func (p *Plugin) PollQueue(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiting, nil
}

// PollStatus returns a status map built from the configured worker table,
// preserving UnchangedSince for hosts whose job count did not change.
// validIPs is not applied: every configured worker is returned, whether or
// not its address is in the set.
func (p *Plugin) PollStatus(ctx context.Context, previous map[string]batch.WorkerStatus, validIPs map[string]struct{}) (map[string]batch.WorkerStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	result := make(map[string]batch.WorkerStatus, len(p.workers))
	for host, count := range p.workers {
		unchangedSince := now
		if prev, ok := previous[host]; ok && prev.Jobs == count {
			unchangedSince = prev.UnchangedSince
		}
		result[host] = batch.WorkerStatus{Jobs: count, UnchangedSince: unchangedSince}
	}
	return result, nil
}
