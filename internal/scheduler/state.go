package scheduler

import (
	"time"

	"github.com/cernops/elastiq/internal/batch"
)

// Action identifies which scheduler handler an Event should invoke. This is
// a tagged union rather than the untyped action/params bag of the original
// implementation (see DESIGN NOTES, spec.md §9): each Action carries exactly
// the payload its handler needs, via the Delta field for decay events.
type Action int

const (
	ActionCheckQueue Action = iota
	ActionCheckVMs
	ActionDecayAllegedlyRunning
)

func (a Action) String() string {
	switch a {
	case ActionCheckQueue:
		return "check_queue"
	case ActionCheckVMs:
		return "check_vms"
	case ActionDecayAllegedlyRunning:
		return "decay_allegedly_running"
	default:
		return "unknown"
	}
}

// Event is a scheduled invocation of one of the scheduler's actions.
type Event struct {
	Action Action
	When   time.Time
	// Delta is the signed credit adjustment for ActionDecayAllegedlyRunning;
	// unused by the other two actions.
	Delta int
}

// InternalState is the scheduler's single mutable state block. It is owned
// and mutated exclusively by the dispatch loop on one goroutine; no locking
// is required (spec.md §5).
type InternalState struct {
	WorkersStatus map[string]batch.WorkerStatus

	// Armed mirrors the -1 sentinel of spec.md §3: false means "currently
	// below threshold", true means FirstSeenAboveThreshold holds the
	// moment the queue first crossed the threshold.
	Armed                   bool
	FirstSeenAboveThreshold time.Time

	VMsAllegedlyRunning int

	EventQueue []Event
}

// NewInternalState returns the startup state described in spec.md §3: an
// empty worker map, a disarmed threshold timer, zero credit, and both
// periodic actions due immediately.
func NewInternalState() *InternalState {
	return &InternalState{
		WorkersStatus: map[string]batch.WorkerStatus{},
		EventQueue: []Event{
			{Action: ActionCheckVMs, When: time.Time{}},
			{Action: ActionCheckQueue, When: time.Time{}},
		},
	}
}
