// Package scheduler is elastiq's core: the event-driven dispatcher, the
// hysteresis/quota decision logic, and the "allegedly running" bookkeeping
// that compensates for cloud boot latency. It treats the batch system and
// the cloud fabric as narrow, injected collaborators (batch.Plugin,
// cloud.Driver) so it can be tested in complete isolation from either.
package scheduler

import (
	"context"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/cernops/elastiq/internal/batch"
	"github.com/cernops/elastiq/internal/cloud"
	"github.com/cernops/elastiq/internal/config"
	"github.com/cernops/elastiq/internal/resolver"
)

// Scheduler owns InternalState and the collaborators needed to evaluate its
// three actions. Every dependency is injected at construction — no
// package-level globals (DESIGN NOTES §9) — so multiple independent
// Schedulers can coexist in tests.
type Scheduler struct {
	State  *InternalState
	Config *config.Config
	Plugin batch.Plugin
	Driver cloud.Driver
	Log    *logrus.Logger
	Clock  Clock

	// Resolve maps a worker name to an IPv4 address. Defaults to
	// resolver.Resolve; overridable in tests.
	Resolve func(name string) (string, error)

	// Shuffle randomizes shutdown candidate order in place (spec.md §4.5.2).
	// Defaults to a real shuffle; tests may install a no-op for determinism.
	Shuffle func([]cloud.Instance)
}

// New constructs a Scheduler with production defaults for Clock, Resolve,
// and Shuffle, and the startup InternalState of spec.md §3.
func New(cfg *config.Config, plugin batch.Plugin, driver cloud.Driver, log *logrus.Logger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		State:   NewInternalState(),
		Config:  cfg,
		Plugin:  plugin,
		Driver:  driver,
		Log:     log,
		Clock:   realClock{},
		Resolve: resolver.Resolve,
		Shuffle: func(inst []cloud.Instance) {
			rand.Shuffle(len(inst), func(i, j int) { inst[i], inst[j] = inst[j], inst[i] })
		},
	}
}

// Dispatch runs the event loop described in spec.md §4.5.5 until ctx is
// cancelled: each pass takes a snapshot of the due events, runs their
// handlers, appends whatever follow-up events they return, then sleeps for
// the configured interval. In-flight handlers always run to completion —
// ctx cancellation is only observed between passes and inside blocking
// collaborator calls.
func (s *Scheduler) Dispatch(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			s.Log.Info("termination requested: exiting gracefully")
			return
		}

		now := s.Clock.Now()
		due := s.State.EventQueue[:0:0]
		var remaining []Event
		for _, evt := range s.State.EventQueue {
			if !evt.When.After(now) {
				due = append(due, evt)
			} else {
				remaining = append(remaining, evt)
			}
		}
		s.State.EventQueue = remaining

		for _, evt := range due {
			s.Log.Debugf("dispatching event action=%s when=%s", evt.Action, evt.When)
			var result *Event
			switch evt.Action {
			case ActionCheckQueue:
				result = s.checkQueue(ctx)
			case ActionCheckVMs:
				result = s.checkVMs(ctx)
			case ActionDecayAllegedlyRunning:
				result = s.changeVMsAllegedlyRunning(evt.Delta)
			}
			if result != nil {
				s.State.EventQueue = append(s.State.EventQueue, *result)
			}
		}

		s.Clock.Sleep(s.Config.Elastiq.SleepInterval)
	}
}
