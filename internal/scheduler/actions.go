package scheduler

import (
	"context"
	"errors"
	"math"

	"github.com/cernops/elastiq/internal/cloud"
)

// checkQueue polls the waiting-job count, applies the hysteresis rule of
// spec.md §4.5.1, and always reschedules itself at now+CheckQueueEvery
// regardless of outcome — a transient poll failure is logged and otherwise
// ignored until the next scheduled pass.
func (s *Scheduler) checkQueue(ctx context.Context) *Event {
	now := s.Clock.Now()
	next := &Event{Action: ActionCheckQueue, When: now.Add(s.Config.Elastiq.CheckQueueEvery)}

	waiting, err := s.Plugin.PollQueue(ctx)
	if err != nil {
		s.Log.Warnf("check_queue: poll failed: %v", err)
		return next
	}

	// The allegedly-running credit represents VMs the batch system doesn't
	// know about yet; crediting it against the threshold avoids scaling up
	// again for jobs that will shortly be served by VMs already in flight.
	effective := waiting - s.Config.Elastiq.NJobsPerVM*s.State.VMsAllegedlyRunning
	if effective < 0 {
		effective = 0
	}

	above := effective > s.Config.Elastiq.WaitingJobsThreshold
	switch {
	case above && !s.State.Armed:
		s.State.Armed = true
		s.State.FirstSeenAboveThreshold = now
		s.Log.Infof("check_queue: armed, %d effective waiting jobs", effective)
	case above && s.State.Armed:
		if now.Sub(s.State.FirstSeenAboveThreshold) >= s.Config.Elastiq.WaitingJobsTime {
			n := int(math.Round(float64(effective) / float64(s.Config.Elastiq.NJobsPerVM)))
			s.Log.Infof("check_queue: threshold held for %s, requesting %d VMs", now.Sub(s.State.FirstSeenAboveThreshold), n)
			booted := s.scaleUp(ctx, n)
			s.enqueueDecay(s.changeVMsAllegedlyRunning(booted))
			s.State.Armed = false
		}
	case !above && s.State.Armed:
		s.Log.Debug("check_queue: disarmed, queue dropped back below threshold")
		s.State.Armed = false
	}

	return next
}

// checkVMs reconciles batch-worker activity against the cloud fabric: it
// retires idle workers, then tops the pool back up to the configured
// minimum (spec.md §4.5.2). Always reschedules at now+CheckVMsEvery, except
// that a transient error reschedules immediately so the next pass retries
// without waiting out the full interval.
func (s *Scheduler) checkVMs(ctx context.Context) *Event {
	now := s.Clock.Now()

	running, err := s.Driver.ListRunning(ctx, nil)
	if err != nil {
		s.Log.Warnf("check_vms: list running instances failed: %v", err)
		return &Event{Action: ActionCheckVMs, When: now}
	}

	knownIPs := make(map[string]struct{}, len(running))
	for _, inst := range running {
		if inst.PrivateIPv4 != "" {
			knownIPs[inst.PrivateIPv4] = struct{}{}
		}
	}

	status, err := s.Plugin.PollStatus(ctx, s.State.WorkersStatus, knownIPs)
	if err != nil {
		s.Log.Warnf("check_vms: poll status failed: %v", err)
		return &Event{Action: ActionCheckVMs, When: now}
	}
	s.State.WorkersStatus = status

	var idle, known []string
	for host, ws := range status {
		known = append(known, host)
		if ws.Jobs == 0 && now.Sub(ws.UnchangedSince) > s.Config.Elastiq.IdleForTime {
			idle = append(idle, host)
		}
	}
	if len(idle) > 0 {
		s.Log.Infof("check_vms: %d workers idle past threshold, scaling down", len(idle))
		// Reset UnchangedSince for every host entering the shutdown batch,
		// not just the ones actually terminated: this is what stops an idle
		// host from being re-queued on every subsequent tick while its
		// termination is pending, clamped, or simply failed.
		for _, host := range idle {
			ws := status[host]
			ws.UnchangedSince = now
			status[host] = ws
		}
		terminated := s.scaleDown(ctx, idle, known)
		s.enqueueDecay(s.changeVMsAllegedlyRunning(-terminated))
	}

	filtered, err := s.Driver.ListRunning(ctx, s.workerIPs(known, knownIPs))
	if err != nil {
		s.Log.Warnf("check_vms: re-list running instances failed: %v", err)
		return &Event{Action: ActionCheckVMs, When: now}
	}

	considered := len(filtered) + s.State.VMsAllegedlyRunning
	shortfall := s.Config.Quota.MinVMs - considered
	if shortfall > 0 {
		s.Log.Infof("check_vms: %d VMs below minimum quota, booting", shortfall)
		booted := s.scaleUp(ctx, shortfall)
		s.enqueueDecay(s.changeVMsAllegedlyRunning(booted))
	}

	return &Event{Action: ActionCheckVMs, When: now.Add(s.Config.Elastiq.CheckVMsEvery)}
}

// workerIPs resolves every name in knownHosts and returns the subset of
// knownIPs (the cloud's already-resolved running private IPs) that a
// resolved worker name actually maps to — the intersection of cloud-visible
// and batch-known instances used to size min-quota reconciliation (spec.md
// §4.5.2). A name that fails to resolve is skipped with a warning.
func (s *Scheduler) workerIPs(knownHosts []string, knownIPs map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(knownHosts))
	for _, host := range knownHosts {
		ip, err := s.Resolve(host)
		if err != nil {
			s.Log.Warnf("check_vms: cannot resolve %q, skipping: %v", host, err)
			continue
		}
		if _, ok := knownIPs[ip]; ok {
			out[ip] = struct{}{}
		}
	}
	return out
}

// enqueueDecay pushes a compensating decay event straight onto the live
// event queue. changeVMsAllegedlyRunning only returns the event it wants
// scheduled; Dispatch's own re-enqueue logic handles the action handler's
// return value, not events a handler produces mid-flight, so callers that
// invoke changeVMsAllegedlyRunning from inside checkQueue/checkVMs must
// push its result here themselves (mirrors original_source's
// change_vms_allegedly_running() appending directly to event_queue).
func (s *Scheduler) enqueueDecay(evt *Event) {
	if evt != nil {
		s.State.EventQueue = append(s.State.EventQueue, *evt)
	}
}

// changeVMsAllegedlyRunning adjusts the allegedly-running credit by delta,
// clamping at zero, and — for a positive delta only — schedules a
// compensating decay event so the credit self-expires once real VMs have
// had time to register with the batch system (spec.md §4.5.3).
func (s *Scheduler) changeVMsAllegedlyRunning(delta int) *Event {
	s.State.VMsAllegedlyRunning += delta
	if s.State.VMsAllegedlyRunning < 0 {
		s.State.VMsAllegedlyRunning = 0
	}
	if delta <= 0 {
		return nil
	}
	return &Event{
		Action: ActionDecayAllegedlyRunning,
		When:   s.Clock.Now().Add(s.Config.Elastiq.EstimatedVMDeployTime),
		Delta:  -delta,
	}
}

// scaleUp requests up to n new instances, clamped so the TOTAL running
// instance count (unfiltered — max-quota binds the whole fabric, not just
// elastiq-managed workers) never exceeds Quota.MaxVMs. Returns the number
// of instances successfully launched.
func (s *Scheduler) scaleUp(ctx context.Context, n int) int {
	if n <= 0 {
		return 0
	}
	if s.Config.Quota.MaxVMs > 0 {
		running, err := s.Driver.ListRunning(ctx, nil)
		if err != nil {
			s.Log.Warnf("scale_up: cannot verify max quota, aborting: %v", err)
			return 0
		}
		headroom := s.Config.Quota.MaxVMs - len(running)
		if headroom < n {
			n = headroom
		}
	}
	if n <= 0 {
		s.Log.Debug("scale_up: at max quota, not booting any VMs")
		return 0
	}

	if s.Config.Debug.DryRunBootVMs {
		s.Log.Infof("scale_up: dry-run, would boot %d VMs", n)
		return n
	}

	spec := cloud.LaunchSpec{
		ImageID:  s.Config.EC2.ImageID,
		KeyName:  s.Config.EC2.KeyName,
		Flavour:  s.Config.EC2.Flavour,
		UserData: s.Config.EC2.UserData,
	}

	booted := 0
	for i := 0; i < n; i++ {
		if _, err := s.Driver.Launch(ctx, spec); err != nil {
			s.Log.Warnf("scale_up: launch failed: %v", err)
			if errors.Is(err, cloud.ErrTransient) {
				continue
			}
			break
		}
		booted++
	}
	return booted
}

// scaleDown asks for the shutdown of hosts (idle-timeout candidates),
// honoring the minimum quota. The floor is evaluated asymmetrically from
// max-quota (spec.md §4.5.2): it is sized against knownHosts — every host
// the batch system currently tracks, regardless of idleness — intersected
// with the cloud's running instances, not against hosts alone. This avoids
// shrinking the fleet below the batch system's own view of how many VMs
// matter, even when only a few of them happen to be idle right now.
// Returns the number of hosts actually terminated, so the caller can debit
// the allegedly-running credit by that amount.
func (s *Scheduler) scaleDown(ctx context.Context, hosts, knownHosts []string) int {
	if len(hosts) == 0 {
		return 0
	}

	knownIPs := make(map[string]struct{}, len(knownHosts))
	for _, host := range knownHosts {
		ip, err := s.Resolve(host)
		if err != nil {
			s.Log.Warnf("scale_down: cannot resolve %q, skipping: %v", host, err)
			continue
		}
		knownIPs[ip] = struct{}{}
	}
	inst, err := s.Driver.ListRunning(ctx, knownIPs)
	if err != nil || len(inst) == 0 {
		s.Log.Warnf("scale_down: no list of instances can be retrieved: %v", err)
		return 0
	}

	ipByInstance := make(map[string]cloud.Instance, len(inst))
	for _, i := range inst {
		ipByInstance[i.PrivateIPv4] = i
	}

	var candidates []cloud.Instance
	for _, host := range hosts {
		ip, err := s.Resolve(host)
		if err != nil {
			s.Log.Warnf("scale_down: cannot resolve %q, skipping: %v", host, err)
			continue
		}
		if i, ok := ipByInstance[ip]; ok {
			candidates = append(candidates, i)
		}
	}
	s.Shuffle(candidates)

	budget := len(inst) - s.Config.Quota.MinVMs
	if budget <= 0 {
		s.Log.Debugf("scale_down: at min quota of %d, not terminating any VMs", s.Config.Quota.MinVMs)
		return 0
	}
	if budget > len(candidates) {
		budget = len(candidates)
	}
	candidates = candidates[:budget]

	if s.Config.Debug.DryRunShutdownVMs {
		s.Log.Infof("scale_down: dry-run, would terminate %d VMs", len(candidates))
		return len(candidates)
	}

	terminated := 0
	for _, i := range candidates {
		if err := s.Driver.Terminate(ctx, i); err != nil {
			s.Log.Warnf("scale_down: terminate %s failed: %v", i.ID, err)
			continue
		}
		terminated++
	}
	return terminated
}
