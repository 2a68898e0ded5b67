// Package orchestrator combines VRAM accounting, service lifecycle, and a
// distributed mutex into the two operations external callers need: prepare
// the GPU for a pipeline phase, and use a single service exclusively (spec
// §4.4, "Orchestrator").
package orchestrator

import (
	"context"
	"time"

	"gpumand/pkg/types"
)

// LockKey is the single external-mutex key this process contends on.
const LockKey = "gpuman:active_lock"

// vramResampleDelay is how long PrepareForPhase and preemptFor wait after
// each stop before sampling VRAM again.
const vramResampleDelay = 100 * time.Millisecond

// trackerIface is the slice of tracker.Tracker this package depends on.
type trackerIface interface {
	Snapshot(ctx context.Context) (types.GPUSnapshot, error)
	CanFit(ctx context.Context, requiredMB, marginMB int) (bool, error)
}

// registryIface is the slice of registry.Registry this package depends on.
type registryIface interface {
	Get(name string) (types.ServiceDescriptor, bool)
	All() []types.ServiceDescriptor
	ForPhase(phase int) []string
	SortByPriorityAsc(names []string) []string
}

// lifecycleIface is the slice of lifecycle.Manager this package depends on.
type lifecycleIface interface {
	EnsureRunning(ctx context.Context, name string) (bool, error)
	Stop(ctx context.Context, name string, force bool) (bool, error)
	Probe(ctx context.Context, name string) (bool, error)
	States(ctx context.Context) (map[string]types.ServiceState, error)
}

// lockStore is the slice of lock.Store this package depends on.
type lockStore interface {
	Acquire(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ReleaseIfValueEquals(ctx context.Context, key, value string) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	Holder(ctx context.Context, key string) (string, error)
	TTLRemaining(ctx context.Context, key string) (time.Duration, error)
}

// backoffSchedule mirrors lock.BackoffSchedule; declared locally so this
// package's tests can shrink it without importing lock's test helpers.
var backoffSchedule = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
}

// Orchestrator is the process-wide singleton combining the tracker,
// registry, lifecycle manager, and lock store (spec §9 "Process-wide
// singletons").
type Orchestrator struct {
	tracker    trackerIface
	registry   registryIface
	lifecycle  lifecycleIface
	lock       lockStore
	reserveMB  int
	defaultTTL time.Duration
	publisher  EventPublisher

	// phaseMu serializes PrepareForPhase calls within this process (spec
	// §5: "recommended but not part of the external contract").
	phaseMu chan struct{}
}

// New constructs an Orchestrator. publisher may be nil, in which case
// events are dropped.
func New(tracker trackerIface, registry registryIface, lifecycle lifecycleIface, lock lockStore, reserveMB int, defaultTTL time.Duration, publisher EventPublisher) *Orchestrator {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	o := &Orchestrator{
		tracker:    tracker,
		registry:   registry,
		lifecycle:  lifecycle,
		lock:       lock,
		reserveMB:  reserveMB,
		defaultTTL: defaultTTL,
		publisher:  publisher,
		phaseMu:    make(chan struct{}, 1),
	}
	o.phaseMu <- struct{}{}
	return o
}

// Lease is the result of a UseService call; Granted is false when the
// service could not be brought up. Release must be invoked on every exit
// path (spec §9, "Scoped acquisition of the lease").
type Lease struct {
	Granted bool
	Service string
	orch    *Orchestrator
}

// Release deletes the mutex only if this lease's service name is still
// the current holder, guarding against releasing a lock that expired and
// was reacquired by someone else (spec §4.4 step 5).
func (l *Lease) Release(ctx context.Context) error {
	if !l.Granted {
		return nil
	}
	_, err := l.orch.lock.ReleaseIfValueEquals(ctx, LockKey, l.Service)
	if err == nil {
		l.orch.publisher.Publish(Event{Name: "lease_released", Service: l.Service})
	}
	return err
}

func availableMB(snap types.GPUSnapshot, reserveMB int) int {
	return snap.FreeMB - reserveMB
}

// PrepareForPhase implements the Orchestrator contract's phase
// preparation operation (spec §4.4).
func (o *Orchestrator) PrepareForPhase(ctx context.Context, phase int) (bool, error) {
	<-o.phaseMu
	defer func() { o.phaseMu <- struct{}{} }()

	needed := o.registry.ForPhase(phase)
	neededSet := make(map[string]bool, len(needed))
	for _, n := range needed {
		neededSet[n] = true
	}

	var neededVRAM int
	for _, n := range needed {
		d, _ := o.registry.Get(n)
		neededVRAM += d.VRAMMB
	}

	var runningNotNeeded []string
	for _, d := range o.registry.All() {
		if neededSet[d.Name] {
			continue
		}
		healthy, err := o.lifecycle.Probe(ctx, d.Name)
		if err != nil {
			return false, err
		}
		if healthy {
			runningNotNeeded = append(runningNotNeeded, d.Name)
		}
	}
	candidates := o.registry.SortByPriorityAsc(runningNotNeeded)

	for len(candidates) > 0 {
		snap, err := o.tracker.Snapshot(ctx)
		if err != nil {
			return false, &TrackerUnavailableError{Reason: err.Error()}
		}
		if availableMB(snap, o.reserveMB) >= neededVRAM {
			break
		}
		next := candidates[0]
		candidates = candidates[1:]
		if _, err := o.lifecycle.Stop(ctx, next, false); err != nil {
			return false, err
		}
		o.publisher.Publish(Event{Name: "phase_preempt", Service: next, Fields: map[string]any{"phase": phase}})
		select {
		case <-time.After(vramResampleDelay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	allOK := true
	for _, n := range needed {
		ok, err := o.lifecycle.EnsureRunning(ctx, n)
		if err != nil || !ok {
			allOK = false
		}
	}
	o.publisher.Publish(Event{Name: "phase_prepared", Fields: map[string]any{"phase": phase, "success": allOK}})
	return allOK, nil
}

// preemptFor stops lower-priority running services (ascending priority)
// until target fits or no lower-priority candidate remains (spec §4.4
// "PreemptFor"). It never stops a service whose priority is >= target's.
func (o *Orchestrator) preemptFor(ctx context.Context, target types.ServiceDescriptor) error {
	var running []string
	for _, d := range o.registry.All() {
		if d.Name == target.Name {
			continue
		}
		healthy, err := o.lifecycle.Probe(ctx, d.Name)
		if err != nil {
			return err
		}
		if healthy {
			running = append(running, d.Name)
		}
	}
	candidates := o.registry.SortByPriorityAsc(running)

	for _, name := range candidates {
		fit, err := o.tracker.CanFit(ctx, target.VRAMMB, o.reserveMB)
		if err != nil {
			return &TrackerUnavailableError{Reason: err.Error()}
		}
		if fit {
			return nil
		}
		cd, _ := o.registry.Get(name)
		if cd.Priority >= target.Priority {
			// No further candidate can help either: sorted ascending
			// means everything after this one has priority >= too.
			return &PreemptionBlockedError{Service: target.Name, BlockedBy: name}
		}
		if _, err := o.lifecycle.Stop(ctx, name, false); err != nil {
			return err
		}
		o.publisher.Publish(Event{Name: "preempted", Service: name, Fields: map[string]any{"for": target.Name}})
		select {
		case <-time.After(vramResampleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if fit, err := o.tracker.CanFit(ctx, target.VRAMMB, o.reserveMB); err != nil {
		return &TrackerUnavailableError{Reason: err.Error()}
	} else if !fit {
		return &PreemptionBlockedError{Service: target.Name}
	}
	return nil
}

// UseService acquires exclusive use of a single service: preempting room
// if needed, ensuring it is running, then acquiring the external mutex
// (spec §4.4 "UseService").
func (o *Orchestrator) UseService(ctx context.Context, name string, lockTTL time.Duration) (*Lease, error) {
	d, ok := o.registry.Get(name)
	if !ok {
		return nil, &UnknownServiceError{Service: name}
	}
	if lockTTL <= 0 {
		lockTTL = o.defaultTTL
	}

	if fit, err := o.tracker.CanFit(ctx, d.VRAMMB, o.reserveMB); err != nil {
		return nil, &TrackerUnavailableError{Reason: err.Error()}
	} else if !fit {
		if err := o.preemptFor(ctx, d); err != nil {
			return nil, err
		}
	}

	ok, err := o.lifecycle.EnsureRunning(ctx, name)
	if err != nil || !ok {
		return &Lease{Granted: false, Service: name, orch: o}, nil
	}

	acquired, err := o.lock.Acquire(ctx, LockKey, name, lockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		holder, _ := o.lock.Holder(ctx, LockKey)
		o.publisher.Publish(Event{Name: "lock_contended", Service: name, Fields: map[string]any{"holder": holder}})

		for _, delay := range backoffSchedule {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			acquired, err = o.lock.Acquire(ctx, LockKey, name, lockTTL)
			if err != nil {
				return nil, err
			}
			if acquired {
				break
			}
		}
	}
	if !acquired {
		holder, _ := o.lock.Holder(ctx, LockKey)
		return nil, &LockUnavailableError{Service: name, Holder: holder}
	}

	o.publisher.Publish(Event{Name: "lease_granted", Service: name})
	return &Lease{Granted: true, Service: name, orch: o}, nil
}

// StartService invokes EnsureRunning directly, bypassing preemption and
// the distributed lock (spec §6.1 POST /gpu/service/{name}/start).
func (o *Orchestrator) StartService(ctx context.Context, name string) (bool, error) {
	if _, ok := o.registry.Get(name); !ok {
		return false, &UnknownServiceError{Service: name}
	}
	return o.lifecycle.EnsureRunning(ctx, name)
}

// StopService invokes Stop directly (spec §6.1 POST
// /gpu/service/{name}/stop).
func (o *Orchestrator) StopService(ctx context.Context, name string, force bool) (bool, error) {
	if _, ok := o.registry.Get(name); !ok {
		return false, &UnknownServiceError{Service: name}
	}
	return o.lifecycle.Stop(ctx, name, force)
}

// ReleaseAll stops every currently-healthy service (spec §4.4
// "ReleaseAll").
func (o *Orchestrator) ReleaseAll(ctx context.Context) error {
	for _, d := range o.registry.All() {
		healthy, err := o.lifecycle.Probe(ctx, d.Name)
		if err != nil {
			return err
		}
		if !healthy {
			continue
		}
		if _, err := o.lifecycle.Stop(ctx, d.Name, false); err != nil {
			return err
		}
	}
	o.publisher.Publish(Event{Name: "released_all"})
	return nil
}

// ForceReleaseLock unconditionally deletes the mutex key regardless of its
// current value, for operator recovery (spec §6.1 POST /gpu/lock/release).
func (o *Orchestrator) ForceReleaseLock(ctx context.Context) (bool, error) {
	return o.lock.Delete(ctx, LockKey)
}

// Status composes a fresh snapshot, refreshed service states, and the
// lock record into a single report (spec §6.2).
func (o *Orchestrator) Status(ctx context.Context) (types.StatusReport, error) {
	snap, err := o.tracker.Snapshot(ctx)
	if err != nil {
		return types.StatusReport{}, &TrackerUnavailableError{Reason: err.Error()}
	}
	states, err := o.lifecycle.States(ctx)
	if err != nil {
		return types.StatusReport{}, err
	}

	services := make(map[string]types.ServiceStatus, len(states))
	for _, d := range o.registry.All() {
		services[d.Name] = types.ServiceStatus{
			State:    string(states[d.Name]),
			VRAMMB:   d.VRAMMB,
			Priority: d.Priority,
			Phases:   d.Phases,
		}
	}

	holder, err := o.lock.Holder(ctx, LockKey)
	if err != nil {
		return types.StatusReport{}, err
	}
	var holderPtr *string
	if holder != "" {
		holderPtr = &holder
	}
	ttl, err := o.lock.TTLRemaining(ctx, LockKey)
	if err != nil {
		return types.StatusReport{}, err
	}
	ttlSeconds := int(ttl.Seconds())
	if ttl < 0 {
		// Stores report absence as a sub-second negative duration, which
		// would otherwise truncate to 0.
		ttlSeconds = -1
	}

	report := types.StatusReport{
		VRAM: types.VRAMStatus{
			TotalMB:            snap.TotalMB,
			UsedMB:             snap.UsedMB,
			FreeMB:             snap.FreeMB,
			AvailableMB:        availableMB(snap, o.reserveMB),
			Processes:          snap.Processes,
			TemperatureC:       snap.TemperatureC,
			UtilizationPercent: snap.UtilizationPercent,
		},
		Services: services,
		Lock: types.LockStatus{
			Holder: holderPtr,
			TTL:    ttlSeconds,
		},
	}
	return report, nil
}
