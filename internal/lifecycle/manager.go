// Package lifecycle starts, stops, and health-checks registered services,
// abstracting the difference between containerized and native kinds (spec
// §4.3, "Lifecycle Manager").
package lifecycle

import (
	"context"
	"sync"
	"time"

	"gpumand/pkg/types"
)

// descriptorSource is the slice of the registry this package depends on.
type descriptorSource interface {
	Get(name string) (types.ServiceDescriptor, bool)
	All() []types.ServiceDescriptor
}

// probeInterval is how often WaitReady polls Probe. A var (not const) so
// tests can shrink it.
var probeInterval = 2 * time.Second

// settleDelay lets the driver reclaim VRAM after a stop action completes.
// A var (not const) so tests can shrink it.
var settleDelay = 3 * time.Second

// Manager implements the Lifecycle Manager contract. One Manager is shared
// by the whole process; per-service-name locking keeps concurrent
// operations against the same service from interleaving.
type Manager struct {
	registry  descriptorSource
	health    healthChecker
	native    backend
	container backend

	statesMu sync.Mutex
	states   map[string]types.ServiceState

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewManager constructs a Manager backed by a real docker engine and the
// host's native process model. If the docker engine cannot be reached,
// containerized operations fail lazily with the underlying dial error
// rather than at construction time, so a host with no containerized
// services configured does not need docker installed.
func NewManager(registry descriptorSource) *Manager {
	var containerBk backend
	if engine, err := newDockerEngine(); err == nil {
		containerBk = newContainerBackend(engine)
	} else {
		containerBk = unavailableContainerBackend{err: err}
	}
	return &Manager{
		registry:  registry,
		health:    newHTTPHealthChecker(),
		native:    newNativeBackend(),
		container: containerBk,
		states:    make(map[string]types.ServiceState),
		locks:     make(map[string]*sync.Mutex),
	}
}

// unavailableContainerBackend reports a connection error from every
// operation, deferring the docker dial failure until it is actually needed.
type unavailableContainerBackend struct{ err error }

func (u unavailableContainerBackend) start(ctx context.Context, svc serviceRef) error { return u.err }
func (u unavailableContainerBackend) stop(ctx context.Context, svc serviceRef, force bool) error {
	return u.err
}

func (m *Manager) lockFor(name string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[name]
	if !ok {
		l = &sync.Mutex{}
		m.locks[name] = l
	}
	return l
}

func (m *Manager) setState(name string, s types.ServiceState) {
	m.statesMu.Lock()
	defer m.statesMu.Unlock()
	m.states[name] = s
}

func (m *Manager) cachedState(name string) types.ServiceState {
	m.statesMu.Lock()
	defer m.statesMu.Unlock()
	if s, ok := m.states[name]; ok {
		return s
	}
	return types.StateUnknown
}

func (m *Manager) backendFor(d types.ServiceDescriptor) backend {
	if d.Kind == types.KindContainerized {
		return m.container
	}
	return m.native
}

func ref(d types.ServiceDescriptor) serviceRef {
	return serviceRef{
		Name:        d.Name,
		ContainerID: d.ContainerID,
		StartCmd:    d.StartCmd,
		StopCmd:     d.StopCmd,
		PIDFile:     d.PIDFile,
	}
}

// Probe performs a single health check and updates the cached state
// accordingly (spec §4.3 contract, state machine "unknown -Probe-> ready /
// stopped" and "ready -Probe(fail)-> stopped").
func (m *Manager) Probe(ctx context.Context, name string) (bool, error) {
	d, ok := m.registry.Get(name)
	if !ok {
		return false, &UnknownServiceError{Service: name}
	}
	// Each probe has its own 10 s deadline; health_timeout_s bounds the
	// whole WaitReady loop, not a single probe.
	const probeTimeout = 10 * time.Second
	healthy := m.health.check(ctx, d.HealthURL, probeTimeout)
	if healthy {
		m.setState(name, types.StateReady)
	} else if m.cachedState(name) == types.StateReady || m.cachedState(name) == types.StateUnknown {
		m.setState(name, types.StateStopped)
	}
	return healthy, nil
}

// WaitReady polls Probe every probeInterval until it succeeds or timeout
// elapses (spec §4.3 contract).
func (m *Manager) WaitReady(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := m.Probe(ctx, name)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(probeInterval):
		}
	}
}

// EnsureRunning starts the named service if it is not already healthy, and
// waits for readiness (spec §4.3 "Start procedure").
func (m *Manager) EnsureRunning(ctx context.Context, name string) (bool, error) {
	d, ok := m.registry.Get(name)
	if !ok {
		return false, &UnknownServiceError{Service: name}
	}

	lock := m.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	if healthy, err := m.Probe(ctx, name); err == nil && healthy {
		m.setState(name, types.StateReady)
		return true, nil
	}

	m.setState(name, types.StateStarting)
	if err := m.backendFor(d).start(ctx, ref(d)); err != nil {
		m.setState(name, types.StateError)
		return false, err
	}

	select {
	case <-time.After(d.Warmup()):
	case <-ctx.Done():
		return false, ctx.Err()
	}

	ready, err := m.WaitReady(ctx, name, d.HealthTimeout())
	if err != nil {
		return false, err
	}
	if !ready {
		m.setState(name, types.StateError)
		return false, &StartTimeoutError{Service: name}
	}
	m.setState(name, types.StateReady)
	return true, nil
}

// Stop idempotently stops the named service (spec §4.3 "Stop procedure").
func (m *Manager) Stop(ctx context.Context, name string, force bool) (bool, error) {
	d, ok := m.registry.Get(name)
	if !ok {
		return false, &UnknownServiceError{Service: name}
	}

	lock := m.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	if d.GracefulEvictURL != "" {
		_ = m.health.evict(ctx, d.GracefulEvictURL)
	}

	m.setState(name, types.StateStopping)
	if err := m.backendFor(d).stop(ctx, ref(d), force); err != nil {
		return false, &StopTimeoutError{Service: name}
	}

	select {
	case <-time.After(settleDelay):
	case <-ctx.Done():
	}

	m.setState(name, types.StateStopped)
	return true, nil
}

// States refreshes and returns the state of every registered service
// (spec §4.3 contract: "refreshes states (via probe) before returning").
func (m *Manager) States(ctx context.Context) (map[string]types.ServiceState, error) {
	out := make(map[string]types.ServiceState)
	for _, d := range m.registry.All() {
		if _, err := m.Probe(ctx, d.Name); err != nil {
			return nil, err
		}
		out[d.Name] = m.cachedState(d.Name)
	}
	return out, nil
}
