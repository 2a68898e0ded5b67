package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/mindprince/gonvml"

	"gpumand/pkg/types"
)

// nvmlBackend is the slice of gonvml this package depends on. Abstracted so
// tests can substitute a fake backend without real GPU hardware.
type nvmlBackend interface {
	Initialize() error
	Shutdown() error
	DeviceHandleByIndex(idx uint) (gonvml.Device, error)
}

type realBackend struct{}

func (realBackend) Initialize() error { return gonvml.Initialize() }
func (realBackend) Shutdown() error   { return gonvml.Shutdown() }
func (realBackend) DeviceHandleByIndex(idx uint) (gonvml.Device, error) {
	return gonvml.DeviceHandleByIndex(idx)
}

// NVMLTracker reads device memory, temperature, and utilization through
// NVML (via github.com/mindprince/gonvml, the same binding used by
// Kubernetes's kubelet GPU device code). NVML does not expose per-process
// memory breakdown through this binding, so the process list is populated
// by shelling out to nvidia-smi (see processes.go) the same way the rest of
// this codebase drives external tooling through os/exec.
type NVMLTracker struct {
	backend     nvmlBackend
	deviceIndex uint
	procLister  processLister

	mu          sync.Mutex
	initialized bool
	handle      gonvml.Device
	initErr     error
}

// NewNVMLTracker constructs a tracker for the device at deviceIndex. The
// underlying NVML handle is initialized lazily on first use and kept for
// the lifetime of the tracker (spec §4.1 "Algorithmic notes").
func NewNVMLTracker(deviceIndex uint) *NVMLTracker {
	return &NVMLTracker{
		backend:     realBackend{},
		deviceIndex: deviceIndex,
		procLister:  nvidiaSMIProcessLister{},
	}
}

func (t *NVMLTracker) ensureInit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.initialized {
		return t.initErr
	}
	t.initialized = true
	if err := t.backend.Initialize(); err != nil {
		t.initErr = &TrackerUnavailableError{Reason: "nvml initialize: " + err.Error()}
		return t.initErr
	}
	handle, err := t.backend.DeviceHandleByIndex(t.deviceIndex)
	if err != nil {
		t.initErr = &TrackerUnavailableError{Reason: "invalid device index: " + err.Error()}
		return t.initErr
	}
	t.handle = handle
	return nil
}

// Snapshot implements Tracker.
func (t *NVMLTracker) Snapshot(ctx context.Context) (types.GPUSnapshot, error) {
	if err := t.ensureInit(); err != nil {
		return types.GPUSnapshot{}, err
	}

	total, used, err := t.handle.MemoryInfo()
	if err != nil {
		return types.GPUSnapshot{}, &TrackerQueryError{Reason: "memory info: " + err.Error()}
	}

	snap := types.GPUSnapshot{
		TotalMB:   int(total / (1024 * 1024)),
		UsedMB:    int(used / (1024 * 1024)),
		FreeMB:    int((total - used) / (1024 * 1024)),
		SampledAt: now(),
	}

	// Temperature and utilization are optional: tolerate their absence
	// without failing the whole snapshot (spec §4.1).
	if temp, err := t.handle.Temperature(); err == nil {
		v := int(temp)
		snap.TemperatureC = &v
	}
	if gpuUtil, _, err := t.handle.UtilizationRates(); err == nil {
		v := int(gpuUtil)
		snap.UtilizationPercent = &v
	}

	if procs, err := t.procLister.ListProcesses(ctx, t.deviceIndex); err == nil {
		snap.Processes = procs
	}

	return snap, nil
}

// CanFit implements Tracker.
func (t *NVMLTracker) CanFit(ctx context.Context, requiredMB, marginMB int) (bool, error) {
	snap, err := t.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	return canFit(snap, requiredMB, marginMB), nil
}

// FindProcess implements Tracker.
func (t *NVMLTracker) FindProcess(ctx context.Context, substring string) (*types.Process, error) {
	snap, err := t.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return findProcess(snap, substring), nil
}

// Close implements Tracker.
func (t *NVMLTracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized || t.initErr != nil {
		return nil
	}
	t.initialized = false
	return t.backend.Shutdown()
}

// now is a seam so tests can avoid depending on wall-clock time drift.
var now = time.Now
