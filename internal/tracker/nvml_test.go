package tracker

import (
	"context"
	"errors"
	"testing"

	"github.com/mindprince/gonvml"

	"gpumand/pkg/types"
)

// fakeBackend lets tests drive NVMLTracker without real GPU hardware. It
// never constructs a gonvml.Device directly (the type has no public
// constructor), so MemoryInfo/Temperature/UtilizationRates are not
// exercised here: the NVMLTracker tests cover only the initialization
// failure paths that never touch the zero-value device handle's backing
// pointer.
type fakeBackend struct {
	initErr   error
	deviceErr error
}

func (f *fakeBackend) Initialize() error { return f.initErr }
func (f *fakeBackend) Shutdown() error   { return nil }
func (f *fakeBackend) DeviceHandleByIndex(idx uint) (gonvml.Device, error) {
	if f.deviceErr != nil {
		return gonvml.Device{}, f.deviceErr
	}
	return gonvml.Device{}, nil
}

type fakeProcessLister struct {
	procs []types.Process
	err   error
}

func (f fakeProcessLister) ListProcesses(ctx context.Context, deviceIndex uint) ([]types.Process, error) {
	return f.procs, f.err
}

func TestNVMLTrackerInitializeFailureWrapsUnavailable(t *testing.T) {
	tr := &NVMLTracker{
		backend:     &fakeBackend{initErr: errors.New("no driver")},
		deviceIndex: 0,
		procLister:  fakeProcessLister{},
	}
	_, err := tr.Snapshot(context.Background())
	var unavailable *TrackerUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected TrackerUnavailableError, got %v (%T)", err, err)
	}
}

func TestNVMLTrackerInvalidDeviceIndexWrapsUnavailable(t *testing.T) {
	tr := &NVMLTracker{
		backend:     &fakeBackend{deviceErr: errors.New("no such device")},
		deviceIndex: 9,
		procLister:  fakeProcessLister{},
	}
	_, err := tr.Snapshot(context.Background())
	var unavailable *TrackerUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected TrackerUnavailableError, got %v (%T)", err, err)
	}
}

func TestNVMLTrackerEnsureInitCachesError(t *testing.T) {
	backend := &fakeBackend{initErr: errors.New("boom")}
	tr := &NVMLTracker{backend: backend, procLister: fakeProcessLister{}}

	if err := tr.ensureInit(); err == nil {
		t.Fatal("expected error")
	}
	firstErr := tr.initErr

	// A second call must not re-invoke Initialize (the cached error is
	// returned directly); mutate initErr to a distinguishable sentinel on
	// the backend to prove it wasn't called again.
	backend.initErr = errors.New("different failure")
	if err := tr.ensureInit(); err != firstErr {
		t.Fatalf("expected cached error %v, got %v", firstErr, err)
	}
}

func TestNVMLTrackerCloseIsIdempotentWhenNeverInitialized(t *testing.T) {
	tr := NewNVMLTracker(0)
	if err := tr.Close(); err != nil {
		t.Fatalf("Close on uninitialized tracker: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestFakeCanFitBoundary(t *testing.T) {
	// spec §8 boundary: free - margin == required is fit; free - margin ==
	// required - 1 is not.
	f := NewFake(10000)
	f.SetUsedMB(10000 - (2000 + DefaultMarginMB))
	ok, err := f.CanFit(context.Background(), 2000, DefaultMarginMB)
	if err != nil || !ok {
		t.Fatalf("expected fit at exact boundary, got ok=%v err=%v", ok, err)
	}

	f.SetUsedMB(10000 - (2000 + DefaultMarginMB) + 1)
	ok, err = f.CanFit(context.Background(), 2000, DefaultMarginMB)
	if err != nil || ok {
		t.Fatalf("expected no fit one below boundary, got ok=%v err=%v", ok, err)
	}
}

func TestFakeFindProcessCaseInsensitive(t *testing.T) {
	f := NewFake(10000)
	f.SetProcesses([]types.Process{{PID: 1, Name: "RenderEngine", MemoryMB: 500}})

	p, err := f.FindProcess(context.Background(), "renderengine")
	if err != nil {
		t.Fatalf("FindProcess: %v", err)
	}
	if p == nil || p.PID != 1 {
		t.Fatalf("expected match, got %+v", p)
	}

	p, err = f.FindProcess(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("FindProcess: %v", err)
	}
	if p != nil {
		t.Fatalf("expected no match, got %+v", p)
	}
}

func TestFakeQueryErrorPropagates(t *testing.T) {
	f := NewFake(10000)
	f.SetQueryError(&TrackerQueryError{Reason: "driver hung"})

	if _, err := f.Snapshot(context.Background()); err == nil {
		t.Fatal("expected error from Snapshot")
	}
	if _, err := f.CanFit(context.Background(), 1, 0); err == nil {
		t.Fatal("expected error from CanFit")
	}
	if _, err := f.FindProcess(context.Background(), "x"); err == nil {
		t.Fatal("expected error from FindProcess")
	}
}

func TestParseComputeAppsSkipsMalformedLines(t *testing.T) {
	csv := "1234, render-engine, 2048\nnot,a,valid,line\n5678,tts-engine,512\n\n"
	procs := parseComputeApps(csv)
	if len(procs) != 2 {
		t.Fatalf("expected 2 processes, got %d: %+v", len(procs), procs)
	}
	if procs[0].PID != 1234 || procs[0].Name != "render-engine" || procs[0].MemoryMB != 2048 {
		t.Fatalf("unexpected first process: %+v", procs[0])
	}
	if procs[1].PID != 5678 || procs[1].Name != "tts-engine" || procs[1].MemoryMB != 512 {
		t.Fatalf("unexpected second process: %+v", procs[1])
	}
}
