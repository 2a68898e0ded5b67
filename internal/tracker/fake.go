package tracker

import (
	"context"
	"sync"

	"gpumand/pkg/types"
)

// Fake is an in-memory Tracker double for tests. Its snapshot is seeded by
// NewFake and changed through SetUsedMB, SetProcesses and SetQueryError;
// concurrent-safe for use across goroutines in a test.
type Fake struct {
	mu       sync.Mutex
	snap     types.GPUSnapshot
	queryErr error
}

// NewFake returns a Fake pre-seeded with an empty device of the given total
// capacity and zero usage.
func NewFake(totalMB int) *Fake {
	return &Fake{snap: types.GPUSnapshot{TotalMB: totalMB, FreeMB: totalMB}}
}

// SetUsedMB updates used/free to reflect usedMB out of the fake's total.
func (f *Fake) SetUsedMB(usedMB int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.UsedMB = usedMB
	f.snap.FreeMB = f.snap.TotalMB - usedMB
}

// SetProcesses replaces the fake's process list.
func (f *Fake) SetProcesses(procs []types.Process) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Processes = procs
}

// SetQueryError forces subsequent calls to fail with err (nil clears it).
func (f *Fake) SetQueryError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryErr = err
}

func (f *Fake) Snapshot(ctx context.Context) (types.GPUSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return types.GPUSnapshot{}, f.queryErr
	}
	return f.snap, nil
}

func (f *Fake) CanFit(ctx context.Context, requiredMB, marginMB int) (bool, error) {
	snap, err := f.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	return canFit(snap, requiredMB, marginMB), nil
}

func (f *Fake) FindProcess(ctx context.Context, substring string) (*types.Process, error) {
	snap, err := f.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return findProcess(snap, substring), nil
}

func (f *Fake) Close() error { return nil }
