// Package tracker provides read-only access to the GPU driver's memory and
// utilization counters (spec §4.1, "VRAM Tracker"). It never mutates device
// state; every query is sampled fresh on demand.
package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gpumand/pkg/types"
)

// DefaultMarginMB is the default system VRAM reserve (spec §4.4 "System
// VRAM reserve"). CanFit does not apply it itself; callers always pass the
// margin explicitly.
const DefaultMarginMB = 1024

// queryBound is the target upper bound for a single Snapshot call (spec
// §4.1: "target <150 ms"). It is advisory; Tracker does not enforce it.
const queryBound = 150 * time.Millisecond

// TrackerUnavailableError indicates the management library could not be
// initialized, or the configured device index is invalid.
type TrackerUnavailableError struct{ Reason string }

func (e *TrackerUnavailableError) Error() string {
	return fmt.Sprintf("gpu tracker unavailable: %s", e.Reason)
}

// TrackerQueryError indicates a single query against an already-initialized
// tracker failed. Callers should treat this as a transient outage.
type TrackerQueryError struct{ Reason string }

func (e *TrackerQueryError) Error() string {
	return fmt.Sprintf("gpu tracker query failed: %s", e.Reason)
}

// Tracker is the read-only contract over the GPU management interface.
type Tracker interface {
	// Snapshot returns a freshly sampled GPUSnapshot.
	Snapshot(ctx context.Context) (types.GPUSnapshot, error)
	// CanFit reports whether free_mb - margin_mb >= required_mb using a
	// fresh snapshot.
	CanFit(ctx context.Context, requiredMB, marginMB int) (bool, error)
	// FindProcess returns the first process whose name contains substring
	// (case-insensitive), or nil if none match.
	FindProcess(ctx context.Context, substring string) (*types.Process, error)
	// Close releases the underlying handle. Safe to call multiple times.
	Close() error
}

// canFit is the shared boolean used by every Tracker implementation so the
// semantics in spec §4.1 / §8 boundaries stay in one place.
func canFit(snap types.GPUSnapshot, requiredMB, marginMB int) bool {
	return snap.FreeMB-marginMB >= requiredMB
}

// findProcess is the shared case-insensitive substring search over a
// snapshot's process list (spec §4.1 FindProcess).
func findProcess(snap types.GPUSnapshot, substring string) *types.Process {
	needle := strings.ToLower(substring)
	for i := range snap.Processes {
		if strings.Contains(strings.ToLower(snap.Processes[i].Name), needle) {
			p := snap.Processes[i]
			return &p
		}
	}
	return nil
}
