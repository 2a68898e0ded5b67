package orchestrator

import "fmt"

// HTTPError is implemented by every typed error this package returns so
// the HTTP layer can map them to status codes without string matching.
type HTTPError interface {
	error
	StatusCode() int
}

// UnknownServiceError is returned when a caller names a service absent
// from the registry.
type UnknownServiceError struct{ Service string }

func (e *UnknownServiceError) Error() string   { return fmt.Sprintf("unknown service: %s", e.Service) }
func (e *UnknownServiceError) StatusCode() int { return 404 }

// InvalidArgumentError is returned for malformed caller input (e.g. a
// phase outside [1,5]).
type InvalidArgumentError struct{ Reason string }

func (e *InvalidArgumentError) Error() string   { return e.Reason }
func (e *InvalidArgumentError) StatusCode() int { return 400 }

// LockUnavailableError is returned when UseService exhausts the backoff
// schedule without acquiring the distributed mutex.
type LockUnavailableError struct{ Service, Holder string }

func (e *LockUnavailableError) Error() string {
	return fmt.Sprintf("gpu lock held by %q, could not acquire for %q", e.Holder, e.Service)
}
func (e *LockUnavailableError) StatusCode() int { return 423 }

// PreemptionBlockedError is returned when a higher- or equal-priority
// service holds enough VRAM that preemption cannot make room.
type PreemptionBlockedError struct{ Service, BlockedBy string }

func (e *PreemptionBlockedError) Error() string {
	return fmt.Sprintf("cannot make room for %q: blocked by %q", e.Service, e.BlockedBy)
}
func (e *PreemptionBlockedError) StatusCode() int { return 409 }

// TrackerUnavailableError surfaces a tracker.TrackerUnavailableError
// through the orchestrator's own error type so callers only need to
// depend on this package's errors.
type TrackerUnavailableError struct{ Reason string }

func (e *TrackerUnavailableError) Error() string {
	return fmt.Sprintf("gpu tracker unavailable: %s", e.Reason)
}
func (e *TrackerUnavailableError) StatusCode() int { return 503 }
