package lifecycle

import "fmt"

// ContainerMissingError indicates a containerized service's configured
// container_id does not exist on the engine (spec §4.3 start procedure).
type ContainerMissingError struct{ ContainerID string }

func (e *ContainerMissingError) Error() string {
	return fmt.Sprintf("container missing: %s", e.ContainerID)
}
func (e *ContainerMissingError) StatusCode() int { return 503 }

// StartTimeoutError indicates WaitReady did not observe health within the
// configured timeout after a start action was issued.
type StartTimeoutError struct{ Service string }

func (e *StartTimeoutError) Error() string {
	return fmt.Sprintf("service %q did not become ready in time", e.Service)
}
func (e *StartTimeoutError) StatusCode() int { return 504 }

// StopTimeoutError indicates a stop action did not bring the service to a
// stopped state before its deadline.
type StopTimeoutError struct{ Service string }

func (e *StopTimeoutError) Error() string {
	return fmt.Sprintf("service %q did not stop in time", e.Service)
}
func (e *StopTimeoutError) StatusCode() int { return 504 }

// UnknownServiceError indicates an operation referenced a service name not
// present in the registry.
type UnknownServiceError struct{ Service string }

func (e *UnknownServiceError) Error() string {
	return fmt.Sprintf("unknown service: %s", e.Service)
}
func (e *UnknownServiceError) StatusCode() int { return 404 }
