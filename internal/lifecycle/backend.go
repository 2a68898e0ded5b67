package lifecycle

import "context"

// backend issues the kind-specific start/stop action for one service
// descriptor (spec §4.3 "Start procedure" / "Stop procedure", step 3 of
// each). Warm-up sleep, health polling, settle delay, and graceful
// eviction are handled once in Manager for both kinds.
type backend interface {
	// start issues the underlying start action (container run / process
	// spawn) and returns once the action has been issued — not once the
	// service is healthy.
	start(ctx context.Context, svc serviceRef) error
	// stop issues the underlying stop action. force selects a harsher
	// signal where the kind supports one.
	stop(ctx context.Context, svc serviceRef, force bool) error
}

// serviceRef is the subset of types.ServiceDescriptor a backend needs,
// named locally so backend implementations don't import the registry.
type serviceRef struct {
	Name        string
	ContainerID string
	StartCmd    string
	StopCmd     string
	PIDFile     string
}
