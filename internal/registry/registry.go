// Package registry holds the static, declarative catalog of GPU services.
//
// Descriptors are immutable once loaded (I1); the registry answers lookup
// queries only and never mutates a descriptor after construction.
package registry

import (
	"fmt"
	"net/url"
	"sort"

	"gpumand/pkg/types"
)

// Registry is a read-only catalog of ServiceDescriptor values.
type Registry struct {
	order []string
	byName map[string]types.ServiceDescriptor
}

// New validates descriptors and builds a Registry. Iteration order from
// All() follows the order descriptors are passed in here.
func New(descriptors []types.ServiceDescriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]types.ServiceDescriptor, len(descriptors))}
	for _, d := range descriptors {
		if err := validate(d); err != nil {
			return nil, fmt.Errorf("service %q: %w", d.Name, err)
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate service name %q", d.Name)
		}
		r.byName[d.Name] = d
		r.order = append(r.order, d.Name)
	}
	return r, nil
}

func validate(d types.ServiceDescriptor) error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch d.Kind {
	case types.KindNative:
		if d.StartCmd == "" || d.StopCmd == "" {
			return fmt.Errorf("native service requires start_cmd and stop_cmd")
		}
	case types.KindContainerized:
		if d.ContainerID == "" {
			return fmt.Errorf("containerized service requires container_id")
		}
	default:
		return fmt.Errorf("unknown kind %q", d.Kind)
	}
	if d.HealthURL == "" {
		return fmt.Errorf("health_url is required")
	}
	if u, err := url.Parse(d.HealthURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("health_url %q is not a valid URL", d.HealthURL)
	}
	if d.HealthTimeoutS < 0 {
		return fmt.Errorf("health_timeout_s must not be negative")
	}
	if d.WarmupS < 0 {
		return fmt.Errorf("warmup_s must not be negative")
	}
	if d.GracefulEvictURL != "" {
		if u, err := url.Parse(d.GracefulEvictURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("graceful_evict_url %q is not a valid URL", d.GracefulEvictURL)
		}
	}
	return nil
}

// Get returns the descriptor for name, if present.
func (r *Registry) Get(name string) (types.ServiceDescriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// All returns every descriptor in insertion order.
func (r *Registry) All() []types.ServiceDescriptor {
	out := make([]types.ServiceDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// ForPhase returns the names of every descriptor required by phase, in
// insertion order.
func (r *Registry) ForPhase(phase int) []string {
	var names []string
	for _, name := range r.order {
		if r.byName[name].HasPhase(phase) {
			names = append(names, name)
		}
	}
	return names
}

// sortByPriorityAsc returns names sorted by ascending priority, breaking ties
// by registry insertion order (stable sort preserves that automatically).
func (r *Registry) sortByPriorityAsc(names []string) []string {
	out := append([]string(nil), names...)
	sort.SliceStable(out, func(i, j int) bool {
		return r.byName[out[i]].Priority < r.byName[out[j]].Priority
	})
	return out
}

// SortByPriorityAsc exposes sortByPriorityAsc for use by the orchestrator's
// preemption ordering (lowest priority first, stable on registry order).
func (r *Registry) SortByPriorityAsc(names []string) []string {
	return r.sortByPriorityAsc(names)
}
