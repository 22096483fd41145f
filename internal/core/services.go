package core

import (
	"fmt"

	"github.com/go-chi/chi/v5"
)

// Service is a module mounted by the edge router under /{Name}.
type Service interface {
	// Name returns the unique identifier for this service (e.g. "relationships").
	// It doubles as the route prefix and the ENABLED_SERVICES key.
	Name() string

	// RegisterRoutes sets up HTTP routes for this service on a sub-router
	// scoped to its prefix.
	RegisterRoutes(router chi.Router)
}

// Registry holds the services built at startup, in registration order.
type Registry struct {
	services []Service
	names    map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register adds a service. Names must be unique.
func (r *Registry) Register(s Service) error {
	if _, ok := r.names[s.Name()]; ok {
		return fmt.Errorf("service %s already registered", s.Name())
	}
	r.names[s.Name()] = struct{}{}
	r.services = append(r.services, s)
	return nil
}

// Services returns the registered services.
func (r *Registry) Services() []Service {
	out := make([]Service, len(r.services))
	copy(out, r.services)
	return out
}
