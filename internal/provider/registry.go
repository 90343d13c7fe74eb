// Package provider routes a connection to the calendar client for its provider.
package provider

import (
	"context"
	"fmt"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
)

// Registry dispatches ListEvents by CalendarConnection.Provider.
type Registry struct {
	providers map[string]domain.Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]domain.Provider)}
}

// Register binds a provider name to a client.
func (r *Registry) Register(name string, p domain.Provider) *Registry {
	r.providers[name] = p
	return r
}

// ListEvents forwards to the client registered for conn.Provider.
func (r *Registry) ListEvents(ctx context.Context, conn domain.CalendarConnection, window domain.Window) ([]domain.RawEvent, error) {
	p, ok := r.providers[conn.Provider]
	if !ok {
		return nil, fmt.Errorf("calendar provider %q is not supported", conn.Provider)
	}
	return p.ListEvents(ctx, conn, window)
}

// Supports reports whether a provider name has a client.
func (r *Registry) Supports(name string) bool {
	_, ok := r.providers[name]
	return ok
}
