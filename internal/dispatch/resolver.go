package dispatch

import (
	"context"
	"errors"

	"github.com/shopmux/shopmux/internal/directory"
	"github.com/shopmux/shopmux/internal/store"
)

// Resolver is the tenant-resolution middleware. It runs synchronously ahead
// of every handler; the tree owns the only call site, so no route can be
// registered around it.
type Resolver struct {
	dir *directory.Directory
}

// NewResolver builds a Resolver over the tenant directory.
func NewResolver(dir *directory.Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve attaches tenant context to ec based on the surface the event
// arrived on.
//
// A token claimed by a tenant marks a worker surface: the tenant is that
// owner, and is-owner is a strict id comparison. An unclaimed token is the
// master surface: every user acts on their own storefront context, so
// is-owner is always true and the tenant is the acting user, whose profile
// may not exist yet.
//
// Store unavailability is returned as an error, never mapped to "unclaimed
// token": misreading an outage as the master surface would hand worker
// traffic the wrong tenant.
func (r *Resolver) Resolve(ctx context.Context, surfaceToken string, ec *EventContext) error {
	if ec.User == nil {
		// Technical event with no acting user. Leave it unresolved; owner
		// and customer routes will not match.
		return nil
	}

	owner, err := r.dir.ResolveByWorkerToken(ctx, surfaceToken)
	switch {
	case err == nil:
		ec.Resolved = true
		ec.IsOwner = ec.User.ID == owner.TenantID
		ec.TenantID = owner.TenantID
		ec.Profile = owner
		return nil
	case errors.Is(err, store.ErrNotFound):
		// Master surface.
	default:
		return err
	}

	ec.Resolved = true
	ec.Master = true
	ec.IsOwner = true
	ec.TenantID = ec.User.ID

	profile, err := r.dir.ResolveByTenantID(ctx, ec.User.ID)
	switch {
	case err == nil:
		ec.Profile = profile
	case errors.Is(err, store.ErrNotFound):
		ec.Profile = nil
	default:
		return err
	}
	return nil
}
