// Package directory resolves tenant identity for inbound traffic. It is a
// read-only view over the record store; writes stay with the settings and
// entitlement flows.
package directory

import (
	"context"

	"github.com/shopmux/shopmux/internal/store"
)

// Directory answers "whose surface is this" and "who is this tenant".
type Directory struct {
	store store.Store
}

// New builds a Directory over the given store.
func New(st store.Store) *Directory {
	return &Directory{store: st}
}

// ResolveByWorkerToken maps a worker surface token to its owning tenant.
// Returns store.ErrNotFound when no tenant claims the token; a
// store.Unavailable fault is passed through unchanged so callers never
// mistake an outage for an unclaimed token.
func (d *Directory) ResolveByWorkerToken(ctx context.Context, token string) (*store.Profile, error) {
	return d.store.GetProfileByWorkerToken(ctx, token)
}

// ResolveByTenantID fetches a tenant profile by id.
func (d *Directory) ResolveByTenantID(ctx context.Context, tenantID int64) (*store.Profile, error) {
	return d.store.GetProfile(ctx, tenantID)
}

// ResolveByShopCode maps a public shop code to the tenant behind it.
func (d *Directory) ResolveByShopCode(ctx context.Context, code string) (*store.Profile, error) {
	return d.store.GetProfileByShopCode(ctx, code)
}
