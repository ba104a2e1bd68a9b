package cont

import (
	"context"

	"StayDesk/entity"
)

type contextKey string

const identityKey contextKey = "identity"

// PutIdentity stores the authenticated identity in the request context.
func PutIdentity(ctx context.Context, identity *entity.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// GetIdentity returns the authenticated identity from the request context,
// or nil if the request was not authenticated.
func GetIdentity(ctx context.Context) *entity.Identity {
	identity, ok := ctx.Value(identityKey).(*entity.Identity)
	if !ok {
		return nil
	}
	return identity
}
