package session

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
)

type contextKey string

const IdentityKey contextKey = "identity"

var ErrNoIdentity = errors.New("identity not found")

// CurrentID retrieves the current identity's ID from the context.
// Returns ErrNoIdentity if no identity is present.
func CurrentID(ctx context.Context) (string, error) {
	identity, ok := ctx.Value(IdentityKey).(Identity)
	if !ok {
		log.Trace("identity not found in context")
		return "", ErrNoIdentity
	}
	return identity.ID, nil
}

func CurrentIdentity(ctx context.Context) (Identity, error) {
	identity, ok := ctx.Value(IdentityKey).(Identity)
	if !ok {
		log.Trace("identity not found in context")
		return Identity{}, ErrNoIdentity
	}
	return identity, nil
}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}
