// Package ctxutil carries the acting identity through a context.
// It has no internal dependencies so any layer may import it.
package ctxutil

import "context"

type actorKey struct{}

// WithActorID returns a context recording who is acting: a staff user ID
// or a system actor such as "system:scheduler".
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFromContext returns the actor ID from context, or empty string if not set.
func ActorFromContext(ctx context.Context) string {
	actorID, _ := ctx.Value(actorKey{}).(string)
	return actorID
}

// ActorOr returns explicit when set, else the context's actor.
func ActorOr(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return ActorFromContext(ctx)
}
