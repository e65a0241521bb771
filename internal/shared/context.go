package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the acting staff member id in context.
// The business (tenant) id is never carried in context; it is an
// explicit parameter on every service and repository call.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the acting staff member id, zero when absent.
func ActorFromContext(ctx context.Context) int64 {
	actorID, _ := ctx.Value(actorContextKey{}).(int64)
	return actorID
}
