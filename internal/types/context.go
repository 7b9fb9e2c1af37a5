package types

import "context"

// Actor represents the authenticated identity performing a request.
// It is resolved from a verified session token by the auth middleware and is
// the ONLY source of caller identity; client-supplied identity headers are
// never trusted.
type Actor struct {
	// ClerkUserID is the stable external identity id issued by the
	// identity provider (the "sub" claim of the session token).
	ClerkUserID string
	Email       string
	Name        string
}

// Context keys
type contextKey string

const (
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
)

// WithActor stores the Actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the Actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
