package backend

import "context"

type userContextKey struct{}

// WithUser attaches the authenticated actor to the request context.
// The auth middleware calls this after resolving the merchant account.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the actor previously attached by WithUser.
func UserFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userContextKey{}).(User)
	return user, ok
}

// ContextAuth implements Auth by reading the actor placed on the request
// context by the auth middleware. Anonymous requests yield no user.
type ContextAuth struct{}

func (ContextAuth) CurrentUser(ctx context.Context) (User, bool) {
	return UserFromContext(ctx)
}
