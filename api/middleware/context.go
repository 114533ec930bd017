package middleware

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const principalKey ctxKey = 0

// principal is the authenticated caller. The ID is kept as text so rate-limit
// and idempotency scopes can use it without reformatting.
type principal struct {
	userID string
	email  string
}

func principalFrom(ctx context.Context) principal {
	if ctx == nil {
		return principal{}
	}
	p, _ := ctx.Value(principalKey).(principal)
	return p
}

// WithPrincipal marks ctx as authenticated as userID. email may be blank.
func WithPrincipal(ctx context.Context, userID, email string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey, principal{userID: userID, email: email})
}

func UserIDFromContext(ctx context.Context) string { return principalFrom(ctx).userID }

func EmailFromContext(ctx context.Context) string { return principalFrom(ctx).email }

// CurrentUserID returns uuid.Nil for anonymous requests.
func CurrentUserID(ctx context.Context) uuid.UUID {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil
	}
	return id
}
