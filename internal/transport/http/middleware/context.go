package middleware

import (
	"context"

	"hrflow/internal/domain/auth"
	"hrflow/internal/requestctx"
)

type ctxKey string

const ctxKeyUser ctxKey = "user"

// WithUser stores the authenticated actor on ctx.
func WithUser(ctx context.Context, user auth.UserContext) context.Context {
	ctx = requestctx.WithActor(ctx, user.UserID)
	return context.WithValue(ctx, ctxKeyUser, user)
}

func GetUser(ctx context.Context) (auth.UserContext, bool) {
	user, ok := ctx.Value(ctxKeyUser).(auth.UserContext)
	return user, ok
}

func GetRequestID(ctx context.Context) string {
	return requestctx.RequestID(ctx)
}
