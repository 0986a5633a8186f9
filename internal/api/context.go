package api

import (
	"context"

	"github.com/sarvex/keywhiz/internal/principal"
)

type contextKey string

const (
	ctxKeyPrincipal contextKey = "principal"
	ctxKeyRequestID contextKey = "request_id"
)

func withPrincipal(ctx context.Context, p principal.AuthPrincipal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// principalFromCtx returns the caller injected by clientCertMiddleware.
// A nil, false result means the request reached a handler that requires
// one without going through that middleware, which is a wiring bug, not
// a caller error.
func principalFromCtx(ctx context.Context) (principal.AuthPrincipal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(principal.AuthPrincipal)
	return p, ok
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

func requestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}
