package services

import (
	"context"

	"support-chat/internal/domain"
)

type ctxKey int

const (
	identityKey ctxKey = iota
	adminKey
)

func WithIdentity(ctx context.Context, id domain.Identity, isAdmin bool) context.Context {
	ctx = context.WithValue(ctx, identityKey, id)
	return context.WithValue(ctx, adminKey, isAdmin)
}

func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey).(domain.Identity)
	return id, ok
}

func IsAdminFromContext(ctx context.Context) bool {
	isAdmin, _ := ctx.Value(adminKey).(bool)
	return isAdmin
}
