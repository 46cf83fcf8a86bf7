package middleware

import (
	"context"

	"github.com/pribylovaa/todo-auth/internal/models"
)

type identityKey struct{}

// WithIdentity кладёт аутентифицированную учётную запись в контекст запроса.
func WithIdentity(ctx context.Context, account *models.Account) context.Context {
	return context.WithValue(ctx, identityKey{}, account)
}

// IdentityFrom достаёт учётную запись, положенную AuthGuard.
func IdentityFrom(ctx context.Context) (*models.Account, bool) {
	a, ok := ctx.Value(identityKey{}).(*models.Account)
	return a, ok && a != nil
}
