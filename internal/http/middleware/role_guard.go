package middleware

import (
	"log/slog"
	"net/http"

	"github.com/pribylovaa/todo-auth/internal/http/response"
	"github.com/pribylovaa/todo-auth/internal/models"
	logctx "github.com/pribylovaa/todo-auth/internal/pkg/log"
)

// Сообщения RoleGuard (тело конверта при 403).
const (
	MsgNoRoles          = "Access denied: User not authenticated or roles not defined."
	MsgInsufficientRole = "Access denied: Insufficient role."
)

// RoleGuard пропускает запрос, только если у учётной записи из контекста
// есть роль required. Ставится после AuthGuard.
func RoleGuard(required models.Role) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, ok := IdentityFrom(r.Context())
			if !ok || len(account.Roles) == 0 {
				response.Failure(w, r, http.StatusForbidden, MsgNoRoles)
				return
			}

			if !account.HasRole(required) {
				logctx.From(r.Context()).Warn("role_guard_denied",
					slog.String("required", string(required)),
				)
				response.Failure(w, r, http.StatusForbidden, MsgInsufficientRole)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
