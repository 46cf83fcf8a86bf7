package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pribylovaa/todo-auth/internal/http/response"
	"github.com/pribylovaa/todo-auth/internal/models"
	logctx "github.com/pribylovaa/todo-auth/internal/pkg/log"
	"github.com/pribylovaa/todo-auth/internal/storage"
)

// Сообщения AuthGuard (тело конверта при 401).
const (
	MsgNoToken             = "Unauthorized: No token provided"
	MsgInvalidOrExpired    = "Unauthorized: Invalid or expired token"
	MsgInvalidTokenAccount = "Unauthorized: Invalid token"
)

// TokenVerifier проверяет access-токен и возвращает subject.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

// AccountFinder разрешает subject токена в учётную запись.
type AccountFinder interface {
	AccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// AuthGuard пропускает запрос дальше, только если в Authorization передан
// валидный access-токен "Bearer <token>" и его subject существует в хранилище.
// Найденная учётная запись кладётся в контекст (см. IdentityFrom).
func AuthGuard(verifier TokenVerifier, finder AccountFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			lg := logctx.From(ctx)

			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				response.Failure(w, r, http.StatusUnauthorized, MsgNoToken)
				return
			}

			subject, err := verifier.Verify(raw)
			if err != nil {
				lg.Debug("auth_guard_rejected", slog.String("reason", err.Error()))
				response.Failure(w, r, http.StatusUnauthorized, MsgInvalidOrExpired)
				return
			}

			account, err := finder.AccountByID(ctx, subject)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					lg.Warn("auth_guard_unknown_subject", slog.String("account_id", subject.String()))
					response.Failure(w, r, http.StatusUnauthorized, MsgInvalidTokenAccount)
					return
				}

				lg.Error("auth_guard_lookup_failed",
					slog.String("account_id", subject.String()),
					slog.String("err", err.Error()),
				)
				response.Failure(w, r, http.StatusUnauthorized, MsgInvalidOrExpired)
				return
			}

			ctx = WithIdentity(ctx, account)
			ctx = logctx.With(ctx, slog.String("account_id", account.ID.String()))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken извлекает токен из значения "Bearer <token>" (схема без учёта регистра).
func bearerToken(header string) (string, bool) {
	scheme, tok, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", false
	}

	return tok, true
}
