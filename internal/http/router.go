// Package http собирает API-роутер: сквозные мидлвары, гарды и обработчики.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/todo-auth/internal/http/handlers"
	"github.com/pribylovaa/todo-auth/internal/http/middleware"
	"github.com/pribylovaa/todo-auth/internal/models"
)

// Options - параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	Metrics  *middleware.HTTPMetrics // nil - метрики не собираются.
	BasePath string                  // например, "/api"; если пустой - роуты регистрируются на корне.
}

// Deps - зависимости обработчиков и гардов.
type Deps struct {
	Service  handlers.AuthService
	Verifier middleware.TokenVerifier // access-кодек
	Accounts middleware.AccountFinder // хранилище учётных записей
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(deps Deps, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // безопасно ловим паники
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
	)
	if opts.Metrics != nil {
		root.Use(opts.Metrics.Middleware())
	}
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	h := handlers.New(deps.Service)
	authGuard := middleware.AuthGuard(deps.Verifier, deps.Accounts)

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, authGuard)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h, authGuard)
	return root
}

// registerRoutes - единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, authGuard middleware.Middleware) {
	// auth
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/refresh-token", h.RefreshToken)
	r.With(authGuard).Post("/auth/logout", h.Logout)

	// users
	r.With(authGuard).Get("/users/me", h.Me)

	r.Group(func(admin chi.Router) {
		admin.Use(authGuard, middleware.RoleGuard(models.RoleAdmin))

		admin.Get("/users", h.ListUsers)
		admin.Get("/users/{id}", h.GetUser)
		admin.Put("/users/{id}", h.UpdateUser)
		admin.Delete("/users/{id}", h.DeleteUser)
	})
}
