package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout ограничивает время обработки API-запроса значением timeouts.service.
//
// Дедлайн уходит вместе с контекстом в сервис и хранилище (bcrypt, mongo,
// postgres). Истёкший дедлайн возвращается как context.DeadlineExceeded и
// превращается в 504 "deadline exceeded" (см. response.ToHTTP).
// Существующий дедлайн не переопределяется; d <= 0 отключает мидлвар.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Deadline(); ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
