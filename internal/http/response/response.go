// response стандартизирует ответы HTTP-слоя: единый конверт для успеха
// и ошибки, а также маппинг доменных ошибок в HTTP-статусы.
//
// Формат тела:
//
//	{"success": bool, "message": string, "responseObject": any|null, "statusCode": int, "requestId"?: string}
//
// Детали внутренних ошибок (БД, драйверы, библиотеки) на клиент не уходят.
package response

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pribylovaa/todo-auth/internal/pkg/validate"
	"github.com/pribylovaa/todo-auth/internal/service"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// Envelope - единый формат ответа для клиента.
type Envelope struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	ResponseObject any    `json:"responseObject"`
	StatusCode     int    `json:"statusCode"`
	RequestID      string `json:"requestId,omitempty"`
}

// ToHTTP конвертирует ошибку в HTTP-статус и безопасное сообщение.
//
// Таблица:
//   - ErrValidation -> 400 (с перечнем полей);
//   - ErrInvalidCredentials / ErrInvalidToken / ErrTokenExpired / ErrTokenRevoked -> 401;
//   - ErrForbidden -> 403;
//   - ErrNoAccounts -> 404 "No Users found", ErrAccountNotFound -> 404;
//   - ErrConflict -> 409;
//   - context.Canceled -> 499, context.DeadlineExceeded -> 504;
//   - прочее (и err == nil) -> 500/internal error.
func ToHTTP(err error) (int, string) {
	if err == nil {
		return http.StatusInternalServerError, "internal error"
	}

	var fields validate.Errors

	switch {
	case errors.As(err, &fields):
		return http.StatusBadRequest, "Invalid input: " + fields.Summary()
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "Invalid input"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, service.ErrTokenExpired):
		return http.StatusUnauthorized, "Token expired"
	case errors.Is(err, service.ErrTokenRevoked):
		return http.StatusUnauthorized, "Token revoked"
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, "Invalid token"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, service.ErrNoAccounts):
		return http.StatusNotFound, "No Users found"
	case errors.Is(err, service.ErrAccountNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "User already exists"
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline exceeded"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// WriteError пишет конверт ошибки со статусом из ToHTTP.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := ToHTTP(err)
	Write(w, r, status, Envelope{Message: msg})
}

// Failure пишет конверт ошибки с явным статусом и сообщением (используется гардами).
func Failure(w http.ResponseWriter, r *http.Request, status int, message string) {
	Write(w, r, status, Envelope{Message: message})
}

// Success пишет 200 с полезной нагрузкой obj.
func Success(w http.ResponseWriter, r *http.Request, message string, obj any) {
	Write(w, r, http.StatusOK, Envelope{Success: true, Message: message, ResponseObject: obj})
}

// Write дополняет конверт статусом и request_id и сериализует его.
func Write(w http.ResponseWriter, r *http.Request, status int, env Envelope) {
	env.StatusCode = status

	// Прокидываем request_id для клиента, чтобы он мог репортить баги с привязкой.
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		env.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
