// Package handlers содержит HTTP-обработчики /auth/* и /users/*.
// Форма входа проверяется пакетом validate до вызова сервиса,
// ошибки сервиса отдаются через response.WriteError.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/pribylovaa/todo-auth/internal/models"
	"github.com/pribylovaa/todo-auth/internal/pkg/validate"
	"github.com/pribylovaa/todo-auth/internal/service"
)

// maxBodyBytes ограничивает размер JSON-тела запроса.
const maxBodyBytes = 1 << 20

// AuthService - операции сервиса, которые нужны обработчикам.
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*models.Account, error)
	Authenticate(ctx context.Context, login, password string) (*models.TokenPair, error)
	VerifyRefreshToken(token string) (uuid.UUID, error)
	RefreshToken(ctx context.Context, accountID uuid.UUID, presented string) (string, error)
	Logout(ctx context.Context, accountID uuid.UUID) error
	Accounts(ctx context.Context) ([]models.Account, error)
	AccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	UpdateAccount(ctx context.Context, actorID, id uuid.UUID, in service.UpdateInput) (*models.Account, error)
	DeleteAccount(ctx context.Context, actorID, id uuid.UUID) error
}

// Handlers агрегирует зависимости обработчиков.
type Handlers struct {
	svc AuthService
}

func New(svc AuthService) *Handlers {
	return &Handlers{svc: svc}
}

// errMalformedBody - тело не разобралось как ожидаемый JSON.
var errMalformedBody = validate.Errors{{Field: "body", Message: "malformed JSON"}}

// decodeStrict - строгий JSON-декодер: запрещаем неизвестные поля и хвосты после объекта.
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(value); err != nil {
		return errMalformedBody
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errMalformedBody
	}

	return nil
}
