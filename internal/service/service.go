// Package service содержит бизнес-логику аутентификации и авторизации:
// регистрацию, вход, обновление access-токена, logout и административные
// операции над учётными записями.
//
// Основные аспекты:
//   - Service не хранит состояние запроса и после создания не изменяется;
//     безопасен для конкурентного использования, если потокобезопасно
//     переданное хранилище (storage.Storage).
//   - Ошибки возвращаются как обёртки над сентинелами ниже и маппятся
//     транспортом в HTTP-статусы (см. пакет internal/http/response).
package service

import (
	"errors"
	"time"

	"github.com/pribylovaa/todo-auth/internal/pkg/token"
	"github.com/pribylovaa/todo-auth/internal/pkg/validate"
	"github.com/pribylovaa/todo-auth/internal/storage"
)

var (
	// ErrValidation - входные данные не прошли проверку формы.
	// Совпадает с validate.ErrInvalid, errors.Is работает для обоих. HTTP 400.
	ErrValidation = validate.ErrInvalid

	// ErrAccountNotFound - учётная запись не найдена. HTTP 404.
	ErrAccountNotFound = errors.New("account not found")

	// ErrNoAccounts - список учётных записей пуст. Возвращается вместе
	// с ErrAccountNotFound. HTTP 404.
	ErrNoAccounts = errors.New("no accounts found")

	// ErrInvalidCredentials - пароль не совпал. HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken - токен некорректен по подписи/формату/issuer. HTTP 401.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired - срок действия токена истёк. HTTP 401.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked - refresh-токен не совпадает со слотом аккаунта
	// (только в режиме StrictRefresh). HTTP 401.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrForbidden - операция запрещена для текущего субъекта. HTTP 403.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict - email или username уже заняты. HTTP 409.
	ErrConflict = errors.New("account already exists")
)

// Tokens - пара кодеков: access и refresh подписываются разными секретами.
type Tokens struct {
	Access  *token.Codec
	Refresh *token.Codec
}

// Options - поведенческие переключатели сервиса.
type Options struct {
	// StrictRefresh делает слот refresh-токена авторитетным: /auth/refresh-token
	// принимает только значение, совпадающее с сохранённым.
	StrictRefresh bool
}

// Service описывает бизнес-логику auth.
type Service struct {
	storage storage.Storage
	tokens  Tokens
	opts    Options
	now     func() time.Time
}

// New создаёт новый экземпляр Service.
func New(storage storage.Storage, tokens Tokens, opts Options) *Service {
	return &Service{
		storage: storage,
		tokens:  tokens,
		opts:    opts,
		now:     time.Now,
	}
}
