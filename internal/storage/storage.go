// Package storage задаёт контракт хранилища учётных записей (CredentialStore).
// Реализации: mongo (по умолчанию), postgres, memory.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/pribylovaa/todo-auth/internal/models"
)

var (
	// ErrNotFound - запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists - нарушение уникальности (email/username).
	ErrAlreadyExists = errors.New("already exists")
)

//go:generate mockgen -source=storage.go -destination=../../mocks/storage_mock.go -package=mocks

// AccountStorage выполняет операции над учётными записями.
type AccountStorage interface {
	// SaveAccount создаёт новую учётную запись. Дубликат email/username - ErrAlreadyExists.
	SaveAccount(ctx context.Context, account *models.Account) error
	// AccountByID находит учётную запись по ID.
	AccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	// AccountByUsername находит учётную запись по username.
	AccountByUsername(ctx context.Context, username string) (*models.Account, error)
	// AccountByEmail находит учётную запись по email.
	AccountByEmail(ctx context.Context, email string) (*models.Account, error)
	// Accounts возвращает все учётные записи (сначала старые).
	Accounts(ctx context.Context) ([]models.Account, error)
	// UpdateAccount перезаписывает username, email и роли записи account.ID
	// (и updated_at). Занятые email/username - ErrAlreadyExists.
	UpdateAccount(ctx context.Context, account *models.Account) error
	// DeleteAccount удаляет учётную запись.
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}

// RefreshSlotStorage управляет единственным слотом refresh-токена аккаунта.
// Запись безусловная: выпуск перезаписывает слот, logout обнуляет его.
type RefreshSlotStorage interface {
	// SetRefreshToken перезаписывает слот значением token.
	SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error
	// ClearRefreshToken обнуляет слот. Пустой слот - не ошибка.
	ClearRefreshToken(ctx context.Context, id uuid.UUID) error
}

// Storage задает контракт работы с хранилищем.
type Storage interface {
	AccountStorage
	RefreshSlotStorage
	Close()
}
