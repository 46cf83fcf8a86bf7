// Package models содержит доменные сущности сервиса аутентификации.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Account - учётная запись пользователя.
//
// Описание:
//   - Email и Username уникальны (гарантируется хранилищем);
//   - PasswordHash - bcrypt-хэш, наружу никогда не отдаётся;
//   - RefreshToken - единственный «живой» refresh-токен аккаунта;
//     nil означает, что активного refresh-токена нет (после logout).
type Account struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	Roles        []Role
	RefreshToken *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRole сообщает, входит ли роль в набор ролей аккаунта.
// Порядок и размер набора значения не имеют.
func (a *Account) HasRole(r Role) bool {
	if a == nil {
		return false
	}

	for _, have := range a.Roles {
		if have == r {
			return true
		}
	}

	return false
}

// HasRefreshToken сообщает, есть ли у аккаунта активный refresh-токен.
func (a *Account) HasRefreshToken() bool {
	return a != nil && a.RefreshToken != nil
}
