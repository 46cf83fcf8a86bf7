// Package password - одностороннее хэширование паролей (bcrypt).
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Cost - фиксированный work factor bcrypt.
const Cost = 10

// ErrHashing - внутренняя ошибка хэширования (в штатном режиме не возникает).
var ErrHashing = errors.New("password hashing failed")

// Hash возвращает соленый bcrypt-хэш пароля.
func Hash(plain string) (string, error) {
	const op = "password.Hash"

	b, err := bcrypt.GenerateFromPassword([]byte(plain), Cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrHashing, err)
	}

	return string(b), nil
}

// Verify сравнивает пароль с хэшем за постоянное время.
// Несовпадение (как и битый хэш) - это false, а не ошибка.
func Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
