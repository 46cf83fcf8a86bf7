// Package memory - потокобезопасное хранилище учётных записей в памяти.
// Подходит для локального запуска и тестов; данные живут до остановки процесса.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/todo-auth/internal/models"
	"github.com/pribylovaa/todo-auth/internal/storage"
)

type Storage struct {
	mu        sync.RWMutex
	byID      map[uuid.UUID]*models.Account
	emails    map[string]uuid.UUID
	usernames map[string]uuid.UUID
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		byID:      make(map[uuid.UUID]*models.Account),
		emails:    make(map[string]uuid.UUID),
		usernames: make(map[string]uuid.UUID),
	}
}

// Close - no-op, нужен для соответствия storage.Storage.
func (s *Storage) Close() {}

// SaveAccount создаёт новую учётную запись.
func (s *Storage) SaveAccount(ctx context.Context, account *models.Account) error {
	const op = "storage.memory.SaveAccount"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email, username := emailKey(account.Email), account.Username
	if _, ok := s.byID[account.ID]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	if _, ok := s.emails[email]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	if _, ok := s.usernames[username]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	cp := clone(account)
	s.byID[cp.ID] = cp
	s.emails[email] = cp.ID
	s.usernames[username] = cp.ID

	return nil
}

// AccountByID находит учётную запись по ID.
func (s *Storage) AccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	const op = "storage.memory.AccountByID"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return clone(a), nil
}

// AccountByUsername находит учётную запись по username.
func (s *Storage) AccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	const op = "storage.memory.AccountByUsername"

	return s.lookup(ctx, op, s.usernames, username)
}

// AccountByEmail находит учётную запись по email (без учёта регистра).
func (s *Storage) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	const op = "storage.memory.AccountByEmail"

	return s.lookup(ctx, op, s.emails, emailKey(email))
}

// Accounts возвращает все учётные записи по возрастанию created_at.
func (s *Storage) Accounts(ctx context.Context) ([]models.Account, error) {
	const op = "storage.memory.Accounts"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	out := make([]models.Account, 0, len(s.byID))
	for _, a := range s.byID {
		out = append(out, *clone(a))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

// UpdateAccount обновляет username, email и роли, переиндексируя уникальные ключи.
func (s *Storage) UpdateAccount(ctx context.Context, account *models.Account) error {
	const op = "storage.memory.UpdateAccount"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[account.ID]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	email := emailKey(account.Email)
	if id, ok := s.emails[email]; ok && id != account.ID {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	if id, ok := s.usernames[account.Username]; ok && id != account.ID {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	delete(s.emails, emailKey(cur.Email))
	delete(s.usernames, cur.Username)

	cur.Username = account.Username
	cur.Email = account.Email
	cur.Roles = append([]models.Role(nil), account.Roles...)
	cur.UpdatedAt = time.Now().UTC()

	s.emails[email] = cur.ID
	s.usernames[cur.Username] = cur.ID

	return nil
}

// DeleteAccount удаляет учётную запись.
func (s *Storage) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	const op = "storage.memory.DeleteAccount"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	delete(s.emails, emailKey(a.Email))
	delete(s.usernames, a.Username)
	delete(s.byID, id)

	return nil
}

// SetRefreshToken перезаписывает слот refresh-токена.
func (s *Storage) SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	const op = "storage.memory.SetRefreshToken"

	return s.updateSlot(ctx, op, id, &token)
}

// ClearRefreshToken обнуляет слот refresh-токена.
func (s *Storage) ClearRefreshToken(ctx context.Context, id uuid.UUID) error {
	const op = "storage.memory.ClearRefreshToken"

	return s.updateSlot(ctx, op, id, nil)
}

func (s *Storage) updateSlot(ctx context.Context, op string, id uuid.UUID, token *string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	if token != nil {
		v := *token
		a.RefreshToken = &v
	} else {
		a.RefreshToken = nil
	}
	a.UpdatedAt = time.Now().UTC()

	return nil
}

func (s *Storage) lookup(ctx context.Context, op string, index map[string]uuid.UUID, key string) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := index[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return clone(s.byID[id]), nil
}

// emailKey - email уникален без учёта регистра (как CITEXT в postgres).
func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// clone отдаёт наружу копию, чтобы вызывающий не мутировал состояние хранилища.
func clone(a *models.Account) *models.Account {
	cp := *a
	cp.Roles = append([]models.Role(nil), a.Roles...)
	if a.RefreshToken != nil {
		v := *a.RefreshToken
		cp.RefreshToken = &v
	}

	return &cp
}

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Storage)(nil)
