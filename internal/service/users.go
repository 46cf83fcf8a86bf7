package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/pribylovaa/todo-auth/internal/models"
	"github.com/pribylovaa/todo-auth/internal/pkg/log"
	"github.com/pribylovaa/todo-auth/internal/pkg/redact"
	"github.com/pribylovaa/todo-auth/internal/pkg/validate"
	"github.com/pribylovaa/todo-auth/internal/storage"
)

// Accounts возвращает все учётные записи.
// Пустой список - ErrNoAccounts (errors.Is с ErrAccountNotFound тоже выполняется).
func (s *Service) Accounts(ctx context.Context) ([]models.Account, error) {
	const op = "service.users.Accounts"

	lg := log.From(ctx).With(slog.String("op", op))

	accounts, err := s.storage.Accounts(ctx)
	if err != nil {
		lg.Error("storage error on Accounts", slog.String("err", err.Error()))

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrNoAccounts, ErrAccountNotFound)
	}

	return accounts, nil
}

// AccountByID возвращает учётную запись по ID.
func (s *Service) AccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	const op = "service.users.AccountByID"

	account, err := s.storage.AccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrAccountNotFound)
		}

		log.From(ctx).Error("storage error on AccountByID",
			slog.String("op", op),
			slog.String("account_id", id.String()),
			slog.String("err", err.Error()),
		)

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return account, nil
}

// UpdateInput - изменяемые администратором поля. nil - поле не меняется.
type UpdateInput struct {
	Username *string
	Email    *string
	Roles    []string
}

// UpdateAccount обновляет username, email и роли учётной записи id от имени actorID.
//
// Поведение:
//   - форма полей проверяется validate.AccountUpdate, роли - models.ParseRole;
//   - снять роль ADMIN с собственной записи нельзя (ErrForbidden);
//   - занятые email/username -> ErrConflict, нет записи -> ErrAccountNotFound;
//   - пароль и refresh-слот не меняются.
func (s *Service) UpdateAccount(ctx context.Context, actorID, id uuid.UUID, in UpdateInput) (*models.Account, error) {
	const op = "service.users.UpdateAccount"

	lg := log.From(ctx).With(
		slog.String("op", op),
		slog.String("actor_id", actorID.String()),
		slog.String("account_id", id.String()),
	)

	if err := validate.AccountUpdate(in.Username, in.Email, in.Roles); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	roles, err := parseRoles(in.Roles)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if actorID == id && roles != nil && !slices.Contains(roles, models.RoleAdmin) {
		lg.Warn("self_demotion_denied")

		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}

	account, err := s.AccountByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if in.Username != nil {
		account.Username = strings.TrimSpace(*in.Username)
	}
	if in.Email != nil {
		account.Email = strings.TrimSpace(*in.Email)
	}
	if roles != nil {
		account.Roles = roles
	}

	if err := s.storage.UpdateAccount(ctx, account); err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyExists):
			lg.Warn("update_conflict", slog.String("email", redact.Email(account.Email)))

			return nil, fmt.Errorf("%s: %w", op, ErrConflict)
		case errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("%s: %w", op, ErrAccountNotFound)
		}

		lg.Error("storage error on UpdateAccount", slog.String("err", err.Error()))

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	account.UpdatedAt = s.now().UTC()
	lg.Info("account_updated", slog.Any("roles", models.RoleStrings(account.Roles)))

	return account, nil
}

// parseRoles приводит роли к закрытому набору без дублей. nil - роли не меняются.
func parseRoles(ss []string) ([]models.Role, error) {
	if ss == nil {
		return nil, nil
	}

	out := make([]models.Role, 0, len(ss))
	for _, s := range ss {
		r, err := models.ParseRole(s)
		if err != nil {
			return nil, validate.Errors{{Field: "roles", Message: err.Error()}}
		}
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}

	return out, nil
}

// DeleteAccount удаляет учётную запись id от имени actorID.
// Удалить собственную запись нельзя (ErrForbidden).
func (s *Service) DeleteAccount(ctx context.Context, actorID, id uuid.UUID) error {
	const op = "service.users.DeleteAccount"

	lg := log.From(ctx).With(
		slog.String("op", op),
		slog.String("actor_id", actorID.String()),
		slog.String("account_id", id.String()),
	)

	if actorID == id {
		lg.Warn("delete_self_denied")

		return fmt.Errorf("%s: %w", op, ErrForbidden)
	}

	if err := s.storage.DeleteAccount(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrAccountNotFound)
		}

		lg.Error("storage error on DeleteAccount", slog.String("err", err.Error()))

		return fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("account_deleted")

	return nil
}
