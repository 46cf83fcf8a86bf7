package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pribylovaa/todo-auth/internal/models"
	"github.com/pribylovaa/todo-auth/internal/pkg/log"
	"github.com/pribylovaa/todo-auth/internal/pkg/validate"
	"github.com/pribylovaa/todo-auth/internal/storage"
)

// EnsureAdmin создаёт учётную запись администратора (роли USER и ADMIN)
// при первом запуске. Если username уже занят, ничего не делает и
// возвращает created=false.
func (s *Service) EnsureAdmin(ctx context.Context, in RegisterInput) (account *models.Account, created bool, err error) {
	const op = "service.bootstrap.EnsureAdmin"

	lg := log.From(ctx).With(slog.String("op", op), slog.String("username", in.Username))

	if err := validate.Registration(in.Username, in.Email, in.Password); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	existing, err := s.storage.AccountByUsername(ctx, in.Username)
	switch {
	case err == nil:
		lg.Info("admin exists, skipping bootstrap", slog.Bool("is_admin", existing.HasRole(models.RoleAdmin)))

		return existing, false, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	account, err = s.createAccount(ctx, op, in, []models.Role{models.RoleUser, models.RoleAdmin})
	if err != nil {
		return nil, false, err
	}

	lg.Warn("bootstrap admin account created", slog.String("account_id", account.ID.String()))

	return account, true, nil
}
