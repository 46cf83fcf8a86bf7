package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/todo-auth/internal/models"
	"github.com/pribylovaa/todo-auth/internal/pkg/log"
	"github.com/pribylovaa/todo-auth/internal/pkg/password"
	"github.com/pribylovaa/todo-auth/internal/pkg/redact"
	"github.com/pribylovaa/todo-auth/internal/pkg/token"
	"github.com/pribylovaa/todo-auth/internal/storage"
)

// emailLoginRe решает, искать ли аккаунт при входе по email или по username.
var emailLoginRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// RegisterInput - данные для создания учётной записи.
// Форма полей проверяется заранее (validate.Registration).
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Register создаёт учётную запись с ролью USER.
//
// Поведение:
//   - пароль хэшируется bcrypt, открытый текст нигде не сохраняется;
//   - занятые email/username -> ErrConflict;
//   - refresh-слот новой записи пуст.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.Account, error) {
	const op = "service.auth.Register"

	return s.createAccount(ctx, op, in, []models.Role{models.RoleUser})
}

func (s *Service) createAccount(ctx context.Context, op string, in RegisterInput, roles []models.Role) (*models.Account, error) {
	lg := log.From(ctx).With(
		slog.String("op", op),
		slog.String("username", in.Username),
		slog.String("email", redact.Email(in.Email)),
	)

	hash, err := password.Hash(in.Password)
	if err != nil {
		lg.Error("password_hash_failed", slog.String("err", err.Error()))

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	account := &models.Account{
		ID:           uuid.New(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveAccount(ctx, account); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			lg.Warn("register_conflict")

			return nil, fmt.Errorf("%s: %w", op, ErrConflict)
		}

		lg.Error("register_failed", slog.String("err", err.Error()))

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("account_registered", slog.String("account_id", account.ID.String()))

	return account, nil
}

// Authenticate выполняет вход по username или email и паролю.
//
// Поведение:
//   - строка, похожая на email, ищется по email, иначе по username;
//   - нет аккаунта -> ErrAccountNotFound, неверный пароль -> ErrInvalidCredentials;
//   - при успехе выпускаются оба токена, refresh перезаписывает слот.
func (s *Service) Authenticate(ctx context.Context, login, plain string) (*models.TokenPair, error) {
	const op = "service.auth.Authenticate"

	lg := log.From(ctx).With(slog.String("op", op), slog.String("login", redact.Login(login)))

	account, err := s.accountByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("login_failed", slog.String("reason", "not_found"))

			return nil, fmt.Errorf("%s: %w", op, ErrAccountNotFound)
		}

		lg.Error("login_lookup_failed", slog.String("err", err.Error()))

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !password.Verify(plain, account.PasswordHash) {
		lg.Warn("login_failed", slog.String("reason", "bad_password"))

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	access, accessExp, err := s.GenerateAccessToken(account)
	if err != nil {
		lg.Error("issue_access_failed", slog.String("err", err.Error()))

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refresh, err := s.GenerateRefreshToken(account)
	if err != nil {
		lg.Error("issue_refresh_failed", slog.String("err", err.Error()))

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.SetRefreshToken(ctx, account.ID, refresh); err != nil {
		lg.Error("save_refresh_failed", slog.String("err", err.Error()))

		return nil, fmt.Errorf("%s: %w", op, mapNotFound(err))
	}

	lg.Info("login_succeeded", slog.String("account_id", account.ID.String()))

	return &models.TokenPair{
		AccessToken:     access,
		RefreshToken:    refresh,
		AccessExpiresAt: accessExp,
	}, nil
}

func (s *Service) accountByLogin(ctx context.Context, login string) (*models.Account, error) {
	if emailLoginRe.MatchString(login) {
		return s.storage.AccountByEmail(ctx, login)
	}

	return s.storage.AccountByUsername(ctx, login)
}

// VerifyRefreshToken проверяет подпись и срок refresh-токена
// и возвращает ID аккаунта из sub.
func (s *Service) VerifyRefreshToken(presented string) (uuid.UUID, error) {
	const op = "service.auth.VerifyRefreshToken"

	id, err := s.tokens.Refresh.Verify(presented)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, mapTokenErr(err))
	}

	return id, nil
}

// RefreshToken выпускает новый access-токен для аккаунта.
//
// Подпись presented здесь не проверяется (это делает VerifyRefreshToken на
// границе эндпойнта). В режиме StrictRefresh presented должен совпадать со
// слотом аккаунта, иначе ErrTokenRevoked.
func (s *Service) RefreshToken(ctx context.Context, accountID uuid.UUID, presented string) (string, error) {
	const op = "service.auth.RefreshToken"

	lg := log.From(ctx).With(slog.String("op", op), slog.String("account_id", accountID.String()))

	account, err := s.storage.AccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("refresh_failed", slog.String("reason", "not_found"))

			return "", fmt.Errorf("%s: %w", op, ErrAccountNotFound)
		}

		lg.Error("refresh_lookup_failed", slog.String("err", err.Error()))

		return "", fmt.Errorf("%s: %w", op, err)
	}

	if s.opts.StrictRefresh && (account.RefreshToken == nil || *account.RefreshToken != presented) {
		lg.Warn("refresh_failed",
			slog.String("reason", "slot_mismatch"),
			slog.String("token", redact.Token()),
		)

		return "", fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	access, _, err := s.GenerateAccessToken(account)
	if err != nil {
		lg.Error("issue_access_failed", slog.String("err", err.Error()))

		return "", fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("access_refreshed")

	return access, nil
}

// Logout очищает слот refresh-токена. Повторный вызов не ошибка.
func (s *Service) Logout(ctx context.Context, accountID uuid.UUID) error {
	const op = "service.auth.Logout"

	lg := log.From(ctx).With(slog.String("op", op), slog.String("account_id", accountID.String()))

	if _, err := s.storage.AccountByID(ctx, accountID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("logout_failed", slog.String("reason", "not_found"))

			return fmt.Errorf("%s: %w", op, ErrAccountNotFound)
		}

		lg.Error("logout_lookup_failed", slog.String("err", err.Error()))

		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.ClearRefreshToken(ctx, accountID); err != nil {
		lg.Error("logout_failed", slog.String("err", err.Error()))

		return fmt.Errorf("%s: %w", op, mapNotFound(err))
	}

	lg.Info("logged_out")

	return nil
}

// GenerateAccessToken выпускает access-токен (sub = ID аккаунта).
func (s *Service) GenerateAccessToken(account *models.Account) (string, time.Time, error) {
	const op = "service.auth.GenerateAccessToken"

	tok, exp, err := s.tokens.Access.Issue(account.ID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return tok, exp, nil
}

// GenerateRefreshToken выпускает refresh-токен (sub = ID аккаунта).
// В слот он не записывается: это делает Authenticate.
func (s *Service) GenerateRefreshToken(account *models.Account) (string, error) {
	const op = "service.auth.GenerateRefreshToken"

	tok, _, err := s.tokens.Refresh.Issue(account.ID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return tok, nil
}

func mapTokenErr(err error) error {
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrInvalidToken
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrAccountNotFound
	}

	return err
}
