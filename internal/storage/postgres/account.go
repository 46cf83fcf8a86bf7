package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pribylovaa/todo-auth/internal/models"
	"github.com/pribylovaa/todo-auth/internal/storage"
)

const accountColumns = `id, username, email, password_hash, roles, refresh_token, created_at, updated_at`

// SaveAccount создает новую учётную запись в БД.
func (s *Storage) SaveAccount(ctx context.Context, account *models.Account) error {
	const op = "storage.postgres.SaveAccount"

	query := `
		INSERT INTO accounts(` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.Exec(ctx, query,
		account.ID,
		account.Username,
		account.Email,
		account.PasswordHash,
		models.RoleStrings(account.Roles),
		account.RefreshToken,
		account.CreatedAt,
		account.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// AccountByID находит учётную запись по ID.
func (s *Storage) AccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	const op = "storage.postgres.AccountByID"

	return s.queryOne(ctx, op, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// AccountByUsername находит учётную запись по username.
func (s *Storage) AccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	const op = "storage.postgres.AccountByUsername"

	return s.queryOne(ctx, op, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
}

// AccountByEmail находит учётную запись по email (CITEXT: без учёта регистра).
func (s *Storage) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	const op = "storage.postgres.AccountByEmail"

	return s.queryOne(ctx, op, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

// Accounts возвращает все учётные записи по возрастанию created_at.
func (s *Storage) Accounts(ctx context.Context) ([]models.Account, error) {
	const op = "storage.postgres.Accounts"

	rows, err := s.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// UpdateAccount перезаписывает username, email и роли учётной записи.
func (s *Storage) UpdateAccount(ctx context.Context, account *models.Account) error {
	const op = "storage.postgres.UpdateAccount"

	query := `
		UPDATE accounts
		SET username = $2, email = $3, roles = $4, updated_at = now()
		WHERE id = $1
	`

	cmdTag, err := s.db.Exec(ctx, query,
		account.ID,
		account.Username,
		account.Email,
		models.RoleStrings(account.Roles),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// DeleteAccount удаляет учётную запись.
func (s *Storage) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	const op = "storage.postgres.DeleteAccount"

	cmdTag, err := s.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// SetRefreshToken безусловно перезаписывает слот refresh-токена.
func (s *Storage) SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	const op = "storage.postgres.SetRefreshToken"

	return s.updateSlot(ctx, op, id, &token)
}

// ClearRefreshToken обнуляет слот refresh-токена.
func (s *Storage) ClearRefreshToken(ctx context.Context, id uuid.UUID) error {
	const op = "storage.postgres.ClearRefreshToken"

	return s.updateSlot(ctx, op, id, nil)
}

func (s *Storage) updateSlot(ctx context.Context, op string, id uuid.UUID, token *string) error {
	query := `
		UPDATE accounts
		SET refresh_token = $2, updated_at = now()
		WHERE id = $1
	`

	cmdTag, err := s.db.Exec(ctx, query, id, token)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func (s *Storage) queryOne(ctx context.Context, op, query string, arg any) (*models.Account, error) {
	a, err := scanAccount(s.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var (
		a     models.Account
		roles []string
	)

	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.PasswordHash,
		&roles,
		&a.RefreshToken,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Roles = models.ParseRoles(roles)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()

	return &a, nil
}
