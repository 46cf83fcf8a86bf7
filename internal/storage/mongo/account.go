package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pribylovaa/todo-auth/internal/models"
	"github.com/pribylovaa/todo-auth/internal/storage"
)

// accountDoc - представление учётной записи в коллекции.
// _id хранится строкой UUID, чтобы документы читались в mongosh без бинарных подтипов.
type accountDoc struct {
	ID           string    `bson:"_id"`
	Username     string    `bson:"username"`
	Email        string    `bson:"email"`
	EmailLower   string    `bson:"email_lower"`
	PasswordHash string    `bson:"password_hash"`
	Roles        []string  `bson:"roles"`
	RefreshToken *string   `bson:"refresh_token,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// MongoDB DateTime хранит миллисекунды.
func toMS(t time.Time) time.Time { return t.UTC().Truncate(time.Millisecond) }

func toDoc(a *models.Account) accountDoc {
	return accountDoc{
		ID:           a.ID.String(),
		Username:     a.Username,
		Email:        a.Email,
		EmailLower:   strings.ToLower(a.Email),
		PasswordHash: a.PasswordHash,
		Roles:        models.RoleStrings(a.Roles),
		RefreshToken: a.RefreshToken,
		CreatedAt:    toMS(a.CreatedAt),
		UpdatedAt:    toMS(a.UpdatedAt),
	}
}

func (d accountDoc) toModel() (*models.Account, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("bad _id %q: %w", d.ID, err)
	}

	return &models.Account{
		ID:           id,
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Roles:        models.ParseRoles(d.Roles),
		RefreshToken: d.RefreshToken,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}, nil
}

// SaveAccount создаёт новую учётную запись.
func (m *Mongo) SaveAccount(ctx context.Context, account *models.Account) error {
	const op = "storage/mongo/SaveAccount"

	if _, err := m.accounts.InsertOne(ctx, toDoc(account)); err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: insert: %w", op, err)
	}

	return nil
}

// AccountByID находит учётную запись по ID.
func (m *Mongo) AccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	const op = "storage/mongo/AccountByID"

	return m.findOne(ctx, op, bson.D{{Key: "_id", Value: id.String()}})
}

// AccountByUsername находит учётную запись по username.
func (m *Mongo) AccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	const op = "storage/mongo/AccountByUsername"

	return m.findOne(ctx, op, bson.D{{Key: "username", Value: username}})
}

// AccountByEmail находит учётную запись по email без учёта регистра.
func (m *Mongo) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	const op = "storage/mongo/AccountByEmail"

	return m.findOne(ctx, op, bson.D{{Key: "email_lower", Value: strings.ToLower(email)}})
}

// Accounts возвращает все учётные записи по возрастанию created_at.
func (m *Mongo) Accounts(ctx context.Context) ([]models.Account, error) {
	const op = "storage/mongo/Accounts"

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := m.accounts.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: find: %w", op, err)
	}
	defer cur.Close(ctx)

	var docs []accountDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}

	out := make([]models.Account, 0, len(docs))
	for _, d := range docs {
		a, err := d.toModel()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, *a)
	}

	return out, nil
}

// UpdateAccount перезаписывает username, email (вместе с email_lower) и роли.
func (m *Mongo) UpdateAccount(ctx context.Context, account *models.Account) error {
	const op = "storage/mongo/UpdateAccount"

	return m.updateByID(ctx, op, account.ID, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "username", Value: account.Username},
			{Key: "email", Value: account.Email},
			{Key: "email_lower", Value: strings.ToLower(account.Email)},
			{Key: "roles", Value: models.RoleStrings(account.Roles)},
			{Key: "updated_at", Value: toMS(time.Now())},
		}},
	})
}

// DeleteAccount удаляет учётную запись.
func (m *Mongo) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	const op = "storage/mongo/DeleteAccount"

	res, err := m.accounts.DeleteOne(ctx, bson.D{{Key: "_id", Value: id.String()}})
	if err != nil {
		return fmt.Errorf("%s: delete: %w", op, err)
	}

	if res.DeletedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// SetRefreshToken безусловно перезаписывает слот refresh-токена.
func (m *Mongo) SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	const op = "storage/mongo/SetRefreshToken"

	return m.updateByID(ctx, op, id, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "refresh_token", Value: token},
			{Key: "updated_at", Value: toMS(time.Now())},
		}},
	})
}

// ClearRefreshToken удаляет поле refresh_token из документа.
func (m *Mongo) ClearRefreshToken(ctx context.Context, id uuid.UUID) error {
	const op = "storage/mongo/ClearRefreshToken"

	return m.updateByID(ctx, op, id, bson.D{
		{Key: "$unset", Value: bson.D{{Key: "refresh_token", Value: ""}}},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: toMS(time.Now())}}},
	})
}

func (m *Mongo) updateByID(ctx context.Context, op string, id uuid.UUID, update bson.D) error {
	res, err := m.accounts.UpdateByID(ctx, id.String(), update)
	if err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: update: %w", op, err)
	}

	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

func (m *Mongo) findOne(ctx context.Context, op string, filter bson.D) (*models.Account, error) {
	var d accountDoc
	if err := m.accounts.FindOne(ctx, filter).Decode(&d); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: find: %w", op, err)
	}

	a, err := d.toModel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}
