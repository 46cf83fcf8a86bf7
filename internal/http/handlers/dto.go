package handlers

import (
	"time"

	"github.com/pribylovaa/todo-auth/internal/models"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
}

type refreshRequest struct {
	Token string `json:"token"`
}

// updateUserRequest - частичное обновление: отсутствующее поле не меняется.
type updateUserRequest struct {
	Username *string  `json:"username"`
	Email    *string  `json:"email"`
	Roles    []string `json:"roles"`
}

type tokensResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type accessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

// accountResponse - публичное представление учётной записи:
// хэш пароля и refresh-слот наружу не отдаются.
type accountResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toAccountResponse(a *models.Account) accountResponse {
	roles := models.RoleStrings(a.Roles)
	if roles == nil {
		roles = []string{}
	}

	return accountResponse{
		ID:        a.ID.String(),
		Username:  a.Username,
		Email:     a.Email,
		Roles:     roles,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}
