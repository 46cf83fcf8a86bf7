package handlers

import (
	"net/http"
	"strings"

	"github.com/pribylovaa/todo-auth/internal/http/middleware"
	"github.com/pribylovaa/todo-auth/internal/http/response"
	"github.com/pribylovaa/todo-auth/internal/pkg/validate"
	"github.com/pribylovaa/todo-auth/internal/service"
)

// Register - POST /auth/register.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(w, r, &in); err != nil {
		response.WriteError(w, r, err)
		return
	}

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if err := validate.Registration(in.Username, in.Email, in.Password); err != nil {
		response.WriteError(w, r, err)
		return
	}

	account, err := h.svc.Register(r.Context(), service.RegisterInput{
		Username: in.Username,
		Email:    in.Email,
		Password: in.Password,
	})
	if err != nil {
		response.WriteError(w, r, err)
		return
	}

	response.Success(w, r, "User registered successfully", toAccountResponse(account))
}

// Login - POST /auth/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(w, r, &in); err != nil {
		response.WriteError(w, r, err)
		return
	}

	in.UsernameOrEmail = strings.TrimSpace(in.UsernameOrEmail)

	if err := validate.Login(in.UsernameOrEmail, in.Password); err != nil {
		response.WriteError(w, r, err)
		return
	}

	tp, err := h.svc.Authenticate(r.Context(), in.UsernameOrEmail, in.Password)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}

	response.Success(w, r, "User authenticated", tokensResponse{
		AccessToken:  tp.AccessToken,
		RefreshToken: tp.RefreshToken,
	})
}

// RefreshToken - POST /auth/refresh-token. Проверяет refresh-токен из тела
// и выдаёт новый access-токен для его subject.
func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(w, r, &in); err != nil {
		response.WriteError(w, r, err)
		return
	}

	in.Token = strings.TrimSpace(in.Token)

	if err := validate.RefreshToken(in.Token); err != nil {
		response.WriteError(w, r, err)
		return
	}

	accountID, err := h.svc.VerifyRefreshToken(in.Token)
	if err != nil {
		response.Failure(w, r, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	access, err := h.svc.RefreshToken(r.Context(), accountID, in.Token)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}

	response.Success(w, r, "Token refreshed successfully", accessTokenResponse{AccessToken: access})
}

// Logout - POST /auth/logout (за AuthGuard).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		response.Failure(w, r, http.StatusUnauthorized, middleware.MsgNoToken)
		return
	}

	if err := h.svc.Logout(r.Context(), account.ID); err != nil {
		response.WriteError(w, r, err)
		return
	}

	response.Success(w, r, "User logged out successfully", true)
}
