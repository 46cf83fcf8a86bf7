package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pribylovaa/todo-auth/internal/http/middleware"
	"github.com/pribylovaa/todo-auth/internal/http/response"
	"github.com/pribylovaa/todo-auth/internal/pkg/validate"
	"github.com/pribylovaa/todo-auth/internal/service"
)

// Me - GET /users/me: учётная запись текущего субъекта.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		response.Failure(w, r, http.StatusUnauthorized, middleware.MsgNoToken)
		return
	}

	response.Success(w, r, "User found", toAccountResponse(account))
}

// ListUsers - GET /users (ADMIN).
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.Accounts(r.Context())
	if err != nil {
		response.WriteError(w, r, err)
		return
	}

	out := make([]accountResponse, 0, len(accounts))
	for i := range accounts {
		out = append(out, toAccountResponse(&accounts[i]))
	}

	response.Success(w, r, "Users found", out)
}

// GetUser - GET /users/{id} (ADMIN).
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}

	account, err := h.svc.AccountByID(r.Context(), id)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}

	response.Success(w, r, "User found", toAccountResponse(account))
}

// UpdateUser - PUT /users/{id} (ADMIN): username, email и роли.
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		response.Failure(w, r, http.StatusUnauthorized, middleware.MsgNoToken)
		return
	}

	id, err := pathID(r)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}

	var in updateUserRequest
	if err := decodeStrict(w, r, &in); err != nil {
		response.WriteError(w, r, err)
		return
	}

	account, err := h.svc.UpdateAccount(r.Context(), actor.ID, id, service.UpdateInput{
		Username: in.Username,
		Email:    in.Email,
		Roles:    in.Roles,
	})
	if err != nil {
		response.WriteError(w, r, err)
		return
	}

	response.Success(w, r, "User updated successfully", toAccountResponse(account))
}

// DeleteUser - DELETE /users/{id} (ADMIN).
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		response.Failure(w, r, http.StatusUnauthorized, middleware.MsgNoToken)
		return
	}

	id, err := pathID(r)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}

	if err := h.svc.DeleteAccount(r.Context(), actor.ID, id); err != nil {
		response.WriteError(w, r, err)
		return
	}

	response.Success(w, r, "User deleted successfully", true)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, validate.Errors{{Field: "id", Message: "must be a UUID"}}
	}

	return id, nil
}
