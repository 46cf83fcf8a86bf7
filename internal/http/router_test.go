package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/todo-auth/internal/http/middleware"
	"github.com/pribylovaa/todo-auth/internal/http/response"
	"github.com/pribylovaa/todo-auth/internal/pkg/token"
	"github.com/pribylovaa/todo-auth/internal/service"
	"github.com/pribylovaa/todo-auth/internal/storage"
	"github.com/pribylovaa/todo-auth/internal/storage/memory"
)

type testEnv struct {
	handler http.Handler
	svc     *service.Service
	store   *memory.Storage
	tokens  service.Tokens
	reg     *prometheus.Registry
}

func newTestEnv(t *testing.T, opts service.Options) *testEnv {
	t.Helper()

	access, err := token.New(token.Options{Secret: []byte("router-access"), TTL: time.Hour, Issuer: "todo-auth"})
	require.NoError(t, err)
	refresh, err := token.New(token.Options{Secret: []byte("router-refresh"), TTL: 168 * time.Hour, Issuer: "todo-auth"})
	require.NoError(t, err)

	tokens := service.Tokens{Access: access, Refresh: refresh}
	store := memory.New()
	svc := service.New(store, tokens, opts)
	reg := prometheus.NewRegistry()

	h := NewRouter(Deps{Service: svc, Verifier: access, Accounts: store}, Options{
		Timeout: 5 * time.Second,
		Metrics: middleware.NewHTTPMetrics(reg),
	})

	return &testEnv{handler: h, svc: svc, store: store, tokens: tokens, reg: reg}
}

type envelope struct {
	Success        bool            `json:"success"`
	Message        string          `json:"message"`
	ResponseObject json.RawMessage `json:"responseObject"`
	StatusCode     int             `json:"statusCode"`
	RequestID      string          `json:"requestId"`
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	require.Equal(t, rr.Code, env.StatusCode)
	require.NotEmpty(t, env.RequestID)

	return rr.Code, env
}

func (e *testEnv) login(t *testing.T, login, password string) (access, refresh string) {
	t.Helper()

	code, env := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"usernameOrEmail": login, "password": password})
	require.Equal(t, http.StatusOK, code, env.Message)

	var out struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(env.ResponseObject, &out))
	require.NotEmpty(t, out.AccessToken)
	require.NotEmpty(t, out.RefreshToken)

	return out.AccessToken, out.RefreshToken
}

func TestRouter_AuthFlow(t *testing.T) {
	e := newTestEnv(t, service.Options{})

	code, env := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "alice", "email": "alice@x.io", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, code)
	require.True(t, env.Success)
	require.Equal(t, "User registered successfully", env.Message)
	require.NotContains(t, string(env.ResponseObject), "password")
	require.Contains(t, string(env.ResponseObject), `"roles":["USER"]`)

	code, _ = e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "alice", "email": "other@x.io", "password": "secret1",
	})
	require.Equal(t, http.StatusConflict, code)

	access, refresh := e.login(t, "alice@x.io", "secret1")

	code, env = e.do(t, http.MethodGet, "/users/me", access, nil)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(env.ResponseObject), `"username":"alice"`)

	code, env = e.do(t, http.MethodPost, "/auth/refresh-token", "", map[string]string{"token": refresh})
	require.Equal(t, http.StatusOK, code)
	var refreshed struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(env.ResponseObject, &refreshed))
	_, err := e.tokens.Access.Verify(refreshed.AccessToken)
	require.NoError(t, err)

	code, env = e.do(t, http.MethodPost, "/auth/refresh-token", "", map[string]string{"token": access})
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "Invalid or expired token", env.Message)

	code, env = e.do(t, http.MethodPost, "/auth/logout", access, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "true", string(env.ResponseObject))

	acc, err := e.store.AccountByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.Nil(t, acc.RefreshToken)

	// Вторая попытка logout - тоже 200.
	code, _ = e.do(t, http.MethodPost, "/auth/logout", access, nil)
	require.Equal(t, http.StatusOK, code)

	n, err := testutil.GatherAndCount(e.reg, "todo_auth_http_requests_total")
	require.NoError(t, err)
	require.Positive(t, n)
}

func TestRouter_LoginFailures(t *testing.T) {
	e := newTestEnv(t, service.Options{})
	_, err := e.svc.Register(context.Background(), service.RegisterInput{Username: "alice", Email: "alice@x.io", Password: "secret1"})
	require.NoError(t, err)

	code, env := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"usernameOrEmail": "ghost", "password": "secret1"})
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "User not found", env.Message)

	code, env = e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"usernameOrEmail": "alice", "password": "wrong!"})
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "Invalid credentials", env.Message)

	code, env = e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"usernameOrEmail": "al", "password": "1"})
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, env.Message, "usernameOrEmail")

	code, _ = e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"usernameOrEmail": "alice", "password": "secret1", "extra": "x"})
	require.Equal(t, http.StatusBadRequest, code)
}

func TestRouter_RegisterPasswordBcryptLimit(t *testing.T) {
	e := newTestEnv(t, service.Options{})

	// 20 символов, но 80 байт: bcrypt такой пароль не примет.
	code, env := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "emoji", "email": "emoji@x.io", "password": strings.Repeat("😀", 20),
	})
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, env.Message, "password")

	_, err := e.store.AccountByUsername(context.Background(), "emoji")
	require.ErrorIs(t, err, storage.ErrNotFound)

	// 30 символов кириллицы - 60 байт, укладывается в предел.
	cyr := strings.Repeat("ж", 30)
	code, _ = e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "cyril", "email": "cyril@x.io", "password": cyr,
	})
	require.Equal(t, http.StatusOK, code)
	e.login(t, "cyril", cyr)

	code, _ = e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"usernameOrEmail": "cyril", "password": strings.Repeat("😀", 20)})
	require.Equal(t, http.StatusBadRequest, code)
}

func TestRouter_Guards(t *testing.T) {
	e := newTestEnv(t, service.Options{})

	code, env := e.do(t, http.MethodGet, "/users/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, middleware.MsgNoToken, env.Message)

	code, env = e.do(t, http.MethodGet, "/users/me", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, middleware.MsgInvalidOrExpired, env.Message)

	// Валидная подпись, но аккаунта нет.
	ghost, err := e.svc.Register(context.Background(), service.RegisterInput{Username: "ghost", Email: "ghost@x.io", Password: "secret1"})
	require.NoError(t, err)
	access, _, err := e.svc.GenerateAccessToken(ghost)
	require.NoError(t, err)
	require.NoError(t, e.store.DeleteAccount(context.Background(), ghost.ID))

	code, env = e.do(t, http.MethodGet, "/users/me", access, nil)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, middleware.MsgInvalidTokenAccount, env.Message)

	// USER не проходит RoleGuard(ADMIN).
	_, err = e.svc.Register(context.Background(), service.RegisterInput{Username: "bob", Email: "bob@x.io", Password: "secret1"})
	require.NoError(t, err)
	userAccess, _ := e.login(t, "bob", "secret1")

	code, env = e.do(t, http.MethodGet, "/users", userAccess, nil)
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, middleware.MsgInsufficientRole, env.Message)
}

func TestRouter_AdminUsers(t *testing.T) {
	e := newTestEnv(t, service.Options{})
	ctx := context.Background()

	admin, created, err := e.svc.EnsureAdmin(ctx, service.RegisterInput{Username: "admin", Email: "admin@x.io", Password: "changeme"})
	require.NoError(t, err)
	require.True(t, created)

	bob, err := e.svc.Register(ctx, service.RegisterInput{Username: "bob", Email: "bob@x.io", Password: "secret1"})
	require.NoError(t, err)

	adminAccess, _ := e.login(t, "admin", "changeme")

	code, env := e.do(t, http.MethodGet, "/users", adminAccess, nil)
	require.Equal(t, http.StatusOK, code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(env.ResponseObject, &list))
	require.Len(t, list, 2)

	code, env = e.do(t, http.MethodGet, "/users/"+bob.ID.String(), adminAccess, nil)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(env.ResponseObject), bob.ID.String())

	code, _ = e.do(t, http.MethodGet, "/users/not-a-uuid", adminAccess, nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodDelete, "/users/"+admin.ID.String(), adminAccess, nil)
	require.Equal(t, http.StatusForbidden, code)

	code, _ = e.do(t, http.MethodDelete, "/users/"+bob.ID.String(), adminAccess, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = e.do(t, http.MethodGet, "/users/"+bob.ID.String(), adminAccess, nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "User not found", env.Message)
}

func TestRouter_AdminUpdateUser(t *testing.T) {
	e := newTestEnv(t, service.Options{})
	ctx := context.Background()

	admin, _, err := e.svc.EnsureAdmin(ctx, service.RegisterInput{Username: "admin", Email: "admin@x.io", Password: "changeme"})
	require.NoError(t, err)
	bob, err := e.svc.Register(ctx, service.RegisterInput{Username: "bob", Email: "bob@x.io", Password: "secret1"})
	require.NoError(t, err)

	adminAccess, _ := e.login(t, "admin", "changeme")
	bobAccess, _ := e.login(t, "bob", "secret1")
	bobPath := "/users/" + bob.ID.String()

	// До повышения bob не проходит RoleGuard(ADMIN), в том числе на PUT.
	code, _ := e.do(t, http.MethodGet, "/users", bobAccess, nil)
	require.Equal(t, http.StatusForbidden, code)
	code, _ = e.do(t, http.MethodPut, bobPath, bobAccess, map[string]any{"roles": []string{"USER", "ADMIN"}})
	require.Equal(t, http.StatusForbidden, code)

	code, env := e.do(t, http.MethodPut, bobPath, adminAccess, map[string]any{"roles": []string{"USER", "ADMIN"}})
	require.Equal(t, http.StatusOK, code, env.Message)
	require.Equal(t, "User updated successfully", env.Message)
	require.Contains(t, string(env.ResponseObject), `"roles":["USER","ADMIN"]`)

	// Тот же access-токен: роли читаются из хранилища на каждом запросе.
	code, _ = e.do(t, http.MethodGet, "/users", bobAccess, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = e.do(t, http.MethodPut, bobPath, adminAccess, map[string]any{"username": "robert", "email": "robert@x.io"})
	require.Equal(t, http.StatusOK, code, env.Message)
	require.Contains(t, string(env.ResponseObject), `"username":"robert"`)
	e.login(t, "robert@x.io", "secret1")

	code, env = e.do(t, http.MethodPut, bobPath, adminAccess, map[string]any{"email": "ADMIN@x.io"})
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "User already exists", env.Message)

	code, env = e.do(t, http.MethodPut, bobPath, adminAccess, map[string]any{"roles": []string{"ROOT"}})
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, env.Message, "roles")

	code, _ = e.do(t, http.MethodPut, bobPath, adminAccess, map[string]any{"password": "hijack1"})
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodPut, "/users/"+admin.ID.String(), adminAccess, map[string]any{"roles": []string{"USER"}})
	require.Equal(t, http.StatusForbidden, code)

	code, env = e.do(t, http.MethodPut, "/users/"+uuid.NewString(), adminAccess, map[string]any{"username": "nobody"})
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "User not found", env.Message)
}

func TestRouter_StrictRefresh(t *testing.T) {
	e := newTestEnv(t, service.Options{StrictRefresh: true})
	_, err := e.svc.Register(context.Background(), service.RegisterInput{Username: "alice", Email: "alice@x.io", Password: "secret1"})
	require.NoError(t, err)

	access, refresh := e.login(t, "alice", "secret1")

	code, _ := e.do(t, http.MethodPost, "/auth/refresh-token", "", map[string]string{"token": refresh})
	require.Equal(t, http.StatusOK, code)

	code, _ = e.do(t, http.MethodPost, "/auth/logout", access, nil)
	require.Equal(t, http.StatusOK, code)

	code, env := e.do(t, http.MethodPost, "/auth/refresh-token", "", map[string]string{"token": refresh})
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "Token revoked", env.Message)
}

func TestRouter_ErrorEnvelopeShape(t *testing.T) {
	e := newTestEnv(t, service.Options{})

	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString("{not json"))
	req.Header.Set("X-Request-Id", "rid-42")
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "rid-42", rr.Header().Get("X-Request-Id"))

	var env response.Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.False(t, env.Success)
	require.Nil(t, env.ResponseObject)
	require.Equal(t, "rid-42", env.RequestID)
}
