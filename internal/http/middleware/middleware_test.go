package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/todo-auth/internal/http/response"
	"github.com/pribylovaa/todo-auth/internal/models"
	logctx "github.com/pribylovaa/todo-auth/internal/pkg/log"
	"github.com/pribylovaa/todo-auth/internal/storage"
)

// capHandler - тестовый slog.Handler, который:
//   - аккумулирует базовые attrs, приходящие через Logger.With(...);
//   - собирает attrs из каждой записи в map[string]any;
//   - не создаёт реальных I/O.
type capHandler struct {
	mu      sync.Mutex
	base    []slog.Attr
	lastMsg string
	lastLvl slog.Level
	attrs   map[string]any
	count   int
}

func (h *capHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *capHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]any, len(h.base)+8)
	for _, a := range h.base {
		out[a.Key] = a.Value.Any()
	}

	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.Any()
		return true
	})

	h.count++
	h.lastMsg = r.Message
	h.lastLvl = r.Level
	h.attrs = out

	return nil
}

func (h *capHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(attrs) > 0 {
		h.base = append(h.base, attrs...)
	}

	return h
}

func (h *capHandler) WithGroup(string) slog.Handler { return h }

func makeReq(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = (&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 12345}).String()
	return req
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var env response.Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

func TestChain_Order(t *testing.T) {
	order := []string{}

	m1 := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "m1-begin")
			next.ServeHTTP(w, r)
			order = append(order, "m1-end")
		})
	}

	m2 := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "m2-begin")
			next.ServeHTTP(w, r)
			order = append(order, "m2-end")
		})
	}

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	Chain(final, m1, m2).ServeHTTP(rr, makeReq("/chain"))

	require.Equal(t, []string{"m1-begin", "m2-begin", "handler", "m2-end", "m1-end"}, order)
	require.Equal(t, http.StatusTeapot, rr.Code)
}

func TestRequestID_GenerateAndPropagate(t *testing.T) {
	var seenHeader, seenCtx string

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenHeader = r.Header.Get(HeaderRequestID)
		seenCtx = RequestIDFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	Chain(h, RequestID()).ServeHTTP(rr, makeReq("/rid"))

	respID := rr.Header().Get(HeaderRequestID)
	_, err := uuid.Parse(respID)
	require.NoError(t, err)
	require.Equal(t, respID, seenHeader)
	require.Equal(t, respID, seenCtx)
}

func TestRequestID_UseExisting(t *testing.T) {
	const given = "abc123-existing-id"
	var seenCtx string

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenCtx = RequestIDFrom(r.Context())
	})

	rr := httptest.NewRecorder()
	req := makeReq("/rid2")
	req.Header.Set(HeaderRequestID, given)
	Chain(h, RequestID()).ServeHTTP(rr, req)

	require.Equal(t, given, rr.Header().Get(HeaderRequestID))
	require.Equal(t, given, seenCtx)
}

func TestLogging_RequestScopedLogger(t *testing.T) {
	ch := &capHandler{}
	base := slog.New(ch)

	var inner *slog.Logger
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = logctx.From(r.Context())
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("hello"))
	})

	req := makeReq("/log")
	req.Header.Set(HeaderRequestID, "rid-1")
	rr := httptest.NewRecorder()
	Chain(h, Logging(base)).ServeHTTP(rr, req)

	require.NotNil(t, inner)
	require.Equal(t, 1, ch.count)
	require.Equal(t, "http", ch.lastMsg)
	require.Equal(t, slog.LevelInfo, ch.lastLvl)
	require.Equal(t, "rid-1", ch.attrs["request_id"])
	require.Equal(t, "/log", ch.attrs["path"])
	require.EqualValues(t, http.StatusCreated, ch.attrs["status"])
	require.EqualValues(t, 5, ch.attrs["bytes"])
}

func TestLogging_ServerErrorLevel(t *testing.T) {
	ch := &capHandler{}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	Chain(h, Logging(slog.New(ch))).ServeHTTP(httptest.NewRecorder(), makeReq("/boom"))
	require.Equal(t, slog.LevelError, ch.lastLvl)
}

func TestRecover_PanicTo500(t *testing.T) {
	ch := &capHandler{}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	})

	req := makeReq("/panic")
	req = req.WithContext(logctx.Into(req.Context(), slog.New(ch)))
	req.Header.Set(HeaderRequestID, "rid-p")
	rr := httptest.NewRecorder()

	require.NotPanics(t, func() { Chain(h, Recover()).ServeHTTP(rr, req) })

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	env := decodeEnvelope(t, rr)
	require.False(t, env.Success)
	require.Equal(t, "internal error", env.Message)
	require.Equal(t, "rid-p", env.RequestID)
	require.NotContains(t, rr.Body.String(), "kaboom")

	require.Equal(t, "panic", ch.lastMsg)
	require.Equal(t, "kaboom", ch.attrs["reason"])
}

func TestTimeout(t *testing.T) {
	var hasDeadline bool
	var deadline time.Time

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, hasDeadline = r.Context().Deadline()
	})

	Chain(h, Timeout(0)).ServeHTTP(httptest.NewRecorder(), makeReq("/t"))
	require.False(t, hasDeadline)

	start := time.Now()
	Chain(h, Timeout(2*time.Second)).ServeHTTP(httptest.NewRecorder(), makeReq("/t"))
	require.True(t, hasDeadline)
	require.WithinDuration(t, start.Add(2*time.Second), deadline, 500*time.Millisecond)

	// Существующий, более ранний deadline не перетирается.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	want, _ := ctx.Deadline()

	Chain(h, Timeout(time.Hour)).ServeHTTP(httptest.NewRecorder(), makeReq("/t").WithContext(ctx))
	require.Equal(t, want, deadline)
}

// Просроченный дедлайн сервисного вызова превращается в 504 с конвертом ошибки.
func TestTimeout_ExpiredServiceCallIs504(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		response.WriteError(w, r, fmt.Errorf("service.users.Accounts: %w", r.Context().Err()))
	})

	rr := httptest.NewRecorder()
	Chain(h, Timeout(20*time.Millisecond)).ServeHTTP(rr, makeReq("/users"))

	require.Equal(t, http.StatusGatewayTimeout, rr.Code)

	var env response.Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.False(t, env.Success)
	require.Equal(t, "deadline exceeded", env.Message)
}

func TestMetrics_RoutePatternLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware())
	r.Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 3; i++ {
		r.ServeHTTP(httptest.NewRecorder(), makeReq(fmt.Sprintf("/users/%d", i)))
	}

	require.Equal(t, 3.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/users/{id}", "404")))
	require.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

// --- AuthGuard / RoleGuard ---

type verifierFunc func(string) (uuid.UUID, error)

func (f verifierFunc) Verify(tok string) (uuid.UUID, error) { return f(tok) }

type finderFunc func(context.Context, uuid.UUID) (*models.Account, error)

func (f finderFunc) AccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return f(ctx, id)
}

var errBadToken = errors.New("bad token")

func guardFixture(account *models.Account, findErr error) (TokenVerifier, AccountFinder) {
	verifier := verifierFunc(func(tok string) (uuid.UUID, error) {
		if tok != "good" {
			return uuid.Nil, errBadToken
		}
		return account.ID, nil
	})

	finder := finderFunc(func(_ context.Context, id uuid.UUID) (*models.Account, error) {
		if findErr != nil {
			return nil, findErr
		}
		return account, nil
	})

	return verifier, finder
}

func TestAuthGuard(t *testing.T) {
	account := &models.Account{ID: uuid.New(), Username: "alice", Roles: []models.Role{models.RoleUser}}

	tests := []struct {
		name    string
		header  string
		findErr error
		status  int
		msg     string
	}{
		{name: "no header", header: "", status: http.StatusUnauthorized, msg: MsgNoToken},
		{name: "basic scheme", header: "Basic Zm9vOmJhcg==", status: http.StatusUnauthorized, msg: MsgNoToken},
		{name: "bearer without token", header: "Bearer ", status: http.StatusUnauthorized, msg: MsgNoToken},
		{name: "bad signature", header: "Bearer forged", status: http.StatusUnauthorized, msg: MsgInvalidOrExpired},
		{name: "unknown subject", header: "Bearer good", findErr: fmt.Errorf("lookup: %w", storage.ErrNotFound), status: http.StatusUnauthorized, msg: MsgInvalidTokenAccount},
		{name: "store failure", header: "Bearer good", findErr: errors.New("db down"), status: http.StatusUnauthorized, msg: MsgInvalidOrExpired},
		{name: "ok", header: "Bearer good", status: http.StatusOK},
		{name: "ok lowercase scheme", header: "bearer good", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier, finder := guardFixture(account, tt.findErr)

			var got *models.Account
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				got, _ = IdentityFrom(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := makeReq("/protected")
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			Chain(next, AuthGuard(verifier, finder)).ServeHTTP(rr, req)

			require.Equal(t, tt.status, rr.Code)
			if tt.status == http.StatusOK {
				require.True(t, called)
				require.Equal(t, account, got)
				return
			}

			require.False(t, called)
			env := decodeEnvelope(t, rr)
			require.False(t, env.Success)
			require.Equal(t, tt.msg, env.Message)
			require.Equal(t, tt.status, env.StatusCode)
		})
	}
}

func TestAuthGuard_EnrichesLogger(t *testing.T) {
	account := &models.Account{ID: uuid.New(), Roles: []models.Role{models.RoleUser}}
	verifier, finder := guardFixture(account, nil)
	ch := &capHandler{}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logctx.From(r.Context()).Info("inside")
	})

	req := makeReq("/protected")
	req.Header.Set("Authorization", "Bearer good")
	req = req.WithContext(logctx.Into(req.Context(), slog.New(ch)))

	Chain(next, AuthGuard(verifier, finder)).ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, "inside", ch.lastMsg)
	require.Equal(t, account.ID.String(), ch.attrs["account_id"])
}

func TestRoleGuard(t *testing.T) {
	tests := []struct {
		name    string
		account *models.Account
		status  int
		msg     string
	}{
		{name: "no identity", account: nil, status: http.StatusForbidden, msg: MsgNoRoles},
		{name: "empty roles", account: &models.Account{ID: uuid.New()}, status: http.StatusForbidden, msg: MsgNoRoles},
		{name: "user only", account: &models.Account{ID: uuid.New(), Roles: []models.Role{models.RoleUser}}, status: http.StatusForbidden, msg: MsgInsufficientRole},
		{name: "admin", account: &models.Account{ID: uuid.New(), Roles: []models.Role{models.RoleUser, models.RoleAdmin}}, status: http.StatusOK},
		{name: "admin order independent", account: &models.Account{ID: uuid.New(), Roles: []models.Role{models.RoleAdmin, models.RoleUser}}, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})

			req := makeReq("/admin")
			if tt.account != nil {
				req = req.WithContext(WithIdentity(req.Context(), tt.account))
			}
			rr := httptest.NewRecorder()
			Chain(next, RoleGuard(models.RoleAdmin)).ServeHTTP(rr, req)

			require.Equal(t, tt.status, rr.Code)
			require.Equal(t, tt.status == http.StatusOK, called)
			if tt.msg != "" {
				require.Equal(t, tt.msg, decodeEnvelope(t, rr).Message)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tok, ok := bearerToken("Bearer  abc.def.ghi ")
	require.True(t, ok)
	require.Equal(t, "abc.def.ghi", tok)

	_, ok = bearerToken("Bearer")
	require.False(t, ok)

	_, ok = bearerToken("Token abc")
	require.False(t, ok)
}
