package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ctchen222/popug-auth/internal/api/controller"
	"ctchen222/popug-auth/internal/api/repository"
	"ctchen222/popug-auth/internal/api/service"
	"ctchen222/popug-auth/internal/auth"
	"ctchen222/popug-auth/internal/db"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("end-to-end-test-secret-key")

type testApp struct {
	handler http.Handler
	pool    *sqlx.DB
}

func newTestApp(t *testing.T, ttl time.Duration) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := "file:" + filepath.Join(t.TempDir(), "e2e.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	pool, err := db.Open(context.Background(), dsn, db.Options{MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	svc := service.NewUserService(
		repository.NewUnitOfWork(pool),
		auth.NewPasswordHasher(bcrypt.MinCost),
		auth.NewTokenManager(testSecret, ttl),
	)
	health := controller.NewHealthController(map[string]controller.HealthChecker{"sqlite": pool})
	srv := NewServer(controller.NewUserController(svc), health, Options{
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		IsDevelopment: true,
	})

	return &testApp{handler: srv.Handler(), pool: pool}
}

func (a *testApp) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func (a *testApp) rows(t *testing.T, username string) int {
	t.Helper()
	var n int
	require.NoError(t, a.pool.Get(&n, `SELECT COUNT(*) FROM users WHERE username = ?`, username))
	return n
}

func TestScenario(t *testing.T) {
	app := newTestApp(t, 30*time.Minute)

	w := app.do(t, http.MethodPost, "/register", `{"username":"alice","password":"pw1"}`, "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, w.Body.String())

	w = app.do(t, http.MethodPost, "/login", `{"username":"alice","password":"pw1"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)

	w = app.do(t, http.MethodGet, "/protected", "", login.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"name":"alice"}`, w.Body.String())

	w = app.do(t, http.MethodPost, "/login", `{"username":"alice","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = app.do(t, http.MethodPost, "/register", `{"username":"alice","password":"pw2"}`, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 1, app.rows(t, "alice"))

	// The original password still works after the rejected re-registration.
	w = app.do(t, http.MethodPost, "/login", `{"username":"alice","password":"pw1"}`, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogin_NoUsernameEnumeration(t *testing.T) {
	app := newTestApp(t, 30*time.Minute)
	require.Equal(t, http.StatusCreated, app.do(t, http.MethodPost, "/register", `{"username":"alice","password":"pw1"}`, "").Code)

	wrongPassword := app.do(t, http.MethodPost, "/login", `{"username":"alice","password":"nope"}`, "")
	unknownUser := app.do(t, http.MethodPost, "/login", `{"username":"mallory","password":"nope"}`, "")

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownUser.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownUser.Body.String())
	assert.Contains(t, unknownUser.Body.String(), "Invalid username and/or password")
}

func TestProtected_ExpiredToken(t *testing.T) {
	app := newTestApp(t, 30*time.Minute)
	require.Equal(t, http.StatusCreated, app.do(t, http.MethodPost, "/register", `{"username":"alice","password":"pw1"}`, "").Code)

	expired, err := auth.NewTokenManager(testSecret, -time.Minute).Encode("alice")
	require.NoError(t, err)

	w := app.do(t, http.MethodGet, "/protected", "", expired)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtected_ForeignSignature(t *testing.T) {
	app := newTestApp(t, 30*time.Minute)

	forged, err := auth.NewTokenManager([]byte("someone-elses-secret"), time.Hour).Encode("alice")
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodGet, "/protected", "", forged).Code)
	assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodGet, "/protected", "", "").Code)
}

func TestRegister_ConcurrentSameUsername(t *testing.T) {
	app := newTestApp(t, 30*time.Minute)

	const attempts = 8
	codes := make([]int, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"username":"alice","password":"pw%d"}`, i)
			codes[i] = app.do(t, http.MethodPost, "/register", body, "").Code
		}(i)
	}
	wg.Wait()

	created := 0
	for _, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
		default:
			t.Errorf("unexpected status %d", code)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, app.rows(t, "alice"))
}

func TestValidationErrors(t *testing.T) {
	app := newTestApp(t, 30*time.Minute)

	for _, body := range []string{`not json`, `{}`, `{"username":"","password":"x"}`} {
		w := app.do(t, http.MethodPost, "/register", body, "")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "body %q", body)
	}
}

func TestHealthEndpoints(t *testing.T) {
	app := newTestApp(t, 30*time.Minute)

	assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/healthz", "", "").Code)

	w := app.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"sqlite":"ok"}}`, w.Body.String())
}

func TestMiddlewareHeaders(t *testing.T) {
	app := newTestApp(t, 30*time.Minute)

	w := app.do(t, http.MethodGet, "/healthz", "", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	w = app.do(t, http.MethodGet, "/register", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
