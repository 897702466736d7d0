package api

import (
	"acbridge/internal/api/middleware"
	"acbridge/internal/auth"
	"acbridge/internal/clock"
	"acbridge/internal/control"
	"acbridge/internal/core"
	"acbridge/internal/storage/file"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

const testOperatorKey = "operator-secret"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tokenExpiringAt(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	require.NoError(t, err)
	return token
}

// mockRefresher returns a fixed result from the vendor token endpoint,
// optionally blocking until release is closed
type mockRefresher struct {
	result  *core.RefreshResult
	err     error
	release chan struct{}
	started chan struct{}
}

func (m *mockRefresher) RefreshTokens(ctx context.Context, accessToken, refreshToken string) (*core.RefreshResult, error) {
	if m.started != nil {
		close(m.started)
	}
	if m.release != nil {
		<-m.release
	}
	if m.err != nil {
		return nil, m.err
	}
	r := *m.result
	return &r, nil
}

// mockService is a control.ApplianceService with canned answers
type mockService struct {
	mu       sync.Mutex
	err      error
	panics   bool
	result   *control.Result
	lastOpts control.Options
	lastID   string
	intent   core.CommandIntent
}

func (m *mockService) ListAppliances(ctx context.Context) (json.RawMessage, error) {
	if m.panics {
		panic("boom")
	}
	if m.err != nil {
		return nil, m.err
	}
	return json.RawMessage(`[{"applianceId":"ac-1"}]`), nil
}

func (m *mockService) GetApplianceInfo(ctx context.Context, id string) (json.RawMessage, error) {
	return json.RawMessage(`{"applianceInfo":{}}`), m.err
}

func (m *mockService) GetApplianceState(ctx context.Context, id string) (json.RawMessage, error) {
	if m.err != nil {
		return nil, m.err
	}
	return json.RawMessage(`{"properties":{"reported":{"mode":"COOL"}}}`), nil
}

func (m *mockService) GetApplianceCapabilities(ctx context.Context, id string) (json.RawMessage, error) {
	return json.RawMessage(`{}`), m.err
}

func (m *mockService) ApplyCommand(ctx context.Context, id string, intent core.CommandIntent, opts control.Options) (*control.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID, m.lastOpts, m.intent = id, opts, intent
	if m.err != nil {
		return m.result, m.err
	}
	return &control.Result{CommandID: "cmd_test", ApplianceID: id, Profile: "default"}, nil
}

type testEnv struct {
	router    *gin.Engine
	manager   *auth.Manager
	service   *mockService
	refresher *mockRefresher
	clock     *clock.Mock
}

func setupRouter(t *testing.T, accessToken string, opts ...func(*RouterConfig)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewMock(testNow)
	refresher := &mockRefresher{}
	store := file.New(filepath.Join(t.TempDir(), "tokens.json"))
	manager := auth.NewManager(store, refresher, clk, auth.Config{
		InitialAccessToken:  accessToken,
		InitialRefreshToken: "refresh-1",
	}, testLogger())
	if accessToken != "" {
		require.NoError(t, manager.Init(context.Background()))
	}

	service := &mockService{}
	config := RouterConfig{
		Appliances:  service,
		Tokens:      manager,
		OperatorKey: testOperatorKey,
		Logger:      testLogger(),
	}
	for _, opt := range opts {
		opt(&config)
	}

	return &testEnv{
		router:    NewRouter(config),
		manager:   manager,
		service:   service,
		refresher: refresher,
		clock:     clk,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	return e.doWithKey(t, method, path, body, testOperatorKey)
}

func (e *testEnv) doWithKey(t *testing.T, method, path, body, key string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(middleware.OperatorKeyHeader, key)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func TestRouter_Health(t *testing.T) {
	env := setupRouter(t, tokenExpiringAt(t, testNow.Add(time.Hour)))

	w, body := env.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.Success)
	assert.Contains(t, string(body.Data), `"apiInitialized":true`)
	assert.False(t, body.Timestamp.IsZero())
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDKey))
}

func TestRouter_NotInitialized(t *testing.T) {
	env := setupRouter(t, "")

	w, body := env.do(t, http.MethodGet, "/api/appliances", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "API_NOT_INITIALIZED", body.Error.Code)

	w, _ = env.do(t, http.MethodPost, "/api/token/refresh", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// status and health stay available
	w, body = env.do(t, http.MethodGet, "/api/token/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(body.Data), `"apiInitialized":false`)

	w, _ = env.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_InstallMakesAPIReady(t *testing.T) {
	env := setupRouter(t, "")

	w, _ := env.do(t, http.MethodPut, "/api/token",
		fmt.Sprintf(`{"accessToken":%q,"refreshToken":"r-2"}`, tokenExpiringAt(t, testNow.Add(time.Hour))))
	assert.Equal(t, http.StatusOK, w.Code)

	w, body := env.do(t, http.MethodGet, "/api/appliances", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"applianceId":"ac-1"}]`, string(body.Data))
}

func TestRouter_InstallRequiresAccessToken(t *testing.T) {
	env := setupRouter(t, "")

	w, body := env.do(t, http.MethodPut, "/api/token", `{"refreshToken":"r-2"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", body.Error.Code)
}

func TestRouter_TokenStatusReflectsRefresh(t *testing.T) {
	env := setupRouter(t, tokenExpiringAt(t, testNow.Add(10*time.Minute)))

	_, body := env.do(t, http.MethodGet, "/api/token/status", "")
	var before core.TokenStatus
	require.NoError(t, json.Unmarshal(body.Data, &before))
	require.NotNil(t, before.ExpiresInMinutes)
	assert.Equal(t, int64(10), *before.ExpiresInMinutes)

	env.refresher.result = &core.RefreshResult{
		AccessToken: tokenExpiringAt(t, testNow.Add(12*time.Hour)),
		ExpiresIn:   43200,
	}
	w, _ := env.do(t, http.MethodPost, "/api/token/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)

	_, body = env.do(t, http.MethodGet, "/api/token/status", "")
	var after core.TokenStatus
	require.NoError(t, json.Unmarshal(body.Data, &after))
	require.NotNil(t, after.ExpiresInMinutes)
	assert.Equal(t, int64(720), *after.ExpiresInMinutes)
	assert.True(t, after.HasRefreshToken, "refresh token kept when not rotated")
}

func TestRouter_RefreshErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "rate limited", err: core.ErrRateLimited, wantStatus: http.StatusTooManyRequests, wantCode: "RATE_LIMITED"},
		{name: "rejected", err: fmt.Errorf("%w: status 400", core.ErrRefreshFailed), wantStatus: http.StatusBadGateway, wantCode: "REFRESH_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupRouter(t, tokenExpiringAt(t, testNow.Add(time.Hour)))
			env.refresher.err = tt.err

			w, body := env.do(t, http.MethodPost, "/api/token/refresh", "")
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, body.Error.Code)
		})
	}
}

func TestRouter_ApplianceReads(t *testing.T) {
	env := setupRouter(t, tokenExpiringAt(t, testNow.Add(time.Hour)))

	w, body := env.do(t, http.MethodGet, "/api/appliances/ac-1/state", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"properties":{"reported":{"mode":"COOL"}}}`, string(body.Data))

	w, _ = env.do(t, http.MethodGet, "/api/appliances/ac-1/info", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/appliances/ac-1/capabilities", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_Control(t *testing.T) {
	env := setupRouter(t, tokenExpiringAt(t, testNow.Add(time.Hour)))

	w, body := env.do(t, http.MethodPut, "/api/appliances/ac-1/control?confirm=true",
		`{"mode":"cool","targetTemperatureC":24}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(body.Data), `"commandId":"cmd_test"`)

	assert.Equal(t, "ac-1", env.service.lastID)
	assert.True(t, env.service.lastOpts.Confirm)
	require.NotNil(t, env.service.intent.Mode)
	assert.Equal(t, core.ModeCool, *env.service.intent.Mode)
}

func TestRouter_ControlBadRequests(t *testing.T) {
	env := setupRouter(t, tokenExpiringAt(t, testNow.Add(time.Hour)))

	w, body := env.do(t, http.MethodPut, "/api/appliances/ac-1/control", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", body.Error.Code)

	w, _ = env.do(t, http.MethodPut, "/api/appliances/ac-1/control?confirm=maybe", `{"mode":"COOL"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPut, "/api/appliances/ac-1/control", strings.NewReader(`{"mode":"COOL"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestRouter_DomainErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "invalid command", err: &core.InvalidCommandError{Field: "targetTemperatureC", Reason: "out of range"}, wantStatus: 400, wantCode: "INVALID_COMMAND"},
		{name: "unauthorized", err: core.ErrUnauthorized, wantStatus: 401, wantCode: "UNAUTHORIZED"},
		{name: "no refresh token", err: core.ErrNoRefreshToken, wantStatus: 401, wantCode: "NO_REFRESH_TOKEN"},
		{name: "refresh token expired", err: core.ErrRefreshTokenExpired, wantStatus: 401, wantCode: "REFRESH_TOKEN_EXPIRED"},
		{name: "forbidden", err: core.ErrForbidden, wantStatus: 403, wantCode: "FORBIDDEN"},
		{name: "not found", err: core.ErrNotFound, wantStatus: 404, wantCode: "NOT_FOUND"},
		{name: "disconnected", err: fmt.Errorf("step 1 (mode): %w", core.ErrApplianceDisconnected), wantStatus: 409, wantCode: "APPLIANCE_DISCONNECTED"},
		{name: "remote control disabled", err: core.ErrRemoteControlDisabled, wantStatus: 409, wantCode: "REMOTE_CONTROL_DISABLED"},
		{name: "rate limited", err: core.ErrRateLimited, wantStatus: 429, wantCode: "RATE_LIMITED"},
		{name: "network", err: core.ErrNetwork, wantStatus: 502, wantCode: "NETWORK_ERROR"},
		{name: "vendor", err: &core.VendorError{Status: 500, Message: "oops"}, wantStatus: 502, wantCode: "VENDOR_ERROR"},
		{name: "refresh timeout", err: core.ErrRefreshTimeout, wantStatus: 504, wantCode: "REFRESH_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupRouter(t, tokenExpiringAt(t, testNow.Add(time.Hour)))
			env.service.err = tt.err

			w, body := env.do(t, http.MethodPut, "/api/appliances/ac-1/control", `{"mode":"COOL"}`)
			assert.Equal(t, tt.wantStatus, w.Code)
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.False(t, body.Success)
		})
	}
}

func TestRouter_ControlPartialResult(t *testing.T) {
	env := setupRouter(t, tokenExpiringAt(t, testNow.Add(time.Hour)))
	env.service.err = core.ErrCommandRejected
	env.service.result = &control.Result{CommandID: "cmd_partial", Steps: []control.StepResult{{Field: "mode"}}}

	w, body := env.do(t, http.MethodPut, "/api/appliances/ac-1/control", `{"mode":"COOL","targetTemperatureC":24}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, string(body.Error.Details), "cmd_partial")
}

func TestRouter_PanicRecovery(t *testing.T) {
	env := setupRouter(t, tokenExpiringAt(t, testNow.Add(time.Hour)))
	env.service.panics = true

	w, body := env.do(t, http.MethodGet, "/api/appliances", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
}

func TestRouter_UnknownAPIRoute(t *testing.T) {
	env := setupRouter(t, tokenExpiringAt(t, testNow.Add(time.Hour)))

	w, body := env.do(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestRouter_TokenRateLimit(t *testing.T) {
	env := setupRouter(t, "", func(c *RouterConfig) {
		c.TokenRateLimit = middleware.RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2}
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w, _ := env.do(t, http.MethodPut, "/api/token", `{"refreshToken":"x"}`)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)
}

func TestRouter_StaticDashboard(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>dashboard</h1>"), 0o644))
	env := setupRouter(t, tokenExpiringAt(t, testNow.Add(time.Hour)), func(c *RouterConfig) {
		c.StaticDir = dir
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dashboard")
}

func TestRouter_TokenRoutesRequireOperatorKey(t *testing.T) {
	installed := tokenExpiringAt(t, testNow.Add(time.Hour))

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		key        string
		wantStatus int
	}{
		{name: "install without key", method: http.MethodPut, path: "/api/token", body: fmt.Sprintf(`{"accessToken":%q,"refreshToken":"attacker-r"}`, installed), wantStatus: http.StatusUnauthorized},
		{name: "install with wrong key", method: http.MethodPut, path: "/api/token", body: fmt.Sprintf(`{"accessToken":%q,"refreshToken":"attacker-r"}`, installed), key: "guess", wantStatus: http.StatusUnauthorized},
		{name: "install with key", method: http.MethodPut, path: "/api/token", body: fmt.Sprintf(`{"accessToken":%q,"refreshToken":"operator-r"}`, installed), key: testOperatorKey, wantStatus: http.StatusOK},
		{name: "refresh without key", method: http.MethodPost, path: "/api/token/refresh", wantStatus: http.StatusUnauthorized},
		{name: "refresh with key", method: http.MethodPost, path: "/api/token/refresh", key: testOperatorKey, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupRouter(t, tokenExpiringAt(t, testNow.Add(10*time.Minute)))
			env.refresher.result = &core.RefreshResult{AccessToken: tokenExpiringAt(t, testNow.Add(12*time.Hour))}

			w, body := env.doWithKey(t, tt.method, tt.path, tt.body, tt.key)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			if tt.wantStatus == http.StatusUnauthorized {
				require.NotNil(t, body.Error)
				assert.Equal(t, "UNAUTHORIZED", body.Error.Code)
				assert.Equal(t, "refresh-1", env.manager.Tokens().RefreshToken, "credentials untouched")
			}
		})
	}
}

func TestRouter_TokenRoutesAbsentWithoutOperatorKey(t *testing.T) {
	env := setupRouter(t, tokenExpiringAt(t, testNow.Add(time.Hour)), func(c *RouterConfig) {
		c.OperatorKey = ""
	})

	w, _ := env.doWithKey(t, http.MethodPut, "/api/token", `{"accessToken":"a","refreshToken":"r"}`, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.doWithKey(t, http.MethodPost, "/api/token/refresh", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.doWithKey(t, http.MethodGet, "/api/token/status", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "refresh-1", env.manager.Tokens().RefreshToken)
}

func TestRouter_RefreshRacingCredentialChange(t *testing.T) {
	installed := tokenExpiringAt(t, testNow.Add(3*time.Hour))

	tests := []struct {
		name        string
		change      func(t *testing.T, env *testEnv)
		wantStatus  int
		wantCode    string
		wantRefresh string
	}{
		{
			name: "wipe",
			change: func(t *testing.T, env *testEnv) {
				require.NoError(t, env.manager.Wipe(context.Background()))
			},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "NO_ACCESS_TOKEN",
		},
		{
			name: "install",
			change: func(t *testing.T, env *testEnv) {
				w, _ := env.do(t, http.MethodPut, "/api/token", fmt.Sprintf(`{"accessToken":%q,"refreshToken":"r-installed"}`, installed))
				require.Equal(t, http.StatusOK, w.Code)
			},
			wantStatus:  http.StatusOK,
			wantRefresh: "r-installed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupRouter(t, tokenExpiringAt(t, testNow.Add(10*time.Minute)))
			env.refresher.result = &core.RefreshResult{AccessToken: tokenExpiringAt(t, testNow.Add(12*time.Hour)), RefreshToken: "r-stale"}
			env.refresher.started = make(chan struct{})
			env.refresher.release = make(chan struct{})

			done := make(chan *httptest.ResponseRecorder)
			go func() {
				req := httptest.NewRequest(http.MethodPost, "/api/token/refresh", nil)
				req.Header.Set(middleware.OperatorKeyHeader, testOperatorKey)
				w := httptest.NewRecorder()
				env.router.ServeHTTP(w, req)
				done <- w
			}()

			<-env.refresher.started
			tt.change(t, env)
			close(env.refresher.release)
			w := <-done

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantCode != "" {
				assert.Contains(t, w.Body.String(), tt.wantCode)
			}
			assert.Equal(t, tt.wantRefresh, env.manager.Tokens().RefreshToken)

			_, body := env.do(t, http.MethodGet, "/api/token/status", "")
			var status core.TokenStatus
			require.NoError(t, json.Unmarshal(body.Data, &status))
			assert.Equal(t, tt.wantRefresh != "", status.HasRefreshToken)
		})
	}
}
