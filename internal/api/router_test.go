package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hatemosphere/admin-console/internal/audit"
	"github.com/hatemosphere/admin-console/internal/auth"
	"github.com/hatemosphere/admin-console/internal/session"
	"github.com/hatemosphere/admin-console/internal/storage"
)

func init() {
	audit.Enabled = false
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type exchangeFunc func(ctx context.Context, code, state string) (string, error)

func (f exchangeFunc) Exchange(ctx context.Context, code, state string) (string, error) {
	return f(ctx, code, state)
}

type consoleFixture struct {
	durable  *storage.MemoryStore
	srv      *httptest.Server
	client   *http.Client
	token    atomic.Value // string returned by the exchanger
	exchErr  error
	exchange atomic.Int32
}

func newConsole(t *testing.T) *consoleFixture {
	t.Helper()
	f := &consoleFixture{durable: storage.NewMemoryStore(0, time.Hour)}
	f.token.Store("")

	ex := exchangeFunc(func(context.Context, string, string) (string, error) {
		f.exchange.Add(1)
		if f.exchErr != nil {
			return "", f.exchErr
		}
		return f.token.Load().(string), nil
	})
	reg := session.NewRegistry(session.Config{
		OAuth: auth.OAuthConfig{
			ProviderURL:     "https://idp.example.com",
			ClientID:        "console",
			RedirectURI:     "http://console.test/callback",
			Scopes:          []string{"openid"},
			TestStatePrefix: auth.DefaultTestStatePrefix,
		},
	}, f.durable, storage.NewMemoryStore(0, time.Hour), storage.NewMemoryStore(0, 5*time.Minute), ex,
		session.WithClock(func() time.Time { return testNow }))

	f.srv = httptest.NewServer(NewServer(reg).Router())
	t.Cleanup(f.srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	f.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return f
}

func mintToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = testNow.Add(time.Hour).Unix()
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	return s
}

// loginAs stores a credential for a new session and gives the client its cookie.
func (f *consoleFixture) loginAs(t *testing.T, role, tenantID string) {
	t.Helper()
	id := uuid.NewString()
	claims := jwt.MapClaims{"sub": "u-" + role, "role": role}
	if tenantID != "" {
		claims["tenant_id"] = tenantID
	}
	require.NoError(t, storage.NewTokenStore(f.durable.Scope(id)).Store(context.Background(), mintToken(t, claims)))

	u, _ := url.Parse(f.srv.URL)
	f.client.Jar.SetCookies(u, []*http.Cookie{{Name: DefaultCookieName, Value: id, Path: "/"}})
}

func (f *consoleFixture) do(t *testing.T, method, path string, body io.Reader, headers ...string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, body)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func (f *consoleFixture) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	return f.do(t, http.MethodGet, path, nil)
}

func TestLoginFlow(t *testing.T) {
	f := newConsole(t)
	f.token.Store(mintToken(t, jwt.MapClaims{"sub": "u-1", "role": "uber_admin", "name": "Ada"}))

	resp, body := f.get(t, "/login")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "/login/start")
	require.NotEmpty(t, resp.Cookies())
	assert.Equal(t, DefaultCookieName, resp.Cookies()[0].Name)
	assert.True(t, resp.Cookies()[0].HttpOnly)

	resp, _ = f.get(t, "/login/start")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	provider, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", provider.Host)
	state := provider.Query().Get("state")
	require.NotEmpty(t, state)

	resp, _ = f.get(t, "/callback?code=abc123&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	assert.Equal(t, int32(1), f.exchange.Load())

	resp, body = f.get(t, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Ada")
	assert.Contains(t, body, "uber_admin")

	resp, body = f.get(t, "/api/session")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"isAuthenticated":true,"isLoading":false,"user":{"id":"u-1","role":"uber_admin","name":"Ada"}}`, body)
	assert.NotContains(t, body, "token")

	resp, _ = f.do(t, http.MethodPost, "/logout", nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, body = f.get(t, "/api/session")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"isAuthenticated":false,"isLoading":false}`, body)

	resp, _ = f.get(t, "/")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestLoginPage_RedirectsWhenSignedIn(t *testing.T) {
	f := newConsole(t)
	f.loginAs(t, "tenant_admin", "t9")

	resp, _ := f.get(t, "/login")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestShell_GuardRedirects(t *testing.T) {
	f := newConsole(t)

	for _, path := range []string{"/", "/tenants/acme", "/documents/42/edit"} {
		resp, _ := f.get(t, path)
		assert.Equal(t, http.StatusFound, resp.StatusCode, path)
		assert.Equal(t, "/login", resp.Header.Get("Location"), path)
	}
}

func TestShell_ServesConsolePages(t *testing.T) {
	f := newConsole(t)
	f.loginAs(t, "tenant_admin", "t9")

	resp, body := f.get(t, "/documents/42")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Sign out")

	resp, _ = f.get(t, "/api/unknown")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCallback_Errors(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		status int
		want   string
	}{
		{"provider error", "error=access_denied", http.StatusUnauthorized, "Authentication failed: access_denied"},
		{"provider error with description", "error=access_denied&error_description=user+cancelled", http.StatusUnauthorized, "Authentication failed: access_denied - user cancelled"},
		{"missing code", "state=whatever", http.StatusBadRequest, "no authorization code received"},
		{"forged state", "code=abc123&state=forged", http.StatusBadRequest, "invalid state parameter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newConsole(t)
			f.get(t, "/login/start")

			resp, body := f.get(t, "/callback?"+tt.query)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Contains(t, body, tt.want)
			assert.Contains(t, body, `href="/login"`)
			assert.Zero(t, f.exchange.Load())
		})
	}
}

func TestCallback_ExchangeFailure(t *testing.T) {
	f := newConsole(t)
	f.exchErr = errors.New("backend returned 500: boom")

	resp, body := f.get(t, "/callback?code=abc123&state=test-xyz")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, "failed to obtain access token")
	assert.NotContains(t, body, "boom")
	assert.Equal(t, int32(1), f.exchange.Load())

	resp, _ = f.get(t, "/api/session")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCallback_TestStateBypass(t *testing.T) {
	f := newConsole(t)
	f.token.Store(mintToken(t, jwt.MapClaims{"sub": "u-2", "role": "tenant_admin", "tenant_id": "t9"}))

	resp, _ := f.get(t, "/callback?code=abc123&state=test-xyz")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, int32(1), f.exchange.Load())
}

func TestAccessAPI(t *testing.T) {
	t.Run("unauthenticated", func(t *testing.T) {
		f := newConsole(t)
		resp, body := f.get(t, "/api/access")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.JSONEq(t, `{"code":401,"message":"not authenticated","reason":"not_authenticated"}`, body)
	})

	t.Run("uber admin", func(t *testing.T) {
		f := newConsole(t)
		f.loginAs(t, "uber_admin", "")
		resp, body := f.get(t, "/api/access")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{
			"role": "uber_admin",
			"isUberAdmin": true,
			"isTenantAdmin": false,
			"permissions": {
				"canViewPlatformDashboard": true,
				"canManageTenants": true,
				"canViewTenantDashboard": false,
				"canManageDocuments": false,
				"canManageConfiguration": false,
				"canViewAnalytics": false,
				"canManageUsers": false,
				"canSwitchTenantContext": true
			}
		}`, body)
	})
}

func TestTenantAPI_UberAdmin(t *testing.T) {
	f := newConsole(t)
	f.loginAs(t, "uber_admin", "")

	resp, body := f.get(t, "/api/tenant")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"isInTenantContext":false}`, body)

	resp, body = f.do(t, http.MethodPut, "/api/tenant", strings.NewReader(`{"id":"t1","name":"Acme"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.JSONEq(t, `{"currentTenantId":"t1","currentTenantName":"Acme","isInTenantContext":true}`, body)

	// Persisted for the browser session.
	_, body = f.get(t, "/api/tenant")
	assert.JSONEq(t, `{"currentTenantId":"t1","currentTenantName":"Acme","isInTenantContext":true}`, body)

	resp, body = f.do(t, http.MethodPut, "/api/tenant", strings.NewReader(`{"name":"NoID"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)

	resp, body = f.do(t, http.MethodDelete, "/api/tenant", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"isInTenantContext":false}`, body)
}

func TestTenantAPI_TenantAdminDenied(t *testing.T) {
	f := newConsole(t)
	f.loginAs(t, "tenant_admin", "t9")

	resp, body := f.do(t, http.MethodPut, "/api/tenant", strings.NewReader(`{"id":"t1","name":"Acme"}`))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.JSONEq(t, `{"code":403,"message":"permission denied: switch_tenant_context","reason":"missing_capability"}`, body)

	resp, _ = f.do(t, http.MethodDelete, "/api/tenant", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, body = f.get(t, "/api/tenant")
	assert.JSONEq(t, `{"currentTenantId":"t9","isInTenantContext":false}`, body)
}

func TestTenantAPI_GzipBody(t *testing.T) {
	f := newConsole(t)
	f.loginAs(t, "uber_admin", "")

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write([]byte(`{"id":"t2","name":"Globex"}`))
	require.NoError(t, gz.Close())

	resp, body := f.do(t, http.MethodPut, "/api/tenant", &buf, "Content-Encoding", "gzip")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var out TenantBody
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Equal(t, "t2", out.CurrentTenantID)

	resp, _ = f.do(t, http.MethodPut, "/api/tenant", strings.NewReader("not gzip"), "Content-Encoding", "gzip")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionRefresh_DropsExpiredCredential(t *testing.T) {
	f := newConsole(t)
	id := uuid.NewString()
	expired := mintToken(t, jwt.MapClaims{"sub": "u", "role": "uber_admin", "exp": testNow.Add(-time.Second).Unix()})
	require.NoError(t, storage.NewTokenStore(f.durable.Scope(id)).Store(context.Background(), expired))
	u, _ := url.Parse(f.srv.URL)
	f.client.Jar.SetCookies(u, []*http.Cookie{{Name: DefaultCookieName, Value: id, Path: "/"}})

	resp, body := f.do(t, http.MethodPost, "/api/session/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"isAuthenticated":false,"isLoading":false}`, body)

	_, ok, err := storage.NewTokenStore(f.durable.Scope(id)).Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidSessionCookieIgnored(t *testing.T) {
	f := newConsole(t)
	u, _ := url.Parse(f.srv.URL)
	f.client.Jar.SetCookies(u, []*http.Cookie{{Name: DefaultCookieName, Value: "../../etc", Path: "/"}})

	resp, body := f.get(t, "/api/session")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"isAuthenticated":false,"isLoading":false}`, body)
}
