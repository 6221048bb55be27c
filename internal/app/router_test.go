package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libris-hub/libris/internal/observability"
	"github.com/libris-hub/libris/internal/rbac"
	"github.com/libris-hub/libris/internal/shared"
	"github.com/libris-hub/libris/jobs"
)

type identityTable map[int64]rbac.Identity

func (t identityTable) ResolveIdentity(_ context.Context, userID int64) (rbac.Identity, error) {
	id, ok := t[userID]
	if !ok {
		return rbac.Identity{}, shared.NotFound("user not found")
	}
	return id, nil
}

type testServer struct {
	handler http.Handler
	tokens  *shared.TokenStore
}

func newTestServer(t *testing.T, cfg *Config) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	tokens := shared.NewTokenStore(client, "test", time.Hour)

	policy, err := rbac.DefaultPolicy()
	require.NoError(t, err)
	mw := rbac.Middleware{
		Sessions:   tokens,
		Identities: identityTable{7: {UserID: 7, Username: "lin", Role: rbac.RoleLibrarian}},
	}
	handler := NewRouter(RouterParams{
		Config:             cfg,
		RBACMiddleware:     mw,
		Metrics:            observability.NewMetrics(),
		PermissionsHandler: rbac.NewPermissionsHandler(nil, rbac.NewEngine(policy), mw),
		JobHandler:         jobs.NewHandler(nil, nil),
	})
	return &testServer{handler: handler, tokens: tokens}
}

func (s *testServer) get(path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthzAndSecurityHeaders(t *testing.T) {
	srv := newTestServer(t, &Config{})
	rec := srv.get("/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestUnknownRouteIsProblem(t *testing.T) {
	srv := newTestServer(t, &Config{})
	rec := srv.get("/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestAuthenticationIsAppliedToEveryRoute(t *testing.T) {
	srv := newTestServer(t, &Config{})

	assert.Equal(t, http.StatusUnauthorized, srv.get("/permissions", "").Code)
	assert.Equal(t, http.StatusUnauthorized, srv.get("/healthz", "bogus").Code)

	sess, err := srv.tokens.Issue(context.Background(), 7, "test")
	require.NoError(t, err)
	rec := srv.get("/permissions", sess.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"group":"Editors"`)
	assert.Contains(t, rec.Body.String(), `"book.can_create"`)
	assert.NotContains(t, rec.Body.String(), `can_delete`)

	ghost, err := srv.tokens.Issue(context.Background(), 99, "test")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, srv.get("/permissions", ghost.Token).Code)
}

func TestMetricsAndJobsEndpoints(t *testing.T) {
	srv := newTestServer(t, &Config{})
	require.Equal(t, http.StatusOK, srv.get("/jobs/health", "").Code)

	rec := srv.get("/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "libris_http_requests_total")
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, &Config{RateLimit: 2, RateWindow: time.Minute})
	assert.Equal(t, http.StatusOK, srv.get("/healthz", "").Code)
	assert.Equal(t, http.StatusOK, srv.get("/healthz", "").Code)
	rec := srv.get("/healthz", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &Config{CORSAllowedOrigins: []string{"https://app.example.com"}})
	req := httptest.NewRequest(http.MethodOptions, "/books", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
