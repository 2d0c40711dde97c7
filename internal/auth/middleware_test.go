package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vdstech/sacom/internal/authz"
	"github.com/vdstech/sacom/internal/sessions"
)

func newMiddleware(f *fixture) Middleware {
	return Middleware{
		Issuer:   f.issuer,
		Sessions: f.manager,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func loginAndToken(t *testing.T, f *fixture) string {
	t.Helper()
	result, err := f.service.Login(context.Background(), "clerk@example.com", testPassword, sessions.Metadata{})
	require.NoError(t, err)
	return result.AccessToken
}

func TestRequireAuthAttachesIdentity(t *testing.T) {
	f := newFixture(t)
	mw := newMiddleware(f)
	token := loginAndToken(t, f)

	var got *authz.Identity
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = authz.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.NotNil(t, got)
	require.Equal(t, int64(1), got.UserID)
	require.Equal(t, authz.LevelNone, got.Level)
	require.Equal(t, []string{"category:all", "category:read"}, got.Permissions)
}

func TestRequireAuthRejectsMissingHeader(t *testing.T) {
	f := newFixture(t)
	mw := newMiddleware(f)

	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireAuthRejectsGarbageToken(t *testing.T) {
	f := newFixture(t)
	mw := newMiddleware(f)

	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireAuthRejectsRevokedSession(t *testing.T) {
	f := newFixture(t)
	mw := newMiddleware(f)
	token := loginAndToken(t, f)

	claims, err := f.issuer.Verify(token)
	require.NoError(t, err)
	_, err = f.manager.Revoke(context.Background(), claims.SessionID)
	require.NoError(t, err)

	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireGatesOnSnapshot(t *testing.T) {
	f := newFixture(t)
	mw := newMiddleware(f)
	token := loginAndToken(t, f)

	allowed := mw.RequireAuth(mw.Require("category:read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
	denied := mw.RequireAuth(mw.Require("category:delete")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	allowed.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	denied.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRequireWithoutIdentity(t *testing.T) {
	f := newFixture(t)
	mw := newMiddleware(f)

	handler := mw.Require("category:read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
