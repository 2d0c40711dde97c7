package auth

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestHandler(f *fixture) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(logger, f.service, f.userService, f.roleService, false, nil)
}

func mountTestRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	h.MountRoutes(r, func(next http.Handler) http.Handler { return next })
	return r
}

func refreshCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == RefreshCookieName {
			return c
		}
	}
	t.Fatal("refresh cookie not set")
	return nil
}

func TestHandleLoginSetsRefreshCookie(t *testing.T) {
	f := newFixture(t)
	router := mountTestRouter(newTestHandler(f))

	body := `{"email":"clerk@example.com","password":"` + testPassword + `"}`
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		AccessToken string `json:"accessToken"`
		User        struct {
			Email string `json:"email"`
			Roles []struct {
				Name string `json:"name"`
			} `json:"roles"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	require.Equal(t, "clerk@example.com", resp.User.Email)
	require.Len(t, resp.User.Roles, 1)

	cookie := refreshCookie(t, rr)
	require.NotEmpty(t, cookie.Value)
	require.True(t, cookie.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	require.Equal(t, "/", cookie.Path)
}

func TestHandleLoginBadPassword(t *testing.T) {
	f := newFixture(t)
	router := mountTestRouter(newTestHandler(f))

	body := `{"email":"clerk@example.com","password":"nope"}`
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "email / password is incorrect")
}

func TestHandleLoginValidation(t *testing.T) {
	f := newFixture(t)
	router := mountTestRouter(newTestHandler(f))

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"not-an-email"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleRefreshRotatesAccessToken(t *testing.T) {
	f := newFixture(t)
	router := mountTestRouter(newTestHandler(f))

	login := httptest.NewRequest(http.MethodPost, "/login",
		strings.NewReader(`{"email":"clerk@example.com","password":"`+testPassword+`"}`))
	loginRR := httptest.NewRecorder()
	router.ServeHTTP(loginRR, login)
	require.Equal(t, http.StatusOK, loginRR.Code)
	cookie := refreshCookie(t, loginRR)

	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		AccessToken string   `json:"accessToken"`
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	require.Equal(t, []string{"category:all", "category:read"}, resp.Permissions)
}

func TestHandleRefreshWithoutCookie(t *testing.T) {
	f := newFixture(t)
	router := mountTestRouter(newTestHandler(f))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/refresh", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandleLogoutClearsCookie(t *testing.T) {
	f := newFixture(t)
	router := mountTestRouter(newTestHandler(f))

	login := httptest.NewRequest(http.MethodPost, "/login",
		strings.NewReader(`{"email":"clerk@example.com","password":"`+testPassword+`"}`))
	loginRR := httptest.NewRecorder()
	router.ServeHTTP(loginRR, login)
	cookie := refreshCookie(t, loginRR)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	cleared := refreshCookie(t, rr)
	require.Empty(t, cleared.Value)
	require.Equal(t, -1, cleared.MaxAge)
	require.Zero(t, f.sessionRepo.count())
}

func mountMeRouter(h *Handler, mw Middleware) chi.Router {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAuth)
		h.MountMe(r)
	})
	return r
}

func TestHandleMeReportsIdentity(t *testing.T) {
	f := newFixture(t)
	router := mountMeRouter(newTestHandler(f), newMiddleware(f))
	token := loginAndToken(t, f)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Permissions []string `json:"permissions"`
		SystemUser  bool     `json:"systemUser"`
		SystemLevel string   `json:"systemLevel"`
		User        struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "clerk@example.com", resp.User.Email)
	require.False(t, resp.SystemUser)
	require.Equal(t, "NONE", resp.SystemLevel)
	require.Equal(t, []string{"category:all", "category:read"}, resp.Permissions)
}

func TestHandleMeSystemUserFlag(t *testing.T) {
	f := newFixture(t)
	u := f.userRepo.users[1]
	u.IsSystemUser = true
	f.userRepo.users[1] = u

	router := mountMeRouter(newTestHandler(f), newMiddleware(f))
	token := loginAndToken(t, f)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		SystemUser bool `json:"systemUser"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.SystemUser)
}

func TestHandleLogoutWithoutCookieIsIdempotent(t *testing.T) {
	f := newFixture(t)
	router := mountTestRouter(newTestHandler(f))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/logout", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}
