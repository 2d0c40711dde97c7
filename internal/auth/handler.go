package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vdstech/sacom/internal/authz"
	"github.com/vdstech/sacom/internal/platform/httpx"
	"github.com/vdstech/sacom/internal/roles"
	"github.com/vdstech/sacom/internal/sessions"
	"github.com/vdstech/sacom/internal/shared"
	"github.com/vdstech/sacom/internal/users"
)

// RefreshCookieName is the HTTP-only cookie carrying the opaque refresh secret.
const RefreshCookieName = "refreshToken"

// LoginObserver counts login attempts by outcome.
type LoginObserver interface {
	ObserveLogin(outcome string)
}

// Handler wires the authentication endpoints.
type Handler struct {
	logger       *slog.Logger
	service      *Service
	users        *users.Service
	roles        *roles.Service
	secureCookie bool
	validator    *validator.Validate
	observer     LoginObserver
}

// NewHandler constructs a Handler instance. secureCookie should be true in
// production so the refresh cookie is HTTPS-only. observer may be nil.
func NewHandler(logger *slog.Logger, service *Service, userService *users.Service, roleService *roles.Service, secureCookie bool, observer LoginObserver) *Handler {
	return &Handler{
		logger:       logger,
		service:      service,
		users:        userService,
		roles:        roleService,
		secureCookie: secureCookie,
		validator:    validator.New(),
		observer:     observer,
	}
}

// MountRoutes registers the unauthenticated auth routes. loginLimiter wraps
// only the credential endpoint.
func (h *Handler) MountRoutes(r chi.Router, loginLimiter func(http.Handler) http.Handler) {
	r.With(loginLimiter).Post("/login", h.handleLogin)
	r.Post("/refresh", h.handleRefresh)
	r.Post("/logout", h.handleLogout)
}

// MountMe registers the authenticated identity route.
func (h *Handler) MountMe(r chi.Router) {
	r.Get("/me", h.handleMe)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type roleSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type userSummary struct {
	ID    int64         `json:"id"`
	Email string        `json:"email"`
	Name  string        `json:"name"`
	Roles []roleSummary `json:"roles"`
}

func summarize(user *users.User, assigned []roles.Role) userSummary {
	out := userSummary{ID: user.ID, Email: user.Email, Name: user.Name, Roles: []roleSummary{}}
	for _, role := range assigned {
		out.Roles = append(out.Roles, roleSummary{ID: role.ID, Name: role.Name})
	}
	return out
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "email and password are required")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "email and password are required")
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password, sessions.Metadata{
		UserAgent: r.UserAgent(),
		IP:        r.RemoteAddr,
	})
	if err != nil {
		h.observeLogin(loginOutcome(err))
		httpx.RespondError(w, err)
		return
	}
	h.observeLogin("success")

	h.setRefreshCookie(w, result.RefreshSecret)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"accessToken": result.AccessToken,
		"user":        summarize(result.User, result.Roles),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil || cookie.Value == "" {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}

	result, err := h.service.Refresh(r.Context(), cookie.Value)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	perms := result.Permissions
	if perms == nil {
		perms = []string{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"accessToken": result.AccessToken,
		"user":        summarize(result.User, result.Roles),
		"permissions": perms,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	count := int64(0)
	if cookie, err := r.Cookie(RefreshCookieName); err == nil && cookie.Value != "" {
		count, err = h.service.Logout(r.Context(), cookie.Value)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	h.clearRefreshCookie(w)
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "logged out", "count": count})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	identity := authz.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	user, err := h.users.Get(r.Context(), identity.UserID)
	if err != nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	assigned, err := h.roles.GetByIDs(r.Context(), user.RoleIDs)
	if err != nil {
		h.logger.Warn("load roles for me", slog.Any("error", err))
	}

	perms := identity.Permissions
	if perms == nil {
		perms = []string{}
	}
	summary := summarize(user, assigned)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user":        summary,
		"roles":       summary.Roles,
		"permissions": perms,
		"systemUser":  identity.SystemUser,
		"systemLevel": string(identity.Level),
	})
}

func (h *Handler) observeLogin(outcome string) {
	if h.observer != nil {
		h.observer.ObserveLogin(outcome)
	}
}

func loginOutcome(err error) string {
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials),
		errors.Is(err, shared.ErrAccountDisabled),
		errors.Is(err, shared.ErrPasswordResetRequired):
		return "denied"
	default:
		return "error"
	}
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, secret string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    secret,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(sessions.TTL),
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
