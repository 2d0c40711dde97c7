package sessions

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vdstech/sacom/internal/authz"
	"github.com/vdstech/sacom/internal/platform/httpx"
	"github.com/vdstech/sacom/internal/shared"
)

// Handler wires the session introspection endpoints. All routes require an
// authenticated identity; users only see and revoke their own sessions.
type Handler struct {
	logger  *slog.Logger
	manager *Manager
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, manager *Manager) *Handler {
	return &Handler{logger: logger, manager: manager}
}

// MountRoutes registers session routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Delete("/deleteSession", h.deleteOne)
	r.Delete("/deleteAllSessions", h.deleteAll)
}

type sessionResponse struct {
	ID         string    `json:"id"`
	UserAgent  string    `json:"userAgent"`
	IP         string    `json:"ip"`
	LastSeenAt time.Time `json:"lastSeenAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
	Current    bool      `json:"current"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	identity := authz.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	out, err := h.manager.ListForUser(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("list sessions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]sessionResponse, 0, len(out))
	for _, sess := range out {
		resp = append(resp, sessionResponse{
			ID:         sess.ID,
			UserAgent:  sess.UserAgent,
			IP:         sess.IP,
			LastSeenAt: sess.LastSeenAt,
			ExpiresAt:  sess.ExpiresAt,
			CreatedAt:  sess.CreatedAt,
			Current:    sess.ID == identity.SessionID,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sessions": resp})
}

type deleteSessionRequest struct {
	SessionID string `json:"sessionId"`
}

func (h *Handler) deleteOne(w http.ResponseWriter, r *http.Request) {
	identity := authz.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var req deleteSessionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.SessionID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "sessionId is required")
		return
	}
	sess, err := h.manager.GetLive(r.Context(), req.SessionID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if sess.UserID != identity.UserID {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	count, err := h.manager.Revoke(r.Context(), req.SessionID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "logged out from the session", "count": count})
}

func (h *Handler) deleteAll(w http.ResponseWriter, r *http.Request) {
	identity := authz.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	count, err := h.manager.RevokeAllForUser(r.Context(), identity.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "logged out from all devices", "count": count})
}
