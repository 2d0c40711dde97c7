package permissions

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vdstech/sacom/internal/authz"
	"github.com/vdstech/sacom/internal/platform/httpx"
	"github.com/vdstech/sacom/internal/shared"
)

// Handler wires the admin permission catalog endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	audit     *shared.AuditLogger
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, audit *shared.AuditLogger) *Handler {
	return &Handler{logger: logger, service: service, audit: audit, validator: validator.New()}
}

// MountRoutes registers permission routes. guard produces middleware requiring
// the given permission codes; the hard-deny rules in authz keep ADMIN tiers
// read-only here regardless of their snapshot.
func (h *Handler) MountRoutes(r chi.Router, guard func(codes ...string) func(http.Handler) http.Handler) {
	r.With(guard(authz.PermPermissionRead)).Get("/", h.list)
	r.With(guard(authz.PermPermissionCreate)).Post("/", h.create)
	r.With(guard(authz.PermPermissionRead)).Get("/{id}", h.get)
	r.With(guard(authz.PermPermissionUpdate)).Put("/{id}", h.update)
	r.With(guard(authz.PermPermissionDelete)).Delete("/{id}", h.remove)
}

type permissionRequest struct {
	Code        string  `json:"code" validate:"required"`
	Description string  `json:"description"`
	Children    []int64 `json:"children"`
}

type permissionResponse struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	Children    []int64   `json:"children"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toResponse(p Permission) permissionResponse {
	children := p.Children
	if children == nil {
		children = []int64{}
	}
	return permissionResponse{
		ID:          p.ID,
		Code:        p.Code,
		Description: p.Description,
		Children:    children,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, toResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid permission id")
		return
	}
	perm, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permission": toResponse(perm)})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	perm, err := h.service.Create(r.Context(), req.Code, req.Description, req.Children)
	if err != nil {
		h.logger.Error("create permission", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.recordAudit(r, "permission.create", perm.ID, map[string]any{"code": perm.Code})
	httpx.JSON(w, http.StatusCreated, map[string]any{"permission": toResponse(perm)})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid permission id")
		return
	}
	var req permissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	perm, err := h.service.Update(r.Context(), id, req.Code, req.Description, req.Children)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordAudit(r, "permission.update", perm.ID, map[string]any{"code": perm.Code})
	httpx.JSON(w, http.StatusOK, map[string]any{"permission": toResponse(perm)})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid permission id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordAudit(r, "permission.delete", id, nil)
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "permission deleted"})
}

func (h *Handler) recordAudit(r *http.Request, action string, entityID int64, meta map[string]any) {
	if h.audit == nil {
		return
	}
	var actorID int64
	if id := authz.IdentityFromContext(r.Context()); id != nil {
		actorID = id.UserID
	}
	if err := h.audit.Record(r.Context(), shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "permission",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	}); err != nil && h.logger != nil {
		h.logger.Warn("audit record", slog.Any("error", err))
	}
}
