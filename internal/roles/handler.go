package roles

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

// Handler wires the admin role catalog endpoints.
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

// MountRoutes registers role routes. guard produces middleware requiring the
// given permission codes.
func (h *Handler) MountRoutes(r chi.Router, guard func(codes ...string) func(http.Handler) http.Handler) {
	r.With(guard(authz.PermRoleRead)).Get("/", h.list)
	r.With(guard(authz.PermRoleCreate)).Post("/", h.create)
	r.With(guard(authz.PermRoleRead)).Get("/{id}", h.get)
	r.With(guard(authz.PermRoleUpdate)).Put("/{id}", h.update)
	r.With(guard(authz.PermRoleDelete)).Delete("/{id}", h.remove)
}

type roleRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	Permissions []int64 `json:"permissions"`
}

type roleResponse struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Permissions  []int64   `json:"permissions"`
	IsSystemRole bool      `json:"isSystemRole"`
	SystemLevel  string    `json:"systemLevel"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toResponse(role Role) roleResponse {
	perms := role.PermissionIDs
	if perms == nil {
		perms = []int64{}
	}
	return roleResponse{
		ID:           role.ID,
		Name:         role.Name,
		Description:  role.Description,
		Permissions:  perms,
		IsSystemRole: role.IsSystemRole,
		SystemLevel:  string(role.SystemLevel),
		CreatedAt:    role.CreatedAt,
		UpdatedAt:    role.UpdatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]roleResponse, 0, len(out))
	for _, role := range out {
		resp = append(resp, toResponse(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": resp})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	role, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role": toResponse(role)})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := authz.IdentityFromContext(r.Context())
	role, err := h.service.Create(r.Context(), actor, req.Name, req.Description, req.Permissions)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordAudit(r, "role.create", role.ID, map[string]any{"name": role.Name})
	httpx.JSON(w, http.StatusCreated, map[string]any{"role": toResponse(role)})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := authz.IdentityFromContext(r.Context())
	role, err := h.service.Update(r.Context(), actor, id, req.Name, req.Description, req.Permissions)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordAudit(r, "role.update", role.ID, map[string]any{"name": role.Name})
	httpx.JSON(w, http.StatusOK, map[string]any{"role": toResponse(role)})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	actor := authz.IdentityFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordAudit(r, "role.delete", id, nil)
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "role deleted"})
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
		Entity:   "role",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	}); err != nil && h.logger != nil {
		h.logger.Warn("audit record", slog.Any("error", err))
	}
}
