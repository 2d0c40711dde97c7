package users

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

// Handler wires the admin user management endpoints.
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

// MountRoutes registers user management routes. guard produces middleware
// requiring the given permission codes.
func (h *Handler) MountRoutes(r chi.Router, guard func(codes ...string) func(http.Handler) http.Handler) {
	r.With(guard(authz.PermUserRead)).Get("/", h.list)
	r.With(guard(authz.PermUserWrite)).Post("/", h.create)
	r.With(guard(authz.PermUserRead)).Get("/{id}", h.get)
	r.With(guard(authz.PermUserWrite)).Put("/{id}", h.update)
	r.With(guard(authz.PermUserDelete)).Delete("/{id}", h.remove)
}

type createUserRequest struct {
	Email       string  `json:"email" validate:"required,email"`
	Name        string  `json:"name" validate:"required"`
	Password    string  `json:"password" validate:"required,min=8"`
	Roles       []int64 `json:"roles" validate:"required,min=1"`
	SystemLevel string  `json:"systemLevel"`
}

type updateUserRequest struct {
	Name        string  `json:"name" validate:"required"`
	Roles       []int64 `json:"roles" validate:"required,min=1"`
	Disabled    bool    `json:"disabled"`
	ForceReset  bool    `json:"forceReset"`
	SystemLevel string  `json:"systemLevel"`
}

type userResponse struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Roles        []int64    `json:"roles"`
	Disabled     bool       `json:"disabled"`
	ForceReset   bool       `json:"forceReset"`
	SystemLevel  string     `json:"systemLevel"`
	IsSystemUser bool       `json:"isSystemUser"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func toResponse(u User) userResponse {
	roleIDs := u.RoleIDs
	if roleIDs == nil {
		roleIDs = []int64{}
	}
	return userResponse{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Roles:        roleIDs,
		Disabled:     u.Disabled,
		ForceReset:   u.ForceReset,
		SystemLevel:  string(u.SystemLevel),
		IsSystemUser: u.IsSystemUser,
		LastLoginAt:  u.LastLoginAt,
		CreatedAt:    u.CreatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]userResponse, 0, len(out))
	for _, u := range out {
		resp = append(resp, toResponse(u))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": resp})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": toResponse(*user)})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.Create(r.Context(), CreateParams{
		Email:         req.Email,
		Name:          req.Name,
		Password:      req.Password,
		RoleIDs:       req.Roles,
		DeclaredLevel: req.SystemLevel,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordAudit(r, "user.create", user.ID, map[string]any{"email": user.Email})
	httpx.JSON(w, http.StatusCreated, map[string]any{"user": toResponse(*user)})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	var req updateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.Update(r.Context(), id, UpdateParams{
		Name:          req.Name,
		RoleIDs:       req.Roles,
		Disabled:      req.Disabled,
		ForceReset:    req.ForceReset,
		DeclaredLevel: req.SystemLevel,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordAudit(r, "user.update", user.ID, map[string]any{"email": user.Email})
	httpx.JSON(w, http.StatusOK, map[string]any{"user": toResponse(*user)})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordAudit(r, "user.delete", id, nil)
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "user deleted"})
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
		Entity:   "user",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	}); err != nil && h.logger != nil {
		h.logger.Warn("audit record", slog.Any("error", err))
	}
}
