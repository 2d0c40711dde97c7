package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/vdstech/sacom/internal/authz"
	"github.com/vdstech/sacom/internal/roles"
	"github.com/vdstech/sacom/internal/security"
	"github.com/vdstech/sacom/internal/shared"
)

// Service wraps identity store business rules: email uniqueness, derived
// tiers, the single-SUPER invariant and system-user protection.
type Service struct {
	repo  Repository
	roles *roles.Service
}

// NewService constructs a new Service.
func NewService(repo Repository, roleService *roles.Service) *Service {
	return &Service{repo: repo, roles: roleService}
}

// CreateParams carries the admin create-user request. DeclaredLevel is
// optional; when present it must agree with the tier derived from the roles.
type CreateParams struct {
	Email         string
	Name          string
	Password      string
	RoleIDs       []int64
	DeclaredLevel string
}

// UpdateParams carries the admin update-user request.
type UpdateParams struct {
	Name          string
	RoleIDs       []int64
	Disabled      bool
	ForceReset    bool
	DeclaredLevel string
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// Get fetches a user by id.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.Get(ctx, id)
}

// FindByEmail fetches a user by email.
func (s *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// MarkLogin stamps the last successful login time.
func (s *Service) MarkLogin(ctx context.Context, id int64) error {
	return s.repo.SetLastLogin(ctx, id)
}

// Create registers a new user. The SUPER_ADMIN role can never be assigned
// through this path, and at most one SUPER user may exist system-wide.
func (s *Service) Create(ctx context.Context, params CreateParams) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if email == "" || params.Name == "" || params.Password == "" {
		return nil, fmt.Errorf("%w: email, name and password are required", shared.ErrValidation)
	}
	if len(params.RoleIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one role is required", shared.ErrValidation)
	}

	level, systemUser, err := s.deriveFromRoles(ctx, params.RoleIDs)
	if err != nil {
		return nil, err
	}
	if err := s.checkDeclaredLevel(params.DeclaredLevel, level); err != nil {
		return nil, err
	}
	if level == authz.LevelSuper {
		if err := s.ensureSingleSuper(ctx, 0); err != nil {
			return nil, err
		}
	}

	hash, err := security.HashPassword(params.Password)
	if err != nil {
		return nil, err
	}

	return s.repo.Create(ctx, User{
		Email:          email,
		Name:           strings.TrimSpace(params.Name),
		CredentialHash: hash,
		RoleIDs:        params.RoleIDs,
		SystemLevel:    level,
		IsSystemUser:   systemUser,
	})
}

// Update rewrites a user's profile and role memberships, recomputing the
// derived tier from the new role set.
func (s *Service) Update(ctx context.Context, id int64, params UpdateParams) (*User, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(params.RoleIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one role is required", shared.ErrValidation)
	}

	level, systemUser, err := s.deriveFromRoles(ctx, params.RoleIDs)
	if err != nil {
		return nil, err
	}
	if err := s.checkDeclaredLevel(params.DeclaredLevel, level); err != nil {
		return nil, err
	}
	if level == authz.LevelSuper {
		if err := s.ensureSingleSuper(ctx, id); err != nil {
			return nil, err
		}
	}

	current.Name = strings.TrimSpace(params.Name)
	current.RoleIDs = params.RoleIDs
	current.Disabled = params.Disabled
	current.ForceReset = params.ForceReset
	current.SystemLevel = level
	current.IsSystemUser = systemUser
	return s.repo.Update(ctx, *current)
}

// Delete removes a user. System users cannot be deleted.
func (s *Service) Delete(ctx context.Context, id int64) error {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if user.IsSystemUser {
		return fmt.Errorf("%w: system user cannot be deleted", shared.ErrForbidden)
	}
	return s.repo.Delete(ctx, id)
}

// deriveFromRoles validates the role set and computes the derived tier, the
// highest tier among the assigned roles.
func (s *Service) deriveFromRoles(ctx context.Context, roleIDs []int64) (authz.Level, bool, error) {
	assigned, err := s.roles.GetByIDs(ctx, roleIDs)
	if err != nil {
		return authz.LevelNone, false, err
	}
	if len(assigned) != len(dedupe(roleIDs)) {
		return authz.LevelNone, false, fmt.Errorf("%w: invalid role(s)", shared.ErrValidation)
	}

	level := authz.LevelNone
	for _, role := range assigned {
		if role.Name == roles.SuperAdminRoleName {
			return authz.LevelNone, false, fmt.Errorf("%w: SUPER_ADMIN role cannot be assigned via API", shared.ErrForbidden)
		}
		level = authz.Max(level, role.SystemLevel)
	}
	return level, level != authz.LevelNone, nil
}

func (s *Service) checkDeclaredLevel(declared string, derived authz.Level) error {
	if declared == "" {
		return nil
	}
	if authz.ParseLevel(declared) != derived {
		return fmt.Errorf("%w: systemLevel is derived from roles and cannot be set to %s", shared.ErrValidation, declared)
	}
	return nil
}

func (s *Service) ensureSingleSuper(ctx context.Context, excludeID int64) error {
	count, err := s.repo.CountSuper(ctx, excludeID)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: only one SUPER user is allowed", shared.ErrConflict)
	}
	return nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
