package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/vdstech/sacom/internal/authz"
	"github.com/vdstech/sacom/internal/shared"
)

// Service wraps role catalog business rules, including the self-escalation
// guards: an ADMIN-tier caller may never create, rename to, mutate or delete
// the ADMIN role, and system roles cannot be deleted at all.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NormalizeName case-normalizes a role name. Role names are unique under
// this normalization.
func NormalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// List returns all roles.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.repo.List(ctx)
}

// Get fetches a role by id.
func (s *Service) Get(ctx context.Context, id int64) (Role, error) {
	return s.repo.Get(ctx, id)
}

// GetByIDs fetches roles for the given ids.
func (s *Service) GetByIDs(ctx context.Context, ids []int64) ([]Role, error) {
	return s.repo.GetByIDs(ctx, ids)
}

// DirectPermissionIDs returns the permission ids attached to the given roles.
func (s *Service) DirectPermissionIDs(ctx context.Context, roleIDs []int64) ([]int64, error) {
	return s.repo.DirectPermissionIDs(ctx, roleIDs)
}

// Create inserts a new role.
func (s *Service) Create(ctx context.Context, actor *authz.Identity, name, description string, permissionIDs []int64) (Role, error) {
	name = NormalizeName(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	if actor != nil && actor.Level == authz.LevelAdmin && name == AdminRoleName {
		return Role{}, fmt.Errorf("%w: ADMIN tier may not create the ADMIN role", shared.ErrForbidden)
	}
	return s.repo.Create(ctx, name, strings.TrimSpace(description), permissionIDs)
}

// Update renames a role and replaces its permission set.
func (s *Service) Update(ctx context.Context, actor *authz.Identity, id int64, name, description string, permissionIDs []int64) (Role, error) {
	name = NormalizeName(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if actor != nil && actor.Level == authz.LevelAdmin {
		if current.Name == AdminRoleName {
			return Role{}, fmt.Errorf("%w: ADMIN tier may not mutate the ADMIN role", shared.ErrForbidden)
		}
		if name == AdminRoleName {
			return Role{}, fmt.Errorf("%w: ADMIN tier may not rename a role to ADMIN", shared.ErrForbidden)
		}
	}
	return s.repo.Update(ctx, id, name, strings.TrimSpace(description), permissionIDs)
}

// Delete removes a role. System roles are protected regardless of caller tier.
func (s *Service) Delete(ctx context.Context, actor *authz.Identity, id int64) error {
	role, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return fmt.Errorf("%w: system roles cannot be deleted", shared.ErrForbidden)
	}
	if actor != nil && actor.Level == authz.LevelAdmin && role.Name == AdminRoleName {
		return fmt.Errorf("%w: ADMIN tier may not delete the ADMIN role", shared.ErrForbidden)
	}
	return s.repo.Delete(ctx, id)
}
