package users

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vdstech/sacom/internal/authz"
	"github.com/vdstech/sacom/internal/roles"
	"github.com/vdstech/sacom/internal/shared"
)

type stubUserRepo struct {
	users      map[int64]User
	nextID     int64
	superCount int
	lastEmail  string
	deleted    []int64
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[int64]User)}
}

func (r *stubUserRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	r.lastEmail = email
	for _, u := range r.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *stubUserRepo) Get(ctx context.Context, id int64) (*User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	out := u
	return &out, nil
}

func (r *stubUserRepo) List(ctx context.Context) ([]User, error) {
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r *stubUserRepo) Create(ctx context.Context, user User) (*User, error) {
	r.nextID++
	user.ID = r.nextID
	r.users[user.ID] = user
	out := user
	return &out, nil
}

func (r *stubUserRepo) Update(ctx context.Context, user User) (*User, error) {
	if _, ok := r.users[user.ID]; !ok {
		return nil, shared.ErrNotFound
	}
	r.users[user.ID] = user
	out := user
	return &out, nil
}

func (r *stubUserRepo) Delete(ctx context.Context, id int64) error {
	delete(r.users, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *stubUserRepo) SetLastLogin(ctx context.Context, id int64) error { return nil }

func (r *stubUserRepo) CountSuper(ctx context.Context, excludeID int64) (int, error) {
	return r.superCount, nil
}

type stubRoleRepo struct {
	roles map[int64]roles.Role
}

func (r *stubRoleRepo) List(ctx context.Context) ([]roles.Role, error) { return nil, nil }

func (r *stubRoleRepo) Get(ctx context.Context, id int64) (roles.Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return roles.Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (r *stubRoleRepo) GetByName(ctx context.Context, name string) (roles.Role, error) {
	return roles.Role{}, shared.ErrNotFound
}

func (r *stubRoleRepo) GetByIDs(ctx context.Context, ids []int64) ([]roles.Role, error) {
	out := make([]roles.Role, 0, len(ids))
	seen := make(map[int64]struct{})
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if role, ok := r.roles[id]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (r *stubRoleRepo) Create(ctx context.Context, name, description string, permissionIDs []int64) (roles.Role, error) {
	return roles.Role{}, nil
}

func (r *stubRoleRepo) Update(ctx context.Context, id int64, name, description string, permissionIDs []int64) (roles.Role, error) {
	return roles.Role{}, nil
}

func (r *stubRoleRepo) Delete(ctx context.Context, id int64) error { return nil }

func (r *stubRoleRepo) DirectPermissionIDs(ctx context.Context, roleIDs []int64) ([]int64, error) {
	return nil, nil
}

func newServiceWithRoles(userRepo *stubUserRepo, catalog map[int64]roles.Role) *Service {
	roleService := roles.NewService(&stubRoleRepo{roles: catalog})
	return NewService(userRepo, roleService)
}

func defaultCatalog() map[int64]roles.Role {
	return map[int64]roles.Role{
		1: {ID: 1, Name: roles.AdminRoleName, IsSystemRole: true, SystemLevel: authz.LevelAdmin},
		2: {ID: 2, Name: roles.SuperAdminRoleName, IsSystemRole: true, SystemLevel: authz.LevelSuper},
		3: {ID: 3, Name: "CLERK", SystemLevel: authz.LevelNone},
		4: {ID: 4, Name: "OPERATOR", SystemLevel: authz.LevelSuper},
	}
}

func TestCreateDerivesTierFromRoles(t *testing.T) {
	repo := newStubUserRepo()
	svc := newServiceWithRoles(repo, defaultCatalog())

	user, err := svc.Create(context.Background(), CreateParams{
		Email:    "Jane@Example.COM",
		Name:     "Jane",
		Password: "correct horse",
		RoleIDs:  []int64{1, 3},
	})
	require.NoError(t, err)
	require.Equal(t, "jane@example.com", user.Email)
	require.Equal(t, authz.LevelAdmin, user.SystemLevel)
	require.True(t, user.IsSystemUser)
	require.True(t, strings.HasPrefix(user.CredentialHash, "$argon2id$"))
}

func TestCreateNoneTierUser(t *testing.T) {
	repo := newStubUserRepo()
	svc := newServiceWithRoles(repo, defaultCatalog())

	user, err := svc.Create(context.Background(), CreateParams{
		Email:    "clerk@example.com",
		Name:     "Clerk",
		Password: "correct horse",
		RoleIDs:  []int64{3},
	})
	require.NoError(t, err)
	require.Equal(t, authz.LevelNone, user.SystemLevel)
	require.False(t, user.IsSystemUser)
}

func TestCreateRejectsSuperAdminRoleAssignment(t *testing.T) {
	svc := newServiceWithRoles(newStubUserRepo(), defaultCatalog())

	_, err := svc.Create(context.Background(), CreateParams{
		Email:    "x@example.com",
		Name:     "X",
		Password: "correct horse",
		RoleIDs:  []int64{2},
	})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestCreateRejectsUnknownRole(t *testing.T) {
	svc := newServiceWithRoles(newStubUserRepo(), defaultCatalog())

	_, err := svc.Create(context.Background(), CreateParams{
		Email:    "x@example.com",
		Name:     "X",
		Password: "correct horse",
		RoleIDs:  []int64{3, 999},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRejectsDeclaredLevelMismatch(t *testing.T) {
	svc := newServiceWithRoles(newStubUserRepo(), defaultCatalog())

	_, err := svc.Create(context.Background(), CreateParams{
		Email:         "x@example.com",
		Name:          "X",
		Password:      "correct horse",
		RoleIDs:       []int64{3},
		DeclaredLevel: "ADMIN",
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateAcceptsMatchingDeclaredLevel(t *testing.T) {
	svc := newServiceWithRoles(newStubUserRepo(), defaultCatalog())

	user, err := svc.Create(context.Background(), CreateParams{
		Email:         "x@example.com",
		Name:          "X",
		Password:      "correct horse",
		RoleIDs:       []int64{1},
		DeclaredLevel: "admin",
	})
	require.NoError(t, err)
	require.Equal(t, authz.LevelAdmin, user.SystemLevel)
}

func TestCreateEnforcesSingleSuper(t *testing.T) {
	repo := newStubUserRepo()
	repo.superCount = 1
	svc := newServiceWithRoles(repo, defaultCatalog())

	_, err := svc.Create(context.Background(), CreateParams{
		Email:    "second@example.com",
		Name:     "Second",
		Password: "correct horse",
		RoleIDs:  []int64{4},
	})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateRequiresRoles(t *testing.T) {
	svc := newServiceWithRoles(newStubUserRepo(), defaultCatalog())

	_, err := svc.Create(context.Background(), CreateParams{
		Email:    "x@example.com",
		Name:     "X",
		Password: "correct horse",
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateRecomputesTier(t *testing.T) {
	repo := newStubUserRepo()
	svc := newServiceWithRoles(repo, defaultCatalog())

	user, err := svc.Create(context.Background(), CreateParams{
		Email:    "x@example.com",
		Name:     "X",
		Password: "correct horse",
		RoleIDs:  []int64{1},
	})
	require.NoError(t, err)
	require.Equal(t, authz.LevelAdmin, user.SystemLevel)

	updated, err := svc.Update(context.Background(), user.ID, UpdateParams{
		Name:    "X",
		RoleIDs: []int64{3},
	})
	require.NoError(t, err)
	require.Equal(t, authz.LevelNone, updated.SystemLevel)
	require.False(t, updated.IsSystemUser)
}

func TestDeleteSystemUserForbidden(t *testing.T) {
	repo := newStubUserRepo()
	repo.users[1] = User{ID: 1, Email: "root@example.com", IsSystemUser: true}
	svc := newServiceWithRoles(repo, defaultCatalog())

	err := svc.Delete(context.Background(), 1)
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.Empty(t, repo.deleted)
}

func TestDeleteOrdinaryUser(t *testing.T) {
	repo := newStubUserRepo()
	repo.users[2] = User{ID: 2, Email: "x@example.com"}
	svc := newServiceWithRoles(repo, defaultCatalog())

	require.NoError(t, svc.Delete(context.Background(), 2))
	require.Equal(t, []int64{2}, repo.deleted)
}

func TestFindByEmailNormalizes(t *testing.T) {
	repo := newStubUserRepo()
	svc := newServiceWithRoles(repo, defaultCatalog())

	_, err := svc.FindByEmail(context.Background(), "  Mixed@Case.Org ")
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Equal(t, "mixed@case.org", repo.lastEmail)
}
