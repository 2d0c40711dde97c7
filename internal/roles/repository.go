package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vdstech/sacom/internal/authz"
	"github.com/vdstech/sacom/internal/platform/db"
	"github.com/vdstech/sacom/internal/shared"
)

// Repository defines persistence operations for the role catalog.
type Repository interface {
	List(ctx context.Context) ([]Role, error)
	Get(ctx context.Context, id int64) (Role, error)
	GetByName(ctx context.Context, name string) (Role, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Role, error)
	Create(ctx context.Context, name, description string, permissionIDs []int64) (Role, error)
	Update(ctx context.Context, id int64, name, description string, permissionIDs []int64) (Role, error)
	Delete(ctx context.Context, id int64) error
	DirectPermissionIDs(ctx context.Context, roleIDs []int64) ([]int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const roleColumns = `id, name, description, is_system_role, system_level, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	var level string
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystemRole, &level, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return Role{}, err
	}
	role.SystemLevel = authz.ParseLevel(level)
	return role, nil
}

// List returns all roles ordered by name, with their permission ids.
func (r *PGRepository) List(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Role
	index := make(map[int64]int)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		index[role.ID] = len(out)
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	links, err := r.pool.Query(ctx, `SELECT role_id, permission_id FROM role_permissions`)
	if err != nil {
		return nil, err
	}
	defer links.Close()
	for links.Next() {
		var roleID, permID int64
		if err := links.Scan(&roleID, &permID); err != nil {
			return nil, err
		}
		if i, ok := index[roleID]; ok {
			out[i].PermissionIDs = append(out[i].PermissionIDs, permID)
		}
	}
	return out, links.Err()
}

// Get fetches a role by id.
func (r *PGRepository) Get(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	if err := r.loadPermissionIDs(ctx, &role); err != nil {
		return Role{}, err
	}
	return role, nil
}

// GetByName fetches a role by its normalized name.
func (r *PGRepository) GetByName(ctx context.Context, name string) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	if err := r.loadPermissionIDs(ctx, &role); err != nil {
		return Role{}, err
	}
	return role, nil
}

// GetByIDs fetches roles for the given ids, with permission ids attached.
func (r *PGRepository) GetByIDs(ctx context.Context, ids []int64) ([]Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Role
	index := make(map[int64]int)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		index[role.ID] = len(out)
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	links, err := r.pool.Query(ctx, `SELECT role_id, permission_id FROM role_permissions WHERE role_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer links.Close()
	for links.Next() {
		var roleID, permID int64
		if err := links.Scan(&roleID, &permID); err != nil {
			return nil, err
		}
		if i, ok := index[roleID]; ok {
			out[i].PermissionIDs = append(out[i].PermissionIDs, permID)
		}
	}
	return out, links.Err()
}

// Create inserts a role with its permission links. New roles created through
// the admin API are never system roles and carry the NONE tier.
func (r *PGRepository) Create(ctx context.Context, name, description string, permissionIDs []int64) (Role, error) {
	var created Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		role, err := scanRole(tx.QueryRow(ctx,
			`INSERT INTO roles (name, description, is_system_role, system_level) VALUES ($1, $2, FALSE, 'NONE')
			 RETURNING `+roleColumns, name, description))
		if err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: role %q already exists", shared.ErrConflict, name)
			}
			return err
		}
		for _, permID := range permissionIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				role.ID, permID); err != nil {
				return err
			}
		}
		role.PermissionIDs = permissionIDs
		created = role
		return nil
	})
	if err != nil {
		return Role{}, err
	}
	return created, nil
}

// Update rewrites a role and replaces its permission links by diffing the
// existing set against the requested one.
func (r *PGRepository) Update(ctx context.Context, id int64, name, description string, permissionIDs []int64) (Role, error) {
	var updated Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		role, err := scanRole(tx.QueryRow(ctx,
			`UPDATE roles SET name = $2, description = $3, updated_at = NOW() WHERE id = $1
			 RETURNING `+roleColumns, id, name, description))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: role %q already exists", shared.ErrConflict, name)
			}
			return err
		}

		rows, err := tx.Query(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1`, id)
		if err != nil {
			return err
		}
		existing := make(map[int64]struct{})
		for rows.Next() {
			var permID int64
			if err := rows.Scan(&permID); err != nil {
				rows.Close()
				return err
			}
			existing[permID] = struct{}{}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		keep := make(map[int64]struct{}, len(permissionIDs))
		for _, permID := range permissionIDs {
			keep[permID] = struct{}{}
			if _, ok := existing[permID]; !ok {
				if _, err := tx.Exec(ctx,
					`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
					id, permID); err != nil {
					return err
				}
			}
		}
		for permID := range existing {
			if _, ok := keep[permID]; !ok {
				if _, err := tx.Exec(ctx,
					`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, id, permID); err != nil {
					return err
				}
			}
		}

		role.PermissionIDs = permissionIDs
		updated = role
		return nil
	})
	if err != nil {
		return Role{}, err
	}
	return updated, nil
}

// Delete removes a role and its links. Returns ErrNotFound if nothing was deleted.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE role_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// DirectPermissionIDs returns the deduplicated permission ids attached to the
// given roles. These are the resolver's starting points.
func (r *PGRepository) DirectPermissionIDs(ctx context.Context, roleIDs []int64) ([]int64, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT permission_id FROM role_permissions WHERE role_id = ANY($1)`, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PGRepository) loadPermissionIDs(ctx context.Context, role *Role) error {
	rows, err := r.pool.Query(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1`, role.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var permID int64
		if err := rows.Scan(&permID); err != nil {
			return err
		}
		role.PermissionIDs = append(role.PermissionIDs, permID)
	}
	return rows.Err()
}

var _ Repository = (*PGRepository)(nil)
