package permissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vdstech/sacom/internal/platform/db"
	"github.com/vdstech/sacom/internal/shared"
)

// Repository defines persistence operations for the permission catalog.
type Repository interface {
	List(ctx context.Context) ([]Permission, error)
	Get(ctx context.Context, id int64) (Permission, error)
	Create(ctx context.Context, code, description string, children []int64) (Permission, error)
	Update(ctx context.Context, id int64, code, description string, children []int64) (Permission, error)
	Delete(ctx context.Context, id int64) error
	LoadForest(ctx context.Context) (Forest, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// List returns all permissions with their children edges, ordered by code.
func (r *PGRepository) List(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, code, description, created_at, updated_at FROM permissions ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	index := make(map[int64]int)
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		index[p.ID] = len(perms)
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edges, err := r.pool.Query(ctx, `SELECT parent_id, child_id FROM permission_children`)
	if err != nil {
		return nil, err
	}
	defer edges.Close()
	for edges.Next() {
		var parent, child int64
		if err := edges.Scan(&parent, &child); err != nil {
			return nil, err
		}
		if i, ok := index[parent]; ok {
			perms[i].Children = append(perms[i].Children, child)
		}
	}
	return perms, edges.Err()
}

// Get fetches one permission with its children edges.
func (r *PGRepository) Get(ctx context.Context, id int64) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, description, created_at, updated_at FROM permissions WHERE id = $1`, id).
		Scan(&p.ID, &p.Code, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT child_id FROM permission_children WHERE parent_id = $1`, id)
	if err != nil {
		return Permission{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var child int64
		if err := rows.Scan(&child); err != nil {
			return Permission{}, err
		}
		p.Children = append(p.Children, child)
	}
	return p, rows.Err()
}

// Create inserts a permission and its children edges, and attaches the new
// permission to the ADMIN role so admins can see what they manage.
func (r *PGRepository) Create(ctx context.Context, code, description string, children []int64) (Permission, error) {
	var created Permission
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var adminRoleID int64
		if err := tx.QueryRow(ctx, `SELECT id FROM roles WHERE name = 'ADMIN'`).Scan(&adminRoleID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("permissions: ADMIN role not found, seed roles first")
			}
			return err
		}

		err := tx.QueryRow(ctx,
			`INSERT INTO permissions (code, description) VALUES ($1, $2)
			 RETURNING id, code, description, created_at, updated_at`,
			code, description).
			Scan(&created.ID, &created.Code, &created.Description, &created.CreatedAt, &created.UpdatedAt)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: permission code %q already exists", shared.ErrConflict, code)
			}
			return err
		}

		for _, child := range children {
			if _, err := tx.Exec(ctx,
				`INSERT INTO permission_children (parent_id, child_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				created.ID, child); err != nil {
				return err
			}
		}
		created.Children = children

		_, err = tx.Exec(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			adminRoleID, created.ID)
		return err
	})
	if err != nil {
		return Permission{}, err
	}
	return created, nil
}

// Update rewrites a permission row and replaces its children edges.
func (r *PGRepository) Update(ctx context.Context, id int64, code, description string, children []int64) (Permission, error) {
	var updated Permission
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE permissions SET code = $2, description = $3, updated_at = NOW()
			 WHERE id = $1
			 RETURNING id, code, description, created_at, updated_at`,
			id, code, description).
			Scan(&updated.ID, &updated.Code, &updated.Description, &updated.CreatedAt, &updated.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: permission code %q already exists", shared.ErrConflict, code)
			}
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM permission_children WHERE parent_id = $1`, id); err != nil {
			return err
		}
		for _, child := range children {
			if child == id {
				continue
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO permission_children (parent_id, child_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				id, child); err != nil {
				return err
			}
		}
		updated.Children = children
		return nil
	})
	if err != nil {
		return Permission{}, err
	}
	return updated, nil
}

// Delete removes a permission, its edges and any role references.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM permission_children WHERE parent_id = $1 OR child_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE permission_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// LoadForest returns the whole catalog as an adjacency map for resolution.
func (r *PGRepository) LoadForest(ctx context.Context) (Forest, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code FROM permissions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	forest := make(Forest)
	for rows.Next() {
		var id int64
		var code string
		if err := rows.Scan(&id, &code); err != nil {
			return nil, err
		}
		forest[id] = Node{Code: code}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edges, err := r.pool.Query(ctx, `SELECT parent_id, child_id FROM permission_children`)
	if err != nil {
		return nil, err
	}
	defer edges.Close()
	for edges.Next() {
		var parent, child int64
		if err := edges.Scan(&parent, &child); err != nil {
			return nil, err
		}
		node, ok := forest[parent]
		if !ok {
			continue
		}
		node.Children = append(node.Children, child)
		forest[parent] = node
	}
	return forest, edges.Err()
}

var _ Repository = (*PGRepository)(nil)
