package users

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

// Repository defines persistence operations for the identity store.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	Get(ctx context.Context, id int64) (*User, error)
	List(ctx context.Context) ([]User, error)
	Create(ctx context.Context, user User) (*User, error)
	Update(ctx context.Context, user User) (*User, error)
	Delete(ctx context.Context, id int64) error
	SetLastLogin(ctx context.Context, id int64) error
	CountSuper(ctx context.Context, excludeID int64) (int, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, email, name, credential_hash, disabled, force_reset, system_level, is_system_user, password_expires_at, last_login_at, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var level string
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.CredentialHash, &u.Disabled, &u.ForceReset,
		&level, &u.IsSystemUser, &u.PasswordExpiresAt, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.SystemLevel = authz.ParseLevel(level)
	return &u, nil
}

// FindByEmail fetches a user by normalized email, with role ids attached.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if err := r.loadRoleIDs(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Get fetches a user by id, with role ids attached.
func (r *PGRepository) Get(ctx context.Context, id int64) (*User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if err := r.loadRoleIDs(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// List returns all users ordered by name, with role ids attached.
func (r *PGRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	index := make(map[int64]int)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		index[user.ID] = len(out)
		out = append(out, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	links, err := r.pool.Query(ctx, `SELECT user_id, role_id FROM user_roles`)
	if err != nil {
		return nil, err
	}
	defer links.Close()
	for links.Next() {
		var userID, roleID int64
		if err := links.Scan(&userID, &roleID); err != nil {
			return nil, err
		}
		if i, ok := index[userID]; ok {
			out[i].RoleIDs = append(out[i].RoleIDs, roleID)
		}
	}
	return out, links.Err()
}

// Create inserts a user row and its role memberships. The partial unique
// index on system_level = 'SUPER' backs the single-SUPER invariant at the
// store level; a violation surfaces as ErrConflict.
func (r *PGRepository) Create(ctx context.Context, user User) (*User, error) {
	var created *User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO users (email, name, credential_hash, disabled, force_reset, system_level, is_system_user, password_expires_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING `+userColumns,
			user.Email, user.Name, user.CredentialHash, user.Disabled, user.ForceReset,
			string(user.SystemLevel), user.IsSystemUser, user.PasswordExpiresAt)
		inserted, err := scanUser(row)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: user with this email already exists", shared.ErrConflict)
			}
			return err
		}
		for _, roleID := range user.RoleIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				inserted.ID, roleID); err != nil {
				return err
			}
		}
		inserted.RoleIDs = user.RoleIDs
		created = inserted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update rewrites a user row and replaces its role memberships.
func (r *PGRepository) Update(ctx context.Context, user User) (*User, error) {
	var updated *User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`UPDATE users SET name = $2, disabled = $3, force_reset = $4, system_level = $5, is_system_user = $6, updated_at = NOW()
			 WHERE id = $1
			 RETURNING `+userColumns,
			user.ID, user.Name, user.Disabled, user.ForceReset, string(user.SystemLevel), user.IsSystemUser)
		current, err := scanUser(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: another SUPER user already exists", shared.ErrConflict)
			}
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, user.ID); err != nil {
			return err
		}
		for _, roleID := range user.RoleIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				user.ID, roleID); err != nil {
				return err
			}
		}
		current.RoleIDs = user.RoleIDs
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a user and its role memberships.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// SetLastLogin stamps the last successful login time.
func (r *PGRepository) SetLastLogin(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login_at = NOW() WHERE id = $1`, id)
	return err
}

// CountSuper counts SUPER-tier users excluding the given id.
func (r *PGRepository) CountSuper(ctx context.Context, excludeID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE system_level = 'SUPER' AND id <> $1`, excludeID).Scan(&count)
	return count, err
}

func (r *PGRepository) loadRoleIDs(ctx context.Context, user *User) error {
	rows, err := r.pool.Query(ctx, `SELECT role_id FROM user_roles WHERE user_id = $1`, user.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var roleID int64
		if err := rows.Scan(&roleID); err != nil {
			return err
		}
		user.RoleIDs = append(user.RoleIDs, roleID)
	}
	return rows.Err()
}

var _ Repository = (*PGRepository)(nil)
