package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vdstech/sacom/internal/shared"
)

// Repository defines persistence operations for session records.
type Repository interface {
	Insert(ctx context.Context, sess Session) error
	Get(ctx context.Context, id string) (*Session, error)
	FindByHash(ctx context.Context, hash string) (*Session, error)
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
	UpdateSnapshot(ctx context.Context, id string, permissions []string) error
	Delete(ctx context.Context, id string) (int64, error)
	DeleteAllForUser(ctx context.Context, userID int64) (int64, error)
	ListForUser(ctx context.Context, userID int64) ([]Session, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const sessionColumns = `id, user_id, refresh_secret_hash, effective_permissions, expires_at, last_seen_at, user_agent, ip, created_at`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.UserID, &s.RefreshSecretHash, &s.EffectivePermissions,
		&s.ExpiresAt, &s.LastSeenAt, &s.UserAgent, &s.IP, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Insert persists a new session row.
func (r *PGRepository) Insert(ctx context.Context, sess Session) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, refresh_secret_hash, effective_permissions, expires_at, last_seen_at, user_agent, ip)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sess.ID, sess.UserID, sess.RefreshSecretHash, sess.EffectivePermissions,
		sess.ExpiresAt, sess.LastSeenAt, sess.UserAgent, sess.IP)
	return err
}

// Get fetches a session by id.
func (r *PGRepository) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// FindByHash looks up a session by its refresh secret hash.
func (r *PGRepository) FindByHash(ctx context.Context, hash string) (*Session, error) {
	sess, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE refresh_secret_hash = $1`, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// UpdateLastSeen stamps the session's recency marker.
func (r *PGRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET last_seen_at = $2 WHERE id = $1`, id, at)
	return err
}

// UpdateSnapshot replaces the effective-permission snapshot after refresh.
func (r *PGRepository) UpdateSnapshot(ctx context.Context, id string, permissions []string) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET effective_permissions = $2 WHERE id = $1`, id, permissions)
	return err
}

// Delete removes a session row, returning the number of deleted rows.
func (r *PGRepository) Delete(ctx context.Context, id string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteAllForUser removes every session for a user.
func (r *PGRepository) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListForUser returns a user's sessions, most recent first.
func (r *PGRepository) ListForUser(ctx context.Context, userID int64) ([]Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// DeleteExpired reclaims rows past their expiry.
func (r *PGRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
