package sessions

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vdstech/sacom/internal/shared"
)

// touchThrottle bounds last-seen write volume to at most one per session
// per minute.
const touchThrottle = time.Minute

// Manager owns the session lifecycle: creation at login, liveness lookup by
// refresh secret, throttled touch on authenticated use, and revocation.
// Revocation is immediately effective for subsequent lookups; nothing caches
// validity.
type Manager struct {
	repo   Repository
	redis  *redis.Client
	logger *slog.Logger
	clock  func() time.Time
}

// NewManager constructs a Manager. The redis client is optional; without it
// touch throttling degrades to unconditional writes.
func NewManager(repo Repository, redisClient *redis.Client, logger *slog.Logger) *Manager {
	return &Manager{repo: repo, redis: redisClient, logger: logger, clock: time.Now}
}

// MintSecret generates a 256-bit opaque refresh secret.
func MintSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("sessions: mint secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashSecret derives the stored lookup key from the raw refresh secret.
func HashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Create persists a new session for the user with the caller-supplied
// effective-permission snapshot and returns it alongside the raw refresh
// secret. Only the secret's hash is stored.
func (m *Manager) Create(ctx context.Context, userID int64, permissions []string, meta Metadata) (*Session, string, error) {
	secret, err := MintSecret()
	if err != nil {
		return nil, "", err
	}
	now := m.clock().UTC()
	sess := Session{
		ID:                   uuid.NewString(),
		UserID:               userID,
		RefreshSecretHash:    HashSecret(secret),
		EffectivePermissions: permissions,
		ExpiresAt:            now.Add(TTL),
		LastSeenAt:           now,
		UserAgent:            meta.UserAgent,
		IP:                   meta.IP,
		CreatedAt:            now,
	}
	if err := m.repo.Insert(ctx, sess); err != nil {
		return nil, "", err
	}
	return &sess, secret, nil
}

// FindLiveBySecret resolves a raw refresh secret to its live session.
// Expired rows are deleted opportunistically and reported as absent.
func (m *Manager) FindLiveBySecret(ctx context.Context, rawSecret string) (*Session, error) {
	sess, err := m.repo.FindByHash(ctx, HashSecret(rawSecret))
	if err != nil {
		return nil, err
	}
	if !sess.ExpiresAt.After(m.clock()) {
		if _, err := m.repo.Delete(ctx, sess.ID); err != nil && m.logger != nil {
			m.logger.Warn("delete expired session", slog.Any("error", err))
		}
		return nil, shared.ErrNotFound
	}
	return sess, nil
}

// GetLive fetches a session by id, treating expired rows as absent.
func (m *Manager) GetLive(ctx context.Context, id string) (*Session, error) {
	sess, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.ExpiresAt.After(m.clock()) {
		if _, err := m.repo.Delete(ctx, sess.ID); err != nil && m.logger != nil {
			m.logger.Warn("delete expired session", slog.Any("error", err))
		}
		return nil, shared.ErrNotFound
	}
	return sess, nil
}

// Touch updates the session's last-seen marker. Writes are best-effort and
// throttled through redis so a busy session costs at most one write per
// minute; losing one is harmless.
func (m *Manager) Touch(ctx context.Context, id string) {
	if m.redis != nil {
		ok, err := m.redis.SetNX(ctx, "session:touch:"+id, 1, touchThrottle).Result()
		if err == nil && !ok {
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) && m.logger != nil {
			m.logger.Warn("touch throttle", slog.Any("error", err))
		}
	}
	if err := m.repo.UpdateLastSeen(ctx, id, m.clock().UTC()); err != nil && m.logger != nil {
		m.logger.Warn("touch session", slog.Any("error", err))
	}
}

// UpdateSnapshot replaces the effective-permission snapshot and stamps
// last-seen, as happens on every refresh.
func (m *Manager) UpdateSnapshot(ctx context.Context, id string, permissions []string) error {
	if err := m.repo.UpdateSnapshot(ctx, id, permissions); err != nil {
		return err
	}
	return m.repo.UpdateLastSeen(ctx, id, m.clock().UTC())
}

// Revoke hard-deletes a session, returning how many rows were removed.
func (m *Manager) Revoke(ctx context.Context, id string) (int64, error) {
	return m.repo.Delete(ctx, id)
}

// RevokeAllForUser hard-deletes every session belonging to the user.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	return m.repo.DeleteAllForUser(ctx, userID)
}

// ListForUser returns the user's sessions, most recent first.
func (m *Manager) ListForUser(ctx context.Context, userID int64) ([]Session, error) {
	return m.repo.ListForUser(ctx, userID)
}

// PurgeExpired reclaims expired rows; the worker runs this on a schedule as
// a supplement to opportunistic deletion.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	return m.repo.DeleteExpired(ctx, m.clock().UTC())
}
