package sessions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vdstech/sacom/internal/shared"
)

type memoryRepo struct {
	mu         sync.Mutex
	sessions   map[string]Session
	touchCount int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{sessions: make(map[string]Session)}
}

func (r *memoryRepo) Insert(ctx context.Context, sess Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID] = sess
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	out := sess
	return &out, nil
}

func (r *memoryRepo) FindByHash(ctx context.Context, hash string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sess := range r.sessions {
		if sess.RefreshSecretHash == hash {
			out := sess
			return &out, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return shared.ErrNotFound
	}
	sess.LastSeenAt = at
	r.sessions[id] = sess
	r.touchCount++
	return nil
}

func (r *memoryRepo) UpdateSnapshot(ctx context.Context, id string, permissions []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return shared.ErrNotFound
	}
	sess.EffectivePermissions = permissions
	r.sessions[id] = sess
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return 0, nil
	}
	delete(r.sessions, id)
	return 1, nil
}

func (r *memoryRepo) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for id, sess := range r.sessions {
		if sess.UserID == userID {
			delete(r.sessions, id)
			count++
		}
	}
	return count, nil
}

func (r *memoryRepo) ListForUser(ctx context.Context, userID int64) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Session
	for _, sess := range r.sessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (r *memoryRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for id, sess := range r.sessions {
		if !sess.ExpiresAt.After(now) {
			delete(r.sessions, id)
			count++
		}
	}
	return count, nil
}

func (r *memoryRepo) touches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.touchCount
}

func TestCreateAndFindBySecret(t *testing.T) {
	repo := newMemoryRepo()
	mgr := NewManager(repo, nil, nil)
	ctx := context.Background()

	sess, secret, err := mgr.Create(ctx, 42, []string{"category:read"}, Metadata{UserAgent: "ua", IP: "1.2.3.4"})
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	require.NotEqual(t, secret, sess.RefreshSecretHash)
	require.Equal(t, HashSecret(secret), sess.RefreshSecretHash)
	require.WithinDuration(t, time.Now().Add(TTL), sess.ExpiresAt, 5*time.Second)

	found, err := mgr.FindLiveBySecret(ctx, secret)
	require.NoError(t, err)
	require.Equal(t, sess.ID, found.ID)
	require.Equal(t, []string{"category:read"}, found.EffectivePermissions)

	_, err = mgr.FindLiveBySecret(ctx, "wrong-secret")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestExpiredSessionTreatedAsAbsent(t *testing.T) {
	repo := newMemoryRepo()
	mgr := NewManager(repo, nil, nil)
	ctx := context.Background()

	sess, secret, err := mgr.Create(ctx, 1, nil, Metadata{})
	require.NoError(t, err)

	mgr.clock = func() time.Time { return time.Now().Add(TTL + time.Hour) }

	_, err = mgr.FindLiveBySecret(ctx, secret)
	require.ErrorIs(t, err, shared.ErrNotFound)

	// The expired row was reclaimed opportunistically.
	_, err = repo.Get(ctx, sess.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGetLiveExpiry(t *testing.T) {
	repo := newMemoryRepo()
	mgr := NewManager(repo, nil, nil)
	ctx := context.Background()

	sess, _, err := mgr.Create(ctx, 1, nil, Metadata{})
	require.NoError(t, err)

	live, err := mgr.GetLive(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess.ID, live.ID)

	mgr.clock = func() time.Time { return time.Now().Add(TTL + time.Minute) }
	_, err = mgr.GetLive(ctx, sess.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestTouchThrottledThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemoryRepo()
	mgr := NewManager(repo, client, nil)
	ctx := context.Background()

	sess, _, err := mgr.Create(ctx, 1, nil, Metadata{})
	require.NoError(t, err)

	mgr.Touch(ctx, sess.ID)
	mgr.Touch(ctx, sess.ID)
	mgr.Touch(ctx, sess.ID)
	require.Equal(t, 1, repo.touches())

	mr.FastForward(2 * time.Minute)
	mgr.Touch(ctx, sess.ID)
	require.Equal(t, 2, repo.touches())
}

func TestTouchWithoutRedisWritesEveryTime(t *testing.T) {
	repo := newMemoryRepo()
	mgr := NewManager(repo, nil, nil)
	ctx := context.Background()

	sess, _, err := mgr.Create(ctx, 1, nil, Metadata{})
	require.NoError(t, err)

	mgr.Touch(ctx, sess.ID)
	mgr.Touch(ctx, sess.ID)
	require.Equal(t, 2, repo.touches())
}

func TestRevokeIsImmediatelyEffective(t *testing.T) {
	repo := newMemoryRepo()
	mgr := NewManager(repo, nil, nil)
	ctx := context.Background()

	sess, secret, err := mgr.Create(ctx, 1, nil, Metadata{})
	require.NoError(t, err)

	count, err := mgr.Revoke(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	_, err = mgr.FindLiveBySecret(ctx, secret)
	require.ErrorIs(t, err, shared.ErrNotFound)

	count, err = mgr.Revoke(ctx, sess.ID)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestRevokeAllForUser(t *testing.T) {
	repo := newMemoryRepo()
	mgr := NewManager(repo, nil, nil)
	ctx := context.Background()

	_, _, err := mgr.Create(ctx, 1, nil, Metadata{})
	require.NoError(t, err)
	_, _, err = mgr.Create(ctx, 1, nil, Metadata{})
	require.NoError(t, err)
	other, _, err := mgr.Create(ctx, 2, nil, Metadata{})
	require.NoError(t, err)

	count, err := mgr.RevokeAllForUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	remaining, err := mgr.ListForUser(ctx, 2)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, other.ID, remaining[0].ID)
}

func TestUpdateSnapshotReplacesPermissions(t *testing.T) {
	repo := newMemoryRepo()
	mgr := NewManager(repo, nil, nil)
	ctx := context.Background()

	sess, _, err := mgr.Create(ctx, 1, []string{"old:code"}, Metadata{})
	require.NoError(t, err)

	require.NoError(t, mgr.UpdateSnapshot(ctx, sess.ID, []string{"new:code"}))

	got, err := mgr.GetLive(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"new:code"}, got.EffectivePermissions)
}

func TestPurgeExpired(t *testing.T) {
	repo := newMemoryRepo()
	mgr := NewManager(repo, nil, nil)
	ctx := context.Background()

	_, _, err := mgr.Create(ctx, 1, nil, Metadata{})
	require.NoError(t, err)
	_, _, err = mgr.Create(ctx, 2, nil, Metadata{})
	require.NoError(t, err)

	count, err := mgr.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, count)

	mgr.clock = func() time.Time { return time.Now().Add(TTL + time.Hour) }
	count, err = mgr.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}
