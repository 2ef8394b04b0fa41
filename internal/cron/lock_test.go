package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryLockStore struct {
	data   map[string]string
	ttls   map[string]time.Duration
	delErr error
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryLockStore) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	if m.delErr != nil {
		return false, m.delErr
	}
	if m.data[key] != value {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func TestRedisLockExclusive(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLockStore()
	first, err := NewRedisLock(store, "payouts:lock:cron-worker:prod", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "payouts:lock:cron-worker:prod", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, defaultLockTTL, store.ttls["payouts:lock:cron-worker:prod"])
	require.True(t, strings.Contains(store.data["payouts:lock:cron-worker:prod"], "/"))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	// the loser never held the lease, so its release is a no-op
	require.NoError(t, second.Release(ctx))
	require.Contains(t, store.data, "payouts:lock:cron-worker:prod")

	require.NoError(t, first.Release(ctx))
	require.NotContains(t, store.data, "payouts:lock:cron-worker:prod")

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLockReleaseLeavesTakenOverLease(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLockStore()
	lock, err := NewRedisLock(store, "k", time.Second)
	require.NoError(t, err)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// lease expired and another worker took it
	store.data["k"] = "other-worker/123"
	require.NoError(t, lock.Release(ctx))
	require.Equal(t, "other-worker/123", store.data["k"])
}

func TestRedisLockReleaseError(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLockStore()
	lock, err := NewRedisLock(store, "k", time.Second)
	require.NoError(t, err)
	_, err = lock.Acquire(ctx)
	require.NoError(t, err)

	store.delErr = errors.New("connection reset")
	require.ErrorContains(t, lock.Release(ctx), "release k")
}

func TestNewRedisLockValidation(t *testing.T) {
	_, err := NewRedisLock(nil, "k", time.Second)
	require.Error(t, err)
	_, err = NewRedisLock(newMemoryLockStore(), "", time.Second)
	require.Error(t, err)
}
