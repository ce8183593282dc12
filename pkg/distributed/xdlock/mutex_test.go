package xdlock

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xguard/pkg/storage/xkv"
)

func TestWithLock_RunsAndReleases(t *testing.T) {
	locker, _, mr := newTestStoreLocker(t)
	ctx := context.Background()

	called := false
	err := WithLock(ctx, locker, "order:shop:1", 10*time.Second, func(context.Context) error {
		called = true
		assert.True(t, mr.Exists("lock:order:shop:1"), "执行期间应持有锁")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.False(t, mr.Exists("lock:order:shop:1"))
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	locker, _, mr := newTestStoreLocker(t)
	boom := errors.New("boom")

	err := WithLock(context.Background(), locker, "order:shop:1", 10*time.Second, func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:order:shop:1"))
}

func TestWithLock_ReleasesWhenCallerCanceled(t *testing.T) {
	locker, _, mr := newTestStoreLocker(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := WithLock(ctx, locker, "order:shop:1", 10*time.Second, func(context.Context) error {
		cancel()
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("lock:order:shop:1"), "调用方取消后仍应释放锁")
}

func TestWithLock_Held(t *testing.T) {
	locker, _, _ := newTestStoreLocker(t)
	ctx := context.Background()

	h, err := locker.TryLock(ctx, "order:shop:1", 10*time.Second)
	require.NoError(t, err)
	require.NotNil(t, h)

	err = WithLock(ctx, locker, "order:shop:1", 10*time.Second, func(context.Context) error {
		t.Fatal("不应执行")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockHeld)
}

func TestRelease_NilHandle(t *testing.T) {
	assert.NotPanics(t, func() { Release(context.Background(), nil, nil) })
}

func TestWithLock_UsesLockerLogger(t *testing.T) {
	// Given: locker 配置了自定义日志器
	client, mr := newTestRedisClient(t)
	store, err := xkv.NewRedis(client)
	require.NoError(t, err)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	locker, err := NewStoreLocker(store, WithLogger(logger))
	require.NoError(t, err)
	assert.Same(t, logger, locker.Logger())

	// When: fn 执行期间锁记录被他人删除，释放失败
	err = WithLock(context.Background(), locker, "order:shop:1", 10*time.Second, func(context.Context) error {
		mr.Del("lock:order:shop:1")
		return nil
	})

	// Then: 释放结果写入配置的日志器
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "xdlock: lock lost before release")
	assert.Contains(t, buf.String(), "lock:order:shop:1")
}

func TestWithLogger_NilKeepsDefault(t *testing.T) {
	store, err := xkv.NewMemory()
	require.NoError(t, err)
	defer store.Close()

	locker, err := NewStoreLocker(store, WithLogger(nil))
	require.NoError(t, err)
	assert.NotNil(t, locker.Logger())
	assert.NotNil(t, lockerLogger(lockerOnly{locker}))
}

// lockerOnly 隐藏 Logger 方法，只暴露 Locker。
type lockerOnly struct{ Locker }
