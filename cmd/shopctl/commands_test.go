package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xguard/internal/shop"
	"github.com/omeyang/xguard/pkg/observability/xlog"
	"github.com/omeyang/xguard/pkg/storage/xkv"
)

const testConfig = `
log:
  level: warn
cache:
  retry_interval: 5ms
warm:
  concurrency: 2
shops:
  - id: 1
    name: tea house
    address: 1 river rd
    stock: 3
  - id: 2
    name: bakery
`

type harness struct {
	t      *testing.T
	mr     *miniredis.Miniredis
	config string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	path := filepath.Join(t.TempDir(), "shopctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))
	return &harness{t: t, mr: mr, config: path}
}

// run 执行 shopctl 并返回退出码、stdout、stderr。
func (h *harness) run(args ...string) (int, string, string) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"shopctl", "--config", h.config, "--redis", h.mr.Addr()}, args...)
	code := runArgs(context.Background(), full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestGet(t *testing.T) {
	h := newHarness(t)

	for _, strategy := range []string{"pass", "mutex"} {
		t.Run(strategy, func(t *testing.T) {
			code, out, stderr := h.run("get", "--strategy", strategy, "1")
			require.Equal(t, 0, code, stderr)

			var s shop.Shop
			require.NoError(t, json.Unmarshal([]byte(out), &s))
			assert.Equal(t, "tea house", s.Name)
			assert.True(t, h.mr.Exists("cache:shop:1"))
		})
	}
}

func TestGet_NotFound(t *testing.T) {
	h := newHarness(t)

	code, _, stderr := h.run("get", "404")

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "shop 404 not found")
	v, err := h.mr.Get("cache:shop:404")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestGet_UsageErrors(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing id", []string{"get"}},
		{"bad id", []string{"get", "abc"}},
		{"bad strategy", []string{"get", "--strategy", "lru", "1"}},
		{"unknown flag", []string{"get", "--nope", "1"}},
		{"unknown store", []string{"--store", "disk", "get", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := h.run(tt.args...)
			assert.Equal(t, 2, code)
		})
	}
}

func TestGet_RedisDown(t *testing.T) {
	h := newHarness(t)
	h.mr.Close()

	code, _, stderr := h.run("get", "1")

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "错误")
}

func TestUpdate_DeletesCacheKey(t *testing.T) {
	// Given
	h := newHarness(t)
	code, _, _ := h.run("get", "1")
	require.Equal(t, 0, code)
	require.True(t, h.mr.Exists("cache:shop:1"))

	// When
	code, out, stderr := h.run("update", "1", "--name", "tea palace")

	// Then
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "updated shop 1")
	assert.False(t, h.mr.Exists("cache:shop:1"))
}

func TestUpdate_NotFound(t *testing.T) {
	h := newHarness(t)
	code, _, _ := h.run("update", "9", "--name", "ghost")
	assert.Equal(t, 1, code)
}

func TestWarmThenLogicalGet(t *testing.T) {
	h := newHarness(t)

	code, out, stderr := h.run("warm")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "saved=2 missing=0 failed=0")
	assert.Zero(t, h.mr.TTL("cache:shop:2"))

	code, out, _ = h.run("get", "--strategy", "logical", "2")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "bakery")

	code, out, _ = h.run("warm", "1", "404")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "saved=1 missing=1")
}

func TestGet_LogicalColdKey(t *testing.T) {
	h := newHarness(t)
	code, _, _ := h.run("get", "--strategy", "logical", "1")
	assert.Equal(t, 1, code)
}

func TestReserve(t *testing.T) {
	h := newHarness(t)

	code, out, stderr := h.run("reserve", "1")

	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "stock=2 sold=1")
	assert.False(t, h.mr.Exists("lock:order:shop:1"))
}

func TestLock(t *testing.T) {
	h := newHarness(t)

	code, out, stderr := h.run("lock", "demo", "--lease", "5s")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "acquired lock:demo")
	assert.Contains(t, out, "released lock:demo")
	assert.False(t, h.mr.Exists("lock:demo"))

	require.NoError(t, h.mr.Set("lock:busy", "someone-else"))
	code, _, stderr = h.run("lock", "busy")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "held by another owner")
	got, err := h.mr.Get("lock:busy")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)

	code, _, _ = h.run("lock")
	assert.Equal(t, 2, code)
}

func TestServeWarm_Once(t *testing.T) {
	h := newHarness(t)

	code, _, stderr := h.run("serve-warm", "--once", "--schedule", "@every 1m")

	require.Equal(t, 0, code, stderr)
	assert.True(t, h.mr.Exists("cache:shop:1"))
	assert.True(t, h.mr.Exists("cache:shop:2"))
	assert.False(t, h.mr.Exists("lock:cron:warm-shops"))
}

func TestServeWarm_OnceSkippedWhenHeld(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.mr.Set("lock:cron:warm-shops", "other-replica"))

	code, out, _ := h.run("serve-warm", "--once")

	assert.Equal(t, 0, code)
	assert.Contains(t, out, "warm skipped")
	assert.False(t, h.mr.Exists("cache:shop:1"))
}

func TestMemoryStore(t *testing.T) {
	var stdout, stderr bytes.Buffer
	h := newHarness(t)

	code := runArgs(context.Background(),
		[]string{"shopctl", "--config", h.config, "--store", "memory", "get", "1"}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "tea house")
}

func TestServeWarm_StopsOnCancel(t *testing.T) {
	// Given
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr bytes.Buffer
	done := make(chan int, 1)
	go func() {
		done <- runArgs(ctx, []string{"shopctl", "--config", h.config, "--redis", h.mr.Addr(),
			"serve-warm", "--schedule", "@every 1h"}, &stdout, &stderr)
	}()

	// When
	require.Eventually(t, func() bool {
		return h.mr.Exists("cache:shop:2")
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	// Then
	select {
	case code := <-done:
		assert.Equal(t, 0, code, stderr.String())
	case <-time.After(5 * time.Second):
		t.Fatal("serve-warm did not stop")
	}
}

func TestWatchLogLevel(t *testing.T) {
	// Given
	h := newHarness(t)
	logger, level, cleanup, err := xlog.New().SetOutput(&bytes.Buffer{}).SetLevelString("warn").Build()
	require.NoError(t, err)
	defer func() { _ = cleanup() }()
	e := &env{logger: logger, level: level}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.watchLogLevel(h.config)(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// When
	updated := "log:\n  level: debug\n"
	require.NoError(t, os.WriteFile(h.config, []byte(updated), 0o600))

	// Then
	require.Eventually(t, func() bool {
		return level.Level() == slog.LevelDebug
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestEnvClose_ClosesRedisClient(t *testing.T) {
	// Given: 基于 Redis 装配的 env
	h := newHarness(t)
	cfg, err := shop.LoadConfig(h.config)
	require.NoError(t, err)
	cfg.Redis.Addr = h.mr.Addr()
	logger, level, cleanup, err := xlog.New().SetOutput(&bytes.Buffer{}).SetLevelString("warn").Build()
	require.NoError(t, err)
	defer func() { _ = cleanup() }()
	e := &env{cfg: cfg, logger: logger, level: level}

	ctx := context.Background()
	require.NoError(t, e.initStore(ctx, storeRedis))
	rs, ok := e.store.(*xkv.Redis)
	require.True(t, ok)
	rdb := rs.Client()
	require.NoError(t, rdb.Ping(ctx).Err())

	// When
	require.NoError(t, e.Close(ctx))

	// Then: 底层 go-redis 客户端连接池已关闭
	err = rdb.Ping(ctx).Err()
	assert.ErrorIs(t, err, redis.ErrClosed)
}
