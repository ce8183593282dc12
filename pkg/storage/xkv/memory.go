package xkv

import (
	"bytes"
	"context"
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultMemoryShards     = 16
	defaultMemoryMaxEntries = 1 << 16

	// minLeaseSweep 租约表触发过期清扫的最小规模。
	minLeaseSweep = 64
)

// MemoryOption Memory 配置选项。
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	shards     int
	maxEntries int
	now        func() time.Time
}

// WithShards 设置分片数，向上取整为 2 的幂。
func WithShards(n int) MemoryOption {
	return func(o *memoryOptions) {
		o.shards = n
	}
}

// WithMaxEntries 设置总容量上限，超出后按 LRU 淘汰。
// SetIfAbsent 写入的租约条目不计入该上限，也不会被淘汰。
func WithMaxEntries(n int) MemoryOption {
	return func(o *memoryOptions) {
		o.maxEntries = n
	}
}

// WithClock 设置时钟，测试中用于推进时间。
func WithClock(now func() time.Time) MemoryOption {
	return func(o *memoryOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// =============================================================================
// Memory 实现
// =============================================================================

// Memory 进程内 Store。
//
// key 通过 xxhash 映射到分片，每个分片是一个 LRU，
// 复合操作（SetIfAbsent、CompareAndDelete）在分片锁内完成，因此是原子的。
// 过期采用惰性删除：访问时发现过期即移除。
//
// SetIfAbsent 写入的条目（锁记录）存放在分片内独立的租约表中，
// 只会因 Delete、CompareAndDelete、Set 覆盖或租约到期而消失，
// 不参与 LRU 淘汰。
type Memory struct {
	shards []*memShard
	mask   uint64
	now    func() time.Time
	closed atomic.Bool
}

type memShard struct {
	mu      sync.Mutex
	cache   *lru.Cache[string, memEntry]
	leased  map[string]memEntry
	sweepAt int
}

type memEntry struct {
	value    []byte
	expireAt time.Time // 零值表示永不过期
}

var _ Store = (*Memory)(nil)

// NewMemory 创建进程内 Store。
func NewMemory(opts ...MemoryOption) (*Memory, error) {
	o := &memoryOptions{
		shards:     defaultMemoryShards,
		maxEntries: defaultMemoryMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.shards <= 0 || o.maxEntries <= 0 {
		return nil, fmt.Errorf("%w: shards=%d maxEntries=%d", ErrInvalidOption, o.shards, o.maxEntries)
	}

	n := 1 << bits.Len(uint(o.shards-1))
	perShard := max(o.maxEntries/n, 1)

	m := &Memory{
		shards: make([]*memShard, n),
		mask:   uint64(n - 1),
		now:    o.now,
	}
	for i := range m.shards {
		c, err := lru.New[string, memEntry](perShard)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidOption, err)
		}
		m.shards[i] = &memShard{
			cache:   c,
			leased:  make(map[string]memEntry),
			sweepAt: minLeaseSweep,
		}
	}
	return m, nil
}

func (m *Memory) shard(key string) *memShard {
	return m.shards[xxhash.Sum64String(key)&m.mask]
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// lookup 读取未过期条目，先查租约表再查 LRU，调用方须持有分片锁。
func (s *memShard) lookup(key string, now time.Time) (memEntry, bool) {
	if e, ok := s.leased[key]; ok {
		if e.expired(now) {
			delete(s.leased, key)
			return memEntry{}, false
		}
		return e, true
	}
	e, ok := s.cache.Get(key)
	if !ok {
		return memEntry{}, false
	}
	if e.expired(now) {
		s.cache.Remove(key)
		return memEntry{}, false
	}
	return e, true
}

// store 写回条目，租约表中已有的 key 留在租约表。
func (s *memShard) store(key string, e memEntry) {
	if _, ok := s.leased[key]; ok {
		s.leased[key] = e
		return
	}
	s.cache.Add(key, e)
}

// remove 从两处同时删除 key。
func (s *memShard) remove(key string) bool {
	_, leased := s.leased[key]
	delete(s.leased, key)
	return s.cache.Remove(key) || leased
}

// lease 写入租约条目，租约表增长到阈值时顺带清掉已过期的记录。
func (s *memShard) lease(key string, e memEntry, now time.Time) {
	s.cache.Remove(key)
	s.leased[key] = e
	if len(s.leased) < s.sweepAt {
		return
	}
	for k, v := range s.leased {
		if v.expired(now) {
			delete(s.leased, k)
		}
	}
	s.sweepAt = max(2*len(s.leased), minLeaseSweep)
}

func (m *Memory) expireAt(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

// Get 读取 key。
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := m.check(key); err != nil {
		return nil, false, err
	}
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key, m.now())
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(e.value), true, nil
}

// Set 写入 key，ttl <= 0 表示永不过期。
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := m.check(key); err != nil {
		return err
	}
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leased, key)
	s.cache.Add(key, memEntry{value: cloneValue(value), expireAt: m.expireAt(ttl)})
	return nil
}

// Delete 删除 key。
func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	if err := m.check(key); err != nil {
		return false, err
	}
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lookup(key, m.now()); !ok {
		return false, nil
	}
	return s.remove(key), nil
}

// Exists 判断 key 是否存在。
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	if err := m.check(key); err != nil {
		return false, err
	}
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lookup(key, m.now())
	return ok, nil
}

// TTL 返回剩余过期时间。
func (m *Memory) TTL(_ context.Context, key string) (time.Duration, error) {
	if err := m.check(key); err != nil {
		return 0, err
	}
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := m.now()
	e, ok := s.lookup(key, now)
	if !ok {
		return KeyMissing, nil
	}
	if e.expireAt.IsZero() {
		return NoExpiry, nil
	}
	return e.expireAt.Sub(now), nil
}

// SetIfAbsent 不存在才写入。
func (m *Memory) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := m.check(key); err != nil {
		return false, err
	}
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := m.now()
	if _, ok := s.lookup(key, now); ok {
		return false, nil
	}
	s.lease(key, memEntry{value: cloneValue(value), expireAt: m.expireAt(ttl)}, now)
	return true, nil
}

// CompareAndDelete 值匹配才删除。
func (m *Memory) CompareAndDelete(_ context.Context, key string, expected []byte) (bool, error) {
	if err := m.check(key); err != nil {
		return false, err
	}
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key, m.now())
	if !ok || !bytes.Equal(e.value, expected) {
		return false, nil
	}
	return s.remove(key), nil
}

// CompareAndExpire 值匹配才续期。
func (m *Memory) CompareAndExpire(_ context.Context, key string, expected []byte, ttl time.Duration) (bool, error) {
	if err := m.check(key); err != nil {
		return false, err
	}
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key, m.now())
	if !ok || !bytes.Equal(e.value, expected) {
		return false, nil
	}
	e.expireAt = m.expireAt(ttl)
	s.store(key, e)
	return true, nil
}

// Len 返回当前条目数（包含尚未惰性清理的过期条目）。
func (m *Memory) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		n += s.cache.Len() + len(s.leased)
		s.mu.Unlock()
	}
	return n
}

// Close 关闭 Store 并清空数据。
func (m *Memory) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	for _, s := range m.shards {
		s.mu.Lock()
		s.cache.Purge()
		clear(s.leased)
		s.mu.Unlock()
	}
	return nil
}

func (m *Memory) check(key string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return validateKey(key)
}

// cloneValue 复制写入值，nil 规范为空切片，保证空值与"不存在"可区分。
func cloneValue(v []byte) []byte {
	if v == nil {
		return []byte{}
	}
	return bytes.Clone(v)
}
