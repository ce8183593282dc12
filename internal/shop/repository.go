package shop

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/omeyang/xguard/pkg/util/xid"
)

// Repository 店铺记录的权威存储。
type Repository interface {
	// FindByID 不存在时返回 (Shop{}, false, nil)。
	FindByID(ctx context.Context, id int64) (Shop, bool, error)
	// Save 插入新店铺，ID 为 0 时分配新 ID，返回最终记录。
	Save(ctx context.Context, s Shop) (Shop, error)
	// Update 覆盖已有店铺，不存在时返回 ErrNotFound。
	Update(ctx context.Context, s Shop) error
	// ListIDs 返回全部店铺 ID（升序）。
	ListIDs(ctx context.Context) ([]int64, error)
}

// MemoryRepository 进程内 Repository，用于演示与测试。
type MemoryRepository struct {
	mu    sync.RWMutex
	shops map[int64]Shop
	ids   *xid.Generator
	now   func() time.Time
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository 创建内存仓库并写入种子数据。
func NewMemoryRepository(ids *xid.Generator, seed ...Shop) (*MemoryRepository, error) {
	if ids == nil {
		return nil, errors.New("shop: id generator is nil")
	}
	r := &MemoryRepository{
		shops: make(map[int64]Shop, len(seed)),
		ids:   ids,
		now:   time.Now,
	}
	for _, s := range seed {
		if _, err := r.Save(context.Background(), s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id int64) (Shop, bool, error) {
	if err := ctx.Err(); err != nil {
		return Shop{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.shops[id]
	return s, ok, nil
}

func (r *MemoryRepository) Save(ctx context.Context, s Shop) (Shop, error) {
	if err := ctx.Err(); err != nil {
		return Shop{}, err
	}
	if s.ID == 0 {
		id, err := r.ids.NewWithRetry(ctx)
		if err != nil {
			return Shop{}, fmt.Errorf("shop: allocate id: %w", err)
		}
		s.ID = id
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.shops[s.ID]; exists {
		return Shop{}, fmt.Errorf("shop: id %d already exists", s.ID)
	}
	r.shops[s.ID] = s
	return s, nil
}

func (r *MemoryRepository) Update(ctx context.Context, s Shop) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shops[s.ID]; !ok {
		return fmt.Errorf("%w: id=%d", ErrNotFound, s.ID)
	}
	r.shops[s.ID] = s
	return nil
}

// Delete 删除店铺，用于模拟记录消失。
func (r *MemoryRepository) Delete(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.shops, id)
}

func (r *MemoryRepository) ListIDs(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	ids := make([]int64, 0, len(r.shops))
	for id := range r.shops {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids, nil
}
