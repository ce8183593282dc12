package shop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xguard/pkg/distributed/xdlock"
	"github.com/omeyang/xguard/pkg/storage/xcache"
)

const (
	orderLockPrefix  = "order:shop:"
	defaultOrderLock = 5 * time.Second
)

// Option Service 选项。
type Option func(*Service)

// WithLogger 设置日志记录器。
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDataTTL 设置 pass/mutex 策略写入缓存的 TTL，默认使用 xcache 的默认 TTL。
func WithDataTTL(ttl time.Duration) Option {
	return func(s *Service) { s.dataTTL = ttl }
}

// WithLogicalTTL 设置逻辑过期时长，默认 30 分钟。
func WithLogicalTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.logicalTTL = ttl
		}
	}
}

// WithWarmConcurrency 设置预热并发度，默认 8。
func WithWarmConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.warmConcurrency = n
		}
	}
}

// WithOrderLockLease 设置占位锁租约，默认 5 秒。
func WithOrderLockLease(lease time.Duration) Option {
	return func(s *Service) {
		if lease > 0 {
			s.orderLease = lease
		}
	}
}

// Service 店铺读写服务。
type Service struct {
	repo            Repository
	cache           *xcache.Cache[int64, Shop]
	locker          xdlock.Locker
	logger          *slog.Logger
	dataTTL         time.Duration
	logicalTTL      time.Duration
	warmConcurrency int
	orderLease      time.Duration
	now             func() time.Time
}

// NewCache 在 client 上创建店铺缓存，key 前缀为 cache:shop:，JSON 编码。
func NewCache(client *xcache.Client) (*xcache.Cache[int64, Shop], error) {
	return xcache.New[int64, Shop](client, KeyPrefix, nil)
}

// NewService 创建服务。占位锁与缓存重建共用 client 的 Locker。
func NewService(repo Repository, cache *xcache.Cache[int64, Shop], opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("shop: repository is nil")
	}
	if cache == nil {
		return nil, errors.New("shop: cache is nil")
	}
	s := &Service{
		repo:            repo,
		cache:           cache,
		locker:          cache.Client().Locker(),
		logger:          slog.Default(),
		logicalTTL:      DefaultLogicalTTL,
		warmConcurrency: DefaultWarmConcurrency,
		orderLease:      defaultOrderLock,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) load(ctx context.Context, id int64) (Shop, bool, error) {
	return s.repo.FindByID(ctx, id)
}

// QueryByID 按策略读取店铺。店铺不存在时 found 为 false；
// logical 策略下未预热的 key 同样返回 found=false。
func (s *Service) QueryByID(ctx context.Context, id int64, strategy Strategy) (Shop, bool, error) {
	switch strategy {
	case StrategyPassThrough:
		return s.cache.QueryWithPassThrough(ctx, id, s.load, s.dataTTL)
	case StrategyMutex:
		return s.cache.QueryWithMutex(ctx, id, s.load, s.dataTTL)
	case StrategyLogical:
		return s.cache.QueryWithLogicalExpiry(ctx, id, s.load, s.logicalTTL)
	default:
		return Shop{}, false, fmt.Errorf("%w: %q", ErrInvalidStrategy, strategy)
	}
}

// Update 先写仓库再删缓存。ID 为 0 时返回 ErrMissingID，不触碰仓库与缓存。
func (s *Service) Update(ctx context.Context, shop Shop) error {
	if shop.ID == 0 {
		return ErrMissingID
	}
	shop.UpdatedAt = s.now()
	return s.cache.UpdateThrough(ctx, shop.ID, func(ctx context.Context) error {
		return s.repo.Update(ctx, shop)
	})
}

// Create 新增店铺。调用方指定 ID 时顺带清掉该 ID 可能残留的空值标记。
func (s *Service) Create(ctx context.Context, shop Shop) (Shop, error) {
	explicit := shop.ID != 0
	saved, err := s.repo.Save(ctx, shop)
	if err != nil {
		return Shop{}, err
	}
	if explicit {
		if err := s.cache.Invalidate(ctx, saved.ID); err != nil {
			return saved, err
		}
	}
	return saved, nil
}

// WarmResult 预热结果。
type WarmResult struct {
	Saved   int
	Missing int
	Failed  int
}

// Warm 以逻辑过期格式预热店铺，ids 为空时预热仓库中全部店铺。
// 单个店铺失败不影响其他店铺，所有错误合并返回。
func (s *Service) Warm(ctx context.Context, ids ...int64) (WarmResult, error) {
	if len(ids) == 0 {
		all, err := s.repo.ListIDs(ctx)
		if err != nil {
			return WarmResult{}, err
		}
		ids = all
	}

	var (
		saved, missing, failed atomic.Int64
		mu                     sync.Mutex
		errs                   []error
	)
	var g errgroup.Group
	g.SetLimit(s.warmConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			ok, err := s.cache.SaveWithLogicalExpiry(ctx, id, s.load, s.logicalTTL)
			switch {
			case err != nil:
				failed.Add(1)
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm shop %d: %w", id, err))
				mu.Unlock()
			case !ok:
				missing.Add(1)
			default:
				saved.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := WarmResult{Saved: int(saved.Load()), Missing: int(missing.Load()), Failed: int(failed.Load())}
	s.logger.InfoContext(ctx, "shop: warm finished",
		slog.Int("saved", res.Saved), slog.Int("missing", res.Missing), slog.Int("failed", res.Failed))
	return res, errors.Join(errs...)
}

// ReserveSlot 在 lock:order:shop:{id} 保护下扣减一个库存并增加销量，
// 然后走 Update 的写路径使缓存失效。锁被占用时返回 ErrBusy。
func (s *Service) ReserveSlot(ctx context.Context, id int64) (Shop, error) {
	var out Shop
	err := xdlock.WithLock(ctx, s.locker, orderLockPrefix+strconv.FormatInt(id, 10), s.orderLease,
		func(ctx context.Context) error {
			shop, ok, err := s.repo.FindByID(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: id=%d", ErrNotFound, id)
			}
			if shop.Stock <= 0 {
				return fmt.Errorf("%w: id=%d", ErrSoldOut, id)
			}
			shop.Stock--
			shop.Sold++
			if err := s.Update(ctx, shop); err != nil {
				return err
			}
			out = shop
			return nil
		})
	if errors.Is(err, xdlock.ErrLockHeld) {
		return Shop{}, fmt.Errorf("%w: id=%d", ErrBusy, id)
	}
	return out, err
}
