package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/omeyang/xguard/internal/shop"
	"github.com/omeyang/xguard/pkg/config/xconf"
	"github.com/omeyang/xguard/pkg/lifecycle/xrun"
	"github.com/omeyang/xguard/pkg/observability/xlog"
	"github.com/omeyang/xguard/pkg/observability/xmetrics"
	"github.com/omeyang/xguard/pkg/resilience/xlimit"
	"github.com/omeyang/xguard/pkg/storage/xcache"
	"github.com/omeyang/xguard/pkg/storage/xkv"
	"github.com/omeyang/xguard/pkg/storage/xmongo"
	"github.com/omeyang/xguard/pkg/util/xid"
)

const (
	storeRedis  = "redis"
	storeMemory = "memory"

	mongoCloseTimeout = 5 * time.Second
)

// env 一次命令执行所需的全部依赖。
type env struct {
	cfg    shop.Config
	logger *slog.Logger
	level  *slog.LevelVar
	store  xkv.Store
	client *xcache.Client
	repo   shop.Repository
	svc    *shop.Service

	observer xmetrics.Observer

	closers []func() error
}

// newEnv 按全局 flag 与配置文件装配依赖。
func newEnv(ctx context.Context, cmd *cli.Command) (e *env, err error) {
	cfg, err := shop.LoadConfig(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if addr := cmd.String("redis"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if uri := cmd.String("mongo"); uri != "" {
		cfg.Mongo.URI = uri
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}

	e = &env{cfg: cfg}
	defer func() {
		if err != nil {
			_ = e.Close(context.WithoutCancel(ctx))
			e = nil
		}
	}()

	if err := e.initLogger(cmd); err != nil {
		return e, err
	}
	if err := e.initStore(ctx, cmd.String("store")); err != nil {
		return e, err
	}
	if err := e.initService(ctx); err != nil {
		return e, err
	}
	return e, nil
}

func (e *env) initLogger(cmd *cli.Command) error {
	b := xlog.New().
		SetLevelString(e.cfg.Log.Level).
		SetFormat(e.cfg.Log.Format).
		SetAttrs(slog.String("service", "shopctl"))
	if e.cfg.Log.File != "" {
		b = b.SetRotation(e.cfg.Log.File)
	} else {
		b = b.SetOutput(cmd.Root().ErrWriter)
	}
	logger, level, cleanup, err := b.Build()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	e.logger, e.level = logger, level
	e.closers = append(e.closers, cleanup)
	return nil
}

func (e *env) initStore(ctx context.Context, kind string) error {
	opts := e.cfg.Cache.ClientOptions(e.logger)

	observer, err := xmetrics.NewOTelObserver(xmetrics.WithInstrumentationName("shopctl"))
	if err != nil {
		return fmt.Errorf("init observer: %w", err)
	}
	e.observer = observer
	opts = append(opts, xcache.WithObserver(observer))

	switch kind {
	case storeRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     e.cfg.Redis.Addr,
			Password: e.cfg.Redis.Password,
			DB:       e.cfg.Redis.DB,
		})
		store, err := xkv.NewRedis(rdb)
		if err != nil {
			_ = rdb.Close()
			return err
		}
		e.store = store
		// xkv.Redis 不关闭传入的客户端，逆序关闭时先关 store 再关 rdb。
		e.closers = append(e.closers, rdb.Close, store.Close)
		if err := store.Health(ctx); err != nil {
			return fmt.Errorf("redis %s: %w", e.cfg.Redis.Addr, err)
		}
		if n := e.cfg.Cache.LoadRatePerMinute; n > 0 {
			limiter, err := xlimit.NewRedis(rdb, xlimit.PerMinute(n), xlimit.WithLogger(e.logger))
			if err != nil {
				return fmt.Errorf("init load limiter: %w", err)
			}
			opts = append(opts, xcache.WithLoadLimiter(limiter))
		}
	case storeMemory:
		store, err := xkv.NewMemory()
		if err != nil {
			return err
		}
		e.store = store
		e.closers = append(e.closers, store.Close)
	default:
		return usagef("unknown store %q (want %s or %s)", kind, storeRedis, storeMemory)
	}

	client, err := xcache.NewClient(e.store, opts...)
	if err != nil {
		return fmt.Errorf("init cache client: %w", err)
	}
	e.client = client
	return nil
}

func (e *env) initService(ctx context.Context) error {
	ids, err := xid.NewGenerator()
	if err != nil {
		return err
	}
	repo, err := e.initRepository(ctx, ids)
	if err != nil {
		return err
	}
	cache, err := shop.NewCache(e.client)
	if err != nil {
		return err
	}
	svc, err := shop.NewService(repo, cache,
		shop.WithLogger(e.logger),
		shop.WithDataTTL(e.cfg.Cache.DataTTL),
		shop.WithLogicalTTL(e.cfg.Cache.LogicalTTL),
		shop.WithWarmConcurrency(e.cfg.Warm.Concurrency),
	)
	if err != nil {
		return err
	}
	e.repo, e.svc = repo, svc
	return nil
}

// initRepository 配置了 mongo.uri 时使用 MongoDB（空集合写入种子），否则使用内存仓库。
func (e *env) initRepository(ctx context.Context, ids *xid.Generator) (shop.Repository, error) {
	mc := e.cfg.Mongo
	if mc.URI == "" {
		return shop.NewMemoryRepository(ids, e.cfg.Shops...)
	}

	raw, err := mongo.Connect(options.Client().ApplyURI(mc.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	m, err := xmongo.New(raw, xmongo.WithObserver(e.observer))
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
		defer cancel()
		return m.Close(ctx)
	})
	if err := m.Health(ctx); err != nil {
		return nil, err
	}

	coll := raw.Database(mc.Database).Collection(mc.Collection)
	n, err := shop.SeedMongo(ctx, m, coll, e.cfg.Shops)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		e.logger.InfoContext(ctx, "seeded mongo", "collection", mc.Collection, "count", n)
	}
	return shop.NewMongoRepository(coll, ids)
}

// Close 先关闭缓存客户端（等待后台重建），再按逆序关闭其余资源。
func (e *env) Close(ctx context.Context) error {
	var errs []error
	if e.client != nil {
		errs = append(errs, e.client.Close(ctx))
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	return errors.Join(errs...)
}

// watchLogLevel 返回监视配置文件的服务，log.level 变更时热更新日志级别。
// 未指定配置文件时等待 ctx 取消。
func (e *env) watchLogLevel(path string) xrun.Service {
	return func(ctx context.Context) error {
		if path == "" {
			<-ctx.Done()
			return nil
		}
		cfg, err := xconf.New(path)
		if err != nil {
			return err
		}
		err = cfg.Watch(ctx, func(cfg *xconf.Config, err error) {
			if err != nil {
				e.logger.WarnContext(ctx, "config reload failed", "error", err)
				return
			}
			lvl, err := xlog.ParseLevel(cfg.Client().String("log.level"))
			if err != nil {
				e.logger.WarnContext(ctx, "invalid log level in config", "error", err)
				return
			}
			if slog.Level(lvl) != e.level.Level() {
				e.level.Set(slog.Level(lvl))
				e.logger.InfoContext(ctx, "log level changed", "level", lvl.String())
			}
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
}

// withEnv 为命令装配依赖并在结束后释放。
func withEnv(fn func(ctx context.Context, cmd *cli.Command, e *env) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) (err error) {
		e, err := newEnv(ctx, cmd)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, e.Close(context.WithoutCancel(ctx)))
		}()
		return fn(ctx, cmd, e)
	}
}
