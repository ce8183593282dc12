package shop

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/omeyang/xguard/pkg/config/xconf"
	"github.com/omeyang/xguard/pkg/resilience/xbreaker"
	"github.com/omeyang/xguard/pkg/storage/xcache"
)

// Config shopctl 的配置文件结构。
type Config struct {
	Redis RedisConfig `koanf:"redis"`
	Mongo MongoConfig `koanf:"mongo"`
	Cache CacheConfig `koanf:"cache"`
	Log   LogConfig   `koanf:"log"`
	Warm  WarmConfig  `koanf:"warm"`
	Shops []Shop      `koanf:"shops"`
}

// RedisConfig Redis 连接配置。
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// MongoConfig 店铺数据源。URI 为空时使用以 Shops 为种子的内存仓库。
type MongoConfig struct {
	URI        string `koanf:"uri"`
	Database   string `koanf:"database"`
	Collection string `koanf:"collection"`
}

// CacheConfig 缓存引擎参数，零值字段使用 xcache 默认值。
type CacheConfig struct {
	NullTTL       time.Duration `koanf:"null_ttl"`
	DataTTL       time.Duration `koanf:"data_ttl"`
	LogicalTTL    time.Duration `koanf:"logical_ttl"`
	LockLease     time.Duration `koanf:"lock_lease"`
	RetryInterval time.Duration `koanf:"retry_interval"`
	MaxRetryWait  time.Duration `koanf:"max_retry_wait"`
	LoadTimeout   time.Duration `koanf:"load_timeout"`
	Workers       int           `koanf:"workers"`
	QueueSize     int           `koanf:"queue_size"`
	Singleflight  bool          `koanf:"singleflight"`
	LocalTTL      time.Duration `koanf:"local_ttl"`
	LocalMaxCost  int64         `koanf:"local_max_cost"`

	// LoadRatePerMinute 每个 key 每分钟最多回源次数（Redis 限流），0 表示不限。
	LoadRatePerMinute int `koanf:"load_rate_per_minute"`
	// BreakerFailures 连续回源失败多少次后熔断，0 表示不启用。
	BreakerFailures uint32 `koanf:"breaker_failures"`
}

// LogConfig 日志配置，File 为空时输出到 stderr。
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	File   string `koanf:"file"`
}

// WarmConfig 预热任务配置。
type WarmConfig struct {
	Schedule    string  `koanf:"schedule"`
	IDs         []int64 `koanf:"ids"`
	Concurrency int     `koanf:"concurrency"`
}

// 默认值
const (
	DefaultRedisAddr       = "127.0.0.1:6379"
	DefaultMongoDatabase   = "xguard"
	DefaultMongoCollection = "shops"
	DefaultLogicalTTL      = 30 * time.Minute
	DefaultWarmSchedule    = "@every 5m"
	DefaultWarmConcurrency = 8
)

// DefaultConfig 返回不依赖配置文件的默认配置。
func DefaultConfig() Config {
	return Config{
		Redis: RedisConfig{Addr: DefaultRedisAddr},
		Mongo: MongoConfig{Database: DefaultMongoDatabase, Collection: DefaultMongoCollection},
		Cache: CacheConfig{LogicalTTL: DefaultLogicalTTL},
		Log:   LogConfig{Level: "info", Format: "text"},
		Warm:  WarmConfig{Schedule: DefaultWarmSchedule, Concurrency: DefaultWarmConcurrency},
	}
}

// LoadConfig 从 YAML/JSON 文件加载配置，未出现的字段保留默认值。
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	c, err := xconf.New(path)
	if err != nil {
		return Config{}, err
	}
	if err := c.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("shop: load config %s: %w", path, err)
	}
	return cfg, nil
}

// ClientOptions 将缓存配置转换为 xcache 选项。回源限流依赖 Redis 客户端，由调用方单独装配。
func (c CacheConfig) ClientOptions(logger *slog.Logger) []xcache.Option {
	opts := []xcache.Option{xcache.WithLogger(logger)}
	if c.NullTTL > 0 {
		opts = append(opts, xcache.WithNullTTL(c.NullTTL))
	}
	if c.DataTTL > 0 {
		opts = append(opts, xcache.WithDefaultTTL(c.DataTTL))
	}
	if c.LockLease > 0 {
		opts = append(opts, xcache.WithLockLease(c.LockLease))
	}
	if c.RetryInterval > 0 {
		opts = append(opts, xcache.WithRetryInterval(c.RetryInterval))
	}
	if c.MaxRetryWait > 0 {
		opts = append(opts, xcache.WithMaxRetryWait(c.MaxRetryWait))
	}
	if c.LoadTimeout > 0 {
		opts = append(opts, xcache.WithLoadTimeout(c.LoadTimeout))
	}
	if c.Workers > 0 || c.QueueSize > 0 {
		workers, queue := c.Workers, c.QueueSize
		if workers <= 0 {
			workers = xcache.DefaultRebuildWorkers
		}
		if queue <= 0 {
			queue = xcache.DefaultRebuildQueueSize
		}
		opts = append(opts, xcache.WithRebuildPool(workers, queue))
	}
	if c.Singleflight {
		opts = append(opts, xcache.WithSingleflight())
	}
	if c.LocalTTL > 0 {
		maxCost := c.LocalMaxCost
		if maxCost <= 0 {
			maxCost = xcache.DefaultLocalMaxCost
		}
		opts = append(opts, xcache.WithLocalCache(c.LocalTTL, maxCost))
	}
	if c.BreakerFailures > 0 {
		opts = append(opts, xcache.WithLoadBreaker(xbreaker.New("shop-load",
			xbreaker.WithTripPolicy(xbreaker.ConsecutiveFailures(c.BreakerFailures)),
			xbreaker.WithLogger(logger))))
	}
	return opts
}
