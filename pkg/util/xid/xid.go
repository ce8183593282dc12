package xid

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"time"

	"github.com/sony/sonyflake/v2"
)

var (
	// ErrInvalidID ID 非正。
	ErrInvalidID = errors.New("xid: invalid id")
	// ErrOverTimeLimit 时间分量溢出，不可恢复。
	ErrOverTimeLimit = errors.New("xid: time component overflow")
	// ErrInvalidConfig 配置无效。
	ErrInvalidConfig = errors.New("xid: invalid config")
	// ErrWaitTimeout 等待时钟追上超时。
	ErrWaitTimeout = errors.New("xid: wait timeout")
)

// EnvMachineID 直接指定机器 ID 的环境变量（0-65535）。
const EnvMachineID = "XID_MACHINE_ID"

const (
	// DefaultMaxWait NewWithRetry 的默认最长等待。
	DefaultMaxWait = 500 * time.Millisecond
	retryInterval  = 10 * time.Millisecond

	machineBits  = 16
	sequenceBits = 8
	machineMask  = (1 << machineBits) - 1
	sequenceMask = (1 << sequenceBits) - 1
)

// Option 生成器选项。
type Option func(*options)

type options struct {
	machineID func() (uint16, error)
	maxWait   time.Duration
}

// WithMachineID 自定义机器 ID 来源。
func WithMachineID(fn func() (uint16, error)) Option {
	return func(o *options) { o.machineID = fn }
}

// WithMaxWait 设置 NewWithRetry 的最长等待，默认 500ms。
func WithMaxWait(d time.Duration) Option {
	return func(o *options) { o.maxWait = d }
}

// Generator ID 生成器，并发安全。
type Generator struct {
	next    func() (int64, error)
	maxWait time.Duration
}

// NewGenerator 创建生成器。
func NewGenerator(opts ...Option) (*Generator, error) {
	o := options{machineID: DefaultMachineID, maxWait: DefaultMaxWait}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.machineID == nil {
		return nil, fmt.Errorf("%w: machine id func is nil", ErrInvalidConfig)
	}
	if o.maxWait < 0 {
		return nil, fmt.Errorf("%w: max wait must be non-negative, got %s", ErrInvalidConfig, o.maxWait)
	}

	sf, err := sonyflake.New(sonyflake.Settings{
		MachineID: func() (int, error) {
			id, err := o.machineID()
			return int(id), err
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &Generator{next: sf.NextID, maxWait: o.maxWait}, nil
}

// New 生成一个 ID。
func (g *Generator) New() (int64, error) {
	id, err := g.next()
	if err != nil {
		if errors.Is(err, sonyflake.ErrOverTimeLimit) {
			return 0, fmt.Errorf("%w: %w", ErrOverTimeLimit, err)
		}
		return 0, err
	}
	return id, nil
}

// NewWithRetry 生成 ID，可重试错误时每 10ms 重试一次，最长等待 maxWait。
// 时间分量溢出立即返回。
func (g *Generator) NewWithRetry(ctx context.Context) (int64, error) {
	id, err := g.New()
	if err == nil || errors.Is(err, ErrOverTimeLimit) {
		return id, err
	}

	deadline := time.Now().Add(g.maxWait)
	timer := time.NewTimer(retryInterval)
	defer timer.Stop()
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, fmt.Errorf("%w: %w", ErrWaitTimeout, err)
		}
		timer.Reset(min(retryInterval, remaining))
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
		}
		if id, err = g.New(); err == nil || errors.Is(err, ErrOverTimeLimit) {
			return id, err
		}
	}
}

// Components ID 分解结果。
type Components struct {
	Time     int64 // 自 Sonyflake epoch 起的 10ms 单位数
	Sequence int64
	Machine  int64
}

// Decompose 分解 ID。
func Decompose(id int64) (Components, error) {
	if id <= 0 {
		return Components{}, fmt.Errorf("%w: value must be positive, got %d", ErrInvalidID, id)
	}
	return Components{
		Machine:  id & machineMask,
		Sequence: (id >> machineBits) & sequenceMask,
		Time:     id >> (machineBits + sequenceBits),
	}, nil
}

// DefaultMachineID 优先读取 XID_MACHINE_ID，否则取主机名的 FNV-1a 哈希低 16 位。
func DefaultMachineID() (uint16, error) {
	if s := os.Getenv(EnvMachineID); s != "" {
		id, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("xid: invalid %s value %q: %w", EnvMachineID, s, err)
		}
		return uint16(id), nil
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return 0, fmt.Errorf("xid: resolve hostname: %w", err)
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(host))
	return uint16(h.Sum32() & machineMask), nil
}
