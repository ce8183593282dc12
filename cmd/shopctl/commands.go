package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xguard/internal/shop"
	"github.com/omeyang/xguard/pkg/distributed/xcron"
	"github.com/omeyang/xguard/pkg/distributed/xdlock"
	"github.com/omeyang/xguard/pkg/lifecycle/xrun"
)

const (
	warmJobName     = "warm-shops"
	defaultLease    = 10 * time.Second
	warmJobTimeout  = time.Minute
	stopWaitTimeout = 10 * time.Second
)

func createCommands() []*cli.Command {
	return []*cli.Command{
		createGetCommand(),
		createUpdateCommand(),
		createWarmCommand(),
		createReserveCommand(),
		createLockCommand(),
		createServeWarmCommand(),
	}
}

// =============================================================================
// 读取
// =============================================================================

func createGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "按策略读取店铺",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "strategy",
				Aliases: []string{"s"},
				Usage:   "读取策略: pass | mutex | logical",
				Value:   string(shop.StrategyPassThrough),
			},
		},
		Action: withEnv(cmdGet),
	}
}

func cmdGet(ctx context.Context, cmd *cli.Command, e *env) error {
	id, err := argID(cmd)
	if err != nil {
		return err
	}
	strategy, err := shop.ParseStrategy(cmd.String("strategy"))
	if err != nil {
		return &usageError{msg: err.Error()}
	}

	s, found, err := e.svc.QueryByID(ctx, id, strategy)
	if err != nil {
		return err
	}
	if !found {
		return &exitError{code: 1, msg: fmt.Sprintf("shop %d not found", id)}
	}
	return printJSON(cmd.Root().Writer, s)
}

// =============================================================================
// 写入
// =============================================================================

func createUpdateCommand() *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "更新店铺（先写库，再删缓存）",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "店铺名称"},
			&cli.StringFlag{Name: "address", Usage: "地址"},
			&cli.Int64Flag{Name: "avg-price", Usage: "人均价格"},
			&cli.Int64Flag{Name: "stock", Usage: "库存"},
		},
		Action: withEnv(cmdUpdate),
	}
}

func cmdUpdate(ctx context.Context, cmd *cli.Command, e *env) error {
	id, err := argID(cmd)
	if err != nil {
		return err
	}
	s, found, err := e.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return &exitError{code: 1, msg: fmt.Sprintf("shop %d not found", id)}
	}

	if cmd.IsSet("name") {
		s.Name = cmd.String("name")
	}
	if cmd.IsSet("address") {
		s.Address = cmd.String("address")
	}
	if cmd.IsSet("avg-price") {
		s.AvgPrice = cmd.Int64("avg-price")
	}
	if cmd.IsSet("stock") {
		s.Stock = cmd.Int64("stock")
	}

	if err := e.svc.Update(ctx, s); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.Root().Writer, "updated shop %d\n", id)
	return err
}

func createReserveCommand() *cli.Command {
	return &cli.Command{
		Name:      "reserve",
		Usage:     "在占位锁保护下扣减一个库存",
		ArgsUsage: "<id>",
		Action:    withEnv(cmdReserve),
	}
}

func cmdReserve(ctx context.Context, cmd *cli.Command, e *env) error {
	id, err := argID(cmd)
	if err != nil {
		return err
	}
	s, err := e.svc.ReserveSlot(ctx, id)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.Root().Writer, "reserved shop %d: stock=%d sold=%d\n", id, s.Stock, s.Sold)
	return err
}

// =============================================================================
// 预热
// =============================================================================

func createWarmCommand() *cli.Command {
	return &cli.Command{
		Name:      "warm",
		Usage:     "以逻辑过期格式预热店铺，缺省为全部店铺",
		ArgsUsage: "[id...]",
		Action:    withEnv(cmdWarm),
	}
}

func cmdWarm(ctx context.Context, cmd *cli.Command, e *env) error {
	ids, err := argIDs(cmd)
	if err != nil {
		return err
	}
	res, err := e.svc.Warm(ctx, ids...)
	_, _ = fmt.Fprintf(cmd.Root().Writer, "warmed: saved=%d missing=%d failed=%d\n", res.Saved, res.Missing, res.Failed)
	return err
}

func createServeWarmCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve-warm",
		Usage: "按 cron 表达式周期预热，多副本间通过分布式锁互斥",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "schedule",
				Usage: "cron 表达式，覆盖配置文件（如 @every 5m）",
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "立即执行一次后退出",
			},
		},
		Action: withEnv(cmdServeWarm),
	}
}

func cmdServeWarm(ctx context.Context, cmd *cli.Command, e *env) error {
	schedule := e.cfg.Warm.Schedule
	if s := cmd.String("schedule"); s != "" {
		schedule = s
	}

	scheduler, err := xcron.New(e.client.Locker(), xcron.WithLogger(e.logger))
	if err != nil {
		return err
	}
	ids := e.cfg.Warm.IDs
	_, err = scheduler.AddJob(schedule, warmJobName, func(ctx context.Context) error {
		_, err := e.svc.Warm(ctx, ids...)
		return err
	}, xcron.WithTimeout(warmJobTimeout))
	if err != nil {
		return &usageError{msg: err.Error()}
	}

	ran, err := scheduler.RunNow(ctx, warmJobName)
	if cmd.Bool("once") {
		if err == nil && !ran {
			_, _ = fmt.Fprintln(cmd.Root().Writer, "warm skipped: another instance holds the lock")
		}
		return err
	}
	if err != nil {
		e.logger.WarnContext(ctx, "initial warm failed", "error", err)
	}

	err = xrun.Run(ctx, []xrun.Option{xrun.WithName("serve-warm"), xrun.WithLogger(e.logger)},
		func(ctx context.Context) error {
			scheduler.Start()
			e.logger.InfoContext(ctx, "serve-warm started", "schedule", schedule)
			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopWaitTimeout)
			defer cancel()
			return scheduler.Stop(stopCtx)
		},
		e.watchLogLevel(cmd.String("config")),
	)
	if errors.Is(err, xrun.ErrSignal) {
		return nil
	}
	return err
}

// =============================================================================
// 分布式锁
// =============================================================================

func createLockCommand() *cli.Command {
	return &cli.Command{
		Name:      "lock",
		Usage:     "尝试获取分布式锁，持有 --hold 后释放",
		ArgsUsage: "<name>",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "lease", Usage: "锁租约", Value: defaultLease},
			&cli.DurationFlag{Name: "hold", Usage: "持有时长，0 表示立即释放"},
		},
		Action: withEnv(cmdLock),
	}
}

func cmdLock(ctx context.Context, cmd *cli.Command, e *env) error {
	name := cmd.Args().First()
	if name == "" {
		return usagef("lock name is required")
	}
	handle, err := e.client.Locker().TryLock(ctx, name, cmd.Duration("lease"))
	if errors.Is(err, xdlock.ErrEmptyKey) || errors.Is(err, xdlock.ErrInvalidLease) {
		return &usageError{msg: err.Error()}
	}
	if err != nil {
		return err
	}
	if handle == nil {
		return &exitError{code: 1, msg: fmt.Sprintf("lock %s is held by another owner", name)}
	}
	defer xdlock.Release(ctx, handle, e.logger)

	w := cmd.Root().Writer
	_, _ = fmt.Fprintf(w, "acquired %s token=%s\n", handle.Key(), handle.Token())
	if hold := cmd.Duration("hold"); hold > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(hold):
		}
	}
	_, err = fmt.Fprintf(w, "released %s\n", handle.Key())
	return err
}

// =============================================================================
// 辅助
// =============================================================================

func argID(cmd *cli.Command) (int64, error) {
	if cmd.Args().Len() != 1 {
		return 0, usagef("exactly one shop id is required")
	}
	return parseID(cmd.Args().First())
}

func argIDs(cmd *cli.Command) ([]int64, error) {
	ids := make([]int64, 0, cmd.Args().Len())
	for _, s := range cmd.Args().Slice() {
		id, err := parseID(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, usagef("invalid shop id %q", s)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
