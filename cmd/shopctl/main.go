// shopctl 是店铺缓存服务的命令行工具，用于演示和运维三种读取策略、
// 写路径缓存失效、逻辑过期预热以及分布式锁。
//
// 用法:
//
//	shopctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config     配置文件（YAML/JSON），店铺种子数据也从这里读取
//	    --redis      Redis 地址，覆盖配置文件
//	    --mongo      MongoDB URI，设置后店铺数据存放在 MongoDB
//	    --store      缓存后端: redis | memory (默认: redis)
//	    --log-level  日志级别，覆盖配置文件
//
// 命令:
//
//	get <id>             按策略读取店铺 (--strategy pass|mutex|logical)
//	update <id>          更新店铺并删除缓存
//	warm [id...]         以逻辑过期格式预热，缺省为全部店铺
//	reserve <id>         在占位锁保护下扣减库存
//	lock <name>          尝试获取分布式锁
//	serve-warm           按 cron 表达式周期预热，直到收到信号
//
// 退出码:
//
//	0: 成功
//	1: 执行失败或店铺不存在
//	2: 参数错误
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"
)

// 版本信息（可通过 -ldflags 注入）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runArgs(ctx, os.Args, os.Stdout, os.Stderr)
}

// runArgs 执行命令并映射退出码。
func runArgs(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := createApp(stdout, stderr)
	if err := app.Run(ctx, args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			if exitErr.msg != "" {
				_, _ = fmt.Fprintln(stderr, exitErr.msg)
			}
			return exitErr.code
		}
		var usageErr *usageError
		if errors.As(err, &usageErr) || isCLIUsageError(err) {
			_, _ = fmt.Fprintf(stderr, "参数错误: %v\n", err)
			return 2
		}
		_, _ = fmt.Fprintf(stderr, "错误: %v\n", err)
		return 1
	}
	return 0
}

func createApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "shopctl",
		Usage:     "店铺缓存服务命令行工具",
		Version:   fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径（YAML/JSON）",
				Sources: cli.EnvVars("SHOPCTL_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "redis",
				Usage:   "Redis 地址，覆盖配置文件",
				Sources: cli.EnvVars("SHOPCTL_REDIS"),
			},
			&cli.StringFlag{
				Name:    "mongo",
				Usage:   "MongoDB URI，设置后店铺数据存放在 MongoDB，覆盖配置文件",
				Sources: cli.EnvVars("SHOPCTL_MONGO"),
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "缓存后端: redis | memory",
				Value: storeRedis,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别: debug | info | warn | error",
			},
		},
		Commands: createCommands(),
		// 由 runArgs 统一处理退出码，禁止 urfave/cli 直接 os.Exit。
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}

// exitError 命令已完成输出，只需设置退出码。
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// usageError 参数错误，退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// isCLIUsageError 识别 urfave/cli 产生的参数解析错误。
func isCLIUsageError(err error) bool {
	msg := err.Error()
	for _, s := range []string{
		"flag provided but not defined",
		"invalid value",
		"No help topic",
		"Required flag",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
