package xconf

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 100 * time.Millisecond

// WatchOption Watch 选项。
type WatchOption func(*watchOptions)

type watchOptions struct {
	debounce time.Duration
}

// WithDebounce 设置防抖时间，窗口内的多次变更只触发一次重载。默认 100ms。
func WithDebounce(d time.Duration) WatchOption {
	return func(o *watchOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// Watch 监视配置文件变更并自动重载，阻塞直到 ctx 取消。
//
// 每次重载（成功或失败）后调用 onChange，失败时旧配置保持不变。
// 监视的是文件所在目录，兼容编辑器"写临时文件再 rename"的保存方式。
func (c *Config) Watch(ctx context.Context, onChange func(cfg *Config, err error), opts ...WatchOption) error {
	if c.path == "" {
		return ErrNotReloadable
	}
	o := watchOptions{debounce: defaultDebounce}
	for _, opt := range opts {
		opt(&o)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("xconf: create watcher: %w", err)
	}
	dir := filepath.Dir(c.path)
	if err := w.Add(dir); err != nil {
		return errors.Join(fmt.Errorf("xconf: watch directory %s: %w", dir, err), w.Close())
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	reload := func() {
		if ctx.Err() != nil {
			return
		}
		err := c.Reload()
		if onChange != nil {
			onChange(c, err)
		}
	}

	filename := filepath.Base(c.path)
	for {
		select {
		case <-ctx.Done():
			return w.Close()

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(o.debounce, reload)
			mu.Unlock()

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if onChange != nil {
				onChange(c, fmt.Errorf("xconf: watch error: %w", werr))
			}
		}
	}
}
